package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/svcerr"
)

func (s *Server) mountCollectionRoutes(r *mux.Router) {
	base := r.PathPrefix("/{dbId}/collections").Subrouter()
	base.HandleFunc("", requirePermission(s.guard, identity.OpQuery, nil, s.log)(http.HandlerFunc(s.listCollections)).ServeHTTP).Methods(http.MethodGet)
	base.HandleFunc("", requirePermission(s.guard, identity.OpInsert, nil, s.log)(http.HandlerFunc(s.createCollection)).ServeHTTP).Methods(http.MethodPost)
	base.HandleFunc("/{collection}", requirePermission(s.guard, identity.OpDrop, collectionRouteVar, s.log)(http.HandlerFunc(s.dropCollection)).ServeHTTP).Methods(http.MethodDelete)
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	eng, err := s.registry.Get(dbIDFromRoute(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	names, err := eng.ListCollections(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	user, _ := userFromContext(r.Context())
	logical := make([]string, 0, len(names))
	for _, n := range names {
		if l, owned := s.guard.StripNamespace(user, n); owned {
			logical = append(logical, l)
		}
	}
	writeOK(w, http.StatusOK, logical)
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, r, s.log, svcerr.InvalidInput("request body must be {\"name\": \"<collection>\"}"))
		return
	}
	eng, err := s.registry.Get(dbIDFromRoute(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	user, _ := userFromContext(r.Context())
	physical := s.guard.ResolvePhysicalName(user, body.Name)
	if err := eng.CreateCollection(r.Context(), physical); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]string{"name": body.Name})
}

func (s *Server) dropCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	eng, err := s.registry.Get(dbIDFromRoute(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	physical := physicalCollectionFromContext(r.Context())
	if err := eng.DropCollection(r.Context(), physical); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if s.cache != nil {
		s.cache.Invalidate(dbIDFromRoute(r), physical)
	}
	w.WriteHeader(http.StatusNoContent)
}
