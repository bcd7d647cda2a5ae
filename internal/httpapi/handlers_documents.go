package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/blite-io/blite-server/internal/cache"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/svcerr"
	"github.com/blite-io/blite-server/internal/txn"
)

func (s *Server) mountDocumentRoutes(r *mux.Router) {
	base := r.PathPrefix("/{dbId}/{collection}/documents").Subrouter()
	base.Handle("", requirePermission(s.guard, identity.OpQuery, collectionRouteVar, s.log)(http.HandlerFunc(s.listDocuments))).Methods(http.MethodGet)
	base.Handle("", requirePermission(s.guard, identity.OpInsert, collectionRouteVar, s.log)(http.HandlerFunc(s.insertDocument))).Methods(http.MethodPost)
	base.Handle("/{id}", requirePermission(s.guard, identity.OpQuery, collectionRouteVar, s.log)(http.HandlerFunc(s.getDocument))).Methods(http.MethodGet)
	base.Handle("/{id}", requirePermission(s.guard, identity.OpUpdate, collectionRouteVar, s.log)(http.HandlerFunc(s.replaceDocument))).Methods(http.MethodPut)
	base.Handle("/{id}", requirePermission(s.guard, identity.OpDelete, collectionRouteVar, s.log)(http.HandlerFunc(s.deleteDocument))).Methods(http.MethodDelete)
}

// engineAndTx resolves the target engine for the request and, if an
// "x-transaction-id" header is present, the caller's in-flight
// transaction handle (spec.md §4.9's "the id is an optional field on
// every write" rule, translated to an HTTP header on this surface).
func (s *Server) engineAndTx(r *http.Request) (engine.Engine, engine.Tx, *txn.Session, error) {
	eng, err := s.registry.Get(dbIDFromRoute(r))
	if err != nil {
		return nil, nil, nil, err
	}
	txID := r.Header.Get("x-transaction-id")
	if txID == "" {
		return eng, nil, nil, nil
	}
	user, _ := userFromContext(r.Context())
	sess, err := s.coord.Require(txID, user.Username)
	if err != nil {
		return nil, nil, nil, err
	}
	return eng, sess.EngineTx(), sess, nil
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
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

	skip, take := pageParams(r)
	cacheKey := cache.Key(dbIDFromRoute(r), physical, cache.VariantList, cache.HashParameters([]byte(r.URL.RawQuery)))
	noActiveTx := !s.coord.HasActive(dbIDFromRoute(r))
	if s.cache != nil && noActiveTx {
		if v, ok := s.cache.Get(cacheKey, dbIDFromRoute(r), physical); ok {
			writeOK(w, http.StatusOK, v)
			return
		}
	}

	iter, _, err := eng.Query(r.Context(), nil, engine.Plan{Collection: physical, Skip: skip, Take: take})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	defer iter.Close()

	var out []map[string]interface{}
	for {
		doc, id, ok, err := iter.Next(r.Context())
		if err != nil {
			writeError(w, r, s.log, svcerr.Internal("listing documents", err))
			return
		}
		if !ok {
			break
		}
		row := documentToJSON(doc)
		row["_id"] = docIDToJSON(id)
		out = append(out, row)
	}
	if s.cache != nil && noActiveTx {
		s.cache.Set(cacheKey, out, dbIDFromRoute(r), physical)
	}
	writeOK(w, http.StatusOK, out)
}

func (s *Server) insertDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput("invalid JSON document body"))
		return
	}
	eng, tx, sess, err := s.engineAndTx(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	physical := physicalCollectionFromContext(r.Context())
	id, err := eng.Insert(r.Context(), tx, physical, documentFromJSON(body), nil)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if sess != nil {
		s.coord.MarkDirty(sess, physical)
	} else if s.cache != nil {
		s.cache.Invalidate(dbIDFromRoute(r), physical)
	}
	writeOK(w, http.StatusCreated, map[string]interface{}{"id": docIDToJSON(id)})
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	eng, err := s.registry.Get(dbIDFromRoute(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	id, err := routeDocID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput("invalid document id"))
		return
	}
	physical := physicalCollectionFromContext(r.Context())
	doc, found, err := eng.FindByID(r.Context(), nil, physical, id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if !found {
		writeError(w, r, s.log, svcerr.NotFound("document not found"))
		return
	}
	row := documentToJSON(doc)
	row["_id"] = docIDToJSON(id)
	writeOK(w, http.StatusOK, row)
}

func (s *Server) replaceDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput("invalid JSON document body"))
		return
	}
	eng, tx, sess, err := s.engineAndTx(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	id, err := routeDocID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput("invalid document id"))
		return
	}
	physical := physicalCollectionFromContext(r.Context())
	found, err := eng.Update(r.Context(), tx, physical, id, documentFromJSON(body))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if !found {
		writeError(w, r, s.log, svcerr.NotFound("document not found"))
		return
	}
	if sess != nil {
		s.coord.MarkDirty(sess, physical)
	} else if s.cache != nil {
		s.cache.Invalidate(dbIDFromRoute(r), physical)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	eng, tx, sess, err := s.engineAndTx(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	id, err := routeDocID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput("invalid document id"))
		return
	}
	physical := physicalCollectionFromContext(r.Context())
	found, err := eng.Delete(r.Context(), tx, physical, id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if !found {
		writeError(w, r, s.log, svcerr.NotFound("document not found"))
		return
	}
	if sess != nil {
		s.coord.MarkDirty(sess, physical)
	} else if s.cache != nil {
		s.cache.Invalidate(dbIDFromRoute(r), physical)
	}
	w.WriteHeader(http.StatusNoContent)
}

func pageParams(r *http.Request) (skip, take int) {
	if v := r.URL.Query().Get("skip"); v != "" {
		skip, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("take"); v != "" {
		take, _ = strconv.Atoi(v)
	}
	return
}
