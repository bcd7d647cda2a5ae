package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/svcerr"
)

func (s *Server) mountUserRoutes(r *mux.Router) {
	base := r.PathPrefix("/users").Subrouter()
	base.Use(requirePermission(s.guard, identity.OpAdmin, nil, s.log))
	base.HandleFunc("", s.listUsers).Methods(http.MethodGet)
	base.HandleFunc("", s.createUser).Methods(http.MethodPost)
	base.HandleFunc("/{username}", s.deleteUser).Methods(http.MethodDelete)
	base.HandleFunc("/{username}/permissions", s.updateUserPermissions).Methods(http.MethodPut)
}

type userView struct {
	Username             string                 `json:"username"`
	Active               bool                   `json:"active"`
	Namespace            string                 `json:"namespace,omitempty"`
	RestrictedDatabaseID *string                `json:"restrictedDatabaseId,omitempty"`
	Permissions          []permissionEntryView  `json:"permissions"`
	KeyPrefix            string                 `json:"keyPrefix"`
}

type permissionEntryView struct {
	Collection string `json:"collection"`
	Ops        uint8  `json:"ops"`
}

func userToView(u identity.User) userView {
	perms := make([]permissionEntryView, len(u.Permissions))
	for i, p := range u.Permissions {
		perms[i] = permissionEntryView{Collection: p.Collection, Ops: uint8(p.Ops)}
	}
	return userView{
		Username:             u.Username,
		Active:               u.Active,
		Namespace:            u.Namespace,
		RestrictedDatabaseID: u.RestrictedDatabaseID,
		Permissions:          perms,
		KeyPrefix:            u.KeyPrefix,
	}
}

func permissionsFromView(views []permissionEntryView) []identity.PermissionEntry {
	out := make([]identity.PermissionEntry, len(views))
	for i, v := range views {
		out[i] = identity.PermissionEntry{Collection: v.Collection, Ops: identity.Op(v.Ops)}
	}
	return out
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.identity.List(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := make([]userView, len(users))
	for i, u := range users {
		out[i] = userToView(u)
	}
	writeOK(w, http.StatusOK, out)
}

type createUserRequest struct {
	Username              string                `json:"username"`
	Namespace             string                `json:"namespace"`
	RestrictedDatabaseID  *string               `json:"restrictedDatabaseId"`
	Permissions           []permissionEntryView `json:"permissions"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, r, s.log, svcerr.InvalidInput("username is required"))
		return
	}
	rawKey, err := s.identity.CreateUser(r.Context(), req.Username, permissionsFromView(req.Permissions), req.Namespace, req.RestrictedDatabaseID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]string{"username": req.Username, "apiKey": rawKey})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if err := s.identity.Delete(r.Context(), username); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateUserPermissions(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	var perms []permissionEntryView
	if err := json.NewDecoder(r.Body).Decode(&perms); err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput("invalid permissions body"))
		return
	}
	if err := s.identity.UpdatePermissions(r.Context(), username, permissionsFromView(perms)); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
