package httpapi

import (
	"archive/zip"
	"io"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/svcerr"
)

func (s *Server) mountDatabaseRoutes(r *mux.Router) {
	admin := r.PathPrefix("/databases").Subrouter()
	admin.Use(requirePermission(s.guard, identity.OpAdmin, nil, s.log))
	admin.HandleFunc("", s.listDatabases).Methods(http.MethodGet)
	admin.HandleFunc("/{dbId}", s.provisionDatabase).Methods(http.MethodPost)
	admin.HandleFunc("/{dbId}", s.deprovisionDatabase).Methods(http.MethodDelete)
	admin.HandleFunc("/{dbId}/backup", s.backupDatabase).Methods(http.MethodGet)
}

type databaseView struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

func (s *Server) listDatabases(w http.ResponseWriter, r *http.Request) {
	tenants := s.registry.List()
	out := make([]databaseView, 0, len(tenants)+1)
	out = append(out, databaseView{ID: "default", Active: true})
	for _, t := range tenants {
		out = append(out, databaseView{ID: t.ID, Active: t.Active})
	}
	writeOK(w, http.StatusOK, out)
}

func (s *Server) provisionDatabase(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["dbId"]
	if err := s.registry.Provision(r.Context(), id); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeOK(w, http.StatusCreated, databaseView{ID: engine.NormalizeDatabaseID(id), Active: true})
}

func (s *Server) deprovisionDatabase(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["dbId"]
	deleteFiles := r.URL.Query().Get("deleteFiles") == "true"
	if err := s.registry.Deprovision(r.Context(), id, deleteFiles); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if s.cache != nil {
		s.cache.InvalidateDatabase(engine.NormalizeDatabaseID(id))
	}
	w.WriteHeader(http.StatusNoContent)
}

// backupDatabase streams a ZIP archive with a single "{label}.db" entry,
// the engine's BackupToPath output written to a temporary file and
// unlinked once the stream completes (spec.md §6 Backup).
func (s *Server) backupDatabase(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["dbId"]
	id := engine.NormalizeDatabaseID(label)
	eng, err := s.registry.Get(id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}

	tmp, err := os.CreateTemp("", "blite-backup-*.db")
	if err != nil {
		writeError(w, r, s.log, svcerr.Internal("creating temporary backup file", err))
		return
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err := eng.BackupToPath(r.Context(), tmpPath); err != nil {
		writeError(w, r, s.log, svcerr.Internal("running engine backup", err))
		return
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		writeError(w, r, s.log, svcerr.Internal("reopening backup file", err))
		return
	}
	defer f.Close()

	if label == "" {
		label = "_system"
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+label+`.zip"`)
	zw := zip.NewWriter(w)
	defer zw.Close()
	entry, err := zw.Create(label + ".db")
	if err != nil {
		return
	}
	_, _ = io.Copy(entry, f)
}
