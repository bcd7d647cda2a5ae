package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/svcerr"
)

func (s *Server) mountVectorRoutes(r *mux.Router) {
	base := r.PathPrefix("/{dbId}/{collection}").Subrouter()
	base.Handle("/vector-search", requirePermission(s.guard, identity.OpQuery, collectionRouteVar, s.log)(http.HandlerFunc(s.vectorSearch))).Methods(http.MethodPost)
	base.Handle("/vector-source", requirePermission(s.guard, identity.OpQuery, collectionRouteVar, s.log)(http.HandlerFunc(s.getVectorSource))).Methods(http.MethodGet)
	base.Handle("/vector-source", requirePermission(s.guard, identity.OpAdmin, collectionRouteVar, s.log)(http.HandlerFunc(s.setVectorSource))).Methods(http.MethodPut)
}

type vectorSearchRequest struct {
	IndexName   string    `json:"indexName"`
	K           int       `json:"k"`
	EfSearch    int       `json:"efSearch"`
	QueryVector []float32 `json:"queryVector"`
}

type scoredDocView struct {
	ID       docIDJSON              `json:"id"`
	Document map[string]interface{} `json:"document"`
	Score    float64                `json:"score"`
}

// vectorSearch runs a k-NN search against the collection's vector index.
// A missing index is a semantic failure (422), per spec.md §4.10.
func (s *Server) vectorSearch(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var req vectorSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput("invalid vector search request body"))
		return
	}
	if len(req.QueryVector) == 0 {
		writeError(w, r, s.log, svcerr.InvalidInput("queryVector must not be empty"))
		return
	}
	eng, err := s.registry.Get(dbIDFromRoute(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	physical := physicalCollectionFromContext(r.Context())

	indexName := req.IndexName
	if indexName == "" {
		indexName, err = defaultVectorIndex(r, eng, physical)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
	}
	k := req.K
	if k <= 0 {
		k = 10
	}
	efSearch := req.EfSearch
	if efSearch <= 0 {
		efSearch = k
	}

	hits, err := eng.VectorSearch(r.Context(), physical, indexName, k, efSearch, req.QueryVector)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := make([]scoredDocView, 0, len(hits))
	for _, h := range hits {
		out = append(out, scoredDocView{ID: docIDToJSON(h.DocID), Document: documentToJSON(h.Document), Score: h.Score})
	}
	writeOK(w, http.StatusOK, out)
}

// defaultVectorIndex is used when the request omits indexName: it
// requires exactly one vector index on the collection so the choice is
// unambiguous, failing semantically otherwise.
func defaultVectorIndex(r *http.Request, eng engine.Engine, physical string) (string, error) {
	idxs, err := eng.ListIndexes(r.Context(), physical)
	if err != nil {
		return "", err
	}
	var found string
	for _, idx := range idxs {
		if idx.Kind == engine.IndexVector {
			if found != "" {
				return "", svcerr.Semantic("collection has multiple vector indexes; indexName is required")
			}
			found = idx.Name
		}
	}
	if found == "" {
		return "", svcerr.Semantic("collection has no vector index")
	}
	return found, nil
}

type vectorSourceView struct {
	Separator   string                 `json:"separator"`
	Parts       []vectorSourcePartView `json:"parts"`
	VectorField string                 `json:"vectorField"`
	IndexName   string                 `json:"indexName"`
}

type vectorSourcePartView struct {
	Path   string `json:"path"`
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

func (s *Server) getVectorSource(w http.ResponseWriter, r *http.Request) {
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
	cfg, found, err := eng.GetVectorSource(r.Context(), physical)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if !found {
		writeError(w, r, s.log, svcerr.NotFound("collection has no vector source configured"))
		return
	}
	writeOK(w, http.StatusOK, vectorSourceFromEngine(cfg))
}

func (s *Server) setVectorSource(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var view vectorSourceView
	if err := json.NewDecoder(r.Body).Decode(&view); err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput("invalid vector source body"))
		return
	}
	if view.VectorField == "" || view.IndexName == "" {
		writeError(w, r, s.log, svcerr.InvalidInput("vectorField and indexName are required"))
		return
	}
	eng, err := s.registry.Get(dbIDFromRoute(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	physical := physicalCollectionFromContext(r.Context())
	if err := eng.SetVectorSource(r.Context(), physical, vectorSourceToEngine(view)); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func vectorSourceFromEngine(cfg engine.VectorSourceConfig) vectorSourceView {
	parts := make([]vectorSourcePartView, len(cfg.Parts))
	for i, p := range cfg.Parts {
		parts[i] = vectorSourcePartView{Path: p.Path, Prefix: p.Prefix, Suffix: p.Suffix}
	}
	return vectorSourceView{Separator: cfg.Separator, Parts: parts, VectorField: cfg.VectorField, IndexName: cfg.IndexName}
}

func vectorSourceToEngine(view vectorSourceView) engine.VectorSourceConfig {
	parts := make([]engine.VectorSourcePart, len(view.Parts))
	for i, p := range view.Parts {
		parts[i] = engine.VectorSourcePart{Path: p.Path, Prefix: p.Prefix, Suffix: p.Suffix}
	}
	return engine.VectorSourceConfig{Separator: view.Separator, Parts: parts, VectorField: view.VectorField, IndexName: view.IndexName}
}
