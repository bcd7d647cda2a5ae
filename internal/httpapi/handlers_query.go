package httpapi

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/blite-io/blite-server/internal/cache"
	"github.com/blite-io/blite-server/internal/httpquery"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/queryd"
	"github.com/blite-io/blite-server/internal/svcerr"
)

func (s *Server) mountQueryRoutes(r *mux.Router) {
	base := r.PathPrefix("/{dbId}/{collection}").Subrouter()
	base.Handle("/query", requirePermission(s.guard, identity.OpQuery, collectionRouteVar, s.log)(http.HandlerFunc(s.queryJSON))).Methods(http.MethodPost)
	base.Handle("/query", requirePermission(s.guard, identity.OpQuery, collectionRouteVar, s.log)(http.HandlerFunc(s.queryString))).Methods(http.MethodGet)
	base.Handle("/query/count", requirePermission(s.guard, identity.OpQuery, collectionRouteVar, s.log)(http.HandlerFunc(s.queryCount))).Methods(http.MethodPost)
}

// queryJSON compiles the MongoDB-style JSON filter dialect and runs it
// through the shared executor, caching under cache.VariantHTTPJSONQuery
// keyed on the raw request body (spec.md §4.6).
func (s *Server) queryJSON(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput("unreadable request body"))
		return
	}
	physical := physicalCollectionFromContext(r.Context())
	d, err := httpquery.CompileJSON(physical, body)
	if err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput(err.Error()))
		return
	}
	s.runQuery(w, r, d, cache.VariantHTTPJSONQuery, body)
}

// queryString compiles the equality-only query-string dialect (GET
// /query?field=value&sort=-field&skip=0&take=20).
func (s *Server) queryString(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	physical := physicalCollectionFromContext(r.Context())
	d, err := httpquery.CompileQueryString(physical, r.URL.Query())
	if err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput(err.Error()))
		return
	}
	s.runQuery(w, r, d, cache.VariantQueryStringQuery, []byte(r.URL.RawQuery))
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, d *queryd.Descriptor, variant cache.Variant, rawParams []byte) {
	dbID := dbIDFromRoute(r)
	physical := physicalCollectionFromContext(r.Context())

	cacheKey := cache.Key(dbID, physical, variant, cache.HashParameters(rawParams))
	noActiveTx := !s.coord.HasActive(dbID)
	if s.cache != nil && noActiveTx {
		if v, ok := s.cache.Get(cacheKey, dbID, physical); ok {
			writeOK(w, http.StatusOK, v)
			return
		}
	}

	eng, err := s.registry.Get(dbID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	iter, err := s.executor.Run(r.Context(), eng, nil, d)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	defer iter.Close()

	var out []map[string]interface{}
	for {
		doc, id, ok, err := iter.Next(r.Context())
		if err != nil {
			writeError(w, r, s.log, svcerr.Internal("running query", err))
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
		s.cache.Set(cacheKey, out, dbID, physical)
	}
	writeOK(w, http.StatusOK, out)
}

// queryCount runs the same JSON filter dialect but reports only the
// matching count, cached separately under cache.VariantCount.
func (s *Server) queryCount(w http.ResponseWriter, r *http.Request) {
	if err := s.requireDatabaseAccess(r); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput("unreadable request body"))
		return
	}
	dbID := dbIDFromRoute(r)
	physical := physicalCollectionFromContext(r.Context())
	d, err := httpquery.CompileJSON(physical, body)
	if err != nil {
		writeError(w, r, s.log, svcerr.InvalidInput(err.Error()))
		return
	}
	d.Select = nil

	cacheKey := cache.Key(dbID, physical, cache.VariantCount, cache.HashParameters(body))
	noActiveTx := !s.coord.HasActive(dbID)
	if s.cache != nil && noActiveTx {
		if v, ok := s.cache.Get(cacheKey, dbID, physical); ok {
			writeOK(w, http.StatusOK, v)
			return
		}
	}

	eng, err := s.registry.Get(dbID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	iter, err := s.executor.Run(r.Context(), eng, nil, d)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	defer iter.Close()

	count := 0
	for {
		_, _, ok, err := iter.Next(r.Context())
		if err != nil {
			writeError(w, r, s.log, svcerr.Internal("counting query results", err))
			return
		}
		if !ok {
			break
		}
		count++
	}
	result := map[string]interface{}{"count": count}
	if s.cache != nil && noActiveTx {
		s.cache.Set(cacheKey, result, dbID, physical)
	}
	writeOK(w, http.StatusOK, result)
}
