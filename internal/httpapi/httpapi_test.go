package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/blite-io/blite-server/internal/access"
	"github.com/blite-io/blite-server/internal/cache"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/engine/memengine"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/logging"
	"github.com/blite-io/blite-server/internal/metrics"
	"github.com/blite-io/blite-server/internal/queryexec"
	"github.com/blite-io/blite-server/internal/txn"
)

// testServer wires a full Server against a real memengine-backed
// registry, returning both the router and the bootstrapped root API key.
func testServer(t *testing.T) (http.Handler, string) {
	t.Helper()
	ctx := context.Background()

	reg, err := engine.NewRegistry(memengine.Factory)
	require.NoError(t, err)

	idStore, err := identity.NewStore(ctx, reg.System())
	require.NoError(t, err)
	rawKey, _, err := idStore.Bootstrap(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rawKey)

	guard := access.New()
	c := cache.New(cache.DefaultConfig())
	log := logging.New("httpapi-test", "error", "text")
	coord := txn.New(reg, c, log, txn.Config{})
	exec := queryexec.New()

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	srv := New(reg, idStore, guard, c, exec, coord, log, m, DefaultConfig())
	return srv.Router(), rawKey
}

func doRequest(h http.Handler, method, path, apiKey string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMissingAPIKeyIsRejected(t *testing.T) {
	h, _ := testServer(t)
	rr := doRequest(h, http.MethodGet, "/api/v1/databases", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDatabaseAndCollectionAndDocumentLifecycle(t *testing.T) {
	h, rawKey := testServer(t)

	rr := doRequest(h, http.MethodPost, "/api/v1/databases/acme", rawKey, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	createBody, _ := json.Marshal(map[string]string{"name": "widgets"})
	rr = doRequest(h, http.MethodPost, "/api/v1/acme/collections", rawKey, createBody)
	require.Equal(t, http.StatusCreated, rr.Code)

	docBody, _ := json.Marshal(map[string]interface{}{"name": "bolt", "qty": 10})
	rr = doRequest(h, http.MethodPost, "/api/v1/acme/widgets/documents", rawKey, docBody)
	require.Equal(t, http.StatusCreated, rr.Code)
	var inserted map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &inserted))
	require.Contains(t, inserted, "id")

	rr = doRequest(h, http.MethodGet, "/api/v1/acme/widgets/documents", rawKey, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var listed []map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	require.Equal(t, "bolt", listed[0]["name"])
}

func TestQueryJSONFiltersDocuments(t *testing.T) {
	h, rawKey := testServer(t)

	doRequest(h, http.MethodPost, "/api/v1/databases/acme", rawKey, nil)
	createBody, _ := json.Marshal(map[string]string{"name": "orders"})
	doRequest(h, http.MethodPost, "/api/v1/acme/collections", rawKey, createBody)

	for _, amount := range []int{5, 15, 25} {
		body, _ := json.Marshal(map[string]interface{}{"amount": amount})
		rr := doRequest(h, http.MethodPost, "/api/v1/acme/orders/documents", rawKey, body)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	queryBody, _ := json.Marshal(map[string]interface{}{
		"filter": map[string]interface{}{"amount": map[string]interface{}{"$gt": 10}},
	})
	rr := doRequest(h, http.MethodPost, "/api/v1/acme/orders/query", rawKey, queryBody)
	require.Equal(t, http.StatusOK, rr.Code)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
}

func TestVectorSearchWithoutIndexIsSemanticFailure(t *testing.T) {
	h, rawKey := testServer(t)

	doRequest(h, http.MethodPost, "/api/v1/databases/acme", rawKey, nil)
	createBody, _ := json.Marshal(map[string]string{"name": "docs"})
	doRequest(h, http.MethodPost, "/api/v1/acme/collections", rawKey, createBody)

	searchBody, _ := json.Marshal(map[string]interface{}{"k": 5, "queryVector": []float32{0.1, 0.2}})
	rr := doRequest(h, http.MethodPost, "/api/v1/acme/docs/vector-search", rawKey, searchBody)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestUserPermissionDeniedOnUnauthorizedOp(t *testing.T) {
	h, rawKey := testServer(t)

	perms, _ := json.Marshal(map[string]interface{}{
		"username":    "reader",
		"permissions": []map[string]interface{}{{"collection": "*", "ops": int(identity.OpQuery)}},
	})
	rr := doRequest(h, http.MethodPost, "/api/v1/users", rawKey, perms)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	readerKey := created["apiKey"]
	require.NotEmpty(t, readerKey)

	doRequest(h, http.MethodPost, "/api/v1/databases/acme", rawKey, nil)
	createBody, _ := json.Marshal(map[string]string{"name": "widgets"})
	doRequest(h, http.MethodPost, "/api/v1/acme/collections", rawKey, createBody)

	docBody, _ := json.Marshal(map[string]interface{}{"name": "bolt"})
	rr = doRequest(h, http.MethodPost, "/api/v1/acme/widgets/documents", readerKey, docBody)
	require.Equal(t, http.StatusForbidden, rr.Code)
}
