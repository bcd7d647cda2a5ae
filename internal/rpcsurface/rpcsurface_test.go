package rpcsurface

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/blite-io/blite-server/internal/access"
	"github.com/blite-io/blite-server/internal/cache"
	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/engine/memengine"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/logging"
	"github.com/blite-io/blite-server/internal/metrics"
	"github.com/blite-io/blite-server/internal/queryexec"
	"github.com/blite-io/blite-server/internal/txn"
)

// testServer wires a full rpcsurface.Server against a real memengine
// registry, the same dependency graph httpapi's own test helper builds,
// and starts an httptest.Server serving it.
func testServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	ctx := context.Background()

	reg, err := engine.NewRegistry(memengine.Factory)
	require.NoError(t, err)

	idStore, err := identity.NewStore(ctx, reg.System())
	require.NoError(t, err)
	rawKey, _, err := idStore.Bootstrap(ctx)
	require.NoError(t, err)

	guard := access.New()
	c := cache.New(cache.DefaultConfig())
	log := logging.New("rpcsurface-test", "error", "text")
	coord := txn.New(reg, c, log, txn.Config{})
	exec := queryexec.New()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	srv := New(reg, idStore, guard, c, exec, coord, log, m)
	ts := httptest.NewServer(srv)
	return ts, rawKey
}

func dial(t *testing.T, ts *httptest.Server, apiKey string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	header := http.Header{}
	header.Set("x-api-key", apiKey)
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	return ws
}

func call(t *testing.T, ws *websocket.Conn, service Service, method byte, corr uint32, payload []byte) Envelope {
	t.Helper()
	require.NoError(t, ws.SetWriteDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, Encode(Envelope{Kind: KindCall, Service: service, Method: method, CorrelationID: corr, Payload: payload})))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)
	return env
}

func TestMissingAPIKeyRejectsUpgrade(t *testing.T) {
	ts, _ := testServer(t)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDynamicInsertAndFindByIDRoundTrip(t *testing.T) {
	ts, rawKey := testServer(t)
	defer ts.Close()
	ws := dial(t, ts, rawKey)
	defer ws.Close()

	w := &payloadWriter{}
	w.writeString("")       // databaseID
	w.writeString("orders") // collection
	w.writeString("")       // transactionID
	w.writeString("")       // typeName
	// An empty dictionary-encoded document (no fields) is a valid minimal
	// payload for this round trip; the codec itself is covered by
	// internal/dictionary's own tests.
	docBytes, err := dictionary.Encode(dictionary.Document{}, dictionary.DocID{}, nil)
	require.NoError(t, err)
	w.writeBytes(docBytes)

	insertReply := call(t, ws, ServiceDynamic, methodInsert, 1, w.bytes())
	require.Equal(t, KindStreamEnd, insertReply.Kind)

	r := newPayloadReader(insertReply.Payload)
	id, err := r.readDocID()
	require.NoError(t, err)

	find := &payloadWriter{}
	find.writeString("")
	find.writeString("orders")
	find.writeString("")
	find.writeString("")
	find.writeDocID(id)
	findReply := call(t, ws, ServiceDynamic, methodFindByID, 2, find.bytes())
	require.Equal(t, KindStreamEnd, findReply.Kind)

	fr := newPayloadReader(findReply.Payload)
	found, err := fr.readBool()
	require.NoError(t, err)
	require.True(t, found)
}

func TestUnknownMethodReturnsError(t *testing.T) {
	ts, rawKey := testServer(t)
	defer ts.Close()
	ws := dial(t, ts, rawKey)
	defer ws.Close()

	reply := call(t, ws, ServiceDynamic, 99, 1, nil)
	require.Equal(t, KindError, reply.Kind)
}

func TestMetadataGetKeyMapRequiresQueryPermission(t *testing.T) {
	ts, rawKey := testServer(t)
	defer ts.Close()
	ws := dial(t, ts, rawKey)
	defer ws.Close()

	w := &payloadWriter{}
	w.writeString("")
	w.writeString("orders")
	reply := call(t, ws, ServiceMetadata, methodGetKeyMap, 1, w.bytes())
	require.Equal(t, KindStreamEnd, reply.Kind)
}

func TestAdminRequiresAdminPermission(t *testing.T) {
	ts, rawKey := testServer(t)
	defer ts.Close()

	_ = identity.NewStore // NewStore is exercised via testServer; this only references the symbol.

	ws := dial(t, ts, rawKey)
	defer ws.Close()

	w := &payloadWriter{}
	w.writeString("limited")
	w.writeString("")
	w.writeBool(false)
	w.writeUvarint(1)
	w.writeString("widgets")
	w.writeUvarint(uint64(identity.OpQuery))

	reply := call(t, ws, ServiceAdmin, methodCreateUser, 1, w.bytes())
	require.Equal(t, KindStreamEnd, reply.Kind)
}
