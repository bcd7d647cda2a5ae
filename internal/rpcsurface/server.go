package rpcsurface

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blite-io/blite-server/internal/access"
	"github.com/blite-io/blite-server/internal/cache"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/logging"
	"github.com/blite-io/blite-server/internal/metrics"
	"github.com/blite-io/blite-server/internal/queryexec"
	"github.com/blite-io/blite-server/internal/svcerr"
	"github.com/blite-io/blite-server/internal/txn"
)

// Server holds every component the RPC handlers call into — the same set
// httpapi.Server wires, since both surfaces sit on top of one shared
// domain layer (spec.md §1's "two parallel surfaces").
type Server struct {
	registry *engine.Registry
	identity *identity.Store
	guard    *access.Guard
	cache    *cache.Cache
	executor *queryexec.Executor
	coord    *txn.Coordinator
	log      *logging.Logger
	metrics  *metrics.Metrics

	upgrader websocket.Upgrader
}

// New wires a Server. m may be nil to disable metrics recording.
func New(registry *engine.Registry, identityStore *identity.Store, guard *access.Guard, c *cache.Cache, executor *queryexec.Executor, coord *txn.Coordinator, log *logging.Logger, m *metrics.Metrics) *Server {
	return &Server{
		registry: registry,
		identity: identityStore,
		guard:    guard,
		cache:    c,
		executor: executor,
		coord:    coord,
		log:      log,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The RPC surface is a second bind address, not embedded in the
			// browser-facing HTTP API, so it carries its own permissive CORS
			// check rather than sharing httpapi's AllowedOrigins list.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// authenticate resolves the caller's identity from the upgrade request,
// mirroring httpapi's authMiddleware: x-api-key first, then an
// Authorization: Bearer fallback.
func (s *Server) authenticate(r *http.Request) (identity.User, error) {
	raw := r.Header.Get("x-api-key")
	if raw == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			raw = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return identity.User{}, svcerr.MissingKey("missing x-api-key or Authorization bearer credential")
	}
	return s.identity.Authenticate(r.Context(), raw)
}

// ServeHTTP upgrades the request to a websocket connection and runs its
// read loop until the client disconnects. Mount this at the RPC surface's
// bind address (spec.md §4.9); unlike the HTTP surface's per-route
// middleware chain, authentication happens once per connection here.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		status, _ := rpcStatus(err)
		http.Error(w, status, http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("rpc surface: websocket upgrade failed")
		}
		return
	}
	defer ws.Close()

	conn := newConn(ws, user)
	if s.metrics != nil {
		s.metrics.ConnectionOpened()
		defer s.metrics.ConnectionClosed()
	}
	defer conn.cancelAll()

	s.readLoop(conn)
}

// pingInterval is a keepalive period for idle RPC connections. Nothing
// references it: the server sends no websocket pings.
const pingInterval = 30 * time.Second
