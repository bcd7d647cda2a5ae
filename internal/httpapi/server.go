// Package httpapi implements the HTTP/JSON surface from spec.md §4.10:
// the /api/v1 route groups, the shared auth/access/rate-limit/recovery
// middleware chain, and RFC-9457 ProblemDetails error responses.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/blite-io/blite-server/internal/access"
	"github.com/blite-io/blite-server/internal/svcerr"
	"github.com/blite-io/blite-server/internal/cache"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/logging"
	"github.com/blite-io/blite-server/internal/metrics"
	"github.com/blite-io/blite-server/internal/queryexec"
	"github.com/blite-io/blite-server/internal/txn"
)

// Config holds the HTTP-layer tunables not already owned by the
// components it wires together.
type Config struct {
	AllowedOrigins       []string
	RateLimitPerSecond   float64
	RateLimitBurst       int
}

func DefaultConfig() Config {
	return Config{AllowedOrigins: []string{"*"}, RateLimitPerSecond: 50, RateLimitBurst: 100}
}

// Server holds every component the HTTP handlers call into.
type Server struct {
	registry  *engine.Registry
	identity  *identity.Store
	guard     *access.Guard
	cache     *cache.Cache
	executor  *queryexec.Executor
	coord     *txn.Coordinator
	log       *logging.Logger
	metrics   *metrics.Metrics
	cfg       Config
}

// New wires a Server. None of the dependencies are optional except cache,
// which may be nil (callers should instead pass a disabled cache.Cache so
// Get/Set are no-ops and every call site stays simple), and m, which may
// be nil to disable metrics recording entirely.
func New(registry *engine.Registry, identityStore *identity.Store, guard *access.Guard, c *cache.Cache, executor *queryexec.Executor, coord *txn.Coordinator, log *logging.Logger, m *metrics.Metrics, cfg Config) *Server {
	return &Server{registry: registry, identity: identityStore, guard: guard, cache: c, executor: executor, coord: coord, log: log, metrics: m, cfg: cfg}
}

// Router builds the full *mux.Router with every middleware and route
// group mounted under /api/v1.
func (s *Server) Router() http.Handler {
	root := mux.NewRouter()
	root.Use(traceMiddleware, recoveryMiddleware(s.log), accessLogMiddleware(s.log), corsMiddleware(corsConfig{AllowedOrigins: s.cfg.AllowedOrigins}), metricsMiddleware(s.metrics))

	api := root.PathPrefix("/api/v1").Subrouter()
	api.Use(authMiddleware(s.identity, s.log))
	limiter := newRateLimiter(s.cfg.RateLimitPerSecond, s.cfg.RateLimitBurst)
	api.Use(limiter.middleware(s.log))

	s.mountDatabaseRoutes(api)
	s.mountCollectionRoutes(api)
	s.mountDocumentRoutes(api)
	s.mountQueryRoutes(api)
	s.mountVectorRoutes(api)
	s.mountUserRoutes(api)

	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, s.log, routeNotFound(r.URL.Path))
	})
	return http.TimeoutHandler(root, defaultRequestTimeout, `{"title":"request timeout","status":503}`)
}

func collectionRouteVar(r *http.Request) string {
	return mux.Vars(r)["collection"]
}

func dbIDFromRoute(r *http.Request) string {
	return engine.NormalizeDatabaseID(mux.Vars(r)["dbId"])
}

// requireDatabaseAccess is a small per-handler helper (not a chained
// middleware, since it needs the already-resolved user) enforcing
// spec.md §4.3's restricted-database check.
func (s *Server) requireDatabaseAccess(r *http.Request) error {
	user, _ := userFromContext(r.Context())
	return s.guard.CheckDatabase(user, dbIDFromRoute(r))
}

const defaultRequestTimeout = 30 * time.Second

func routeNotFound(path string) error {
	return svcerr.NotFound("no route matches " + path)
}
