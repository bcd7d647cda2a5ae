package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/blite-io/blite-server/internal/access"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/logging"
	"github.com/blite-io/blite-server/internal/svcerr"
)

// traceMiddleware assigns (or propagates) a per-request trace id, mirroring
// the teacher's LoggingMiddleware trace-id convention.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := logging.WithTrace(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoveryMiddleware converts a panic into a 500 ProblemDetails response
// instead of crashing the process, grounded on the teacher's
// RecoveryMiddleware.
func recoveryMiddleware(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if log != nil {
						log.WithContext(r.Context()).WithField("panic", fmt.Sprintf("%v", rec)).WithField("stack", string(debug.Stack())).Error("panic recovered")
					}
					writeError(w, r, log, svcerr.Internal("internal server error", fmt.Errorf("%v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// accessLogMiddleware logs one line per request with status and latency.
func accessLogMiddleware(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			if log != nil {
				log.WithContext(r.Context()).WithField("method", r.Method).WithField("path", r.URL.Path).
					WithField("status", sw.status).WithField("duration_ms", time.Since(start).Milliseconds()).Info("request")
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// corsMiddleware is a permissive default CORS policy; AllowedOrigins
// configures the allow-list (a single "*" allows every origin).
type corsConfig struct {
	AllowedOrigins []string
}

func corsMiddleware(cfg corsConfig) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-api-key, Authorization, X-Trace-ID")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter is a per-principal token bucket, grounded on the teacher's
// infrastructure/middleware.RateLimiter (map of rate.Limiter keyed by
// caller identity, falling back to client IP for unauthenticated calls).
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newRateLimiter(requestsPerSecond float64, burst int) *rateLimiter {
	return &rateLimiter{limiters: make(map[string]*rate.Limiter), r: rate.Limit(requestsPerSecond), burst: burst}
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rl.r, rl.burst)
		rl.limiters[key] = lim
	}
	return lim
}

func (rl *rateLimiter) middleware(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if u, ok := userFromContext(r.Context()); ok {
				key = u.Username
			}
			if key == "" {
				key = clientIP(r)
			}
			if !rl.get(key).Allow() {
				writeError(w, r, log, svcerr.New(svcerr.KindFailedPrecond, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}

// authMiddleware extracts the API key from x-api-key or Authorization:
// Bearer, authenticates it, and places the resulting identity.User in
// context (spec.md §6 Identity, §7 MissingKey).
func authMiddleware(store *identity.Store, log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("x-api-key")
			if raw == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					raw = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			raw = strings.TrimSpace(raw)
			if raw == "" {
				writeError(w, r, log, svcerr.MissingKey("missing x-api-key or Authorization bearer credential"))
				return
			}
			user, err := store.Authenticate(r.Context(), raw)
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// requirePermission builds a middleware that resolves the "collection"
// route value (falling back to "*"), authorizes it against op, resolves
// the physical collection name, and stores it in context for handlers.
func requirePermission(guard *access.Guard, op identity.Op, collectionVar func(*http.Request) string, log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userFromContext(r.Context())
			if !ok {
				writeError(w, r, log, svcerr.MissingKey("no authenticated user in context"))
				return
			}
			logical := "*"
			if collectionVar != nil {
				if v := collectionVar(r); v != "" {
					logical = v
				}
			}
			physical, err := guard.Authorize(user, logical, op)
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPhysicalCollection(r.Context(), physical)))
		})
	}
}
