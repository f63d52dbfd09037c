package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/r2s/authgate"
	"github.com/r2s/authgate/middleware"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware traces every request except health and metrics scrapes.
func WithOTelMiddleware(serviceName string, tp trace.TracerProvider) RouteOption {
	return func(r *mux.Router) {
		opts := []otelmux.Option{
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
			}),
		}
		if tp != nil {
			opts = append(opts, otelmux.WithTracerProvider(tp))
		}
		r.Use(otelmux.Middleware(serviceName, opts...))
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) RouteOption {
	return func(r *mux.Router) {
		r.Handle("/metrics", h).Methods(http.MethodGet)
	}
}

// WithAccessLog logs one line per request.
func WithAccessLog(logger *zap.Logger) RouteOption {
	return func(r *mux.Router) {
		r.Use(accessLog(logger))
	}
}

// SetupRoutes builds the router. gate also backs the middleware.
func SetupRoutes(h *Handlers, gate Gate, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	// Full paths on the root router: a subrouter would turn a method mismatch
	// into a 404.
	router.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	router.HandleFunc("/auth/introspect", h.Introspect).Methods(http.MethodPost)
	router.Handle("/auth/me", chain(http.HandlerFunc(h.Me),
		middleware.Throttle(gate, authgate.OpGetProfile),
		middleware.Guard(gate),
	)).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorBody{Code: http.StatusNotFound, Message: "Not found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusMethodNotAllowed, middleware.ErrorBody{Code: http.StatusMethodNotAllowed, Message: "Method not allowed"})
	})

	return router
}

// chain applies mws so the first one runs first.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func accessLog(logger *zap.Logger) mux.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", middleware.RemoteHost(r)),
			)
		})
	}
}
