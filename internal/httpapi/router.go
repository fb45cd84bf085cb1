package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kitbuilder587/rankwatch/internal/metrics"
)

type ServerConfig struct {
	Addr         string
	BodyLimit    int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer wires the router: tracking, pool lifecycle, health and metrics.
func NewServer(cfg ServerConfig, handler *Handler, logger *zap.Logger) *http.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()

	router.Use(loggingMiddleware(logger))
	router.Use(bodyLimitMiddleware(cfg.BodyLimit))

	router.HandleFunc("/healthz", handler.Health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/track", handler.Track).Methods(http.MethodPost)
	api.HandleFunc("/pool/stats", handler.PoolStats).Methods(http.MethodGet)
	api.HandleFunc("/pool/keys", handler.ListCredentials).Methods(http.MethodGet)
	api.HandleFunc("/pool/keys", handler.AddCredential).Methods(http.MethodPost)
	api.HandleFunc("/pool/keys/{id}", handler.RemoveCredential).Methods(http.MethodDelete)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}

func bodyLimitMiddleware(limit int64) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
