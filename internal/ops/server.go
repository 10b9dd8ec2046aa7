package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smolentsev/shopbot/pkg/logger"
)

// Pinger is the health-check surface of a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readyTimeout = 3 * time.Second

// Params configure the ops server.
type Params struct {
	Addr     string
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	DB       Pinger
	Redis    Pinger
}

// Server is the operational HTTP endpoint: liveness, readiness, and the
// Prometheus scrape target. It carries no bot functionality.
type Server struct {
	srv  *http.Server
	logg *logger.Logger
}

// NewServer builds the ops server.
func NewServer(params Params) (*Server, error) {
	if params.Addr == "" {
		return nil, fmt.Errorf("listen address required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Server{
		srv: &http.Server{
			Addr:              params.Addr,
			Handler:           NewHandler(params),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logg: params.Logger,
	}, nil
}

// NewHandler builds the route tree. Exposed separately so tests can drive
// it without a listener.
func NewHandler(params Params) http.Handler {
	r := chi.NewRouter()

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", healthLive())
		r.Get("/ready", healthReady(params.Logger, params.DB, params.Redis))
	})
	r.Get("/healthz", healthReady(params.Logger, params.DB, params.Redis))

	if params.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.logg.Info(s.logg.WithField(ctx, "addr", s.srv.Addr), "ops server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func healthLive() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "live"})
	}
}

func healthReady(logg *logger.Logger, db, redis Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		for name, pinger := range map[string]Pinger{"db": db, "redis": redis} {
			if pinger == nil {
				continue
			}
			if err := pinger.Ping(ctx); err != nil {
				checks[name] = err.Error()
				healthy = false
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "dependency", name), "readiness check failed")
				}
				continue
			}
			checks[name] = "ok"
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, checks)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
