package obs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func BootstrapHTTPServer(cfg ServerConfig, metrics http.Handler, health func(context.Context) error, l *zap.Logger) *http.Server {
	srv := createHTTPServer(cfg, metrics, health)

	go func() {
		l.Info("http listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http server error", zap.Error(err))
		}
	}()

	return srv
}

func createHTTPServer(cfg ServerConfig, metrics http.Handler, health func(context.Context) error) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewMux(metrics, health),
		ReadTimeout:       orDefault(cfg.ReadTimeout, 3*time.Second),
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      orDefault(cfg.WriteTimeout, 10*time.Second),
		IdleTimeout:       orDefault(cfg.IdleTimeout, 30*time.Second),
	}
}

// NewMux serves liveness on /, readiness on /healthz and the scrape on /metrics.
func NewMux(metrics http.Handler, health func(context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ok"))
	})
	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := health(ctx); err != nil {
			http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
