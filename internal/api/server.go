package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/narrator/internal/metrics"
	"github.com/snarg/narrator/internal/storage"
)

// ServerOptions holds everything the HTTP server needs.
type ServerOptions struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	AuthToken    string

	ScriptsDir string
	Queue      RenderQueue
	Live       LiveDataSource
	MQTT       ConnectionStatus // nil when MQTT is not configured
	Store      storage.ArtifactStore
	Stretch    StretchInfo

	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewRouter builds the route tree. Separate from NewServer so tests can
// drive it with httptest.
func NewRouter(opts ServerOptions) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(metrics.InstrumentHandler)
	r.Use(CORS)

	// Health and metrics: no auth
	health := NewHealthHandler(opts.Queue, opts.MQTT, opts.Live, opts.Stretch, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(opts.AuthToken))
		r.Route("/api/v1", func(r chi.Router) {
			NewScriptsHandler(opts.ScriptsDir, opts.Queue).Routes(r)
			NewRendersHandler(opts.Queue).Routes(r)
			NewEventsHandler(opts.Live).Routes(r)
		})
		NewReportsHandler(opts.Store).Routes(r)
	})

	return r
}

func NewServer(opts ServerOptions) *Server {
	return &Server{
		http: &http.Server{
			Addr:         opts.Addr,
			Handler:      NewRouter(opts),
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
		log: opts.Log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
