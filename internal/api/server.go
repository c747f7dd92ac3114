package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JustinTDCT/CineHub/internal/auth"
	"github.com/JustinTDCT/CineHub/internal/catalog"
	"github.com/JustinTDCT/CineHub/internal/httputil"
	"github.com/JustinTDCT/CineHub/internal/ingest"
	"github.com/JustinTDCT/CineHub/internal/jobs"
	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/media"
	"github.com/JustinTDCT/CineHub/internal/models"
	"github.com/JustinTDCT/CineHub/internal/version"
	"github.com/JustinTDCT/CineHub/internal/watchlist"
)

// StatusReader exposes the last recorded ingestion progress.
type StatusReader interface {
	List(ctx context.Context) ([]ingest.Progress, error)
}

type GenreLister interface {
	ListGenres(ctx context.Context) ([]models.Genre, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker func(ctx context.Context) error

type Deps struct {
	Auth        *auth.Auth
	Pipeline    *catalog.QueryPipeline
	Reconciler  media.Reconciler
	Genres      GenreLister
	Watches     watchlist.Store
	Queue       jobs.Enqueuer
	Status      StatusReader
	StorageRoot string
	IngestPages int
	Version     version.Info
	Health      map[string]HealthChecker
}

type Server struct {
	deps   Deps
	mw     *auth.Middleware
	wsHub  *WSHub
	router chi.Router
}

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		mw:     auth.NewMiddleware(deps.Auth),
		wsHub:  NewWSHub(),
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.mw.Authenticate)

		r.Get("/ws", s.handleWebSocket)

		r.Mount("/media", media.NewHandler(s.deps.Pipeline, s.deps.Reconciler, s.deps.StorageRoot).Router(s.mw.RequireAuth))
		r.Get("/genres", s.handleListGenres)
		r.Mount("/watchlist", watchlist.NewHandler(s.deps.Watches).Router(s.mw.RequireAuth))

		// Ingestion
		r.Get("/ingest/status", s.handleIngestStatus)
		r.Group(func(r chi.Router) {
			r.Use(s.mw.RequireAdmin)
			r.Post("/ingest/genres", s.handleIngestGenres)
			r.Post("/ingest/{kind}", s.handleIngestStart)
		})
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	for name, check := range s.deps.Health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}
	if !healthy {
		httputil.WriteError(w, http.StatusServiceUnavailable, "UNHEALTHY", "one or more dependencies are unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, checks)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.deps.Version)
}

func (s *Server) handleListGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := s.deps.Genres.ListGenres(r.Context())
	if err != nil {
		media.WriteCatalogError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, genres)
}
