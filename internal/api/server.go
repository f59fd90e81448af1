package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nimbusworks/artforge/internal/config"
	"github.com/nimbusworks/artforge/internal/stability"
)

// Generator is the upstream generation backend.
type Generator interface {
	TextToImage(ctx context.Context, opts stability.TextToImageOptions) ([]stability.Artifact, error)
	ImageToImage(ctx context.Context, opts stability.ImageToImageOptions) ([]stability.Artifact, error)
	ImageToVideo(ctx context.Context, opts stability.ImageToVideoOptions) (*stability.Artifact, error)
}

// ObjectStore persists and serves generated artifacts.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
	GetStream(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	ObjectKey(kind, ownerID, filename string) string
}

type Server struct {
	addr      string
	cfg       config.Config
	log       *slog.Logger
	generator Generator
	store     ObjectStore
	router    *chi.Mux
}

func NewServer(cfg config.Config, log *slog.Logger, generator Generator, store ObjectStore) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:      cfg.HTTPListenAddr,
		cfg:       cfg,
		log:       log,
		generator: generator,
		store:     store,
		router:    r,
	}

	r.Get("/_healthz", s.handleHealthz)
	r.Route("/routes", func(r chi.Router) {
		limiter := newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
		r.Use(limiter.Handler)
		r.Route("/ai-image-generation", func(r chi.Router) {
			r.Post("/generate", s.handleGenerateImage)
			r.Post("/edit-image", s.handleEditImage)
			r.Get("/images/*", s.handleGetImage)
		})
		r.Route("/ai-video-generation", func(r chi.Router) {
			r.Post("/generate-video", s.handleGenerateVideo)
			r.Get("/videos/*", s.handleGetVideo)
		})
	})
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("generation api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
