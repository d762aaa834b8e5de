package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/facekit/facekit-agent/internal/doctor"
	"github.com/facekit/facekit-agent/internal/edits"
	"github.com/facekit/facekit-agent/internal/media"
	"github.com/facekit/facekit-agent/internal/session"
	"github.com/facekit/facekit-agent/internal/store"
)

// SessionService is the part of the session manager the API drives.
type SessionService interface {
	Upload(ctx context.Context, videoPath string) (session.Snapshot, error)
	Clear(ctx context.Context) session.Snapshot
	SelectPosition(i int) (session.Snapshot, error)
	SelectRange(start, end int) (session.Snapshot, error)
	Snapshot() session.Snapshot
}

// RunnerControl reports and toggles the edit job runner.
type RunnerControl interface {
	IsPaused() bool
	IsRunning() bool
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port              int
	OutputDir         string
	EditsDir          string
	VideosDir         string
	CORSOrigins       []string
	KeyframeThreshold int
	Session           SessionService
	Edits             *edits.Service
	Runner            RunnerControl
	Media             *media.Server
	Repository        store.Repository
	Doctor            *doctor.CachedDoctor
	OpenFolder        func(path string) error
	Logger            *slog.Logger
	StartTime         time.Time
	Version           string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Uploads and video creation block until ffmpeg or the engine finish.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
