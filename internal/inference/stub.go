package inference

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/facekit/facekit-agent/internal/logging"
)

// StubEngine stands in when no inference URL is configured. It copies its
// input to the output path so the rest of the workflow can run.
type StubEngine struct {
	logger *slog.Logger
}

func NewStubEngine(logger *slog.Logger) *StubEngine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &StubEngine{logger: logging.WithComponent(logger, "engine")}
}

func (s *StubEngine) EditExpression(ctx context.Context, req EditRequest) (EditResult, error) {
	s.logger.Info("stub engine: edit expression", "source", req.SourceImage, "output", req.OutputPath)
	if err := copyFile(req.SourceImage, req.OutputPath); err != nil {
		return EditResult{}, err
	}
	return EditResult{OutputPath: req.OutputPath}, nil
}

func (s *StubEngine) CreateVideo(ctx context.Context, req VideoRequest) (VideoResult, error) {
	s.logger.Info("stub engine: create video", "driving", req.DrivingVideo, "output", req.OutputPath)
	if err := copyFile(req.DrivingVideo, req.OutputPath); err != nil {
		return VideoResult{}, err
	}
	return VideoResult{OutputPath: req.OutputPath}, nil
}

func (s *StubEngine) Health(ctx context.Context) error {
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
