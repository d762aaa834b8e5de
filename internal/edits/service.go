// Package edits turns the current keyframe selection plus a set of
// expression parameters into edit jobs, and runs them against the engine.
package edits

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/facekit/facekit-agent/internal/frames"
	"github.com/facekit/facekit-agent/internal/inference"
	"github.com/facekit/facekit-agent/internal/logging"
	"github.com/facekit/facekit-agent/internal/session"
	"github.com/facekit/facekit-agent/internal/store"
)

// SessionReader is the part of the session manager edits depend on.
type SessionReader interface {
	Snapshot() session.Snapshot
}

type Config struct {
	Repository store.Repository
	Session    SessionReader
	Engine     inference.Engine
	EditsDir   string
	VideosDir  string
	Logger     *slog.Logger
}

type Service struct {
	repo      store.Repository
	session   SessionReader
	engine    inference.Engine
	editsDir  string
	videosDir string
	logger    *slog.Logger
}

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:      cfg.Repository,
		session:   cfg.Session,
		engine:    cfg.Engine,
		editsDir:  cfg.EditsDir,
		videosDir: cfg.VideosDir,
		logger:    logging.WithComponent(logger, "edits"),
	}
}

// EditCurrentFrame queues an edit of the frame at the selected position.
func (s *Service) EditCurrentFrame(ctx context.Context, params inference.ExpressionParams) (*store.EditJob, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	snap := s.session.Snapshot()
	if !snap.Loaded() {
		return nil, fmt.Errorf("%w: no frames loaded", session.ErrOutOfRange)
	}
	pos := snap.Selection.Position
	return s.createJob(ctx, snap.UploadID, store.EditKindFrame, pos, pos, params)
}

// EditSelectedRange queues an edit of every frame in the selected range.
func (s *Service) EditSelectedRange(ctx context.Context, params inference.ExpressionParams) (*store.EditJob, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	snap := s.session.Snapshot()
	if !snap.Loaded() {
		return nil, fmt.Errorf("%w: no frames loaded", session.ErrOutOfRange)
	}
	return s.createJob(ctx, snap.UploadID, store.EditKindRange, snap.Selection.Start, snap.Selection.End, params)
}

func (s *Service) createJob(ctx context.Context, uploadID, kind string, start, end int, params inference.ExpressionParams) (*store.EditJob, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	now := time.Now().UTC()
	job := &store.EditJob{
		ID:         store.NewID(),
		UploadID:   uploadID,
		Kind:       kind,
		Status:     store.JobStatusPending,
		StartFrame: start,
		EndFrame:   end,
		Params:     string(data),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	job.OutputDir = filepath.Join(s.editsDir, job.ID)

	if err := s.repo.CreateEditJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create edit job: %w", err)
	}

	s.logger.Info("edit job created",
		"job_id", job.ID,
		"upload_id", uploadID,
		"kind", kind,
		"start", start,
		"end", end,
	)
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*store.EditJob, error) {
	return s.repo.GetEditJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]*store.EditJob, error) {
	return s.repo.ListEditJobs(ctx, limit)
}

type ImageInput struct {
	SourceImage string                     `json:"source_image"`
	SampleImage string                     `json:"sample_image,omitempty"`
	Params      inference.ExpressionParams `json:"params"`
}

// EditImage applies params to a standalone image, outside any session.
// When SampleImage is set the engine copies the parts named by
// Params.SampleParts from it. It blocks until the engine finishes.
func (s *Service) EditImage(ctx context.Context, in ImageInput) (inference.EditResult, error) {
	if err := in.Params.Validate(); err != nil {
		return inference.EditResult{}, err
	}
	if err := checkFile(in.SourceImage); err != nil {
		return inference.EditResult{}, err
	}
	if in.SampleImage != "" {
		if err := checkFile(in.SampleImage); err != nil {
			return inference.EditResult{}, err
		}
	}

	out := filepath.Join(s.editsDir, fmt.Sprintf("image_%s%s", timestamp(), imageExt(in.SourceImage)))
	s.logger.Info("editing image",
		"source", logging.SanitizePath(in.SourceImage),
		"sample", logging.SanitizePath(in.SampleImage),
		"output", logging.SanitizePath(out),
	)

	res, err := s.engine.EditExpression(ctx, inference.EditRequest{
		SourceImage: in.SourceImage,
		SampleImage: in.SampleImage,
		Params:      in.Params,
		OutputPath:  out,
	})
	if err != nil {
		s.logger.Warn("image edit failed", "error", err)
		return inference.EditResult{}, err
	}
	return res, nil
}

// imageExt keeps the source's image extension, falling back to png.
func imageExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if !frames.IsImageFile("x" + ext) {
		return ".png"
	}
	return ext
}

func timestamp() string {
	return time.Now().UTC().Format("20060102_150405.000")
}

type VideoInput struct {
	ReferenceImage string                `json:"reference_image"`
	DrivingVideo   string                `json:"driving_video"`
	Params         inference.VideoParams `json:"params"`
}

// CreateVideo drives the reference image with the driving video. It blocks
// until the engine finishes.
func (s *Service) CreateVideo(ctx context.Context, in VideoInput) (inference.VideoResult, error) {
	if err := in.Params.Validate(); err != nil {
		return inference.VideoResult{}, err
	}
	for _, p := range []string{in.ReferenceImage, in.DrivingVideo} {
		if err := checkFile(p); err != nil {
			return inference.VideoResult{}, err
		}
	}

	out := filepath.Join(s.videosDir, fmt.Sprintf("video_%s.mp4", timestamp()))
	s.logger.Info("creating video",
		"reference", logging.SanitizePath(in.ReferenceImage),
		"driving", logging.SanitizePath(in.DrivingVideo),
		"output", logging.SanitizePath(out),
	)

	res, err := s.engine.CreateVideo(ctx, inference.VideoRequest{
		ReferenceImage: in.ReferenceImage,
		DrivingVideo:   in.DrivingVideo,
		Params:         in.Params,
		OutputPath:     out,
	})
	if err != nil {
		s.logger.Warn("video creation failed", "error", err)
		return inference.VideoResult{}, err
	}
	return res, nil
}

func checkFile(path string) error {
	if path == "" {
		return fmt.Errorf("%w: path is empty", frames.ErrInvalidInput)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", frames.ErrInvalidInput, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", frames.ErrInvalidInput, path)
	}
	return nil
}
