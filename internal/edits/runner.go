package edits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/facekit/facekit-agent/internal/frames"
	"github.com/facekit/facekit-agent/internal/inference"
	"github.com/facekit/facekit-agent/internal/logging"
	"github.com/facekit/facekit-agent/internal/metrics"
	"github.com/facekit/facekit-agent/internal/store"
)

var errSuperseded = errors.New("superseded by a newer upload")

// Runner executes pending edit jobs one at a time.
type Runner struct {
	repo         store.Repository
	session      SessionReader
	engine       inference.Engine
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewRunner(repo store.Repository, sess SessionReader, engine inference.Engine, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		repo:         repo,
		session:      sess,
		engine:       engine,
		logger:       logging.WithComponent(logger, "runner"),
		pollInterval: time.Second,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("edit runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("edit runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextJob(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("edit runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("edit runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// processNextJob runs the oldest pending job, if any. It reports whether a
// job was picked up.
func (r *Runner) processNextJob(ctx context.Context) bool {
	jobs, err := r.repo.ListPendingEditJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending edit jobs", "error", err)
		return false
	}
	if len(jobs) == 0 {
		return false
	}

	job := jobs[0]
	logger := logging.WithJobID(r.logger, job.ID)
	logger.Info("processing edit job", "kind", job.Kind, "start", job.StartFrame, "end", job.EndFrame)

	if err := r.repo.UpdateEditJobStatus(ctx, job.ID, store.JobStatusRunning, ""); err != nil {
		// left pending; the next poll retries it
		logger.Error("failed to mark edit job running", "error", err)
		return false
	}
	if err := r.runJob(ctx, job, logger); err != nil {
		logger.Warn("edit job failed", "error", err)
		r.finish(ctx, job.ID, store.JobStatusFailed, err.Error())
		return true
	}

	r.finish(ctx, job.ID, store.JobStatusCompleted, "")
	logger.Info("edit job completed", "frames", job.FrameCount())
	return true
}

func (r *Runner) runJob(ctx context.Context, job *store.EditJob, logger *slog.Logger) error {
	var params inference.ExpressionParams
	if err := json.Unmarshal([]byte(job.Params), &params); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}

	total := job.FrameCount()
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		// Frame paths belong to the upload that was current when the job
		// was created; a newer upload replaces them.
		snap := r.session.Snapshot()
		if !snap.Loaded() || snap.UploadID != job.UploadID {
			return errSuperseded
		}

		seq := job.StartFrame + i
		if seq < 0 || seq >= len(snap.Frames) {
			return fmt.Errorf("frame %d outside loaded frames (%d)", seq, len(snap.Frames))
		}
		src := snap.Frames[seq]
		ext := strings.TrimPrefix(filepath.Ext(src.Path), ".")
		out := filepath.Join(job.OutputDir, frames.FrameName(seq, ext))

		if _, err := r.engine.EditExpression(ctx, inference.EditRequest{
			SourceImage: src.Path,
			Params:      params,
			OutputPath:  out,
		}); err != nil {
			return fmt.Errorf("frame %d: %w", seq, err)
		}

		progress := (i + 1) * 100 / total
		if err := r.repo.UpdateEditJobProgress(ctx, job.ID, progress); err != nil {
			logger.Warn("failed to update progress", "error", err)
		}
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, id, status, errMsg string) {
	if err := r.repo.UpdateEditJobStatus(context.WithoutCancel(ctx), id, status, errMsg); err != nil {
		r.logger.Error("failed to update edit job status", "job_id", id, "error", err)
	}
	metrics.EditJobsTotal.WithLabelValues(status).Inc()
}
