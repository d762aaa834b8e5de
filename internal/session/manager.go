// Package session holds the keyframe session: the frames of the current
// upload and the position and range selected over them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/facekit/facekit-agent/internal/frames"
	"github.com/facekit/facekit-agent/internal/logging"
	"github.com/facekit/facekit-agent/internal/metrics"
	"github.com/facekit/facekit-agent/internal/store"
)

type State string

const (
	StateEmpty  State = "empty"
	StateLoaded State = "loaded"
)

var (
	ErrOutOfRange   = errors.New("selection out of range")
	ErrInvalidRange = errors.New("invalid range")
	ErrSuperseded   = errors.New("upload superseded by a newer upload")
)

// Selection is only meaningful while the session is loaded.
type Selection struct {
	Position int `json:"position"`
	Start    int `json:"start"`
	End      int `json:"end"`
}

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	State      State          `json:"state"`
	UploadID   string         `json:"upload_id,omitempty"`
	Generation uint64         `json:"generation"`
	VideoPath  string         `json:"video_path,omitempty"`
	FramesDir  string         `json:"frames_dir"`
	Frames     []frames.Frame `json:"frames"`
	Selection  *Selection     `json:"selection,omitempty"`
	Pending    bool           `json:"pending"`
	LastError  string         `json:"last_error,omitempty"`
}

func (s Snapshot) Loaded() bool {
	return s.State == StateLoaded && !s.Pending
}

// CurrentFrame returns the frame at the selected position.
func (s Snapshot) CurrentFrame() (frames.Frame, bool) {
	if !s.Loaded() || s.Selection == nil {
		return frames.Frame{}, false
	}
	return s.Frames[s.Selection.Position], true
}

// SelectedFrames returns the frames inside the selected range.
func (s Snapshot) SelectedFrames() []frames.Frame {
	if !s.Loaded() || s.Selection == nil {
		return nil
	}
	return s.Frames[s.Selection.Start : s.Selection.End+1]
}

type Config struct {
	FramesDir  string
	Extractor  frames.Extractor
	Repository store.Repository // optional
	Logger     *slog.Logger
}

// Manager owns the single keyframe session. Every upload gets a generation
// number; only the newest generation may install its frames.
type Manager struct {
	framesDir string
	extractor frames.Extractor
	repo      store.Repository
	logger    *slog.Logger

	mu        sync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	state     State
	uploadID  string
	videoPath string
	index     frames.Index
	sel       Selection
	pending   bool
	lastErr   string
	subs      map[chan Snapshot]struct{}
}

func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		framesDir: cfg.FramesDir,
		extractor: cfg.Extractor,
		repo:      cfg.Repository,
		logger:    logging.WithComponent(logger, "session"),
		state:     StateEmpty,
		subs:      make(map[chan Snapshot]struct{}),
	}
}

// Upload replaces the session with the frames of videoPath. An empty path
// clears the session. If another upload starts before this one finishes,
// this one is cancelled and returns ErrSuperseded.
func (m *Manager) Upload(ctx context.Context, videoPath string) (Snapshot, error) {
	if strings.TrimSpace(videoPath) == "" {
		return m.Clear(ctx), nil
	}

	upload := &store.Upload{
		ID:        store.NewID(),
		VideoPath: videoPath,
		Status:    store.UploadStatusExtracting,
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	upload.Generation = gen
	upload.CreatedAt = time.Now().UTC()
	upload.UpdatedAt = upload.CreatedAt
	if m.cancel != nil {
		m.cancel()
	}
	uctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	replaced := m.loadedUploadLocked()
	m.resetLocked()
	m.pending = true
	m.uploadID = upload.ID
	m.videoPath = videoPath
	m.publishLocked()
	m.mu.Unlock()
	defer cancel()

	logger := logging.WithUploadID(m.logger, upload.ID)
	logger.Info("upload started", "video", logging.SanitizePath(videoPath), "generation", gen)

	upload.SourceFrames = m.sourceFrames(uctx, logger, videoPath)
	m.persist(ctx, func(ctx context.Context) error { return m.repo.CreateUpload(ctx, upload) })
	if replaced != nil {
		m.persistStatus(ctx, replaced.id, store.UploadStatusSuperseded, replaced.frames, "")
	}

	staging := fmt.Sprintf("%s.%d", m.framesDir, gen)
	os.RemoveAll(staging)

	start := time.Now()
	extractErr := m.extractor.Extract(uctx, videoPath, staging)
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		os.RemoveAll(staging)
		logger.Info("upload superseded", "generation", gen)
		metrics.UploadsTotal.WithLabelValues(metrics.OutcomeSuperseded).Inc()
		m.persistStatus(ctx, upload.ID, store.UploadStatusSuperseded, 0, "")
		return m.Snapshot(), ErrSuperseded
	}

	idx, err := m.install(extractErr, staging)
	if err != nil {
		os.RemoveAll(staging)
		os.RemoveAll(m.framesDir)
		m.resetLocked()
		m.lastErr = err.Error()
		m.cancel = nil
		m.publishLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()

		logger.Warn("upload failed", "error", err)
		metrics.UploadsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		m.persistStatus(ctx, upload.ID, store.UploadStatusFailed, 0, err.Error())
		return snap, err
	}

	n := idx.Len()
	m.state = StateLoaded
	m.index = idx
	m.sel = Selection{Position: 0, Start: 0, End: n - 1}
	m.pending = false
	m.cancel = nil
	m.publishLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	logger.Info("upload loaded",
		"frames", n,
		"source_frames", upload.SourceFrames,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	metrics.UploadsTotal.WithLabelValues(metrics.OutcomeLoaded).Inc()
	metrics.FramesExtractedTotal.Add(float64(n))
	m.persistStatus(ctx, upload.ID, store.UploadStatusLoaded, n, "")
	return snap, nil
}

// sourceFrames asks the extractor how many frames the video holds. Zero
// means unknown; a probe failure is left for Extract to report.
func (m *Manager) sourceFrames(ctx context.Context, logger *slog.Logger, videoPath string) int {
	info, err := m.extractor.Probe(ctx, videoPath)
	if err != nil {
		logger.Debug("ffprobe failed", "error", err)
		return 0
	}
	n := info.FrameCount
	if n == 0 && info.Duration > 0 && info.FrameRate > 0 {
		n = int(math.Round(info.Duration * info.FrameRate))
	}
	logger.Info("video probed",
		"codec", info.Codec,
		"width", info.Width,
		"height", info.Height,
		"duration", info.Duration,
		"source_frames", n,
	)
	return n
}

// install swaps the staging directory into place and indexes it. Must be
// called with mu held by the current generation.
func (m *Manager) install(extractErr error, staging string) (frames.Index, error) {
	if extractErr != nil {
		return frames.Index{}, extractErr
	}
	if err := os.MkdirAll(filepath.Dir(m.framesDir), 0755); err != nil {
		return frames.Index{}, fmt.Errorf("create frames parent: %w", err)
	}
	if err := os.RemoveAll(m.framesDir); err != nil {
		return frames.Index{}, fmt.Errorf("remove previous frames: %w", err)
	}
	if err := os.Rename(staging, m.framesDir); err != nil {
		return frames.Index{}, fmt.Errorf("install frames: %w", err)
	}

	idx, err := frames.BuildIndex(m.framesDir)
	if err != nil {
		return frames.Index{}, err
	}
	if idx.Len() == 0 {
		return frames.Index{}, fmt.Errorf("%w: no frames extracted", frames.ErrDecode)
	}
	return idx, nil
}

// Clear returns the session to Empty and removes the frames directory. Any
// in-flight upload is cancelled and will report ErrSuperseded.
func (m *Manager) Clear(ctx context.Context) Snapshot {
	m.mu.Lock()
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	cleared := m.loadedUploadLocked()
	if err := os.RemoveAll(m.framesDir); err != nil {
		m.logger.Warn("failed to remove frames dir", "error", err)
	}
	m.resetLocked()
	m.publishLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if cleared != nil {
		m.logger.Info("session cleared", "upload_id", cleared.id)
		metrics.UploadsTotal.WithLabelValues(metrics.OutcomeCleared).Inc()
		m.persistStatus(ctx, cleared.id, store.UploadStatusCleared, cleared.frames, "")
	}
	return snap
}

func (m *Manager) SelectPosition(i int) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.selectableLocked()
	if err != nil {
		return m.snapshotLocked(), err
	}
	if i < 0 || i >= n {
		return m.snapshotLocked(), fmt.Errorf("%w: position %d not in [0, %d]", ErrOutOfRange, i, n-1)
	}

	m.sel.Position = i
	m.publishLocked()
	return m.snapshotLocked(), nil
}

func (m *Manager) SelectRange(start, end int) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.selectableLocked()
	if err != nil {
		return m.snapshotLocked(), err
	}
	if start < 0 || end < 0 || start >= n || end >= n {
		return m.snapshotLocked(), fmt.Errorf("%w: range (%d, %d) not within [0, %d]", ErrOutOfRange, start, end, n-1)
	}
	if start > end {
		return m.snapshotLocked(), fmt.Errorf("%w: start %d is after end %d", ErrInvalidRange, start, end)
	}

	m.sel.Start, m.sel.End = start, end
	m.publishLocked()
	return m.snapshotLocked(), nil
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Restore resumes the last loaded upload from the frames already on disk,
// provided they still index to the recorded frame count.
func (m *Manager) Restore(ctx context.Context) error {
	m.removeStaging()
	if m.repo == nil {
		return nil
	}

	u, err := m.repo.LatestUpload(ctx)
	if err != nil {
		return fmt.Errorf("load latest upload: %w", err)
	}
	if u == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if u.Generation > m.gen {
		m.gen = u.Generation
	}
	if u.Status != store.UploadStatusLoaded || m.state != StateEmpty || m.pending {
		return nil
	}

	idx, err := frames.BuildIndex(m.framesDir)
	if err != nil {
		m.logger.Warn("frames dir unusable, not restoring", "upload_id", u.ID, "error", err)
		return nil
	}
	if idx.Len() == 0 || idx.Len() != u.FrameCount {
		m.logger.Warn("frames dir does not match last upload, not restoring",
			"upload_id", u.ID, "recorded", u.FrameCount, "found", idx.Len())
		return nil
	}

	m.state = StateLoaded
	m.uploadID = u.ID
	m.videoPath = u.VideoPath
	m.index = idx
	m.sel = Selection{Position: 0, Start: 0, End: idx.Len() - 1}
	m.publishLocked()

	m.logger.Info("session restored", "upload_id", u.ID, "frames", idx.Len())
	return nil
}

// Subscribe returns a channel that always holds the most recent snapshot
// not yet read. Call the returned func to stop receiving.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	m.subs[ch] = struct{}{}
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
	}
}

func (m *Manager) FramesDir() string {
	return m.framesDir
}

type uploadRef struct {
	id     string
	frames int
}

func (m *Manager) loadedUploadLocked() *uploadRef {
	if m.state != StateLoaded || m.uploadID == "" {
		return nil
	}
	return &uploadRef{id: m.uploadID, frames: m.index.Len()}
}

func (m *Manager) selectableLocked() (int, error) {
	if m.pending {
		return 0, fmt.Errorf("%w: upload in progress", ErrOutOfRange)
	}
	if m.state != StateLoaded || m.index.Len() == 0 {
		return 0, fmt.Errorf("%w: no frames loaded", ErrOutOfRange)
	}
	return m.index.Len(), nil
}

func (m *Manager) resetLocked() {
	m.state = StateEmpty
	m.uploadID = ""
	m.videoPath = ""
	m.index = frames.Index{}
	m.sel = Selection{}
	m.pending = false
	m.lastErr = ""
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      m.state,
		UploadID:   m.uploadID,
		Generation: m.gen,
		VideoPath:  m.videoPath,
		FramesDir:  m.framesDir,
		Frames:     m.index.Frames(),
		Pending:    m.pending,
		LastError:  m.lastErr,
	}
	if m.state == StateLoaded {
		sel := m.sel
		snap.Selection = &sel
	}
	return snap
}

func (m *Manager) publishLocked() {
	metrics.SessionFrames.Set(float64(m.index.Len()))

	snap := m.snapshotLocked()
	for ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (m *Manager) removeStaging() {
	matches, _ := filepath.Glob(m.framesDir + ".*")
	for _, p := range matches {
		if err := os.RemoveAll(p); err != nil {
			m.logger.Warn("failed to remove stale staging dir", "path", p, "error", err)
		}
	}
}

func (m *Manager) persistStatus(ctx context.Context, id, status string, frameCount int, errMsg string) {
	m.persist(ctx, func(ctx context.Context) error {
		return m.repo.UpdateUploadStatus(ctx, id, status, frameCount, errMsg)
	})
}

func (m *Manager) persist(ctx context.Context, fn func(context.Context) error) {
	if m.repo == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("failed to record upload", "error", err)
	}
}
