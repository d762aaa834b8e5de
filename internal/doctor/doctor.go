// Package doctor probes the tools the agent depends on (ffmpeg, ffprobe and
// the inference engine) and caches the result.
package doctor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/facekit/facekit-agent/internal/logging"
)

const defaultCacheTTL = 5 * time.Minute

// DepInfo represents the availability status of a single dependency.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities is what the agent can do on this machine right now.
type Capabilities struct {
	FFmpeg  DepInfo `json:"ffmpeg"`
	FFprobe DepInfo `json:"ffprobe"`
	Engine  DepInfo `json:"engine"`

	CanExtract bool      `json:"can_extract"`
	CanProbe   bool      `json:"can_probe"`
	CanEdit    bool      `json:"can_edit"`
	ProbedAt   time.Time `json:"probed_at"`
}

type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// CachedDoctor wraps a Prober to cache results with a configurable TTL.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logging.WithComponent(logger, "doctor"),
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Probe(ctx)
	if err != nil {
		d.logger.Warn("doctor probe failed", "error", err)
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}

func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
