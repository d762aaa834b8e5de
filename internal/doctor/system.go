package doctor

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/facekit/facekit-agent/internal/logging"
)

const probeTimeout = 10 * time.Second

// HealthChecker is satisfied by inference engines.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// SystemProber checks the local ffmpeg/ffprobe binaries and the engine.
type SystemProber struct {
	FFmpegPath  string
	FFprobePath string
	Engine      HealthChecker
	Logger      *slog.Logger
}

func (p *SystemProber) Probe(ctx context.Context) (*Capabilities, error) {
	logger := p.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	caps := &Capabilities{
		FFmpeg:  probeBinary(ctx, p.FFmpegPath),
		FFprobe: probeBinary(ctx, p.FFprobePath),
	}

	if p.Engine != nil {
		hctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.Engine.Health(hctx)
		cancel()
		if err != nil {
			caps.Engine = DepInfo{Error: err.Error()}
		} else {
			caps.Engine = DepInfo{Available: true}
		}
	}

	caps.CanExtract = caps.FFmpeg.Available
	caps.CanProbe = caps.FFprobe.Available
	caps.CanEdit = caps.Engine.Available
	caps.ProbedAt = time.Now()

	logger.Info("doctor probe complete",
		"ffmpeg", caps.FFmpeg.Available,
		"ffprobe", caps.FFprobe.Available,
		"engine", caps.Engine.Available,
	)
	return caps, nil
}

// probeBinary runs "<bin> -version" and keeps the version token from the
// first line of output.
func probeBinary(ctx context.Context, bin string) DepInfo {
	if bin == "" {
		return DepInfo{Error: "not configured"}
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return DepInfo{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return DepInfo{Path: path, Error: err.Error()}
	}
	return DepInfo{Available: true, Path: path, Version: parseVersion(out)}
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out []byte) string {
	line, _, _ := bytes.Cut(out, []byte("\n"))
	sc := bufio.NewScanner(bytes.NewReader(line))
	sc.Split(bufio.ScanWords)

	prev := ""
	for sc.Scan() {
		w := sc.Text()
		if prev == "version" {
			return strings.TrimSpace(w)
		}
		prev = w
	}
	return ""
}
