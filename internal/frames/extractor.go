package frames

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const maxStderrBytes = 8 * 1024 // tail of ffmpeg stderr kept for diagnostics

// Extractor decodes a video into numbered frame images.
type Extractor interface {
	// Extract writes one image per decoded frame into outputDir, named so
	// that ParseSequence restores temporal order starting at 0.
	Extract(ctx context.Context, videoPath, outputDir string) error

	// Probe reads stream metadata without decoding frames.
	Probe(ctx context.Context, videoPath string) (*ProbeResult, error)
}

type ProbeResult struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Codec      string  `json:"codec"`
	FrameRate  float64 `json:"frame_rate"`
	FrameCount int     `json:"frame_count"`
}

type FFmpegConfig struct {
	FFmpegPath  string
	FFprobePath string
	Format      string        // png or jpg
	FPS         float64       // 0 keeps every frame
	Timeout     time.Duration // per extraction; 0 means no limit
	Logger      *slog.Logger
}

// FFmpegExtractor is the production Extractor. It runs ffmpeg/ffprobe as
// subprocesses.
type FFmpegExtractor struct {
	cfg FFmpegConfig
}

func NewFFmpegExtractor(cfg FFmpegConfig) *FFmpegExtractor {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Format == "" {
		cfg.Format = "png"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FFmpegExtractor{cfg: cfg}
}

func (e *FFmpegExtractor) Extract(ctx context.Context, videoPath, outputDir string) error {
	if err := checkVideo(videoPath); err != nil {
		return err
	}
	if outputDir == "" {
		return fmt.Errorf("%w: output directory is empty", ErrInvalidInput)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-i", videoPath}
	if e.cfg.FPS > 0 {
		args = append(args, "-vf", "fps="+strconv.FormatFloat(e.cfg.FPS, 'f', -1, 64))
	}
	if e.cfg.Format == "jpg" {
		args = append(args, "-q:v", "2")
	}
	args = append(args, "-start_number", "0", "-y", FramePattern(outputDir, e.cfg.Format))

	start := time.Now()
	e.cfg.Logger.Info("extracting frames", "video", videoPath, "output", outputDir, "fps", e.cfg.FPS)

	cmd := exec.CommandContext(ctx, e.cfg.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &tailWriter{buf: &stderr, limit: maxStderrBytes}
	cmd.Stdout = io.Discard

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("extraction aborted: %w", ctxErr)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: ffmpeg not available: %v", ErrDecode, err)
		}
		tail := strings.TrimSpace(stderr.String())
		e.cfg.Logger.Warn("ffmpeg failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
			"stderr_tail", truncate(tail, 512),
		)
		return fmt.Errorf("%w: ffmpeg: %v: %s", ErrDecode, err, truncate(tail, 512))
	}

	count := countImages(outputDir)
	if count == 0 {
		return fmt.Errorf("%w: no frames decoded from %s", ErrDecode, videoPath)
	}

	e.cfg.Logger.Info("frames extracted",
		"count", count,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (e *FFmpegExtractor) Probe(ctx context.Context, videoPath string) (*ProbeResult, error) {
	if err := checkVideo(videoPath); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.cfg.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,nb_frames:format=duration",
		"-of", "json",
		videoPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &tailWriter{buf: &stderr, limit: maxStderrBytes}

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %v: %s", ErrDecode, err, truncate(strings.TrimSpace(stderr.String()), 512))
	}
	return parseProbe(out)
}

type probeOutput struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		NbFrames   string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var po probeOutput
	if err := json.Unmarshal(data, &po); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output: %v", ErrDecode, err)
	}
	if len(po.Streams) == 0 {
		return nil, fmt.Errorf("%w: no video stream", ErrDecode)
	}

	s := po.Streams[0]
	res := &ProbeResult{
		Width:     s.Width,
		Height:    s.Height,
		Codec:     s.CodecName,
		FrameRate: parseRate(s.RFrameRate),
	}
	res.Duration, _ = strconv.ParseFloat(po.Format.Duration, 64)
	res.FrameCount, _ = strconv.Atoi(s.NbFrames)
	return res, nil
}

// parseRate turns an ffprobe rational such as "30000/1001" into a float.
func parseRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func checkVideo(videoPath string) error {
	if strings.TrimSpace(videoPath) == "" {
		return fmt.Errorf("%w: video path is empty", ErrInvalidInput)
	}
	info, err := os.Stat(videoPath)
	if err != nil {
		return fmt.Errorf("%w: video %s: %v", ErrInvalidInput, videoPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: video %s is a directory", ErrInvalidInput, videoPath)
	}
	return nil
}

func countImages(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && IsImageFile(e.Name()) {
			n++
		}
	}
	return n
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// tailWriter keeps only the last limit bytes written to it.
type tailWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	w.buf.Write(p)
	if w.buf.Len() > w.limit {
		b := w.buf.Bytes()
		tail := make([]byte, w.limit)
		copy(tail, b[len(b)-w.limit:])
		w.buf.Reset()
		w.buf.Write(tail)
	}
	return n, nil
}
