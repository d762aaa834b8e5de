// Package config provides configuration management for the FaceKit Agent.
// Configuration is read from an optional YAML file, then overridden by
// environment variables, on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort              = 8790
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	DefaultDataDir           = ".facekit"
	DefaultFFmpegPath        = "ffmpeg"
	DefaultFFprobePath       = "ffprobe"
	DefaultFrameFormat       = "png"
	DefaultExtractFPS        = 0.0 // every decoded frame
	DefaultKeyframeThreshold = 10
	DefaultInferenceTimeout  = 120 // seconds
	DefaultExtractTimeout    = 600 // seconds

	// Environment variable names
	EnvConfigFile        = "FACEKIT_CONFIG"
	EnvPort              = "FACEKIT_PORT"
	EnvLogLevel          = "FACEKIT_LOG_LEVEL"
	EnvLogFormat         = "FACEKIT_LOG_FORMAT"
	EnvDataDir           = "FACEKIT_DATA_DIR"
	EnvOutputDir         = "FACEKIT_OUTPUT_DIR"
	EnvModelDir          = "FACEKIT_MODEL_DIR"
	EnvFFmpegPath        = "FACEKIT_FFMPEG"
	EnvFFprobePath       = "FACEKIT_FFPROBE"
	EnvFrameFormat       = "FACEKIT_FRAME_FORMAT"
	EnvExtractFPS        = "FACEKIT_EXTRACT_FPS"
	EnvInferenceURL      = "FACEKIT_INFERENCE_URL"
	EnvInferenceTimeout  = "FACEKIT_INFERENCE_TIMEOUT"
	EnvExtractTimeout    = "FACEKIT_EXTRACT_TIMEOUT"
	EnvCORSOrigins       = "FACEKIT_CORS_ORIGINS"
	EnvHeadless          = "FACEKIT_HEADLESS"
	EnvKeyframeThreshold = "FACEKIT_KEYFRAME_THRESHOLD"

	// Database filename
	DBFilename = "facekit.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	OutputDir() string
	ModelDir() string
	FramesDir() string
	EditsDir() string
	VideosDir() string
	FFmpegPath() string
	FFprobePath() string
	FrameFormat() string
	ExtractFPS() float64
	InferenceURL() string
	InferenceTimeout() time.Duration
	ExtractTimeout() time.Duration
	CORSOrigins() []string
	Headless() bool
	KeyframeThreshold() int
}

// FileConfig mirrors the YAML configuration file. Zero values mean "not set".
type FileConfig struct {
	App struct {
		Port      int    `yaml:"port"`
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
		DataDir   string `yaml:"data_dir"`
		OutputDir string `yaml:"output_dir"`
		ModelDir  string `yaml:"model_dir"`
		Headless  bool   `yaml:"headless"`
	} `yaml:"app"`
	Extraction struct {
		FFmpegPath        string  `yaml:"ffmpeg_path"`
		FFprobePath       string  `yaml:"ffprobe_path"`
		FrameFormat       string  `yaml:"frame_format"`
		FPS               float64 `yaml:"fps"`
		TimeoutSec        int     `yaml:"timeout_sec"`
		KeyframeThreshold int     `yaml:"keyframe_threshold"`
	} `yaml:"extraction"`
	Inference struct {
		URL        string `yaml:"url"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"inference"`
	API struct {
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"api"`
}

// EnvConfig holds the resolved configuration
type EnvConfig struct {
	port      int
	logLevel  string
	logFormat string
	dataDir   string
	outputDir string
	modelDir  string
	headless  bool

	ffmpegPath        string
	ffprobePath       string
	frameFormat       string
	extractFPS        float64
	extractTimeout    time.Duration
	keyframeThreshold int

	inferenceURL     string
	inferenceTimeout time.Duration

	corsOrigins []string
}

// New creates a new EnvConfig with defaults, an optional YAML file and
// environment variable overrides, in that order of precedence.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:              DefaultPort,
		logLevel:          DefaultLogLevel,
		logFormat:         DefaultLogFormat,
		dataDir:           defaultDataDir(),
		ffmpegPath:        DefaultFFmpegPath,
		ffprobePath:       DefaultFFprobePath,
		frameFormat:       DefaultFrameFormat,
		extractFPS:        DefaultExtractFPS,
		extractTimeout:    DefaultExtractTimeout * time.Second,
		keyframeThreshold: DefaultKeyframeThreshold,
		inferenceTimeout:  DefaultInferenceTimeout * time.Second,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg.applyFile(fc)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile reads and parses a YAML configuration file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &fc, nil
}

func (c *EnvConfig) applyFile(fc *FileConfig) {
	if fc.App.Port != 0 {
		c.port = fc.App.Port
	}
	if fc.App.LogLevel != "" {
		c.logLevel = fc.App.LogLevel
	}
	if fc.App.LogFormat != "" {
		c.logFormat = fc.App.LogFormat
	}
	if fc.App.DataDir != "" {
		c.dataDir = fc.App.DataDir
	}
	if fc.App.OutputDir != "" {
		c.outputDir = fc.App.OutputDir
	}
	if fc.App.ModelDir != "" {
		c.modelDir = fc.App.ModelDir
	}
	if fc.App.Headless {
		c.headless = true
	}
	if fc.Extraction.FFmpegPath != "" {
		c.ffmpegPath = fc.Extraction.FFmpegPath
	}
	if fc.Extraction.FFprobePath != "" {
		c.ffprobePath = fc.Extraction.FFprobePath
	}
	if fc.Extraction.FrameFormat != "" {
		c.frameFormat = fc.Extraction.FrameFormat
	}
	if fc.Extraction.FPS != 0 {
		c.extractFPS = fc.Extraction.FPS
	}
	if fc.Extraction.TimeoutSec != 0 {
		c.extractTimeout = time.Duration(fc.Extraction.TimeoutSec) * time.Second
	}
	if fc.Extraction.KeyframeThreshold != 0 {
		c.keyframeThreshold = fc.Extraction.KeyframeThreshold
	}
	if fc.Inference.URL != "" {
		c.inferenceURL = fc.Inference.URL
	}
	if fc.Inference.TimeoutSec != 0 {
		c.inferenceTimeout = time.Duration(fc.Inference.TimeoutSec) * time.Second
	}
	if len(fc.API.CORSOrigins) > 0 {
		c.corsOrigins = fc.API.CORSOrigins
	}
}

func (c *EnvConfig) applyEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		c.logLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.logFormat = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.dataDir = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.outputDir = v
	}
	if v := os.Getenv(EnvModelDir); v != "" {
		c.modelDir = v
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" {
		c.ffmpegPath = v
	}
	if v := os.Getenv(EnvFFprobePath); v != "" {
		c.ffprobePath = v
	}
	if v := os.Getenv(EnvFrameFormat); v != "" {
		c.frameFormat = v
	}
	if v := os.Getenv(EnvInferenceURL); v != "" {
		c.inferenceURL = v
	}

	if v := os.Getenv(EnvExtractFPS); v != "" {
		fps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvExtractFPS, err)
		}
		c.extractFPS = fps
	}

	if v := os.Getenv(EnvKeyframeThreshold); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvKeyframeThreshold, err)
		}
		c.keyframeThreshold = n
	}

	if v := os.Getenv(EnvInferenceTimeout); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvInferenceTimeout, err)
		}
		c.inferenceTimeout = d
	}

	if v := os.Getenv(EnvExtractTimeout); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvExtractTimeout, err)
		}
		c.extractTimeout = d
	}

	if v := os.Getenv(EnvHeadless); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = b
	}

	if v := os.Getenv(EnvCORSOrigins); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.corsOrigins = origins
	}

	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.port)
	}
	c.frameFormat = strings.ToLower(c.frameFormat)
	if c.frameFormat == "jpeg" {
		c.frameFormat = "jpg"
	}
	if c.frameFormat != "png" && c.frameFormat != "jpg" {
		return fmt.Errorf("invalid frame format %q: must be png or jpg", c.frameFormat)
	}
	if c.extractFPS < 0 {
		return errors.New("invalid extraction fps: must not be negative")
	}
	if c.keyframeThreshold < 0 || c.keyframeThreshold > 64 {
		return fmt.Errorf("invalid keyframe threshold %d: must be between 0 and 64", c.keyframeThreshold)
	}
	if c.inferenceTimeout <= 0 || c.extractTimeout <= 0 {
		return errors.New("invalid timeout: must be positive")
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns the log output format (json or console)
func (c *EnvConfig) LogFormat() string {
	return c.logFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// OutputDir returns the root for everything the agent produces.
func (c *EnvConfig) OutputDir() string {
	if c.outputDir != "" {
		return c.outputDir
	}
	return filepath.Join(c.dataDir, "outputs")
}

func (c *EnvConfig) ModelDir() string {
	if c.modelDir != "" {
		return c.modelDir
	}
	return filepath.Join(c.dataDir, "models")
}

// FramesDir is the single working directory keyframe videos are extracted into.
func (c *EnvConfig) FramesDir() string {
	return filepath.Join(c.OutputDir(), "temp", "video_frames")
}

func (c *EnvConfig) EditsDir() string {
	return filepath.Join(c.OutputDir(), "edits")
}

func (c *EnvConfig) VideosDir() string {
	return filepath.Join(c.OutputDir(), "videos")
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

// FrameFormat returns the extracted frame image extension (png or jpg)
func (c *EnvConfig) FrameFormat() string {
	return c.frameFormat
}

// ExtractFPS returns the sampling rate; 0 keeps every decoded frame
func (c *EnvConfig) ExtractFPS() float64 {
	return c.extractFPS
}

// InferenceURL returns the base URL of the inference sidecar; empty uses the stub engine
func (c *EnvConfig) InferenceURL() string {
	return c.inferenceURL
}

func (c *EnvConfig) InferenceTimeout() time.Duration {
	return c.inferenceTimeout
}

func (c *EnvConfig) ExtractTimeout() time.Duration {
	return c.extractTimeout
}

func (c *EnvConfig) CORSOrigins() []string {
	return c.corsOrigins
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) KeyframeThreshold() int {
	return c.keyframeThreshold
}

func parseSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
