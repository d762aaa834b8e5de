package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/facekit/facekit-agent/internal/logging"
	"github.com/facekit/facekit-agent/internal/metrics"
	"github.com/google/uuid"
)

const maxErrorBody = 4096

// HTTPEngine talks JSON to an inference sidecar exposing /health,
// /edit/expression and /video/create.
type HTTPEngine struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPEngine(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPEngine {
	if logger == nil {
		logger = logging.Discard()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.WithComponent(logger, "engine"),
	}
}

func (e *HTTPEngine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return &EngineError{Op: "health", StatusCode: resp.StatusCode}
	}
	return nil
}

func (e *HTTPEngine) EditExpression(ctx context.Context, req EditRequest) (EditResult, error) {
	var result EditResult
	if err := e.post(ctx, "edit", "/edit/expression", req, &result); err != nil {
		return EditResult{}, err
	}
	if result.OutputPath == "" {
		result.OutputPath = req.OutputPath
	}
	return result, nil
}

func (e *HTTPEngine) CreateVideo(ctx context.Context, req VideoRequest) (VideoResult, error) {
	var result VideoResult
	if err := e.post(ctx, "video", "/video/create", req, &result); err != nil {
		return VideoResult{}, err
	}
	if result.OutputPath == "" {
		result.OutputPath = req.OutputPath
	}
	return result, nil
}

func (e *HTTPEngine) post(ctx context.Context, op, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	metrics.EngineRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("engine %s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e.logger.Warn("engine request failed",
			"op", op,
			"status", resp.StatusCode,
			"request_id", requestID,
		)
		return &EngineError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s response: %w", op, err)
	}

	e.logger.Debug("engine request completed",
		"op", op,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
