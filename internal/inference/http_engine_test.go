package inference

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHTTPEngine_EditExpression(t *testing.T) {
	var received EditRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/edit/expression" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("missing X-Request-Id header")
		}
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(EditResult{OutputPath: "/out/edited.png"})
	}))
	defer server.Close()

	engine := NewHTTPEngine(server.URL+"/", time.Second, testLogger())

	params := DefaultExpressionParams()
	params.Blink = 3
	res, err := engine.EditExpression(context.Background(), EditRequest{
		SourceImage: "/frames/frame_000000.png",
		Params:      params,
		OutputPath:  "/out/requested.png",
	})
	if err != nil {
		t.Fatalf("EditExpression() error = %v", err)
	}
	if res.OutputPath != "/out/edited.png" {
		t.Errorf("OutputPath = %q", res.OutputPath)
	}
	if received.SourceImage != "/frames/frame_000000.png" || received.Params.Blink != 3 {
		t.Errorf("received = %+v", received)
	}
}

func TestHTTPEngine_EmptyResponseKeepsRequestedPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine := NewHTTPEngine(server.URL, time.Second, testLogger())
	res, err := engine.CreateVideo(context.Background(), VideoRequest{OutputPath: "/out/v.mp4"})
	if err != nil {
		t.Fatalf("CreateVideo() error = %v", err)
	}
	if res.OutputPath != "/out/v.mp4" {
		t.Errorf("OutputPath = %q, want requested path", res.OutputPath)
	}
}

func TestHTTPEngine_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, false},
		{"unprocessable", http.StatusUnprocessableEntity, false},
		{"server error", http.StatusInternalServerError, true},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"no face detected"}`))
			}))
			defer server.Close()

			engine := NewHTTPEngine(server.URL, time.Second, testLogger())
			_, err := engine.EditExpression(context.Background(), EditRequest{})

			var engErr *EngineError
			if !errors.As(err, &engErr) {
				t.Fatalf("error = %v, want *EngineError", err)
			}
			if engErr.StatusCode != tt.status || engErr.Op != "edit" {
				t.Errorf("EngineError = %+v", engErr)
			}
			if engErr.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", engErr.IsRetryable(), tt.retryable)
			}
			if engErr.Body != `{"error":"no face detected"}` {
				t.Errorf("Body = %q", engErr.Body)
			}
		})
	}
}

func TestHTTPEngine_Health(t *testing.T) {
	var unhealthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	engine := NewHTTPEngine(server.URL, time.Second, nil)
	if err := engine.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}

	unhealthy.Store(true)
	if err := engine.Health(context.Background()); err == nil {
		t.Error("Health() should fail on 503")
	}

	server.Close()
	if err := engine.Health(context.Background()); err == nil {
		t.Error("Health() should fail when the engine is unreachable")
	}
}

func TestStubEngine_CopiesInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "frame.png")
	os.WriteFile(src, []byte("pixels"), 0644)

	engine := NewStubEngine(nil)
	out := filepath.Join(dir, "edits", "job", "frame.png")

	res, err := engine.EditExpression(context.Background(), EditRequest{SourceImage: src, OutputPath: out})
	if err != nil {
		t.Fatalf("EditExpression() error = %v", err)
	}
	data, err := os.ReadFile(res.OutputPath)
	if err != nil || string(data) != "pixels" {
		t.Errorf("output = %q, %v", data, err)
	}

	if _, err := engine.EditExpression(context.Background(), EditRequest{SourceImage: filepath.Join(dir, "missing"), OutputPath: out}); err == nil {
		t.Error("EditExpression() should fail for a missing source")
	}
	if err := engine.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}
