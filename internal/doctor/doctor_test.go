package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

type fakeProber struct {
	calls atomic.Int32
	err   error
}

func (f *fakeProber) Probe(ctx context.Context) (*Capabilities, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &Capabilities{CanExtract: true, ProbedAt: time.Now()}, nil
}

func TestCachedDoctor_CachesWithinTTL(t *testing.T) {
	prober := &fakeProber{}
	d := NewCachedDoctor(prober, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := d.Get(ctx); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if prober.calls.Load() != 1 {
		t.Errorf("probe called %d times, want 1", prober.calls.Load())
	}

	d.Invalidate()
	if d.Peek() != nil {
		t.Error("Peek() should be nil after Invalidate()")
	}
	d.Get(ctx)
	if prober.calls.Load() != 2 {
		t.Errorf("probe called %d times after invalidate, want 2", prober.calls.Load())
	}
}

func TestCachedDoctor_ExpiredTTL(t *testing.T) {
	prober := &fakeProber{}
	d := NewCachedDoctor(prober, nil)
	d.ttl = time.Nanosecond

	d.Get(context.Background())
	time.Sleep(time.Millisecond)
	d.Get(context.Background())

	if prober.calls.Load() != 2 {
		t.Errorf("probe called %d times, want 2", prober.calls.Load())
	}
}

func TestCachedDoctor_StaleOnFailure(t *testing.T) {
	prober := &fakeProber{}
	d := NewCachedDoctor(prober, nil)
	ctx := context.Background()

	first, _ := d.Get(ctx)
	prober.err = errors.New("boom")

	got, err := d.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v, want stale cache", err)
	}
	if got != first {
		t.Error("Refresh() should return the stale cached capabilities")
	}
}

func TestCachedDoctor_FailureWithoutCache(t *testing.T) {
	d := NewCachedDoctor(&fakeProber{err: errors.New("boom")}, nil)
	if _, err := d.Get(context.Background()); err == nil {
		t.Error("Get() should fail when nothing is cached")
	}
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health(ctx context.Context) error { return f.err }

func fakeBinary(t *testing.T, name, firstLine string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), name)
	script := "#!/bin/sh\necho '" + firstLine + "'\necho 'configuration: --enable-gpl'\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestSystemProber(t *testing.T) {
	p := &SystemProber{
		FFmpegPath:  fakeBinary(t, "ffmpeg", "ffmpeg version 6.1.1 Copyright (c) 2000-2023"),
		FFprobePath: filepath.Join(t.TempDir(), "no-ffprobe"),
		Engine:      fakeHealth{err: errors.New("connection refused")},
	}

	caps, err := p.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if !caps.FFmpeg.Available || caps.FFmpeg.Version != "6.1.1" {
		t.Errorf("FFmpeg = %+v", caps.FFmpeg)
	}
	if caps.FFprobe.Available || caps.FFprobe.Error == "" {
		t.Errorf("FFprobe = %+v, want unavailable with error", caps.FFprobe)
	}
	if caps.Engine.Available {
		t.Error("engine should be unavailable")
	}
	if !caps.CanExtract || caps.CanProbe || caps.CanEdit {
		t.Errorf("capabilities = extract %v probe %v edit %v", caps.CanExtract, caps.CanProbe, caps.CanEdit)
	}
	if caps.ProbedAt.IsZero() {
		t.Error("ProbedAt not set")
	}
}

func TestSystemProber_HealthyEngine(t *testing.T) {
	p := &SystemProber{Engine: fakeHealth{}}
	caps, _ := p.Probe(context.Background())
	if !caps.CanEdit {
		t.Error("CanEdit should follow engine health")
	}
	if caps.FFmpeg.Error != "not configured" {
		t.Errorf("FFmpeg error = %q", caps.FFmpeg.Error)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ffmpeg version 6.1.1 Copyright (c) 2000-2023\nbuilt with gcc", "6.1.1"},
		{"ffprobe version n7.0-2-g1234 Copyright", "n7.0-2-g1234"},
		{"something else entirely", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseVersion([]byte(tt.in)); got != tt.want {
			t.Errorf("parseVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
