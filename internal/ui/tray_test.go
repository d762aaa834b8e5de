package ui

import (
	"bytes"
	"image/png"
	"reflect"
	"testing"

	"github.com/facekit/facekit-agent/internal/frames"
	"github.com/facekit/facekit-agent/internal/session"
)

func loadedSnapshot(n int) session.Snapshot {
	fs := make([]frames.Frame, n)
	for i := range fs {
		fs[i] = frames.Frame{Sequence: i}
	}
	return session.Snapshot{
		State:     session.StateLoaded,
		Frames:    fs,
		Selection: &session.Selection{Position: 2, Start: 1, End: n - 1},
	}
}

func TestStatusTitle(t *testing.T) {
	tests := []struct {
		name   string
		snap   session.Snapshot
		paused bool
		want   string
	}{
		{"empty", session.Snapshot{State: session.StateEmpty}, false, "Session: Empty"},
		{"pending", session.Snapshot{State: session.StateEmpty, Pending: true}, false, "Session: Extracting..."},
		{"loaded", loadedSnapshot(5), false, "Session: Loaded"},
		{"failed", session.Snapshot{State: session.StateEmpty, LastError: "decode"}, false, "Session: Error"},
		{"paused", loadedSnapshot(5), true, "Session: Loaded (edits paused)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusTitle(tt.snap, tt.paused); got != tt.want {
				t.Errorf("statusTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFramesTitle(t *testing.T) {
	if got := framesTitle(0, 0); got != "Frames: none" {
		t.Errorf("framesTitle(0) = %q", got)
	}
	if got := framesTitle(1200, 3_500_000); got != "Frames: 1,200 (3.5 MB)" {
		t.Errorf("framesTitle(1200) = %q", got)
	}
}

func TestSelectionTitle(t *testing.T) {
	if got := selectionTitle(session.Snapshot{}); got != "Selection: none" {
		t.Errorf("empty = %q", got)
	}
	if got := selectionTitle(loadedSnapshot(10)); got != "Frame 2, range 1-9" {
		t.Errorf("loaded = %q", got)
	}
}

func TestOpenCommand(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"darwin", "open"},
		{"windows", "explorer"},
		{"linux", "xdg-open"},
		{"freebsd", "xdg-open"},
	}
	for _, tt := range tests {
		name, args := openCommand(tt.goos, "/tmp/out")
		if name != tt.want || !reflect.DeepEqual(args, []string{"/tmp/out"}) {
			t.Errorf("openCommand(%s) = %s %v", tt.goos, name, args)
		}
	}
}

func TestIconIsPNG(t *testing.T) {
	if _, err := png.Decode(bytes.NewReader(iconBytes)); err != nil {
		t.Errorf("embedded icon: %v", err)
	}
}
