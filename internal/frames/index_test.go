package frames

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func writeFrames(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(n), 0644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestFrameName(t *testing.T) {
	tests := []struct {
		seq  int
		ext  string
		want string
	}{
		{0, "png", "frame_000000.png"},
		{9, ".jpg", "frame_000009.jpg"},
		{123456, "png", "frame_123456.png"},
		{1234567, "png", "frame_1234567.png"},
	}
	for _, tt := range tests {
		if got := FrameName(tt.seq, tt.ext); got != tt.want {
			t.Errorf("FrameName(%d, %q) = %q, want %q", tt.seq, tt.ext, got, tt.want)
		}
	}
}

func TestFramePattern(t *testing.T) {
	got := FramePattern("/tmp/f", "png")
	want := filepath.Join("/tmp/f", "frame_%06d.png")
	if got != want {
		t.Errorf("FramePattern() = %q, want %q", got, want)
	}
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"frame_000000.png", 0, false},
		{"frame_000042.jpg", 42, false},
		{"frame_7.png", 7, false},
		{"/abs/dir/frame_000010.png", 10, false},
		{"frame_.png", 0, true},
		{"frame_x1.png", 0, true},
		{"frame_-1.png", 0, true},
		{"image_0001.png", 0, true},
		{"0001.png", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSequence(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrCorruptIndex) {
					t.Errorf("ParseSequence(%q) error = %v, want ErrCorruptIndex", tt.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSequence(%q) unexpected error: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ParseSequence(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestBuildIndex_OrdersBySequenceNotListing(t *testing.T) {
	dir := t.TempDir()

	// Unpadded names list lexically as 0, 1, 10, 11, 2, ...
	const n = 12
	names := make([]string, n)
	for i := range names {
		names[i] = "frame_" + strconv.Itoa(i) + ".png"
	}
	rand.New(rand.NewSource(7)).Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	writeFrames(t, dir, names...)

	idx, err := BuildIndex(dir)
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if idx.Len() != n {
		t.Fatalf("Len() = %d, want %d", idx.Len(), n)
	}
	for i, f := range idx.Frames() {
		if f.Sequence != i {
			t.Errorf("position %d has sequence %d", i, f.Sequence)
		}
		if want := filepath.Join(dir, "frame_"+strconv.Itoa(i)+".png"); f.Path != want {
			t.Errorf("position %d path = %q, want %q", i, f.Path, want)
		}
	}
}

func TestBuildIndex_EmptyAndMissing(t *testing.T) {
	idx, err := BuildIndex(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("BuildIndex(missing) error = %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("BuildIndex(missing).Len() = %d, want 0", idx.Len())
	}

	idx, err = BuildIndex(t.TempDir())
	if err != nil {
		t.Fatalf("BuildIndex(empty) error = %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("BuildIndex(empty).Len() = %d, want 0", idx.Len())
	}
}

func TestBuildIndex_IgnoresNonImagesAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, FrameName(0, "png"), FrameName(1, "png"), "notes.txt", ".DS_Store")
	os.Mkdir(filepath.Join(dir, "frame_000002.png.d"), 0755)
	writeFrames(t, filepath.Join(dir, "nested"), FrameName(5, "png"))

	idx, err := BuildIndex(dir)
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if idx.Len() != 2 {
		t.Errorf("Len() = %d, want 2", idx.Len())
	}
}

func TestBuildIndex_Corrupt(t *testing.T) {
	tests := []struct {
		name  string
		files []string
	}{
		{"unparsable name", []string{FrameName(0, "png"), "thumbnail.png"}},
		{"gap", []string{FrameName(0, "png"), FrameName(2, "png")}},
		{"missing zero", []string{FrameName(1, "png"), FrameName(2, "png")}},
		{"duplicate sequence", []string{"frame_1.png", "frame_000001.png", FrameName(0, "png")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFrames(t, dir, tt.files...)

			_, err := BuildIndex(dir)
			if !errors.Is(err, ErrCorruptIndex) {
				t.Errorf("BuildIndex() error = %v, want ErrCorruptIndex", err)
			}
		})
	}
}

func TestBuildIndex_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	os.WriteFile(path, []byte("x"), 0644)

	if _, err := BuildIndex(path); err == nil {
		t.Error("BuildIndex(file) should fail")
	}
}

func TestIndex_FramesIsACopy(t *testing.T) {
	idx, err := NewIndex([]Frame{{0, "/a"}, {1, "/b"}})
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	if idx.Len() != 2 {
		t.Errorf("Len() = %d, want 2", idx.Len())
	}

	frames := idx.Frames()
	frames[0].Path = "mutated"
	if got := idx.Frames()[0].Path; got != "/a" {
		t.Errorf("Frames()[0].Path = %q after mutating a copy", got)
	}

	if _, err := NewIndex([]Frame{{1, "/a"}}); !errors.Is(err, ErrCorruptIndex) {
		t.Errorf("NewIndex(out of order) error = %v, want ErrCorruptIndex", err)
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0644)
	os.WriteFile(filepath.Join(dir, "b"), make([]byte, 5), 0644)

	if got := DirSize(dir); got != 15 {
		t.Errorf("DirSize() = %d, want 15", got)
	}
	if got := DirSize(filepath.Join(dir, "missing")); got != 0 {
		t.Errorf("DirSize(missing) = %d, want 0", got)
	}
}
