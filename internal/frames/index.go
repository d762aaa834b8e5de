package frames

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Frame is one decoded video frame persisted to disk.
type Frame struct {
	Sequence int    `json:"index"`
	Path     string `json:"path"`
}

// Index is the ordered frame sequence of one source video. Position i
// always holds the frame with Sequence i.
type Index struct {
	frames []Frame
}

// NewIndex builds an Index from frames that are already in sequence order.
func NewIndex(frames []Frame) (Index, error) {
	for i, f := range frames {
		if f.Sequence != i {
			return Index{}, fmt.Errorf("%w: position %d holds sequence %d", ErrCorruptIndex, i, f.Sequence)
		}
	}
	cp := make([]Frame, len(frames))
	copy(cp, frames)
	return Index{frames: cp}, nil
}

func (x Index) Len() int {
	return len(x.frames)
}

// Frames returns a copy of the ordered frames.
func (x Index) Frames() []Frame {
	cp := make([]Frame, len(x.frames))
	copy(cp, x.frames)
	return cp
}

// BuildIndex lists the image files directly inside dir and places each one
// at the position named by its sequence number. Listing order is never
// trusted. A missing or empty directory is an empty index.
func BuildIndex(dir string) (Index, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Index{}, nil
		}
		return Index{}, fmt.Errorf("read frames dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !IsImageFile(name) {
			continue
		}
		names = append(names, name)
	}

	slots := make([]Frame, len(names))
	filled := make([]bool, len(names))
	for _, name := range names {
		seq, err := ParseSequence(name)
		if err != nil {
			return Index{}, err
		}
		if seq >= len(slots) {
			return Index{}, fmt.Errorf("%w: sequence %d exceeds frame count %d (gap in sequence)", ErrCorruptIndex, seq, len(slots))
		}
		if filled[seq] {
			return Index{}, fmt.Errorf("%w: duplicate sequence %d (%s)", ErrCorruptIndex, seq, name)
		}
		slots[seq] = Frame{Sequence: seq, Path: filepath.Join(dir, name)}
		filled[seq] = true
	}

	return Index{frames: slots}, nil
}

// DirSize sums the sizes of the regular files directly inside dir.
func DirSize(dir string) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}
