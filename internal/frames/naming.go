// Package frames decodes keyframe videos into numbered still images and
// rebuilds the ordered frame index from a frames directory.
package frames

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrDecode       = errors.New("video decode failed")
	ErrCorruptIndex = errors.New("corrupt frame index")
)

const (
	framePrefix    = "frame_"
	sequenceDigits = 6
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
}

// FrameName returns the file name for a zero-based sequence number.
func FrameName(seq int, ext string) string {
	return fmt.Sprintf("%s%0*d.%s", framePrefix, sequenceDigits, seq, strings.TrimPrefix(ext, "."))
}

// FramePattern returns the ffmpeg output pattern matching FrameName.
func FramePattern(dir, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s%%0%dd.%s", framePrefix, sequenceDigits, strings.TrimPrefix(ext, ".")))
}

// IsImageFile reports whether name has a still-image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ParseSequence extracts the sequence number embedded in a frame file name.
func ParseSequence(name string) (int, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if !strings.HasPrefix(stem, framePrefix) {
		return 0, fmt.Errorf("%w: %q has no %q prefix", ErrCorruptIndex, base, framePrefix)
	}

	digits := strings.TrimPrefix(stem, framePrefix)
	if digits == "" {
		return 0, fmt.Errorf("%w: %q has no sequence number", ErrCorruptIndex, base)
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q has a non-numeric sequence", ErrCorruptIndex, base)
		}
	}

	seq, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrCorruptIndex, base, err)
	}
	return seq, nil
}
