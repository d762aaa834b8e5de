package frames

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"runtime"

	"github.com/corona10/goimagehash"
	"golang.org/x/sync/errgroup"
)

// Keyframe is a frame whose appearance differs enough from the previous
// keyframe to be worth anchoring an edit on.
type Keyframe struct {
	Frame
	Distance int `json:"distance"`
}

// SuggestKeyframes hashes every frame perceptually and returns frame 0 plus
// each frame whose pHash distance from the last suggested keyframe is at
// least threshold.
func SuggestKeyframes(ctx context.Context, idx Index, threshold int) ([]Keyframe, error) {
	if idx.Len() == 0 {
		return nil, nil
	}

	hashes := make([]*goimagehash.ImageHash, idx.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, f := range idx.frames {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := hashFrame(f.Path)
			if err != nil {
				return fmt.Errorf("hash frame %d: %w", f.Sequence, err)
			}
			hashes[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	keyframes := []Keyframe{{Frame: idx.frames[0]}}
	last := hashes[0]
	for i := 1; i < len(hashes); i++ {
		dist, err := last.Distance(hashes[i])
		if err != nil {
			return nil, fmt.Errorf("compare frame %d: %w", i, err)
		}
		if dist >= threshold {
			keyframes = append(keyframes, Keyframe{Frame: idx.frames[i], Distance: dist})
			last = hashes[i]
		}
	}
	return keyframes, nil
}

func hashFrame(path string) (*goimagehash.ImageHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return goimagehash.PerceptionHash(img)
}
