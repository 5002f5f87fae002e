package imgcache

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"badc0de.net/pkg/go-bullseye/sprite"
	"badc0de.net/pkg/go-bullseye/ttesting"
)

func writeSprite(t *testing.T, dir string, name string, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	s := &sprite.Sprite{Frames: []sprite.Frame{{Image: img, DelayCS: 10}}}
	if err := sprite.EncodeFile(path, s); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestGetCachesAndEvicts(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 3)
	for i := range paths {
		paths[i] = writeSprite(t, dir, fmt.Sprintf("%03d-front-n.gif", i+1), color.RGBA{uint8(50 * (i + 1)), 0, 0, 255})
	}

	c := New(2)

	for _, p := range paths[:2] {
		if _, err := c.Get(p); err != nil {
			t.Fatalf("failed to get %s: %v", p, err)
		}
	}
	if _, err := c.Get(paths[0]); err != nil {
		t.Fatalf("failed to re-get: %v", err)
	}

	hits, misses := c.Stats()
	ttesting.AssertEqualInt(t, "hits", int(hits), 1)
	ttesting.AssertEqualInt(t, "misses", int(misses), 2)

	// Third path evicts the least recently used (paths[1]).
	if _, err := c.Get(paths[2]); err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	ttesting.AssertEqualInt(t, "len at capacity", c.Len(), 2)

	if _, err := c.Get(paths[1]); err != nil {
		t.Fatalf("failed to re-decode evicted sprite: %v", err)
	}
	_, misses2 := c.Stats()
	ttesting.AssertEqualInt(t, "misses after eviction", int(misses2), 4)
}

func TestInvalidate(t *testing.T) {
	dir := t.TempDir()
	p := writeSprite(t, dir, "001-front-n.gif", color.RGBA{255, 0, 0, 255})

	c := New(0)
	if _, err := c.Get(p); err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	c.Invalidate(p)
	ttesting.AssertEqualInt(t, "len after invalidate", c.Len(), 0)
}

func TestGetMissingFile(t *testing.T) {
	c := New(0)
	if _, err := c.Get(filepath.Join(t.TempDir(), "404-front-n.gif")); err == nil {
		t.Fatalf("get of missing file succeeded")
	}
}
