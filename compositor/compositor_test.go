package compositor

import (
	"image"
	"image/color"
	"testing"

	"badc0de.net/pkg/go-bullseye/components"
	"badc0de.net/pkg/go-bullseye/sprite"
	"badc0de.net/pkg/go-bullseye/ttesting"
)

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// badgeSprite is a 64x64 badge asset: creature blob on the left, a 16x16
// overlay in the top-right corner at (48,0), as in the collection layout.
func badgeSprite(t *testing.T) (*sprite.Sprite, *components.Mask) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	fill(img, image.Rect(4, 20, 36, 60), color.RGBA{200, 50, 50, 255})
	fill(img, image.Rect(48, 0, 64, 16), color.RGBA{50, 50, 200, 255})
	badge := &sprite.Sprite{Frames: []sprite.Frame{{Image: img, DelayCS: 10}}}

	mask, err := components.Separate(badge, components.Conn4, components.DefaultProfile())
	if err != nil {
		t.Fatalf("failed to separate badge: %v", err)
	}
	if !mask.OverlayPresent {
		t.Fatalf("badge fixture has no detectable overlay")
	}
	return badge, mask
}

func replacementSprite(w, h int, frames int) *sprite.Sprite {
	s := &sprite.Sprite{LoopCount: 0}
	for i := 0; i < frames; i++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		fill(img, img.Bounds(), color.RGBA{10 + uint8(i)*40, 160, 30, 255})
		s.Frames = append(s.Frames, sprite.Frame{Image: img, DelayCS: 10 + i*5, Disposal: 2})
	}
	return s
}

func TestCompositeExpandsCanvas(t *testing.T) {
	badge, mask := badgeSprite(t)
	repl := replacementSprite(96, 96, 2)

	out, err := Composite(repl, badge, mask, DefaultConfig(), image.Point{})
	if err != nil {
		t.Fatalf("failed to composite: %v", err)
	}

	ttesting.AssertEqualInt(t, "frame count", len(out.Frames), 2)
	ttesting.AssertMinSize(t, "canvas", out.Frames[0].Image.Bounds(), 96, 96)

	for i := range repl.Frames {
		ttesting.AssertEqualInt(t, "delay", out.Frames[i].DelayCS, repl.Frames[i].DelayCS)
	}
	ttesting.AssertEqualInt(t, "loop count", out.LoopCount, repl.LoopCount)

	// Overlay pixels must be byte-identical to the badge source and
	// re-anchored near the canvas's top-right corner.
	canvas := out.Frames[0].Image.Bounds()
	dst := image.Rect(canvas.Max.X-16, 0, canvas.Max.X, 16)
	ttesting.AssertSameRegion(t, "overlay region", out.Frames[0].Image, dst,
		badge.Frames[0].Image, mask.OverlayRect)
}

func TestCompositeCanvasNeverShrinks(t *testing.T) {
	badge, mask := badgeSprite(t)
	for _, size := range []int{64, 80, 96, 200} {
		repl := replacementSprite(size, size, 1)
		out, err := Composite(repl, badge, mask, DefaultConfig(), image.Point{})
		if err != nil {
			t.Fatalf("failed to composite at %d: %v", size, err)
		}
		b := out.Frames[0].Image.Bounds()
		if b.Dx() < size || b.Dy() < size {
			t.Errorf("replacement %dx%d: canvas %dx%d shrank below native size", size, size, b.Dx(), b.Dy())
		}
	}
}

func TestCompositeUpscalesSmallReplacement(t *testing.T) {
	badge, mask := badgeSprite(t)
	repl := replacementSprite(16, 20, 1) // base box is 32x40: exact 2x fit

	out, err := Composite(repl, badge, mask, DefaultConfig(), image.Point{})
	if err != nil {
		t.Fatalf("failed to composite: %v", err)
	}

	// Canvas stays at the badge layout; the replacement grew into the
	// base box instead.
	ttesting.AssertEqualRect(t, "canvas", out.Frames[0].Image.Bounds(), image.Rect(0, 0, 64, 64))

	// Nearest-neighbor 2x keeps the flat color exact at the box center.
	got := out.Frames[0].Image.RGBAAt(20, 40)
	want := repl.Frames[0].Image.RGBAAt(8, 10)
	if got != want {
		t.Errorf("upscaled center pixel: got %v; want %v", got, want)
	}
}

func TestCompositeOverlayAbsent(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	fill(img, image.Rect(4, 20, 36, 60), color.RGBA{200, 50, 50, 255})
	badge := &sprite.Sprite{Frames: []sprite.Frame{{Image: img}}}
	mask, err := components.Separate(badge, components.Conn4, components.DefaultProfile())
	if err != nil {
		t.Fatalf("failed to separate: %v", err)
	}

	repl := replacementSprite(32, 40, 3)
	out, err := Composite(repl, badge, mask, DefaultConfig(), image.Point{})
	if err != nil {
		t.Fatalf("failed to composite: %v", err)
	}
	ttesting.AssertEqualInt(t, "frame count", len(out.Frames), 3)
}

func TestCompositeEmptyReplacement(t *testing.T) {
	badge, mask := badgeSprite(t)
	repl := &sprite.Sprite{Frames: []sprite.Frame{{Image: image.NewRGBA(image.Rect(0, 0, 8, 8))}}}

	if _, err := Composite(repl, badge, mask, DefaultConfig(), image.Point{}); err == nil {
		t.Fatalf("empty replacement composited without error")
	}
}

func TestDeriveBackOffset(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	fill(img, image.Rect(0, 20, 32, 60), color.RGBA{200, 50, 50, 255}) // left-biased content
	front := &sprite.Sprite{Frames: []sprite.Frame{{Image: img}}}

	off := DeriveBackOffset(front)
	if off.X <= 0 {
		t.Errorf("left-biased front sprite gave offset %v; want positive X", off)
	}

	centered := replacementSprite(64, 64, 1)
	if off := DeriveBackOffset(centered); off.X != 0 {
		t.Errorf("centered sprite gave offset %v; want 0", off)
	}
}
