// Package compositor merges a replacement sprite with the overlay extracted
// from its badge-collection counterpart, producing the final asset.
//
// Neither input is ever downsampled. The output canvas is the smallest
// rectangle containing the replacement content at native resolution plus
// the overlay at its original relative offset; a replacement that outgrows
// the badge layout expands the canvas outward and the overlay is
// repositioned toward its home corner, never rescaled.
package compositor

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	"github.com/golang/glog"
	"github.com/nfnt/resize"

	"badc0de.net/pkg/go-bullseye/components"
	"badc0de.net/pkg/go-bullseye/sprite"
)

// Config tunes compositing. The zero value is not useful; use
// DefaultConfig.
type Config struct {
	// DetectionThreshold is the ratio by which the replacement content
	// must exceed the badge base box before the canvas is expanded (and,
	// symmetrically, by which the base box must exceed the replacement
	// before the replacement is upscaled into it).
	DetectionThreshold float64

	// Gap is the minimum pixel gap kept between the base content and the
	// overlay column.
	Gap int
}

func DefaultConfig() Config {
	return Config{DetectionThreshold: 1.10, Gap: 8}
}

// ContentBox returns the union bounding box of non-transparent pixels
// across all frames. Animation movement is included, so every frame crops
// to the same box and alignment survives.
func ContentBox(s *sprite.Sprite) image.Rectangle {
	var box image.Rectangle
	for _, fr := range s.Frames {
		b := fr.Image.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if fr.Image.RGBAAt(x, y).A == 0 {
					continue
				}
				px := image.Rect(x, y, x+1, y+1)
				if box.Empty() {
					box = px
				} else {
					box = box.Union(px)
				}
			}
		}
	}
	return box
}

// DeriveBackOffset computes the lateral bias of a replacement front sprite
// within its own canvas. Back sprites of the badge collection use a
// different camera layout, so the back composite borrows the replacement's
// own front geometry instead: applying the same bias keeps the back sprite
// positioned to match the front layout. Computed once per Pokémon number
// and reused for every variant of that number.
func DeriveBackOffset(replFront *sprite.Sprite) image.Point {
	box := ContentBox(replFront)
	if box.Empty() {
		return image.Point{}
	}
	canvasCX := replFront.Width() / 2
	boxCX := (box.Min.X + box.Max.X) / 2
	return image.Pt(canvasCX-boxCX, 0)
}

// Composite merges one replacement sprite with the mask separated from its
// badge counterpart.
//
// Guarantees: the output frame count, per-frame delay, disposal method and
// loop count equal the replacement's; overlay pixels are copied from the
// badge frames byte for byte, never resampled.
func Composite(repl, badge *sprite.Sprite, mask *components.Mask, cfg Config, backOffset image.Point) (*sprite.Sprite, error) {
	if len(repl.Frames) == 0 {
		return nil, &sprite.DecodeAnomaly{Path: repl.SourcePath, Err: fmt.Errorf("replacement has no frames")}
	}

	replBox := ContentBox(repl)
	if replBox.Empty() {
		return nil, &sprite.DecodeAnomaly{Path: repl.SourcePath, Err: fmt.Errorf("replacement has no content")}
	}

	badgeBounds := mask.Bitmap.Bounds()
	badgeW, badgeH := badgeBounds.Dx(), badgeBounds.Dy()
	baseBox := mask.BaseRect
	if baseBox.Empty() {
		baseBox = badgeBounds
	}

	replW, replH := replBox.Dx(), replBox.Dy()
	upscale := 1.0

	// Replacement bigger than the badge's base box: grow the canvas, keep
	// the replacement at native resolution.
	scale := 1.0
	if replW > baseBox.Dx() || replH > baseBox.Dy() {
		s := math.Max(float64(replW)/float64(baseBox.Dx()), float64(replH)/float64(baseBox.Dy()))
		if s > cfg.DetectionThreshold {
			scale = s
		}
	} else {
		// Replacement well under the base box: upscale it into place.
		// Integer factors use nearest neighbor to keep pixel art crisp.
		fit := math.Min(float64(baseBox.Dx())/float64(replW), float64(baseBox.Dy())/float64(replH))
		if fit > cfg.DetectionThreshold {
			upscale = fit
		}
	}

	canvasW := int(math.Ceil(float64(badgeW) * scale))
	canvasH := int(math.Ceil(float64(badgeH) * scale))

	// Keep a gap between the creature and the overlay column, as the badge
	// layout does; the shift widens the canvas, it never moves the base.
	shift := 0
	if mask.OverlayPresent && mask.OverlayRect.Min.X >= baseBox.Max.X {
		gap := mask.OverlayRect.Min.X - baseBox.Max.X
		if gap < cfg.Gap {
			shift = int(math.Round(float64(cfg.Gap-gap) * scale))
		}
	}
	canvasW += shift

	drawnW := int(math.Round(float64(replW) * upscale))
	drawnH := int(math.Round(float64(replH) * upscale))

	// Never shrink below the replacement's own native size.
	if canvasW < drawnW {
		canvasW = drawnW
	}
	if canvasH < drawnH {
		canvasH = drawnH
	}

	overlayDst := anchorOverlay(mask, badgeW, badgeH, canvasW, canvasH, scale, shift)

	scaledBase := image.Rect(
		int(float64(baseBox.Min.X)*scale), int(float64(baseBox.Min.Y)*scale),
		int(float64(baseBox.Max.X)*scale), int(float64(baseBox.Max.Y)*scale))

	pasteX := scaledBase.Min.X + scaledBase.Dx()/2 - drawnW/2 + backOffset.X
	pasteY := scaledBase.Max.Y - drawnH + backOffset.Y
	pasteX = clamp(pasteX, 0, canvasW-drawnW)
	pasteY = clamp(pasteY, 0, canvasH-drawnH)

	glog.V(1).Infof("%s: canvas %dx%d (scale %.2f, upscale %.2f, shift %d), overlay at %v",
		repl.SourcePath, canvasW, canvasH, scale, upscale, shift, overlayDst)

	out := &sprite.Sprite{
		Frames:     make([]sprite.Frame, 0, len(repl.Frames)),
		LoopCount:  repl.LoopCount,
		SourcePath: repl.SourcePath,
	}

	for i, fr := range repl.Frames {
		canvas := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))

		layer := cropFrame(fr.Image, replBox)
		if upscale != 1.0 {
			layer = upscaleFrame(layer, drawnW, drawnH, upscale)
		}
		draw.Draw(canvas, image.Rect(pasteX, pasteY, pasteX+drawnW, pasteY+drawnH), layer, layer.Bounds().Min, draw.Over)

		if mask.OverlayPresent {
			src := badge.Frames[0].Image
			if !mask.Static && i < len(badge.Frames) {
				src = badge.Frames[i].Image
			}
			copyOverlay(canvas, overlayDst, src, mask)
		}

		out.Frames = append(out.Frames, sprite.Frame{Image: canvas, DelayCS: fr.DelayCS, Disposal: fr.Disposal})
	}

	return out, nil
}

// anchorOverlay repositions the overlay on the expanded canvas. The overlay
// keeps its distance to the badge-canvas corner it sits nearest to, so a
// top-right badge stays near the top-right and a bottom-right badge stays
// near the bottom-right.
func anchorOverlay(mask *components.Mask, badgeW, badgeH, canvasW, canvasH int, scale float64, shift int) image.Point {
	if !mask.OverlayPresent {
		return image.Point{}
	}
	ov := mask.OverlayRect

	var x int
	if ov.Min.X >= badgeW-ov.Max.X { // nearer the right edge
		x = canvasW - (badgeW - ov.Max.X) - ov.Dx()
	} else {
		x = int(float64(ov.Min.X)*scale) + shift
	}

	var y int
	if ov.Min.Y >= badgeH-ov.Max.Y { // nearer the bottom edge
		y = canvasH - (badgeH - ov.Max.Y) - ov.Dy()
	} else {
		y = ov.Min.Y
	}

	x = clamp(x, 0, canvasW-ov.Dx())
	y = clamp(y, 0, canvasH-ov.Dy())
	return image.Pt(x, y)
}

// copyOverlay transfers masked overlay pixels from the badge frame onto the
// canvas at dst. A plain byte copy: the overlay is never blended, scaled or
// filtered.
func copyOverlay(canvas *image.RGBA, dst image.Point, src *image.RGBA, mask *components.Mask) {
	ov := mask.OverlayRect
	for y := ov.Min.Y; y < ov.Max.Y; y++ {
		for x := ov.Min.X; x < ov.Max.X; x++ {
			if mask.Bitmap.AlphaAt(x, y).A == 0 {
				continue
			}
			canvas.SetRGBA(dst.X+(x-ov.Min.X), dst.Y+(y-ov.Min.Y), src.RGBAAt(x, y))
		}
	}
}

func cropFrame(img *image.RGBA, box image.Rectangle) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(out, out.Bounds(), img, box.Min, draw.Src)
	return out
}

func upscaleFrame(img *image.RGBA, w, h int, factor float64) *image.RGBA {
	var interp resize.InterpolationFunction
	if factor == math.Trunc(factor) {
		interp = resize.NearestNeighbor
	} else {
		interp = resize.Lanczos3
	}
	resized := resize.Resize(uint(w), uint(h), img, interp)
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), resized, resized.Bounds().Min, draw.Src)
	return out
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
