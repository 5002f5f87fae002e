// Package components separates a badge-collection sprite into its base
// creature artwork and the fixed overlay graphics baked into it.
//
// Separation runs connected-component labeling over the non-transparent
// pixels of a reference frame and classifies the resulting regions with a
// geometric profile: the overlay is always a small, low-overlap component
// sitting apart from the dominant creature component. The profile constants
// are a best-effort classifier; if future badge styles change position or
// size materially, recalibrate ClassifierProfile rather than the code.
package components

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/golang/glog"

	"badc0de.net/pkg/go-bullseye/sprite"
)

// Connectivity selects the flood fill neighborhood.
type Connectivity int

const (
	Conn4 Connectivity = 4
	Conn8 Connectivity = 8
)

// DefaultMinAlpha is the alpha threshold below which a pixel is treated as
// transparent. Filters the near-invisible fringe GIF exports leave behind.
const DefaultMinAlpha = 32

// Component is one connected region of opaque pixels. Points holds every
// member pixel in image coordinates; the mask builder needs the exact
// membership, not just the bounding box.
type Component struct {
	Rect   image.Rectangle
	Pixels int
	Points []image.Point
}

// ClassifierProfile bounds what may be classified as an overlay.
type ClassifierProfile struct {
	// MaxShareOfBase is the largest pixel-count share of the base
	// component an overlay may have.
	MaxShareOfBase float64
	// MaxPixels is the absolute overlay size ceiling; anything bigger is
	// a background effect, not a badge.
	MaxPixels int
	// MaxOverlapRatio is the largest share of an overlay's own box that
	// may intersect the base component's box.
	MaxOverlapRatio float64
	// MinPixels filters out runaway pixels before classification.
	MinPixels int
}

// DefaultProfile matches the badge style currently in circulation.
func DefaultProfile() ClassifierProfile {
	return ClassifierProfile{
		MaxShareOfBase:  0.40,
		MaxPixels:       2000,
		MaxOverlapRatio: 0.50,
		MinPixels:       100,
	}
}

// Mask is the derived overlay artifact for one badge asset: which pixels of
// the badge canvas belong to the overlay, and where they sit.
type Mask struct {
	// Bitmap is non-zero at overlay pixels, over the badge canvas.
	Bitmap *image.Alpha
	// OverlayRect is the union bounding box of the overlay components.
	OverlayRect image.Rectangle
	// BaseRect is the bounding box of the base creature component.
	BaseRect image.Rectangle
	// OverlayPresent is false when the badge sprite had no overlay baked
	// in; the asset is usable, the mask is just empty.
	OverlayPresent bool
	// Static is true when the overlay region is pixel-identical on every
	// frame, so the reference frame can source all output frames.
	Static bool
}

// Label runs connected-component labeling over pixels of img whose alpha is
// at least minAlpha. Components come back sorted by pixel count, largest
// first.
func Label(img *image.RGBA, conn Connectivity, minAlpha uint8) []Component {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	visited := make([]bool, w*h)

	opaque := func(x, y int) bool {
		return img.RGBAAt(b.Min.X+x, b.Min.Y+y).A >= minAlpha
	}

	var comps []Component
	var stack []image.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] {
				continue
			}
			visited[y*w+x] = true
			if !opaque(x, y) {
				continue
			}

			comp := Component{Rect: image.Rect(x, y, x+1, y+1)}
			stack = append(stack[:0], image.Pt(x, y))
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				comp.Pixels++
				comp.Points = append(comp.Points, p.Add(b.Min))
				comp.Rect = comp.Rect.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

				for _, n := range neighbors(p, conn) {
					if n.X < 0 || n.Y < 0 || n.X >= w || n.Y >= h || visited[n.Y*w+n.X] {
						continue
					}
					visited[n.Y*w+n.X] = true
					if opaque(n.X, n.Y) {
						stack = append(stack, n)
					}
				}
			}
			comp.Rect = comp.Rect.Add(b.Min)
			comps = append(comps, comp)
		}
	}

	sort.Slice(comps, func(i, j int) bool { return comps[i].Pixels > comps[j].Pixels })
	return comps
}

func neighbors(p image.Point, conn Connectivity) []image.Point {
	n := []image.Point{
		{p.X - 1, p.Y}, {p.X + 1, p.Y}, {p.X, p.Y - 1}, {p.X, p.Y + 1},
	}
	if conn == Conn8 {
		n = append(n,
			image.Pt(p.X-1, p.Y-1), image.Pt(p.X+1, p.Y-1),
			image.Pt(p.X-1, p.Y+1), image.Pt(p.X+1, p.Y+1))
	}
	return n
}

// Classify splits labeled components into the base creature component and
// the overlay components. The largest component is the base; a component
// qualifies as overlay only within the profile's size and overlap bounds.
func Classify(comps []Component, profile ClassifierProfile) (base Component, overlays []Component) {
	if len(comps) == 0 {
		return Component{}, nil
	}

	valid := comps[:0:0]
	for _, c := range comps {
		if c.Pixels >= profile.MinPixels {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		// Nothing meets the floor; fall back to the largest region.
		valid = comps[:1]
	}

	base = valid[0]
	for _, c := range valid[1:] {
		if float64(c.Pixels) > profile.MaxShareOfBase*float64(base.Pixels) {
			continue
		}
		if c.Pixels > profile.MaxPixels {
			continue
		}
		overlap := c.Rect.Intersect(base.Rect)
		if float64(overlap.Dx()*overlap.Dy()) >= profile.MaxOverlapRatio*float64(c.Rect.Dx()*c.Rect.Dy()) {
			continue
		}
		overlays = append(overlays, c)
	}

	// Stable top-to-bottom order; badges stack vertically in the corner.
	sort.Slice(overlays, func(i, j int) bool { return overlays[i].Rect.Min.Y < overlays[j].Rect.Min.Y })
	return base, overlays
}

// Separate derives the overlay mask for a badge asset from its reference
// frame (frame 0).
//
// A badge sprite with exactly one component has no overlay baked in: the
// mask comes back empty with OverlayPresent false, which is not an error.
// A fully transparent reference frame is a corrupt source and yields a
// *sprite.DecodeAnomaly.
func Separate(badge *sprite.Sprite, conn Connectivity, profile ClassifierProfile) (*Mask, error) {
	if len(badge.Frames) == 0 {
		return nil, &sprite.DecodeAnomaly{Path: badge.SourcePath, Err: fmt.Errorf("sprite has no frames")}
	}
	ref := badge.Frames[0].Image

	comps := Label(ref, conn, DefaultMinAlpha)
	if len(comps) == 0 {
		return nil, &sprite.DecodeAnomaly{Path: badge.SourcePath, Err: fmt.Errorf("reference frame is fully transparent")}
	}

	base, overlays := Classify(comps, profile)
	mask := &Mask{
		Bitmap:   image.NewAlpha(ref.Bounds()),
		BaseRect: base.Rect,
	}
	if len(overlays) == 0 {
		glog.V(1).Infof("%s: overlay-absent (%d components)", badge.SourcePath, len(comps))
		return mask, nil
	}

	mask.OverlayPresent = true
	mask.OverlayRect = overlays[0].Rect
	for _, ov := range overlays[1:] {
		mask.OverlayRect = mask.OverlayRect.Union(ov.Rect)
	}
	for _, ov := range overlays {
		// Exact membership, not the bounding box: overlapping boxes must
		// not bleed base pixels into the mask.
		for _, p := range ov.Points {
			mask.Bitmap.SetAlpha(p.X, p.Y, color.Alpha{A: 0xFF})
		}
	}
	mask.Static = overlayStatic(badge, mask)
	return mask, nil
}

func overlayStatic(badge *sprite.Sprite, mask *Mask) bool {
	ref := badge.Frames[0].Image
	for _, fr := range badge.Frames[1:] {
		for y := mask.OverlayRect.Min.Y; y < mask.OverlayRect.Max.Y; y++ {
			for x := mask.OverlayRect.Min.X; x < mask.OverlayRect.Max.X; x++ {
				if mask.Bitmap.AlphaAt(x, y).A == 0 {
					continue
				}
				if fr.Image.RGBAAt(x, y) != ref.RGBAAt(x, y) {
					return false
				}
			}
		}
	}
	return true
}
