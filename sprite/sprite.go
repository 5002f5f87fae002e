package sprite

// This file contains the sprite model and code directly related to decoding
// GIF and PNG sprite files into it.

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DecodeAnomaly reports image data that could not be decoded or that decoded
// into something unusable (for example a fully transparent frame). It marks
// a corrupt source file: the asset is skipped and reported, never retried.
type DecodeAnomaly struct {
	Path string
	Err  error
}

func (e *DecodeAnomaly) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode anomaly: %v", e.Err)
	}
	return fmt.Sprintf("decode anomaly in %s: %v", e.Path, e.Err)
}

func (e *DecodeAnomaly) Unwrap() error { return e.Err }

// Frame is a single fully-coalesced animation frame.
type Frame struct {
	Image *image.RGBA

	// DelayCS is the frame delay in centiseconds, as stored in GIF.
	DelayCS int

	// Disposal is the GIF disposal method byte. Zero for PNG sprites.
	Disposal byte
}

// Sprite is a decoded sprite: an ordered frame sequence plus the animation
// metadata needed to write it back out unchanged.
type Sprite struct {
	Frames     []Frame
	LoopCount  int
	SourcePath string
}

// Width returns the canvas width. Frames all share one canvas.
func (s *Sprite) Width() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return s.Frames[0].Image.Bounds().Dx()
}

// Height returns the canvas height.
func (s *Sprite) Height() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return s.Frames[0].Image.Bounds().Dy()
}

// Clone returns a deep copy. The compositor borrows cached sprites
// read-only; anything that mutates frames must clone first.
func (s *Sprite) Clone() *Sprite {
	out := &Sprite{
		Frames:     make([]Frame, len(s.Frames)),
		LoopCount:  s.LoopCount,
		SourcePath: s.SourcePath,
	}
	for i, fr := range s.Frames {
		img := image.NewRGBA(fr.Image.Bounds())
		copy(img.Pix, fr.Image.Pix)
		out.Frames[i] = Frame{Image: img, DelayCS: fr.DelayCS, Disposal: fr.Disposal}
	}
	return out
}

// Equal reports whether two sprites have identical frame sequences: same
// canvas, same pixel bytes, same per-frame timing and disposal, same loop
// count.
func Equal(a, b *Sprite) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Frames) != len(b.Frames) || a.LoopCount != b.LoopCount {
		return false
	}
	for i := range a.Frames {
		fa, fb := a.Frames[i], b.Frames[i]
		if fa.DelayCS != fb.DelayCS || fa.Disposal != fb.Disposal {
			return false
		}
		if fa.Image.Bounds() != fb.Image.Bounds() {
			return false
		}
		if !pixEqual(fa.Image, fb.Image) {
			return false
		}
	}
	return true
}

func pixEqual(a, b *image.RGBA) bool {
	if len(a.Pix) != len(b.Pix) {
		return false
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			return false
		}
	}
	return true
}

// DecodeFile decodes the sprite file at path, choosing the decoder from the
// file extension. Unreadable or corrupt files yield a *DecodeAnomaly.
func DecodeFile(path string) (*Sprite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	s, err := Decode(f, ext)
	if err != nil {
		if da, ok := err.(*DecodeAnomaly); ok {
			da.Path = path
			return nil, da
		}
		return nil, &DecodeAnomaly{Path: path, Err: err}
	}
	s.SourcePath = path
	return s, nil
}

// Decode decodes a sprite from r. ext selects the decoder (".gif" or
// ".png"); anything else is tried as GIF first, then PNG.
func Decode(r io.Reader, ext string) (*Sprite, error) {
	switch ext {
	case ".png":
		return decodePNG(r)
	case ".gif":
		return decodeGIF(r)
	default:
		// Tolerate misnamed files: sniff via image.Decode.
		img, format, err := image.Decode(r)
		if err != nil {
			return nil, &DecodeAnomaly{Err: err}
		}
		if format == "gif" {
			// image.Decode only yields the first frame; misnamed GIFs
			// lose animation, which the caller surfaces as a rename issue
			// long before decode time.
			return singleFrame(img), nil
		}
		return singleFrame(img), nil
	}
}

func decodePNG(r io.Reader) (*Sprite, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, &DecodeAnomaly{Err: fmt.Errorf("could not decode png: %v", err)}
	}
	return singleFrame(img), nil
}

func singleFrame(img image.Image) *Sprite {
	rgba := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return &Sprite{Frames: []Frame{{Image: rgba}}}
}

func decodeGIF(r io.Reader) (*Sprite, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, &DecodeAnomaly{Err: fmt.Errorf("could not decode gif: %v", err)}
	}
	if len(g.Image) == 0 {
		return nil, &DecodeAnomaly{Err: fmt.Errorf("gif has no frames")}
	}

	canvas := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if canvas.Empty() {
		for _, fr := range g.Image {
			canvas = canvas.Union(fr.Bounds())
		}
	}

	s := &Sprite{
		Frames:    make([]Frame, 0, len(g.Image)),
		LoopCount: g.LoopCount,
	}

	// Coalesce: each stored frame only covers its dirty rectangle, so the
	// full canvas state has to be carried across frames, honoring the
	// disposal method of the frame that was just drawn.
	acc := image.NewRGBA(canvas)
	for i, fr := range g.Image {
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		delay := 0
		if i < len(g.Delay) {
			delay = g.Delay[i]
		}

		var snapshot *image.RGBA
		if disposal == gif.DisposalPrevious {
			snapshot = image.NewRGBA(canvas)
			copy(snapshot.Pix, acc.Pix)
		}

		draw.Draw(acc, fr.Bounds(), fr, fr.Bounds().Min, draw.Over)

		coalesced := image.NewRGBA(canvas)
		copy(coalesced.Pix, acc.Pix)
		s.Frames = append(s.Frames, Frame{Image: coalesced, DelayCS: delay, Disposal: disposal})

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(acc, fr.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			acc = snapshot
		}
	}

	return s, nil
}
