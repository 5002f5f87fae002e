package sprite

// This file contains code directly related to encoding sprites back into
// GIF and PNG files.

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ericpauley/go-quantize/quantize"
)

// EncodeFile writes the sprite to path. The extension selects the encoder:
// ".png" writes the first frame as PNG, anything else writes an animated
// GIF with the sprite's delays, disposal methods and loop count verbatim.
func EncodeFile(path string, s *Sprite) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.ToLower(filepath.Ext(path)) == ".png" {
		return EncodePNG(f, s)
	}
	return EncodeGIF(f, s)
}

// EncodePNG writes the sprite's first frame as a PNG.
func EncodePNG(w io.Writer, s *Sprite) error {
	if len(s.Frames) == 0 {
		return fmt.Errorf("sprite has no frames")
	}
	return png.Encode(w, s.Frames[0].Image)
}

// EncodeGIF writes all frames as an animated GIF.
//
// Frames with up to 255 distinct colors keep their exact pixel values: the
// palette is built from the frame itself, with index 0 reserved for
// transparency. Only frames that overflow a GIF palette go through the
// median cut quantizer.
func EncodeGIF(w io.Writer, s *Sprite) error {
	if len(s.Frames) == 0 {
		return fmt.Errorf("sprite has no frames")
	}

	g := &gif.GIF{LoopCount: s.LoopCount}
	for _, fr := range s.Frames {
		pal := palettize(fr.Image)
		g.Image = append(g.Image, pal)
		g.Delay = append(g.Delay, fr.DelayCS)
		g.Disposal = append(g.Disposal, fr.Disposal)
	}
	g.BackgroundIndex = 0 // color.Transparent
	g.Config = image.Config{
		ColorModel: g.Image[0].Palette,
		Width:      s.Width(),
		Height:     s.Height(),
	}

	return gif.EncodeAll(w, g)
}

func palettize(img *image.RGBA) *image.Paletted {
	b := img.Bounds()

	if pal, ok := exactPalette(img); ok {
		out := image.NewPaletted(b, pal)
		idx := make(map[color.RGBA]uint8, len(pal))
		for i, c := range pal {
			if i == 0 {
				continue
			}
			idx[c.(color.RGBA)] = uint8(i)
		}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := img.RGBAAt(x, y)
				if c.A == 0 {
					continue // index 0 is transparent
				}
				out.SetColorIndex(x, y, idx[c])
			}
		}
		return out
	}

	// Too many colors for one palette. Let the quantizer compute a palette
	// and keep index 0 for transparency, so the empty paletted image
	// defaults to it; draw.Over then leaves transparent pixels alone.
	q := quantize.MedianCutQuantizer{}
	pal := q.Quantize(make(color.Palette, 0, 255), img)
	out := image.NewPaletted(b, append(color.Palette{color.Transparent}, pal...))
	draw.Draw(out, b, img, b.Min, draw.Over)
	return out
}

// exactPalette collects the frame's distinct opaque colors. It gives up
// once 255 are seen, leaving room for the transparent entry at index 0.
func exactPalette(img *image.RGBA) (color.Palette, bool) {
	b := img.Bounds()
	seen := make(map[color.RGBA]struct{})
	pal := color.Palette{color.Transparent}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			if c.A == 0 {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			if len(pal) == 256 {
				return nil, false
			}
			seen[c] = struct{}{}
			pal = append(pal, c)
		}
	}
	return pal, true
}
