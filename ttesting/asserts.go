// Package ttesting carries shared test asserts. UNSUPPORTED outside tests.
package ttesting

import (
	"image"
	"testing"
)

func AssertEqualInt(t *testing.T, name string, got, want int) {
	t.Run(name, func(t *testing.T) {
		if got != want {
			t.Errorf("got %d; want %d", got, want)
		}
	})
}

func AssertEqualString(t *testing.T, name string, got, want string) {
	t.Run(name, func(t *testing.T) {
		if got != want {
			t.Errorf("got %q; want %q", got, want)
		}
	})
}

func AssertEqualRect(t *testing.T, name string, got, want image.Rectangle) {
	t.Run(name, func(t *testing.T) {
		if got != want {
			t.Errorf("got %v; want %v", got, want)
		}
	})
}

func AssertMinSize(t *testing.T, name string, got image.Rectangle, wantW, wantH int) {
	t.Run(name, func(t *testing.T) {
		if got.Dx() < wantW || got.Dy() < wantH {
			t.Errorf("got %dx%d; want at least %dx%d", got.Dx(), got.Dy(), wantW, wantH)
		}
	})
}

// AssertSameRegion compares got's pixels in gotRect against want's pixels
// in wantRect, point by point.
func AssertSameRegion(t *testing.T, name string, got image.Image, gotRect image.Rectangle, want image.Image, wantRect image.Rectangle) {
	t.Run(name, func(t *testing.T) {
		if gotRect.Size() != wantRect.Size() {
			t.Fatalf("region size: got %v; want %v", gotRect.Size(), wantRect.Size())
		}
		for dy := 0; dy < wantRect.Dy(); dy++ {
			for dx := 0; dx < wantRect.Dx(); dx++ {
				gr, gg, gb, ga := got.At(gotRect.Min.X+dx, gotRect.Min.Y+dy).RGBA()
				wr, wg, wb, wa := want.At(wantRect.Min.X+dx, wantRect.Min.Y+dy).RGBA()
				if gr != wr || gg != wg || gb != wb || ga != wa {
					t.Fatalf("pixel (%d,%d): got %d,%d,%d,%d; want %d,%d,%d,%d",
						dx, dy, gr, gg, gb, ga, wr, wg, wb, wa)
				}
			}
		}
	})
}
