// Command spriteprint prints a sprite frame on the terminal. Debugging
// aid for inspecting badge separation and composite output without a
// graphical viewer.
package main

import (
	"flag"

	"badc0de.net/pkg/flagutil/v1"

	"github.com/golang/glog"

	"badc0de.net/pkg/go-bullseye/sprite"
)

var (
	frame = flag.Int("frame", 0, "frame of the sprite to print")

	rastermFlag = flag.Bool("rasterm", false, "whether to print via rasterm (kitty, iterm, sixel)")
	iterm       = flag.Bool("iterm", false, "whether to print with iterm escape code instead of 24 bit")
	col256      = flag.Bool("col256", false, "whether to use 256 col instead of 24 bit")
	col         = flag.Bool("col", true, "whether to use color at all")
	blanks      = flag.Bool("blanks", true, "whether to just use colored blanks instead of some bad ascii art")
	downsize    = flag.Bool("downsize", true, "whether to downsize the image to fit the terminal")
	checker     = flag.Bool("checkerboard", true, "whether to back transparency with a checkerboard")
)

func main() {
	flagutil.Parse()

	if flag.NArg() != 1 {
		glog.Exitf("usage: spriteprint [flags] <sprite file>")
	}
	path := flag.Arg(0)

	s, err := sprite.DecodeFile(path)
	if err != nil {
		glog.Exitf("could not decode %s: %v", path, err)
	}
	if *frame < 0 || *frame >= len(s.Frames) {
		glog.Exitf("frame %d out of range, sprite has %d frames", *frame, len(s.Frames))
	}

	out(s.Frames[*frame].Image)
}
