// Package sprite decodes and encodes the animated GIF and still PNG files
// that make up a battle sprite collection.
//
// A decoded Sprite carries fully-coalesced RGBA frames together with the
// original per-frame delay, disposal method and loop count, so that a
// decode/encode round trip never alters animation timing.
package sprite
