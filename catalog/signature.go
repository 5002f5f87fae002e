package catalog

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"badc0de.net/pkg/go-bullseye/sprite"
)

// ContentSignature is a content hash over an asset's frame data, used to
// detect byte-identical duplicates across keys.
type ContentSignature string

// Signature hashes the sprite's canvas size, frame count and every frame's
// pixels and delay. Two sprites hash identically exactly when their frame
// sequences are byte-identical with matching timing.
func Signature(s *sprite.Sprite) ContentSignature {
	h := sha256.New()

	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(s.Width()))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(s.Height()))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(len(s.Frames)))
	h.Write(hdr[:])

	var meta [8]byte
	for _, fr := range s.Frames {
		binary.LittleEndian.PutUint32(meta[0:], uint32(fr.DelayCS))
		meta[4] = fr.Disposal
		h.Write(meta[:])
		h.Write(fr.Image.Pix)
	}

	return ContentSignature(hex.EncodeToString(h.Sum(nil)))
}
