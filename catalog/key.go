package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxNumber is the highest Pokémon number a collection may contain.
const MaxNumber = 1024

type Direction int

const (
	DirFront Direction = iota
	DirBack
	DirNormal
)

func (d Direction) String() string {
	switch d {
	case DirFront:
		return "front"
	case DirBack:
		return "back"
	default:
		return "normal"
	}
}

type Variant int

const (
	VariantNormal Variant = iota
	VariantShiny
)

func (v Variant) String() string {
	if v == VariantShiny {
		return "s"
	}
	return "n"
}

type Gender int

const (
	GenderNone Gender = iota
	GenderMale
	GenderFemale
)

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "m"
	case GenderFemale:
		return "f"
	default:
		return ""
	}
}

// Key uniquely identifies one sprite slot within a collection.
type Key struct {
	Number  int
	Dir     Direction
	Variant Variant
	Gender  Gender
}

func (k Key) String() string {
	return k.Name("")
}

// Name formats the canonical file name for the key with the given
// extension (which may be empty or start with a dot).
func (k Key) Name(ext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%03d-%s-%s", k.Number, k.Dir, k.Variant)
	if k.Gender != GenderNone {
		fmt.Fprintf(&b, "-%s", k.Gender)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		b.WriteByte('.')
	}
	b.WriteString(ext)
	return b.String()
}

// WithGender returns a copy of the key with the gender replaced.
func (k Key) WithGender(g Gender) Key {
	k.Gender = g
	return k
}

// WithDir returns a copy of the key with the direction replaced.
func (k Key) WithDir(d Direction) Key {
	k.Dir = d
	return k
}

// Paired reports whether two keys refer to the same sprite slot family:
// equal except for gender, or equal except for direction within
// {front, back}.
func Paired(a, b Key) bool {
	if a == b {
		return false
	}
	if a.WithGender(GenderNone) == b.WithGender(GenderNone) {
		return true
	}
	if a.Dir == DirNormal || b.Dir == DirNormal {
		return false
	}
	return a.WithDir(DirFront) == b.WithDir(DirFront)
}

// Less orders keys canonically: by number, then front before back before
// normal, then normal before shiny, then genderless before male before
// female. The dedup phase keeps the Less-most key of a duplicate group.
func Less(a, b Key) bool {
	if a.Number != b.Number {
		return a.Number < b.Number
	}
	if a.Dir != b.Dir {
		return a.Dir < b.Dir
	}
	if a.Variant != b.Variant {
		return a.Variant < b.Variant
	}
	return a.Gender < b.Gender
}

// ParseError reports a file name that does not conform to the collection
// naming convention under any tolerant rule. It is never fatal; the file
// is queued as an issue and skipped.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable sprite name %q: %s", e.Name, e.Reason)
}

// ParseName parses a collection file name into its key. Parsing is
// case-insensitive and repairs two classes of malformed extension: a
// doubled extension ("025-front-n.gif.gif") and a stray trailing separator
// ("025-front-n-.gif"). The returned canonical name is the spelling the
// file should have; callers compare it against the input to decide whether
// to propose a rename.
func ParseName(name string) (key Key, ext string, canonical string, err error) {
	lower := strings.ToLower(name)

	base, ext := splitExt(lower)
	if ext != ".gif" && ext != ".png" {
		return Key{}, "", "", &ParseError{Name: name, Reason: "unsupported extension"}
	}

	// Collapse a doubled extension left over from sloppy renames.
	for strings.HasSuffix(base, ext) {
		base = strings.TrimSuffix(base, ext)
	}
	// Drop a stray trailing separator before the extension.
	base = strings.TrimRight(base, "-_. ")

	fields := strings.FieldsFunc(base, func(r rune) bool { return r == '-' || r == '_' })
	if len(fields) < 3 || len(fields) > 4 {
		return Key{}, "", "", &ParseError{Name: name, Reason: "want NNN-direction-variant[-gender]"}
	}

	n, aerr := strconv.Atoi(fields[0])
	if aerr != nil || n < 1 || n > MaxNumber {
		return Key{}, "", "", &ParseError{Name: name, Reason: fmt.Sprintf("bad number %q", fields[0])}
	}
	key.Number = n

	switch fields[1] {
	case "front", "f":
		key.Dir = DirFront
	case "back", "b":
		key.Dir = DirBack
	case "normal":
		key.Dir = DirNormal
	default:
		return Key{}, "", "", &ParseError{Name: name, Reason: fmt.Sprintf("bad direction %q", fields[1])}
	}

	switch fields[2] {
	case "n", "normal":
		key.Variant = VariantNormal
	case "s", "shiny":
		key.Variant = VariantShiny
	default:
		return Key{}, "", "", &ParseError{Name: name, Reason: fmt.Sprintf("bad variant %q", fields[2])}
	}

	if len(fields) == 4 {
		switch fields[3] {
		case "m", "male":
			key.Gender = GenderMale
		case "f", "female":
			key.Gender = GenderFemale
		default:
			return Key{}, "", "", &ParseError{Name: name, Reason: fmt.Sprintf("bad gender %q", fields[3])}
		}
	}

	return key, ext, key.Name(ext), nil
}

func splitExt(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i:]
}
