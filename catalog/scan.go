package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// IssueKind classifies a problem found while resolving a collection.
type IssueKind int

const (
	// IssueUnparseable marks a file whose name fits no tolerant rule.
	IssueUnparseable IssueKind = iota
	// IssueMisnamed marks a file that parses but is not canonically
	// spelled (casing, doubled extension, stray separator). The proposed
	// operation is a rename to Canonical.
	IssueMisnamed
	// IssueDuplicateKey marks two files resolving to the same key.
	IssueDuplicateKey
	// IssueMissing marks an expected key with no plausible source file.
	IssueMissing
	// IssueDuplicateContent marks an asset whose frame data is identical
	// to a canonical survivor under another key.
	IssueDuplicateContent
	// IssueConflict marks a proposed operation dropped because a higher
	// priority operation targets the same destination path.
	IssueConflict
	// IssueIOFailure marks an operation that kept failing after the
	// transient I/O retry budget was exhausted.
	IssueIOFailure
)

func (k IssueKind) String() string {
	switch k {
	case IssueUnparseable:
		return "unparseable"
	case IssueMisnamed:
		return "misnamed"
	case IssueDuplicateKey:
		return "duplicate-key"
	case IssueMissing:
		return "missing"
	case IssueDuplicateContent:
		return "duplicate-content"
	case IssueConflict:
		return "conflict"
	case IssueIOFailure:
		return "io-failure"
	default:
		return "unknown"
	}
}

// Issue is one validation finding. Issues are transient: they are created
// and consumed within a single reconciliation pass and never persisted.
type Issue struct {
	Kind      IssueKind
	Keys      []Key
	Name      string // offending file name, if any
	Canonical string // canonical spelling, for IssueMisnamed
	Detail    string
}

// Entry locates one asset on disk.
type Entry struct {
	Path string
	Name string // file name as found on disk
	Ext  string // canonical lower-case extension
}

// tableNames are the scaling tables a collection legitimately ships next
// to its sprites. Any other non-sprite file is surfaced as unparseable
// instead of silently skipped.
var tableNames = map[string]bool{
	"table-summary-scale.txt": true,
	"table-front-scale.txt":   true,
	"table-back-scale.txt":    true,
}

// Set is the result of scanning one collection directory.
type Set struct {
	Dir     string
	Entries map[Key]Entry
	Issues  []Issue
}

// Keys returns the set's keys in canonical order.
func (s *Set) Keys() []Key {
	keys := make([]Key, 0, len(s.Entries))
	for k := range s.Entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return Less(keys[i], keys[j]) })
	return keys
}

// Scan resolves every parseable sprite file under dir into a key. It is a
// read-only pass: misnamed files are recorded as issues with the canonical
// spelling attached, never renamed here. A missing or unreadable root
// directory is the only fatal error a collection scan can produce.
func Scan(dir string) (*Set, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not enumerate collection %s", dir)
	}

	names := make([]string, 0, len(des))
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		names = append(names, de.Name())
	}
	// Deterministic resolution order so that duplicate-key handling does
	// not depend on readdir order.
	sort.Strings(names)

	set := &Set{Dir: dir, Entries: make(map[Key]Entry, len(names))}
	for _, name := range names {
		if strings.HasPrefix(name, ".") || tableNames[strings.ToLower(name)] {
			continue // scaling tables and dotfiles live alongside sprites
		}
		key, ext, canonical, err := ParseName(name)
		if err != nil {
			glog.V(1).Infof("scan %s: %v", dir, err)
			set.Issues = append(set.Issues, Issue{Kind: IssueUnparseable, Name: name, Detail: err.Error()})
			continue
		}
		if prev, ok := set.Entries[key]; ok {
			set.Issues = append(set.Issues, Issue{
				Kind:   IssueDuplicateKey,
				Keys:   []Key{key},
				Name:   name,
				Detail: "already resolved by " + prev.Name,
			})
			continue
		}
		if name != canonical {
			set.Issues = append(set.Issues, Issue{
				Kind:      IssueMisnamed,
				Keys:      []Key{key},
				Name:      name,
				Canonical: canonical,
			})
		}
		set.Entries[key] = Entry{Path: filepath.Join(dir, name), Name: name, Ext: ext}
	}

	glog.Infof("scanned %s: %d assets, %d issues", dir, len(set.Entries), len(set.Issues))
	return set, nil
}
