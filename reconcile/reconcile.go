// Package reconcile repairs naming, casing, duplication and missing-variant
// problems across a sprite collection before compositing runs.
//
// The pass is a five-phase state machine. Phases run strictly one after
// another because each phase's file mutations are preconditions for the
// next; the catalog is re-scanned at every phase boundary where files
// changed, never assumed stale. The pass is a fixed point over its own
// output: running it again applies zero operations.
package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"

	"badc0de.net/pkg/go-bullseye/catalog"
	"badc0de.net/pkg/go-bullseye/imgcache"
)

// NumberRange limits the pass to a Pokémon number range. The zero value
// means "all".
type NumberRange struct {
	Min, Max int
}

func (r NumberRange) All() bool { return r.Min == 0 && r.Max == 0 }

func (r NumberRange) Contains(n int) bool {
	if r.All() {
		return true
	}
	return n >= r.Min && n <= r.Max
}

// ProgressFunc receives phase progress. May be nil.
type ProgressFunc func(phase string, done, total int)

// Report summarizes one reconciliation pass.
type Report struct {
	// Set is the collection state after the final phase.
	Set *catalog.Set
	// OpsApplied counts file operations that actually ran.
	OpsApplied int
	// Duplicates maps each content-duplicate key to its canonical
	// survivor. Duplicate keys are not recomposited; the canonical
	// result is reused for them.
	Duplicates map[catalog.Key]catalog.Key
}

// Reconciler drives the five phases over one collection directory.
type Reconciler struct {
	dir   string
	cache *imgcache.Cache
	rng   NumberRange

	// Issues accumulates findings across phases. Transient: consumed by
	// the caller after the pass, never persisted.
	Issues []catalog.Issue
}

func New(dir string, cache *imgcache.Cache, rng NumberRange) *Reconciler {
	if cache == nil {
		cache = imgcache.New(0)
	}
	return &Reconciler{dir: dir, cache: cache, rng: rng}
}

var phaseNames = []string{
	"simple fixes",
	"missing-file analysis",
	"back-file completion",
	"cleanup",
	"deduplication",
}

// Run executes all five phases. Cancellation is observed between phases
// and between operations; a cancelled pass leaves completed repairs in
// place and returns ctx.Err.
func (r *Reconciler) Run(ctx context.Context, progress ProgressFunc) (*Report, error) {
	report := &Report{Duplicates: make(map[catalog.Key]catalog.Key)}

	set, err := catalog.Scan(r.dir)
	if err != nil {
		return nil, err
	}
	r.Issues = append(r.Issues, set.Issues...)

	phases := []func(*catalog.Set) []Op{
		r.phaseSimpleFixes,
		r.phaseMissingFiles,
		r.phaseBackCompletion,
		r.phaseCleanup,
	}

	for i, phase := range phases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if progress != nil {
			progress(phaseNames[i], i, len(phaseNames))
		}

		ops := resolveConflicts(phase(set), &r.Issues)
		applied := 0
		for _, op := range ops {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if r.apply(op) {
				applied++
			}
		}
		report.OpsApplied += applied
		glog.Infof("phase %q: %d operations", phaseNames[i], applied)

		if applied > 0 {
			// Later phases must see up-to-date state.
			if set, err = catalog.Scan(r.dir); err != nil {
				return report, err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if progress != nil {
		progress(phaseNames[4], 4, len(phaseNames))
	}
	r.phaseDedup(ctx, set, report)

	report.Set = set
	if progress != nil {
		progress("reconciled", len(phaseNames), len(phaseNames))
	}
	return report, nil
}

// phaseSimpleFixes proposes renames for files that parse but are not
// canonically spelled: wrong casing, doubled extensions, stray separators.
// When the canonical spelling already exists on disk the misnamed copy is
// redundant and removed instead.
func (r *Reconciler) phaseSimpleFixes(set *catalog.Set) []Op {
	var ops []Op
	seen := make(map[string]bool)
	for _, iss := range set.Issues {
		if iss.Kind != catalog.IssueMisnamed && iss.Kind != catalog.IssueDuplicateKey {
			continue
		}
		if seen[iss.Name] {
			continue
		}
		seen[iss.Name] = true

		if iss.Kind == catalog.IssueDuplicateKey {
			// A second file resolving to an already-taken key. When it is
			// itself canonically spelled the rename of the entry holder
			// folds into it; a non-canonical spelling is a stray copy.
			if len(iss.Keys) == 1 && !strings.EqualFold(iss.Name, iss.Keys[0].Name(filepath.Ext(iss.Name))) {
				ops = append(ops, Op{Kind: OpRemove, Dst: filepath.Join(set.Dir, iss.Name),
					Key: iss.Keys[0], Note: "stray copy of an already resolved key"})
			}
			continue
		}

		src := filepath.Join(set.Dir, iss.Name)
		dst := filepath.Join(set.Dir, iss.Canonical)
		if len(iss.Keys) == 0 {
			continue
		}
		key := iss.Keys[0]

		if fileExistsDistinct(src, dst) {
			ops = append(ops, Op{Kind: OpRemove, Dst: src, Key: key,
				Note: "superseded by canonical " + iss.Canonical})
			continue
		}
		ops = append(ops, Op{Kind: OpRename, Src: src, Dst: dst, Key: key})
	}
	return ops
}

// phaseMissingFiles fills gender gaps. A slot with exactly one gendered
// file and no base gets a base synthesized from it. A slot holding a base
// plus one gender is already complete: the absent gender resolves to the
// base, so proposing a clone there would only churn on the previous pass's
// own output. Slots with no plausible source at all are flagged as
// genuinely missing.
func (r *Reconciler) phaseMissingFiles(set *catalog.Set) []Op {
	var ops []Op
	for _, slot := range slots(set, r.rng) {
		_, hasBase := set.Entries[slot.key]
		male, hasMale := set.Entries[slot.key.WithGender(catalog.GenderMale)]
		female, hasFemale := set.Entries[slot.key.WithGender(catalog.GenderFemale)]

		switch {
		case !hasBase && hasMale != hasFemale:
			// Exactly one gender and no base: the other gender has no
			// fallback, so a base is synthesized. Both genders present
			// needs no base at all (cleanup would remove it again).
			src := male
			if !hasMale {
				src = female
			}
			ops = append(ops, Op{
				Kind: OpCreateBase,
				Src:  src.Path,
				Dst:  filepath.Join(set.Dir, slot.key.Name(src.Ext)),
				Key:  slot.key,
				Note: "base synthesized from " + src.Name,
			})
		case !hasBase && !hasMale && !hasFemale && slot.key.Dir == catalog.DirFront:
			// A front slot with nothing at all. A "normal"-direction file
			// is the only near-match rename candidate.
			if norm, ok := set.Entries[slot.key.WithDir(catalog.DirNormal)]; ok {
				ops = append(ops, Op{
					Kind: OpRename,
					Src:  norm.Path,
					Dst:  filepath.Join(set.Dir, slot.key.Name(norm.Ext)),
					Key:  slot.key,
					Note: "near-match rename from " + norm.Name,
				})
			} else if slot.anyPresent {
				r.Issues = append(r.Issues, catalog.Issue{
					Kind:   catalog.IssueMissing,
					Keys:   []catalog.Key{slot.key},
					Detail: "no plausible source among paired keys",
				})
			}
		}
	}
	return ops
}

// phaseBackCompletion verifies every front key has its paired back key.
// A missing gendered back is cloned from the back base when one exists,
// since that file already carries the back-facing layout; otherwise the
// front file is the source. These clones are intentionally lower priority
// than renames so they never clobber a file a rename also targets.
func (r *Reconciler) phaseBackCompletion(set *catalog.Set) []Op {
	var ops []Op
	for _, key := range set.Keys() {
		if key.Dir != catalog.DirFront || !r.rng.Contains(key.Number) {
			continue
		}
		back := key.WithDir(catalog.DirBack)
		if _, ok := set.Entries[back]; ok {
			continue
		}
		if key.Gender != catalog.GenderNone {
			if base, ok := set.Entries[back.WithGender(catalog.GenderNone)]; ok {
				ops = append(ops, Op{
					Kind: OpCreateVariant,
					Src:  base.Path,
					Dst:  filepath.Join(set.Dir, back.Name(base.Ext)),
					Key:  back,
					Note: "gendered back cloned from back base",
				})
				continue
			}
		}
		front := set.Entries[key]
		ops = append(ops, Op{
			Kind: OpClone,
			Src:  front.Path,
			Dst:  filepath.Join(set.Dir, back.Name(front.Ext)),
			Key:  back,
			Note: "back completed from front",
		})
	}
	return ops
}

// phaseCleanup removes files made redundant by the earlier phases: a base
// file superseded by a full set of explicit gendered variants, and files
// outside the active number range when one is configured.
func (r *Reconciler) phaseCleanup(set *catalog.Set) []Op {
	var ops []Op
	for _, key := range set.Keys() {
		entry := set.Entries[key]
		if !r.rng.Contains(key.Number) {
			ops = append(ops, Op{Kind: OpRemove, Dst: entry.Path, Key: key, Note: "outside active number range"})
			continue
		}
		if key.Gender != catalog.GenderNone {
			continue
		}
		_, hasMale := set.Entries[key.WithGender(catalog.GenderMale)]
		_, hasFemale := set.Entries[key.WithGender(catalog.GenderFemale)]
		if hasMale && hasFemale {
			ops = append(ops, Op{Kind: OpRemove, Dst: entry.Path, Key: key, Note: "superseded by gendered variants"})
		}
	}
	return ops
}

// phaseDedup hashes every surviving asset and keeps one canonical survivor
// per content group: lower number first, then front before back, then
// normal before shiny. The others are recorded as duplicates so the
// compositor reuses the canonical result instead of reprocessing them.
func (r *Reconciler) phaseDedup(ctx context.Context, set *catalog.Set, report *Report) {
	groups := make(map[catalog.ContentSignature][]catalog.Key)
	for _, key := range set.Keys() {
		if ctx.Err() != nil {
			return
		}
		s, err := r.cache.Get(set.Entries[key].Path)
		if err != nil {
			glog.Warningf("dedup skipping %v: %v", key, err)
			continue
		}
		sig := catalog.Signature(s)
		groups[sig] = append(groups[sig], key)
	}

	for _, keys := range groups {
		if len(keys) < 2 {
			continue
		}
		canonical := keys[0]
		for _, k := range keys[1:] {
			if catalog.Less(k, canonical) {
				canonical = k
			}
		}
		for _, k := range keys {
			if k == canonical {
				continue
			}
			report.Duplicates[k] = canonical
			r.Issues = append(r.Issues, catalog.Issue{
				Kind:   catalog.IssueDuplicateContent,
				Keys:   []catalog.Key{k, canonical},
				Detail: "content identical to " + canonical.String(),
			})
		}
	}
}

type slot struct {
	key        catalog.Key // gender-neutral slot key
	anyPresent bool        // any file at all for this number
}

// slots enumerates the gender-neutral slot keys worth inspecting: every
// (number, direction, variant) combination observed in the collection,
// restricted to the active range, plus the front counterpart of any
// normal-direction file.
func slots(set *catalog.Set, rng NumberRange) []slot {
	seen := make(map[catalog.Key]bool)
	numbers := make(map[int]bool)
	var out []slot

	add := func(k catalog.Key) {
		k = k.WithGender(catalog.GenderNone)
		if seen[k] || !rng.Contains(k.Number) {
			return
		}
		seen[k] = true
		out = append(out, slot{key: k})
	}

	for key := range set.Entries {
		numbers[key.Number] = true
		add(key)
		if key.Dir == catalog.DirNormal {
			add(key.WithDir(catalog.DirFront))
		}
	}
	for i := range out {
		out[i].anyPresent = numbers[out[i].key.Number]
	}
	return out
}

func fileExistsDistinct(src, dst string) bool {
	if filepath.Base(src) == filepath.Base(dst) {
		return false
	}
	// Case-only difference: on a case-insensitive file system dst resolves
	// to src itself, so a stat proves nothing. Treat it as a rename.
	if strings.EqualFold(filepath.Base(src), filepath.Base(dst)) {
		return false
	}
	_, err := os.Stat(dst)
	return err == nil
}
