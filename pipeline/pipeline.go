// Package pipeline runs a whole job: reconcile the replacement
// collection, separate badge overlays, composite every asset and write
// the output collection.
//
// Compositing fans out over a bounded worker group; every asset is an
// independent unit of work, so one bad file never stops the run and
// cancellation is observed at asset boundaries. Events toward the
// interface layer are delivered best-effort: a slow or absent consumer
// never blocks the engine.
package pipeline

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"badc0de.net/pkg/go-bullseye/catalog"
	"badc0de.net/pkg/go-bullseye/components"
	"badc0de.net/pkg/go-bullseye/compositor"
	"badc0de.net/pkg/go-bullseye/config"
	"badc0de.net/pkg/go-bullseye/imgcache"
	"badc0de.net/pkg/go-bullseye/reconcile"
	"badc0de.net/pkg/go-bullseye/sprite"
)

// Event is a progress notification toward the interface layer. One of
// PhaseProgress, AssetDone or Summary.
type Event interface {
	event()
}

// PhaseProgress reports progress through a named phase.
type PhaseProgress struct {
	Phase string
	Done  int
	Total int
}

// AssetDone reports one finished asset and the file it produced, for
// optional live preview.
type AssetDone struct {
	Key  catalog.Key
	Path string
}

// Summary is the terminal event of a run.
type Summary struct {
	Composited int
	Skipped    int
	Duplicates int
	// Failed groups failure counts by error kind ("parse", "decode",
	// "io", "other").
	Failed map[string]int
	Issues []catalog.Issue
}

func (PhaseProgress) event() {}
func (AssetDone) event()     {}
func (Summary) event()       {}

// Failures returns the total failure count.
func (s Summary) Failures() int {
	n := 0
	for _, c := range s.Failed {
		n += c
	}
	return n
}

// Run executes the full pipeline. events may be nil; when non-nil, events
// that cannot be delivered immediately are dropped, not queued. The
// returned Summary is always valid, also on a cancelled run, and reflects
// the work completed so far.
func Run(ctx context.Context, cfg config.Config, events chan<- Event) (Summary, error) {
	r := &run{
		cfg:    cfg,
		cache:  imgcache.New(0),
		events: events,
		summary: Summary{
			Failed: make(map[string]int),
		},
	}
	err := r.run(ctx)
	r.summary.Issues = r.issues
	r.emit(r.summary)
	return r.summary, err
}

type run struct {
	cfg    config.Config
	cache  *imgcache.Cache
	events chan<- Event

	mu      sync.Mutex
	summary Summary
	issues  []catalog.Issue

	badges  *catalog.Set
	sprites *catalog.Set
	dups    map[catalog.Key]catalog.Key

	backOffsets map[int]image.Point
}

func (r *run) emit(e Event) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- e:
	default:
		glog.V(1).Infof("dropping event %T: consumer not keeping up", e)
	}
}

func (r *run) run(ctx context.Context) error {
	var err error
	if r.badges, err = catalog.Scan(r.cfg.BadgeDir); err != nil {
		return err
	}

	rng := reconcile.NumberRange{Min: r.cfg.Range.Min, Max: r.cfg.Range.Max}
	rec := reconcile.New(r.cfg.SpriteDir, r.cache, rng)
	report, err := rec.Run(ctx, func(phase string, done, total int) {
		r.emit(PhaseProgress{Phase: phase, Done: done, Total: total})
	})
	if err != nil {
		return err
	}
	r.sprites = report.Set
	r.dups = report.Duplicates
	r.issues = append(r.issues, rec.Issues...)

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return errors.Wrapf(err, "could not create output collection %s", r.cfg.OutputDir)
	}

	r.deriveBackOffsets(ctx)
	return r.composite(ctx)
}

// deriveBackOffsets computes the horizontal back-sprite offset once per
// number, from the replacement collection's own front sprite. Every
// variant of the number reuses the same offset so fronts and backs stay
// aligned.
func (r *run) deriveBackOffsets(ctx context.Context) {
	r.backOffsets = make(map[int]image.Point)
	for _, key := range r.sprites.Keys() {
		if ctx.Err() != nil {
			return
		}
		if key.Dir != catalog.DirFront {
			continue
		}
		if _, ok := r.backOffsets[key.Number]; ok {
			continue
		}
		s, err := r.cache.Get(r.sprites.Entries[key].Path)
		if err != nil {
			continue // the asset itself will report the failure
		}
		r.backOffsets[key.Number] = compositor.DeriveBackOffset(s)
	}
}

func (r *run) composite(ctx context.Context) error {
	keys := r.sprites.Keys()
	var work []catalog.Key
	for _, key := range keys {
		if _, dup := r.dups[key]; !dup {
			work = append(work, key)
		}
	}
	total := len(work)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	done := 0
	for _, key := range work {
		key := key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outPath, err := r.compositeOne(key)

			r.mu.Lock()
			if err != nil {
				r.recordFailure(key, err)
			}
			done++
			d := done
			r.mu.Unlock()

			if err == nil {
				r.emit(AssetDone{Key: key, Path: outPath})
			}
			r.emit(PhaseProgress{Phase: "compositing", Done: d, Total: total})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Duplicates reuse the canonical result instead of recompositing.
	for dup, canonical := range r.dups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.cloneOutput(dup, canonical); err != nil {
			r.mu.Lock()
			r.recordFailure(dup, err)
			r.mu.Unlock()
			continue
		}
		r.mu.Lock()
		r.summary.Duplicates++
		r.mu.Unlock()
	}
	return nil
}

// compositeOne processes a single replacement asset into the output
// collection and returns the produced path.
func (r *run) compositeOne(key catalog.Key) (string, error) {
	entry := r.sprites.Entries[key]
	repl, err := r.cache.Get(entry.Path)
	if err != nil {
		return "", err
	}
	outPath := filepath.Join(r.cfg.OutputDir, key.Name(entry.Ext))

	badgeEntry, ok := r.badgeFor(key)
	if !ok {
		// No badge source: the replacement passes through on its own
		// canvas, nothing to separate or anchor.
		if err := sprite.EncodeFile(outPath, repl); err != nil {
			return "", err
		}
		r.mu.Lock()
		r.summary.Skipped++
		r.mu.Unlock()
		return outPath, nil
	}

	badge, err := r.cache.Get(badgeEntry.Path)
	if err != nil {
		return "", err
	}
	mask, err := components.Separate(badge, components.Conn8, components.DefaultProfile())
	if err != nil {
		return "", err
	}

	ccfg := compositor.DefaultConfig()
	if r.cfg.DetectionThreshold > 0 {
		ccfg.DetectionThreshold = r.cfg.DetectionThreshold
	}
	var backOffset image.Point
	if key.Dir == catalog.DirBack {
		r.mu.Lock()
		backOffset = r.backOffsets[key.Number]
		r.mu.Unlock()
	}

	out, err := compositor.Composite(repl, badge, mask, ccfg, backOffset)
	if err != nil {
		return "", err
	}
	if err := sprite.EncodeFile(outPath, out); err != nil {
		return "", err
	}
	r.mu.Lock()
	r.summary.Composited++
	r.mu.Unlock()
	return outPath, nil
}

// badgeFor finds the badge asset to take the overlay from: the exact key,
// then the gender-neutral key, then the normal-direction key.
func (r *run) badgeFor(key catalog.Key) (catalog.Entry, bool) {
	for _, k := range []catalog.Key{
		key,
		key.WithGender(catalog.GenderNone),
		key.WithGender(catalog.GenderNone).WithDir(catalog.DirNormal),
	} {
		if e, ok := r.badges.Entries[k]; ok {
			return e, true
		}
	}
	return catalog.Entry{}, false
}

// cloneOutput copies the canonical key's produced file to the duplicate
// key's slot name.
func (r *run) cloneOutput(dup, canonical catalog.Key) error {
	canonEntry, ok := r.sprites.Entries[canonical]
	if !ok {
		return errors.Errorf("duplicate %v has no canonical entry %v", dup, canonical)
	}
	src := filepath.Join(r.cfg.OutputDir, canonical.Name(canonEntry.Ext))
	dst := filepath.Join(r.cfg.OutputDir, dup.Name(canonEntry.Ext))

	body, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "could not reuse canonical output for %v", dup)
	}
	return os.WriteFile(dst, body, 0o644)
}

func (r *run) recordFailure(key catalog.Key, err error) {
	kind := "other"
	var pe *catalog.ParseError
	var da *sprite.DecodeAnomaly
	var te *reconcile.TransientIOError
	switch {
	case errors.As(err, &pe):
		kind = "parse"
	case errors.As(err, &da):
		kind = "decode"
	case errors.As(err, &te), os.IsNotExist(errors.Cause(err)):
		kind = "io"
	}
	glog.Errorf("asset %v failed (%s): %v", key, kind, err)
	r.summary.Failed[kind]++
}
