package reconcile

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	"badc0de.net/pkg/go-bullseye/catalog"
	"badc0de.net/pkg/go-bullseye/imgcache"
	"badc0de.net/pkg/go-bullseye/sprite"
	"badc0de.net/pkg/go-bullseye/ttesting"
)

func writeAsset(t *testing.T, dir, name string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	s := &sprite.Sprite{Frames: []sprite.Frame{{Image: img, DelayCS: 10}}}
	if err := sprite.EncodeFile(filepath.Join(dir, name), s); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func run(t *testing.T, dir string, rng NumberRange) *Report {
	t.Helper()
	r := New(dir, imgcache.New(0), rng)
	report, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to reconcile: %v", err)
	}
	return report
}

func assertExists(t *testing.T, dir, name string, want bool) {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, name))
	if got := err == nil; got != want {
		t.Errorf("exists(%s) = %v; want %v", name, got, want)
	}
}

func TestCaseVariantResolvesToCanonical(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "025-FRONT-N.GIF", color.RGBA{255, 0, 0, 255})
	writeAsset(t, dir, "025-back-n.gif", color.RGBA{0, 255, 0, 255})

	report := run(t, dir, NumberRange{})
	if report.OpsApplied == 0 {
		t.Fatalf("first pass applied no operations")
	}
	assertExists(t, dir, "025-front-n.gif", true)
	assertExists(t, dir, "025-FRONT-N.GIF", false)

	second := run(t, dir, NumberRange{})
	ttesting.AssertEqualInt(t, "ops on second pass", second.OpsApplied, 0)
}

func TestDoubledExtensionStrayCopyRemoved(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "025-front-n.gif", color.RGBA{255, 0, 0, 255})
	writeAsset(t, dir, "025-front-n.gif.gif", color.RGBA{255, 0, 0, 255})
	writeAsset(t, dir, "025-back-n.gif", color.RGBA{0, 255, 0, 255})

	run(t, dir, NumberRange{})
	assertExists(t, dir, "025-front-n.gif", true)
	assertExists(t, dir, "025-front-n.gif.gif", false)
}

func TestBackCompletion(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "007-front-n.gif", color.RGBA{100, 50, 0, 255})

	report := run(t, dir, NumberRange{})
	assertExists(t, dir, "007-back-n.gif", true)

	// The cloned back is content-identical to the front; the dedup phase
	// records it against the canonical front key instead of letting the
	// compositor process it twice.
	front := catalog.Key{Number: 7, Dir: catalog.DirFront}
	back := front.WithDir(catalog.DirBack)
	if got := report.Duplicates[back]; got != front {
		t.Errorf("duplicate canonical for %v = %v; want %v", back, got, front)
	}
}

func TestBaseWithLoneGenderIsStable(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "010-front-n.gif", color.RGBA{10, 10, 10, 255})
	writeAsset(t, dir, "010-front-n-m.gif", color.RGBA{200, 10, 10, 255})

	run(t, dir, NumberRange{})

	// The absent female resolves to the base; cloning it would only give
	// cleanup a reason to retire the base on the next run.
	assertExists(t, dir, "010-front-n.gif", true)
	assertExists(t, dir, "010-front-n-m.gif", true)
	assertExists(t, dir, "010-front-n-f.gif", false)
	assertExists(t, dir, "010-back-n.gif", true)
	assertExists(t, dir, "010-back-n-m.gif", true)

	second := run(t, dir, NumberRange{})
	ttesting.AssertEqualInt(t, "ops on second pass", second.OpsApplied, 0)
}

func TestBaseRetiredWhenBothGendersExplicit(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "012-front-n.gif", color.RGBA{12, 12, 12, 255})
	writeAsset(t, dir, "012-front-n-m.gif", color.RGBA{200, 12, 12, 255})
	writeAsset(t, dir, "012-front-n-f.gif", color.RGBA{12, 12, 200, 255})

	run(t, dir, NumberRange{})

	assertExists(t, dir, "012-front-n.gif", false)
	assertExists(t, dir, "012-front-n-m.gif", true)
	assertExists(t, dir, "012-front-n-f.gif", true)

	second := run(t, dir, NumberRange{})
	ttesting.AssertEqualInt(t, "ops on second pass", second.OpsApplied, 0)
}

func TestBaseSynthesizedFromLoneGender(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "011-front-n-f.gif", color.RGBA{0, 0, 200, 255})

	report := run(t, dir, NumberRange{})
	if report.OpsApplied == 0 {
		t.Fatalf("first pass applied no operations")
	}

	assertExists(t, dir, "011-front-n.gif", true)
	assertExists(t, dir, "011-front-n-f.gif", true)
	assertExists(t, dir, "011-back-n.gif", true)
	assertExists(t, dir, "011-back-n-f.gif", true)

	// The synthesized base must not feed further repairs: a rerun over the
	// pass's own output is a no-op.
	second := run(t, dir, NumberRange{})
	ttesting.AssertEqualInt(t, "ops on second pass", second.OpsApplied, 0)
	assertExists(t, dir, "011-front-n.gif", true)
	assertExists(t, dir, "011-front-n-f.gif", true)
}

func TestBackVariantClonedFromBackBase(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "014-front-n.gif", color.RGBA{14, 14, 14, 255})
	writeAsset(t, dir, "014-front-n-f.gif", color.RGBA{14, 14, 200, 255})
	writeAsset(t, dir, "014-back-n.gif", color.RGBA{140, 14, 14, 255})

	run(t, dir, NumberRange{})

	assertExists(t, dir, "014-back-n-f.gif", true)
	got, err := sprite.DecodeFile(filepath.Join(dir, "014-back-n-f.gif"))
	if err != nil {
		t.Fatalf("failed to decode cloned back: %v", err)
	}
	want, err := sprite.DecodeFile(filepath.Join(dir, "014-back-n.gif"))
	if err != nil {
		t.Fatalf("failed to decode back base: %v", err)
	}
	if !sprite.Equal(got, want) {
		t.Errorf("gendered back was not cloned from the back base")
	}

	second := run(t, dir, NumberRange{})
	ttesting.AssertEqualInt(t, "ops on second pass", second.OpsApplied, 0)
}

func TestNormalDirectionRenamedToFront(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "030-normal-n.gif", color.RGBA{30, 60, 90, 255})

	run(t, dir, NumberRange{})

	assertExists(t, dir, "030-front-n.gif", true)
	assertExists(t, dir, "030-normal-n.gif", false)
	assertExists(t, dir, "030-back-n.gif", true)
}

func TestNumberRangeCleanup(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "001-front-n.gif", color.RGBA{1, 2, 3, 255})
	writeAsset(t, dir, "001-back-n.gif", color.RGBA{4, 5, 6, 255})
	writeAsset(t, dir, "200-front-n.gif", color.RGBA{7, 8, 9, 255})
	writeAsset(t, dir, "200-back-n.gif", color.RGBA{10, 11, 12, 255})

	report := run(t, dir, NumberRange{Min: 1, Max: 151})

	assertExists(t, dir, "001-front-n.gif", true)
	assertExists(t, dir, "200-front-n.gif", false)
	assertExists(t, dir, "200-back-n.gif", false)
	ttesting.AssertEqualInt(t, "surviving assets", len(report.Set.Entries), 2)
}

func TestDedupKeepsCanonicalSurvivor(t *testing.T) {
	dir := t.TempDir()
	shared := color.RGBA{123, 45, 67, 255}
	writeAsset(t, dir, "001-front-n.gif", shared)
	writeAsset(t, dir, "002-front-n.gif", shared)
	writeAsset(t, dir, "001-back-n.gif", color.RGBA{1, 0, 0, 255})
	writeAsset(t, dir, "002-back-n.gif", color.RGBA{2, 0, 0, 255})

	report := run(t, dir, NumberRange{})

	first := catalog.Key{Number: 1, Dir: catalog.DirFront}
	second := catalog.Key{Number: 2, Dir: catalog.DirFront}
	if got := report.Duplicates[second]; got != first {
		t.Errorf("duplicate canonical for %v = %v; want %v", second, got, first)
	}
	if _, ok := report.Duplicates[first]; ok {
		t.Errorf("canonical key %v recorded as a duplicate of itself", first)
	}
}

func TestResolveConflictsDropsLowerPriority(t *testing.T) {
	key := catalog.Key{Number: 1, Dir: catalog.DirBack}
	ops := []Op{
		{Kind: OpClone, Src: "a", Dst: "x", Key: key},
		{Kind: OpRename, Src: "b", Dst: "x", Key: key},
	}
	var issues []catalog.Issue
	kept := resolveConflicts(ops, &issues)

	ttesting.AssertEqualInt(t, "kept operations", len(kept), 1)
	if kept[0].Kind != OpRename {
		t.Errorf("surviving operation = %v; want rename", kept[0].Kind)
	}
	ttesting.AssertEqualInt(t, "conflict issues", len(issues), 1)
	if issues[0].Kind != catalog.IssueConflict {
		t.Errorf("issue kind = %v; want conflict", issues[0].Kind)
	}
}

func TestRetryIORecoversFromTransientFailure(t *testing.T) {
	defer func(d time.Duration) { retryDelay = d }(retryDelay)
	retryDelay = time.Millisecond

	calls := 0
	err := RetryIO("rename", "x", func() error {
		calls++
		if calls < 2 {
			return errors.New("file busy")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed after transient error: %v", err)
	}
	ttesting.AssertEqualInt(t, "attempts", calls, 2)
}

func TestRetryIOExhaustion(t *testing.T) {
	defer func(d time.Duration) { retryDelay = d }(retryDelay)
	retryDelay = time.Millisecond

	err := RetryIO("remove", "x", func() error { return errors.New("locked") })
	var te *TransientIOError
	if !errors.As(err, &te) {
		t.Fatalf("got %v; want *TransientIOError", err)
	}
	if te.Op != "remove" {
		t.Errorf("op = %q; want %q", te.Op, "remove")
	}
}
