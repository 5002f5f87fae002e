package reconcile

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/glog"

	"badc0de.net/pkg/go-bullseye/catalog"
)

// OpKind identifies a proposed file operation. The order is the conflict
// priority: rename beats cleanup-remove beats clone beats create-variant
// beats create-base.
type OpKind int

const (
	OpRename OpKind = iota
	OpRemove
	OpClone
	OpCreateVariant
	OpCreateBase
)

func (k OpKind) String() string {
	switch k {
	case OpRename:
		return "rename"
	case OpRemove:
		return "remove"
	case OpClone:
		return "clone"
	case OpCreateVariant:
		return "create-variant"
	default:
		return "create-base"
	}
}

// Op is one proposed repair. Src is empty for removals' sources; Dst is
// the path the operation produces or deletes.
type Op struct {
	Kind OpKind
	Src  string
	Dst  string
	Key  catalog.Key
	Note string
}

// resolveConflicts drops every operation whose destination path is already
// claimed by a higher-priority operation, so two repairs never race on the
// same file. Dropped operations surface as non-fatal conflict issues.
func resolveConflicts(ops []Op, issues *[]catalog.Issue) []Op {
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Kind != ops[j].Kind {
			return ops[i].Kind < ops[j].Kind
		}
		return ops[i].Dst < ops[j].Dst
	})

	claimed := make(map[string]Op, len(ops))
	kept := ops[:0]
	for _, op := range ops {
		if winner, ok := claimed[op.Dst]; ok {
			glog.V(1).Infof("dropping %s %s: destination claimed by %s", op.Kind, op.Dst, winner.Kind)
			*issues = append(*issues, catalog.Issue{
				Kind:   catalog.IssueConflict,
				Keys:   []catalog.Key{op.Key},
				Name:   filepath.Base(op.Dst),
				Detail: op.Kind.String() + " dropped; " + winner.Kind.String() + " targets the same path",
			})
			continue
		}
		claimed[op.Dst] = op
		kept = append(kept, op)
	}
	return kept
}

// apply executes one operation under the retry policy. Exhausted retries
// are recorded and the pass continues with the remaining operations.
func (r *Reconciler) apply(op Op) bool {
	var err error
	switch op.Kind {
	case OpRename:
		err = RetryIO("rename", op.Dst, func() error { return renameFile(op.Src, op.Dst) })
	case OpRemove:
		err = RetryIO("remove", op.Dst, func() error { return os.Remove(op.Dst) })
	default:
		err = RetryIO(op.Kind.String(), op.Dst, func() error { return copyFile(op.Src, op.Dst) })
	}

	r.cache.Invalidate(op.Src)
	r.cache.Invalidate(op.Dst)

	if err != nil {
		glog.Errorf("%v", err)
		r.Issues = append(r.Issues, catalog.Issue{
			Kind:   catalog.IssueIOFailure,
			Keys:   []catalog.Key{op.Key},
			Name:   filepath.Base(op.Dst),
			Detail: err.Error(),
		})
		return false
	}
	glog.Infof("%s %s -> %s", op.Kind, filepath.Base(op.Src), filepath.Base(op.Dst))
	return true
}

// renameFile renames src to dst. A case-only rename goes through a
// temporary name so it also works on case-insensitive file systems.
func renameFile(src, dst string) error {
	if src == dst {
		return nil
	}
	if strings.EqualFold(src, dst) {
		tmp := dst + ".casefix~"
		if err := os.Rename(src, tmp); err != nil {
			return err
		}
		return os.Rename(tmp, dst)
	}
	return os.Rename(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
