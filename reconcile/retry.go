package reconcile

import (
	"fmt"
	"time"

	"github.com/golang/glog"
)

// TransientIOError reports a file operation that kept failing after the
// retry budget was exhausted (typically a lock held by another process, or
// a permission hiccup). It is downgraded to a per-asset failure; the run
// continues.
type TransientIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("%s %s kept failing: %v", e.Op, e.Path, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// The file system is shared with the game client and file managers, so a
// failed rename or write is retried before giving up.
var (
	retryAttempts = 3
	retryDelay    = time.Second
)

// RetryIO runs fn up to three times, a second apart. After exhaustion the
// last error comes back wrapped in *TransientIOError.
func RetryIO(op, path string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < retryAttempts {
			glog.Warningf("%s %s failed (attempt %d of %d), retrying: %v", op, path, attempt, retryAttempts, err)
			time.Sleep(retryDelay)
		}
	}
	return &TransientIOError{Op: op, Path: path, Err: err}
}
