// Package lifecycle tracks the ephemeral files a compile produces and removes
// each of them exactly once when the compile ends, whatever its outcome.
package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrReleased is returned when tracking after ReleaseAll has run
var ErrReleased = errors.New("tracker already released")

// Tracker owns one compile's work directory and every path created in it
type Tracker struct {
	log   *zap.SugaredLogger
	runID string
	dir   string

	mu       sync.Mutex
	paths    []string
	seen     map[string]struct{}
	released bool
}

// ReleaseReport lists what ReleaseAll removed and what it could not
type ReleaseReport struct {
	Removed []string
	Failed  map[string]error
}

// New creates a unique work directory under root and tracks it first, so it
// is removed last.
func New(root string, logger *zap.Logger) (*Tracker, error) {
	runID := uuid.NewString()[:8]
	dir := filepath.Join(root, "run_"+runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	t := &Tracker{
		log:   logger.Named("lifecycle").Sugar(),
		runID: runID,
		dir:   dir,
		seen:  make(map[string]struct{}),
	}
	if err := t.Track(dir); err != nil {
		return nil, err
	}
	return t, nil
}

// RunID identifies the compile this tracker belongs to
func (t *Tracker) RunID() string { return t.runID }

// Dir is the compile's private work directory
func (t *Tracker) Dir() string { return t.dir }

// Track registers a path for removal. Tracking the same path twice is a no-op.
func (t *Tracker) Track(path string) error {
	path = filepath.Clean(path)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return ErrReleased
	}
	if _, ok := t.seen[path]; ok {
		return nil
	}
	t.seen[path] = struct{}{}
	t.paths = append(t.paths, path)
	return nil
}

// NewFile reserves a unique path in the work directory and tracks it before
// anything is written there.
func (t *Tracker) NewFile(prefix, ext string) (string, error) {
	path := filepath.Join(t.dir, fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), ext))
	if err := t.Track(path); err != nil {
		return "", err
	}
	return path, nil
}

// Paths returns a snapshot of the tracked paths in tracking order
func (t *Tracker) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.paths))
	copy(out, t.paths)
	return out
}

// ReleaseAll removes every tracked path in reverse tracking order. Paths that
// no longer exist are skipped silently; removal failures are logged and
// reported but never returned as an error. Only the first call does work.
func (t *Tracker) ReleaseAll() ReleaseReport {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return ReleaseReport{}
	}
	t.released = true
	paths := t.paths
	t.mu.Unlock()

	report := ReleaseReport{Failed: make(map[string]error)}
	for i := len(paths) - 1; i >= 0; i-- {
		path := paths[i]
		var err error
		if path == t.dir {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		switch {
		case err == nil:
			report.Removed = append(report.Removed, path)
		case errors.Is(err, os.ErrNotExist):
		default:
			report.Failed[path] = err
			t.log.Warnf("could not remove %s: %v", path, err)
		}
	}
	t.log.Debugf("released %d path(s), %d failure(s)", len(report.Removed), len(report.Failed))
	return report
}
