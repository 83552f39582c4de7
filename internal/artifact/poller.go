// Package artifact detects files the browser finishes downloading.
//
// The browser gives no completion signal at this layer, so the filesystem is
// the only observable: a download is complete once a new file with the final
// extension appears (in-progress downloads carry a temporary extension and
// are renamed when done).
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/roelfdiedericks/formclaw/internal/dom"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
	"github.com/roelfdiedericks/formclaw/internal/poll"
)

const (
	// DefaultInterval is the delay between directory scans.
	DefaultInterval = 200 * time.Millisecond
	// MaxInterval caps Poller.Interval.
	MaxInterval = time.Second
)

// partialSuffixes mark in-progress downloads. They never qualify.
var partialSuffixes = []string{".crdownload", ".part", ".partial", ".download", ".tmp"}

// Snapshot is the set of entry names in a directory at one point in time.
type Snapshot map[string]struct{}

// TakeSnapshot lists dir. A missing or unreadable directory is an empty snapshot.
func TakeSnapshot(dir string) Snapshot {
	snap := Snapshot{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			L_debug("artifact: snapshot read failed, treating as empty", "dir", dir, "error", err)
		}
		return snap
	}
	for _, e := range entries {
		snap[e.Name()] = struct{}{}
	}
	return snap
}

// Has reports whether name was present.
func (s Snapshot) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Predicate decides whether a new file name qualifies.
type Predicate func(name string) bool

// HasSuffix matches names ending in ext, ignoring case.
func HasSuffix(ext string) Predicate {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return func(name string) bool {
		return strings.HasSuffix(strings.ToLower(name), ext)
	}
}

// IsPartial reports whether name carries an in-progress download extension.
func IsPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// Poller waits for a new qualifying file to land in a directory.
type Poller struct {
	// Interval between scans; zero means DefaultInterval, values above MaxInterval are capped.
	Interval time.Duration
	// Match selects qualifying names. Partial downloads are rejected before Match runs.
	Match Predicate
	// Watch enables fsnotify wake-ups so a scan runs as soon as the directory changes.
	Watch bool
}

// NewPoller returns a poller for files ending in ext.
func NewPoller(ext string) *Poller {
	return &Poller{Interval: DefaultInterval, Match: HasSuffix(ext), Watch: true}
}

func (p *Poller) interval() time.Duration {
	switch {
	case p.Interval <= 0:
		return DefaultInterval
	case p.Interval > MaxInterval:
		return MaxInterval
	default:
		return p.Interval
	}
}

// NewFiles returns the qualifying names in dir that are not in before, sorted.
func (p *Poller) NewFiles(dir string, before Snapshot) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		// The directory may not exist yet; the caller keeps polling.
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || before.Has(name) || IsPartial(name) {
			continue
		}
		if p.Match != nil && !p.Match(name) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AwaitNewFile polls dir until a qualifying file absent from before appears,
// and returns its path. When several qualify at once the lexicographically
// first is returned. After timeout it returns an error wrapping dom.ErrNotFound.
func (p *Poller) AwaitNewFile(ctx context.Context, dir string, before Snapshot, timeout time.Duration) (string, error) {
	start := time.Now()

	var wake <-chan struct{}
	if p.Watch {
		ch, stop := watchDir(dir)
		defer stop()
		wake = ch
	}

	var found string
	err := poll.UntilWake(ctx, p.interval(), timeout, wake, func() (bool, error) {
		names := p.NewFiles(dir, before)
		if len(names) == 0 {
			return false, nil
		}
		found = filepath.Join(dir, names[0])
		if len(names) > 1 {
			L_debug("artifact: several new files, taking the first", "files", names)
		}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			return "", fmt.Errorf("no new file in %s after %v: %w", dir, timeout, dom.ErrNotFound)
		}
		return "", err
	}

	L_elapsed(start, "artifact: download detected", "path", found)
	return found, nil
}

// watchDir forwards fsnotify events for dir as wake-ups. If the watcher cannot
// be set up the returned channel is nil and the caller falls back to plain polling.
func watchDir(dir string) (<-chan struct{}, func()) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		L_debug("artifact: fsnotify unavailable, polling only", "error", err)
		return nil, func() {}
	}
	if err := w.Add(dir); err != nil {
		L_debug("artifact: cannot watch directory, polling only", "dir", dir, "error", err)
		w.Close()
		return nil, func() {}
	}

	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) == 0 {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				L_trace("artifact: watcher error", "error", err)
			}
		}
	}()

	return wake, func() {
		close(done)
		w.Close()
	}
}
