// Package watch re-runs a filter whenever its input changes.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/filterline/internal/debug"
)

const DefaultDebounce = 300 * time.Millisecond

// Trigger is called with the changed paths once a burst of events settles.
// Calls never overlap; ctx is cancelled when the watcher stops.
type Trigger func(ctx context.Context, changed []string) error

// Watcher monitors a file, or a directory tree, and calls its trigger after
// changes. A single file is watched through its parent directory so editors
// that save by rename keep being noticed.
type Watcher struct {
	fsw      *fsnotify.Watcher
	target   string
	isDir    bool
	globs    []string
	ignore   []string
	debounce time.Duration
	trigger  Trigger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.RWMutex
	stats   Stats
}

// Stats describes watcher activity
type Stats struct {
	EventsSeen    int64
	Runs          int64
	Errors        int64
	LastRun       time.Time
	LastError     error
	WatchedDirs   int
	IsActive      bool
	PendingEvents int
}

// New creates a watcher for target. globs restrict which files under a
// directory target count as changes; they are ignored for a file target.
// Changes at or below any ignore path never trigger, so the trigger's own
// output and cache can live inside the watched tree.
func New(target string, debounce time.Duration, globs, ignore []string, trigger Trigger) (*Watcher, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, err
	}
	skip := make([]string, 0, len(ignore))
	for _, p := range ignore {
		if p == "" {
			continue
		}
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		skip = append(skip, a)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	for _, g := range globs {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid glob pattern %q", g)
		}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		fsw:      fsw,
		target:   abs,
		isDir:    info.IsDir(),
		globs:    globs,
		ignore:   skip,
		debounce: debounce,
		trigger:  trigger,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start adds the watches and begins processing events
func (w *Watcher) Start() error {
	debug.LogWatch("Starting watcher for %s\n", w.target)

	var err error
	if w.isDir {
		err = w.addWatches(w.target)
	} else {
		err = w.addWatch(filepath.Dir(w.target))
	}
	if err != nil {
		return fmt.Errorf("failed to add watches for %s: %w", w.target, err)
	}

	w.setActive(true)
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop ends watching and waits for any running trigger to return
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	w.setActive(false)
	debug.LogWatch("Watcher for %s stopped\n", w.target)
	return err
}

func (w *Watcher) addWatch(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.statsMu.Lock()
	w.stats.WatchedDirs++
	w.statsMu.Unlock()
	return nil
}

// addWatches recursively watches every directory under root
func (w *Watcher) addWatches(root string) error {
	visited := make(map[string]bool)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if err := w.addWatch(path); err != nil {
			debug.LogWatch("Warning: failed to add watch for %s: %v\n", path, err)
		}
		return nil
	})
}

// relevant reports whether a change at name should trigger a run
func (w *Watcher) relevant(name string) bool {
	if w.ignored(name) {
		return false
	}
	if !w.isDir {
		return name == w.target
	}
	if len(w.globs) == 0 {
		return true
	}
	rel, err := filepath.Rel(w.target, name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	included, hasPositive := false, false
	for _, g := range w.globs {
		negate := strings.HasPrefix(g, "!")
		if !negate {
			hasPositive = true
		}
		if !globMatch(strings.TrimPrefix(g, "!"), rel) {
			continue
		}
		if negate {
			return false
		}
		included = true
	}
	return included || !hasPositive
}

func (w *Watcher) ignored(name string) bool {
	for _, p := range w.ignore {
		if name == p || strings.HasPrefix(name, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// globMatch matches g against rel, and a slash-free g against the base name
func globMatch(g, rel string) bool {
	if ok, _ := doublestar.Match(g, rel); ok {
		return true
	}
	if !strings.Contains(g, "/") {
		ok, _ := doublestar.Match(g, path.Base(rel))
		return ok
	}
	return false
}

// processEvents collects events until the debounce window passes quietly,
// then runs the trigger on the collected paths
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.handleEvent(event) {
				pending[event.Name] = true
				w.setPending(len(pending))
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			debug.LogWatch("watcher error: %v\n", err)
			w.recordError(err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			w.setPending(0)
			w.run(changed)
		}
	}
}

// handleEvent adds watches for new directories and reports whether the
// event is a change worth re-filtering for
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	debug.LogWatch("event %v for %s\n", event.Op, event.Name)
	w.statsMu.Lock()
	w.stats.EventsSeen++
	w.statsMu.Unlock()

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	if w.isDir && event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addWatches(event.Name); err != nil {
				debug.LogWatch("Warning: failed to watch new directory %s: %v\n", event.Name, err)
			}
			return false
		}
	}
	return w.relevant(event.Name)
}

func (w *Watcher) run(changed []string) {
	debug.LogWatch("re-running for %d changed path(s)\n", len(changed))
	err := w.trigger(w.ctx, changed)

	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.Runs++
	w.stats.LastRun = time.Now()
	if err != nil {
		w.stats.Errors++
		w.stats.LastError = err
	}
}

func (w *Watcher) recordError(err error) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.Errors++
	w.stats.LastError = err
}

func (w *Watcher) setActive(active bool) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.IsActive = active
}

func (w *Watcher) setPending(n int) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.PendingEvents = n
}

// Stats returns a snapshot of watcher activity
func (w *Watcher) Stats() Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return w.stats
}
