// Package watch turns filesystem notifications for a resolved scope into the
// tagged event stream consumed by the dispatch loop.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"strudelwatch/internal/logging"
	"strudelwatch/internal/scope"
	"strudelwatch/pkg/fileops"

	"github.com/fsnotify/fsnotify"
)

// Kind tags an Event.
type Kind int

const (
	// Changed reports new content in a file the watcher already reported.
	Changed Kind = iota + 1
	// Added reports an in-scope file seen for the first time.
	Added
	// ScanError carries an error from the underlying observer.
	ScanError
	// ScanReady is sent once, after every file of the initial scope was reported.
	ScanReady
)

func (k Kind) String() string {
	switch k {
	case Changed:
		return "changed"
	case Added:
		return "added"
	case ScanError:
		return "scan-error"
	case ScanReady:
		return "scan-ready"
	default:
		return "unknown"
	}
}

// Event is one observation. Path is absolute for Changed and Added, Err is
// set for ScanError.
type Event struct {
	Kind Kind
	Path string
	Err  error
}

const eventBuffer = 64

// Watcher observes the directories of a scope with fsnotify. Directories
// created while running are watched when the scope reaches into them.
type Watcher struct {
	fs      *fsnotify.Watcher
	matcher *scope.Matcher
	initial []string
	logger  *logging.AppLogger

	events chan Event
	done   chan struct{}

	known     map[string]bool
	started   atomic.Bool
	closeOnce sync.Once
}

// New starts observing the directories res needs. Nothing is emitted until Run.
func New(res *scope.Resolution, logger *logging.AppLogger) (*Watcher, error) {
	if logger == nil {
		logger = logging.GetDefault()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		fs:      fw,
		matcher: res.Matcher,
		initial: res.Files,
		logger:  logger,
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		known:   make(map[string]bool),
	}

	dirs, err := res.Matcher.WatchDirectories()
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		logger.Debug("Watching directory", "dir", res.Matcher.Display(dir))
	}
	return w, nil
}

// Events returns the event stream. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run reports the initial files as Added, sends ScanReady, then translates
// notifications until ctx is done or Close is called. It may be called once.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watcher already running")
	}
	defer close(w.events)

	for _, p := range w.initial {
		w.known[p] = true
		if !w.emit(ctx, Event{Kind: Added, Path: p}) {
			return nil
		}
	}
	if !w.emit(ctx, Event{Kind: ScanReady}) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.handle(ctx, ev) {
				return nil
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if !w.emit(ctx, Event{Kind: ScanError, Err: err}) {
				return nil
			}
		}
	}
}

// Close stops observation. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) bool {
	p := filepath.Clean(ev.Name)
	w.logger.Debug("Filesystem event", "op", ev.Op.String(), "path", w.matcher.Display(p))

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(p)
		if err != nil {
			return true
		}
		if info.IsDir() {
			return w.descend(ctx, p)
		}
		return w.report(ctx, p)
	case ev.Has(fsnotify.Write):
		return w.report(ctx, p)
	default:
		// Removed and renamed-away files stay in scope.
		return true
	}
}

func (w *Watcher) report(ctx context.Context, p string) bool {
	if !w.matcher.Match(p) {
		return true
	}
	if w.known[p] {
		return w.emit(ctx, Event{Kind: Changed, Path: p})
	}
	w.known[p] = true
	return w.emit(ctx, Event{Kind: Added, Path: p})
}

// descend watches a new directory tree, then reports files that landed in
// it before the watches were in place.
func (w *Watcher) descend(ctx context.Context, dir string) bool {
	if !w.matcher.Descend(dir) {
		return true
	}

	dirs, err := w.scan(dir, true)
	if err != nil {
		return w.emit(ctx, Event{Kind: ScanError, Err: err})
	}
	for _, d := range dirs {
		if err := w.fs.Add(d.AbsPath); err != nil {
			if !w.emit(ctx, Event{Kind: ScanError, Err: fmt.Errorf("failed to watch %s: %w", d.AbsPath, err)}) {
				return false
			}
			continue
		}
		w.logger.Debug("Watching new directory", "dir", w.matcher.Display(d.AbsPath))
	}

	files, err := w.scan(dir, false)
	if err != nil {
		return w.emit(ctx, Event{Kind: ScanError, Err: err})
	}
	for _, f := range files {
		if !w.report(ctx, f.AbsPath) {
			return false
		}
	}
	return true
}

func (w *Watcher) scan(dir string, dirs bool) ([]fileops.FileInfo, error) {
	return fileops.Scan(dir, &fileops.DirectoryScanOptions{
		SkipUnreadableDirs: true,
		IncludeHidden:      true,
		IncludeDirs:        dirs,
		DirFilter: func(rel string) bool {
			return !w.matcher.Excluded(filepath.Join(dir, filepath.FromSlash(rel)))
		},
		FileFilter: func(string) bool { return !dirs },
	})
}

func (w *Watcher) emit(ctx context.Context, ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-w.done:
		return false
	}
}
