// Package dispatch runs the single loop that turns watcher events into
// aggregated pattern forwards.
package dispatch

import (
	"context"
	"errors"
	"time"

	"strudelwatch/internal/aggregate"
	"strudelwatch/internal/logging"
	"strudelwatch/internal/remote"
	"strudelwatch/internal/scope"
	"strudelwatch/internal/watch"
)

// DefaultSettleDelay is the pause after ScanReady before the scope is judged.
const DefaultSettleDelay = 100 * time.Millisecond

// Forwarder receives aggregated payloads.
type Forwarder interface {
	WritePattern(ctx context.Context, payload string, autoPlay bool) error
}

// EmptyScopeError reports that no pattern files existed once the initial scan
// settled.
type EmptyScopeError struct {
	Root string
}

func (e *EmptyScopeError) Error() string {
	return "no pattern files found in " + e.Root
}

// Hint tells the user how to get a non-empty scope.
func (e *EmptyScopeError) Hint() string {
	return "Create a .strudel or .str file (for example pattern.strudel) or pass a file path or glob"
}

// Options configure a Loop.
type Options struct {
	Remote     Forwarder
	Aggregator *aggregate.Aggregator
	Matcher    *scope.Matcher
	Status     *Status
	// SettleDelay follows ScanReady; zero selects DefaultSettleDelay.
	SettleDelay time.Duration
	// Debounce folds dispatch-worthy events arriving within the window into
	// one forward. Zero forwards once per event.
	Debounce time.Duration
	// OnReady runs after the initial forward with the files it included.
	OnReady func(files []string)
	Logger  *logging.AppLogger
}

// Loop owns the ScopeSet. Events are handled one at a time in receipt order
// and forwards never overlap.
type Loop struct {
	remote   Forwarder
	agg      *aggregate.Aggregator
	matcher  *scope.Matcher
	status   *Status
	settle   time.Duration
	debounce time.Duration
	onReady  func([]string)
	logger   *logging.AppLogger

	set *scope.Set
}

// New creates a loop.
func New(opts Options) *Loop {
	l := &Loop{
		remote:   opts.Remote,
		agg:      opts.Aggregator,
		matcher:  opts.Matcher,
		status:   opts.Status,
		settle:   opts.SettleDelay,
		debounce: opts.Debounce,
		onReady:  opts.OnReady,
		logger:   opts.Logger,
		set:      scope.NewSet(),
	}
	if l.logger == nil {
		l.logger = logging.GetDefault()
	}
	if l.status == nil {
		l.status = &Status{}
	}
	if l.settle <= 0 {
		l.settle = DefaultSettleDelay
	}
	if l.agg == nil {
		l.agg = aggregate.New(aggregate.Options{Display: l.display, Logger: l.logger})
	}
	return l
}

// Status returns the shared status.
func (l *Loop) Status() *Status {
	return l.status
}

// Run consumes events until ctx is done or events is closed, returning nil in
// both cases. It fails with *EmptyScopeError when the settled initial scan
// found nothing.
func (l *Loop) Run(ctx context.Context, events <-chan watch.Event) error {
	var (
		scanReady bool
		loaded    bool
		settle    <-chan time.Time
		coalesce  <-chan time.Time
	)

	// Forwards outlive shutdown so an in-flight write can be awaited.
	fctx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case watch.ScanReady:
				if scanReady {
					continue
				}
				scanReady = true
				l.logger.Debug("Initial scan complete, settling", "delay", l.settle)
				settle = time.After(l.settle)

			case watch.ScanError:
				l.logger.Error("Watcher error", "error", ev.Err)

			case watch.Added, watch.Changed:
				if !l.track(ev, loaded) || !loaded {
					continue
				}
				if l.debounce <= 0 {
					l.forward(fctx)
				} else if coalesce == nil {
					coalesce = time.After(l.debounce)
				}
			}

		case <-settle:
			settle = nil
			if l.set.Len() == 0 {
				return &EmptyScopeError{Root: l.root()}
			}
			l.logger.Success("Watcher is ready and monitoring for changes")
			l.forward(fctx)
			loaded = true
			l.status.markReady()
			if l.onReady != nil {
				l.onReady(l.set.Paths())
			}

		case <-coalesce:
			coalesce = nil
			l.forward(fctx)
		}
	}
}

// track records an in-scope event in the set and reports whether it was in
// scope. Events are logged only once the initial load completed.
func (l *Loop) track(ev watch.Event, loaded bool) bool {
	if !l.set.Contains(ev.Path) && (l.matcher == nil || !l.matcher.Match(ev.Path)) {
		l.logger.Debug("Ignoring out-of-scope event", "kind", ev.Kind, "path", l.display(ev.Path))
		return false
	}

	added := l.set.Add(ev.Path)
	if ev.Kind == watch.Changed {
		l.set.Touch(ev.Path)
	}

	switch {
	case !loaded:
		l.logger.Debug("Discovered pattern file", "path", l.display(ev.Path))
	case added:
		l.logger.Info("New file detected: " + l.display(ev.Path))
	default:
		l.logger.Info("File changed: " + l.display(ev.Path))
	}
	return true
}

func (l *Loop) forward(ctx context.Context) {
	start := time.Now()
	payload := l.agg.Aggregate(l.set.Paths())
	if len(payload.Files) == 0 {
		l.logger.Warn("No readable pattern files, skipping update")
		return
	}

	err := l.remote.WritePattern(ctx, payload.Text, true)
	l.status.record(payload.Files, err)
	l.logger.LogPerformance("forward", start)
	if err != nil {
		var callErr *remote.RemoteCallError
		if errors.As(err, &callErr) {
			l.logger.Error("Failed to update pattern", "op", callErr.Op, "error", callErr.Err)
			return
		}
		l.logger.Error("Failed to update pattern", "error", err)
	}
}

func (l *Loop) display(p string) string {
	if l.matcher == nil {
		return p
	}
	return l.matcher.Display(p)
}

func (l *Loop) root() string {
	if l.matcher == nil {
		return "."
	}
	return l.matcher.Root()
}
