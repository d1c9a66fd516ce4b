// Package lifecycle sequences watcher startup and shutdown around one remote
// session: connect, initialize, resolve scope, watch, then release the
// watcher before the session.
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"strudelwatch/internal/dispatch"
	"strudelwatch/internal/logging"
	"strudelwatch/internal/scope"
	"strudelwatch/internal/watch"

	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds the wait for an in-flight forward on shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// Remote is the session surface the controller drives.
type Remote interface {
	Connect(ctx context.Context) error
	InitializeRemote(ctx context.Context) error
	WritePattern(ctx context.Context, payload string, autoPlay bool) error
	Close(ctx context.Context) error
}

// Options configure a Controller.
type Options struct {
	Remote Remote
	// Root is the working directory scope arguments are relative to.
	Root string
	Args []string

	SettleDelay     time.Duration
	Debounce        time.Duration
	ShutdownTimeout time.Duration

	// OnReady runs once the initial forward was attempted.
	OnReady func(files []string)
	Logger  *logging.AppLogger
}

// Controller owns the lifecycle state and the dispatch status.
type Controller struct {
	opts   Options
	logger *logging.AppLogger
	status *dispatch.Status

	mu    sync.Mutex
	state State
}

// New creates a controller in the Disconnected state.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetDefault()
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Controller{
		opts:   opts,
		logger: logger,
		status: &dispatch.Status{},
		state:  Disconnected,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status exposes the dispatch status shared with the loop.
func (c *Controller) Status() *dispatch.Status {
	return c.status
}

// Run drives the whole lifecycle and blocks until ctx is cancelled or a fatal
// condition occurs. A graceful shutdown returns nil. Connection failures,
// scope resolution failures and an empty settled scope are returned as is.
func (c *Controller) Run(ctx context.Context) error {
	remote := c.opts.Remote

	c.transition(Connecting)
	if err := remote.Connect(ctx); err != nil {
		c.transition(Closed)
		return err
	}
	c.transition(Connected)

	if err := remote.InitializeRemote(ctx); err != nil {
		c.logger.Warn("Failed to initialize Strudel", "error", err)
		c.logger.Info("The watcher will continue; the next pattern write retries initialization")
	} else {
		c.transition(RemoteInitialized)
	}

	c.transition(ScopeResolving)
	res, err := scope.Resolve(c.opts.Root, c.opts.Args)
	if err != nil {
		c.closeRemote()
		return err
	}

	c.logger.Info("Starting file watcher...")
	if res.AutoScan() {
		c.logger.Info("Watching for changes in *.strudel and *.str files")
	} else {
		c.logger.Info("Watching: " + strings.Join(c.opts.Args, " "))
	}

	w, err := watch.New(res, c.logger)
	if err != nil {
		c.closeRemote()
		return err
	}

	loop := dispatch.New(dispatch.Options{
		Remote:      remote,
		Matcher:     res.Matcher,
		Status:      c.status,
		SettleDelay: c.opts.SettleDelay,
		Debounce:    c.opts.Debounce,
		OnReady:     c.opts.OnReady,
		Logger:      c.logger,
	})

	c.transition(Watching)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return loop.Run(gctx, w.Events()) })

	finished := make(chan error, 1)
	go func() { finished <- g.Wait() }()

	var runErr error
	select {
	case <-ctx.Done():
		c.logger.Info("Shutting down watcher...")
	case runErr = <-finished:
		finished = nil
	}

	c.transition(ShuttingDown)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), c.opts.ShutdownTimeout)
	defer cancelShutdown()

	// Watcher first, then the session.
	if err := w.Close(); err != nil {
		c.logger.Warn("Failed to close file watcher", "error", err)
	}
	cancel()
	if finished != nil {
		select {
		case runErr = <-finished:
		case <-shutdownCtx.Done():
			c.logger.Warn("Pattern update still in flight at shutdown", "waited", c.opts.ShutdownTimeout)
		}
	}

	if err := remote.Close(shutdownCtx); err != nil {
		c.logger.Warn("Failed to close remote session", "error", err)
	}
	c.transition(Closed)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	c.logger.Success("Watcher stopped")
	return nil
}

func (c *Controller) closeRemote() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ShutdownTimeout)
	defer cancel()
	c.transition(ShuttingDown)
	if err := c.opts.Remote.Close(ctx); err != nil {
		c.logger.Warn("Failed to close remote session", "error", err)
	}
	c.transition(Closed)
}

func (c *Controller) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.logger.LogStateTransition("lifecycle", from.String(), to.String())
}
