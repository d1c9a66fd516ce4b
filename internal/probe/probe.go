// Package probe holds the manual drills used to check a live Strudel peer by
// hand: initialize it, play a smoke pattern, run an update cycle, and verify
// that written patterns read back intact.
package probe

import (
	"context"
	"time"
)

// Session is the remote surface the drills use.
type Session interface {
	InitializeRemote(ctx context.Context) error
	WritePattern(ctx context.Context, payload string, autoPlay bool) error
	Play(ctx context.Context) (string, error)
	Pause(ctx context.Context) (string, error)
	Update(ctx context.Context) (string, error)
	Stop(ctx context.Context) (string, error)
	ReadBackPattern(ctx context.Context) (string, error)
}

// DefaultSmokePattern is played by Smoke when no pattern is given.
const DefaultSmokePattern = `sound("bd sd")`

// Init initializes the remote session.
func Init(ctx context.Context, s Session) error {
	return s.InitializeRemote(ctx)
}

// Smoke initializes the remote, writes pattern with autoplay and keeps it
// playing for hold.
func Smoke(ctx context.Context, s Session, pattern string, hold time.Duration) error {
	if pattern == "" {
		pattern = DefaultSmokePattern
	}
	if err := s.InitializeRemote(ctx); err != nil {
		return err
	}
	if err := s.WritePattern(ctx, pattern, true); err != nil {
		return err
	}
	return sleep(ctx, hold)
}

// Step is one acknowledged action of a drill.
type Step struct {
	Name string
	Ack  string
}

// CycleOptions configure UpdateCycle. Zero waits skip the pause.
type CycleOptions struct {
	First  string
	Second string
	// AfterInit lets the browser finish loading before the first write.
	AfterInit time.Duration
	// Listen is the playback time of the first pattern before the update.
	Listen time.Duration
	// Hear is the playback time of the updated pattern before pausing.
	Hear time.Duration
	// OnStep is called after every acknowledged step.
	OnStep func(Step)
}

// DefaultCycle returns the patterns and waits of the stock update drill.
func DefaultCycle() CycleOptions {
	return CycleOptions{
		First:     `note("c3 eb3 g3").s("piano")`,
		Second:    `note("c4 d4 e4 g4").s("piano").slow(2)`,
		AfterInit: 2 * time.Second,
		Listen:    2 * time.Second,
		Hear:      5 * time.Second,
	}
}

// UpdateCycle runs init, write, play, write, update, pause and stop in order,
// waiting between them as configured. It stops at the first failure and
// returns the steps acknowledged so far.
func UpdateCycle(ctx context.Context, s Session, opts CycleOptions) ([]Step, error) {
	var steps []Step
	record := func(name, ack string) {
		st := Step{Name: name, Ack: ack}
		steps = append(steps, st)
		if opts.OnStep != nil {
			opts.OnStep(st)
		}
	}
	control := func(name string, fn func(context.Context) (string, error)) error {
		ack, err := fn(ctx)
		if err != nil {
			return err
		}
		record(name, ack)
		return nil
	}
	write := func(name, pattern string) error {
		if err := s.WritePattern(ctx, pattern, false); err != nil {
			return err
		}
		record(name, pattern)
		return nil
	}

	if err := s.InitializeRemote(ctx); err != nil {
		return steps, err
	}
	record("init", "initialized")

	actions := []func() error{
		func() error { return sleep(ctx, opts.AfterInit) },
		func() error { return write("write", opts.First) },
		func() error { return control("play", s.Play) },
		func() error { return sleep(ctx, opts.Listen) },
		func() error { return write("rewrite", opts.Second) },
		func() error { return control("update", s.Update) },
		func() error { return sleep(ctx, opts.Hear) },
		func() error { return control("pause", s.Pause) },
		func() error { return control("stop", s.Stop) },
	}
	for _, act := range actions {
		if err := act(); err != nil {
			return steps, err
		}
	}
	return steps, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
