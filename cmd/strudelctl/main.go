// Package main is the entry point for strudelctl, the manual companion of
// strudel-watch. Each subcommand opens its own session to the Strudel MCP
// server, runs one drill and closes the session again.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"strudelwatch/internal/config"
	"strudelwatch/internal/logging"
	"strudelwatch/internal/remote"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs.
type app struct {
	logger *logging.AppLogger
	cfg    *config.Config
}

func main() {
	a := &app{logger: logging.NewAppLogger()}

	if err := a.rootCmd().Execute(); err != nil {
		a.logger.Error(err.Error())
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "strudelctl",
		Short:         "Drive a Strudel MCP session by hand",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := config.Load(cwd)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		a.initCmd(),
		a.checkCmd(),
		a.cycleCmd(),
		a.verifyCmd(),
	)
	root.AddCommand(a.controlCmds()...)
	return root
}

// withSession connects, runs fn and always closes the session.
func (a *app) withSession(fn func(ctx context.Context, s *remote.Session) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := remote.NewSession(remote.Options{
		Dialer:      remote.StdioDialer(a.cfg.NodePath, []string{a.cfg.ServerPath}, nil),
		Target:      a.cfg.NodePath + " " + a.cfg.ServerPath,
		ClientName:  "strudelctl",
		CallTimeout: a.cfg.CallTimeout,
		Logger:      a.logger,
	})

	if err := a.spin("Connecting to Strudel MCP server...", "Connected", func() error {
		return s.Connect(ctx)
	}); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			a.logger.Warn("Failed to close session", "error", err)
		}
	}()

	return fn(ctx, s)
}

// spin runs fn behind a spinner, keeping the logger quiet meanwhile.
func (a *app) spin(text, done string, fn func() error) error {
	spinner, _ := pterm.DefaultSpinner.
		WithStyle(pterm.NewStyle(pterm.FgCyan)).
		WithSequence("⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏").
		WithDelay(100 * time.Millisecond).
		WithRemoveWhenDone(false).
		Start(text)

	a.logger.SetQuiet(true)
	err := fn()
	a.logger.SetQuiet(false)

	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(done)
	return nil
}
