// Package main is the entry point for the strudel-watch CLI.
//
// strudel-watch connects to the Strudel MCP server, resolves the pattern
// files named on the command line (or every .strudel and .str file below the
// working directory when none are named) and forwards their aggregated
// content to the live Strudel session on every change:
//
//  1. Load configuration (environment, .env, strudel-watch.yaml)
//  2. Connect to the MCP server and initialize Strudel
//  3. Resolve the file scope and start watching
//  4. Stop the watcher, then the session, on Ctrl+C
//
// The process exits 1 when the server is unreachable, when the arguments
// match no files, or when no pattern files exist once the initial scan
// settles.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"strudelwatch/internal/config"
	"strudelwatch/internal/dispatch"
	"strudelwatch/internal/lifecycle"
	"strudelwatch/internal/logging"
	"strudelwatch/internal/remote"
	"strudelwatch/internal/scope"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	bannerStyle  = lipgloss.NewStyle().Bold(true).Border(lipgloss.DoubleBorder()).Padding(0, 3)
	headingStyle = lipgloss.NewStyle().Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

func main() {
	appLogger := logging.NewAppLogger()

	if err := newRootCmd(appLogger).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(logger *logging.AppLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "strudel-watch [file|glob ...]",
		Short: "Forward Strudel pattern files to a live Strudel session on every change",
		Long: `strudel-watch watches pattern files and keeps a live Strudel session in sync.

Each argument is a pattern file path or a glob such as "songs/**/*.strudel".
Without arguments every .strudel and .str file below the working directory is
watched. node_modules, .git and dist are never scanned.

All files in scope are merged in path order, each introduced by a
"// file: <path>" line, and sent as one pattern.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatcher(logger, args)
		},
	}
}

func runWatcher(logger *logging.AppLogger, args []string) error {
	fmt.Fprintln(os.Stderr, bannerStyle.Render("Strudel Development Watcher v"+version))

	cwd, err := os.Getwd()
	if err != nil {
		logger.Error("Cannot determine working directory", "error", err)
		return err
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		logger.Error("Error loading config", "error", err)
		return err
	}
	if cfg.ConfigFile != "" {
		logger.Debug("Configuration loaded", "file", cfg.ConfigFile)
	}

	session := remote.NewSession(remote.Options{
		Dialer:      remote.StdioDialer(cfg.NodePath, []string{cfg.ServerPath}, nil),
		Target:      cfg.NodePath + " " + cfg.ServerPath,
		ClientName:  cfg.ClientName,
		CallTimeout: cfg.CallTimeout,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctl := lifecycle.New(lifecycle.Options{
		Remote:          session,
		Root:            cwd,
		Args:            args,
		SettleDelay:     cfg.SettleDelay,
		Debounce:        cfg.Debounce,
		ShutdownTimeout: cfg.ShutdownTimeout,
		OnReady:         func(files []string) { printReady(cwd, files) },
		Logger:          logger,
	})

	err = ctl.Run(ctx)
	if err == nil {
		return nil
	}

	var (
		connErr  *remote.ConnectionError
		noMatch  *scope.NoMatchingFilesError
		emptyErr *dispatch.EmptyScopeError
	)
	switch {
	case errors.As(err, &connErr):
		logger.Error("Failed to connect to Strudel MCP server", "error", connErr.Err)
		logger.Info("Make sure the Strudel MCP server is properly configured", "command", connErr.Command)
	case errors.As(err, &noMatch):
		logger.Error(err.Error())
	case errors.As(err, &emptyErr):
		logger.Error("No pattern files found")
		logger.Info(emptyErr.Hint())
	default:
		logger.Error("Watcher failed", "error", err)
	}
	return err
}

func printReady(cwd string, files []string) {
	var b strings.Builder
	b.WriteString("\n" + headingStyle.Render("Commands:") + "\n")
	b.WriteString("  " + keyStyle.Render("Ctrl+C") + " - Stop the watcher\n")
	for _, f := range files {
		b.WriteString("  " + keyStyle.Render("Active pattern:") + " " + relative(cwd, f) + "\n")
	}
	fmt.Fprintln(os.Stderr, b.String())
}

func relative(cwd, p string) string {
	if rel, ok := strings.CutPrefix(p, cwd+string(os.PathSeparator)); ok {
		return rel
	}
	return p
}
