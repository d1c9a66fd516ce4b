package main

import (
	"context"
	"fmt"

	"strudelwatch/internal/probe"
	"strudelwatch/internal/remote"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Launch the Strudel browser and initialize the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(ctx context.Context, s *remote.Session) error {
				if err := a.spin("Initializing Strudel...", "Strudel initialized successfully!", func() error {
					return probe.Init(ctx, s)
				}); err != nil {
					return err
				}

				fmt.Println()
				pterm.FgCyan.Println("Next steps:")
				fmt.Println("  1. Create or edit a .strudel file in your project")
				fmt.Println("  2. Run strudel-watch to start the file watcher")
				fmt.Println("  3. Or pass files and globs: strudel-watch 'songs/**/*.strudel'")
				fmt.Println()
				return nil
			})
		},
	}
}
