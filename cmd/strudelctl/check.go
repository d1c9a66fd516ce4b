package main

import (
	"context"
	"errors"
	"time"

	"strudelwatch/internal/probe"
	"strudelwatch/internal/remote"

	"github.com/spf13/cobra"
)

func (a *app) checkCmd() *cobra.Command {
	var hold time.Duration

	cmd := &cobra.Command{
		Use:   "check [pattern]",
		Short: "Smoke-test the connection by playing a pattern",
		Long: `check connects, initializes Strudel, writes the pattern with autoplay and
keeps it playing for --hold before closing the session.
The default pattern is ` + probe.DefaultSmokePattern + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := probe.DefaultSmokePattern
			if len(args) == 1 {
				pattern = args[0]
			}
			return a.withSession(func(ctx context.Context, s *remote.Session) error {
				a.logger.Info("Playing test pattern", "pattern", pattern, "hold", hold)
				err := probe.Smoke(ctx, s, pattern, hold)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if err != nil {
					return err
				}
				a.logger.Success("Test completed successfully!")
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&hold, "hold", 5*time.Second, "how long to keep the pattern playing")
	return cmd
}
