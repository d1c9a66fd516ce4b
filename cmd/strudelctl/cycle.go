package main

import (
	"context"
	"fmt"

	"strudelwatch/internal/probe"
	"strudelwatch/internal/remote"

	"github.com/spf13/cobra"
)

func (a *app) cycleCmd() *cobra.Command {
	opts := probe.DefaultCycle()

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Write, play, rewrite, update, pause and stop in sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(ctx context.Context, s *remote.Session) error {
				n := 0
				opts.OnStep = func(st probe.Step) {
					n++
					a.logger.Success(fmt.Sprintf("%d. %s", n, st.Name), "ack", st.Ack)
				}
				if _, err := probe.UpdateCycle(ctx, s, opts); err != nil {
					return err
				}
				a.logger.Success("Update cycle completed")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.First, "first", opts.First, "initial pattern")
	cmd.Flags().StringVar(&opts.Second, "second", opts.Second, "pattern applied with update")
	cmd.Flags().DurationVar(&opts.Listen, "wait", opts.Listen, "playback time before the update")
	cmd.Flags().DurationVar(&opts.Hear, "hear", opts.Hear, "playback time after the update")
	cmd.Flags().DurationVar(&opts.AfterInit, "init-wait", opts.AfterInit, "pause after init before the first write")
	return cmd
}
