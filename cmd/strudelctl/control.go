package main

import (
	"context"
	"fmt"

	"strudelwatch/internal/remote"

	"github.com/spf13/cobra"
)

// controlCmds expose the bare playback tools.
func (a *app) controlCmds() []*cobra.Command {
	control := func(use, short string, call func(*remote.Session, context.Context) (string, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSession(func(ctx context.Context, s *remote.Session) error {
					ack, err := call(s, ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), ack)
					return nil
				})
			},
		}
	}

	return []*cobra.Command{
		control("play", "Start playback", (*remote.Session).Play),
		control("pause", "Pause playback", (*remote.Session).Pause),
		control("update", "Re-evaluate the edited pattern", (*remote.Session).Update),
		control("stop", "Stop playback", (*remote.Session).Stop),
		{
			Use:   "show",
			Short: "Print the pattern currently in the Strudel editor",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withSession(func(ctx context.Context, s *remote.Session) error {
					text, err := s.ReadBackPattern(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), text)
					return nil
				})
			},
		},
	}
}
