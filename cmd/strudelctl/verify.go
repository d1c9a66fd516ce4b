package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"strudelwatch/internal/probe"
	"strudelwatch/internal/remote"

	"github.com/muesli/reflow/truncate"
	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const previewWidth = 60

func (a *app) verifyCmd() *cobra.Command {
	var (
		corpus string
		delay  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that written patterns read back intact",
		Long: `verify writes each pattern of a corpus, reads the editor content back and
compares both with all whitespace removed. Any mismatch (typically brackets
auto-closed by the editor) fails the run.

A custom corpus is a YAML file:

  patterns:
    - sound("bd hh")
    - |
      stack(
        sound("bd"),
        sound("hh")
      )`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns := probe.DefaultPatterns
			if corpus != "" {
				loaded, err := probe.LoadPatterns(corpus)
				if err != nil {
					return err
				}
				patterns = loaded
			}

			var results []probe.Result
			err := a.withSession(func(ctx context.Context, s *remote.Session) error {
				var (
					err error
					n   int
				)
				results, err = probe.Verify(ctx, s, patterns, delay, func(r probe.Result) {
					n++
					reportResult(n, r)
				})
				return err
			})
			if len(results) > 0 {
				renderSummary(results)
			}
			if err != nil {
				return err
			}

			sum := probe.Summarize(results)
			if sum.Failed > 0 {
				return fmt.Errorf("%d of %d patterns did not read back intact", sum.Failed, sum.Total)
			}
			a.logger.Success("All patterns read back intact")
			return nil
		},
	}
	cmd.Flags().StringVar(&corpus, "patterns", "", "YAML file with the patterns to verify")
	cmd.Flags().DurationVar(&delay, "delay", probe.DefaultVerifyDelay, "wait between write and read-back")
	return cmd
}

func reportResult(n int, r probe.Result) {
	if r.Passed {
		pterm.Success.Printfln("#%d %s", n, preview(r.Expected))
		return
	}
	pterm.Error.Printfln("#%d %s", n, preview(r.Expected))
	pterm.Println("   expected: " + preview(probe.Normalize(r.Expected)))
	pterm.Println("   actual:   " + preview(probe.Normalize(r.Actual)))
	switch r.Mismatch {
	case probe.MismatchExtra:
		pterm.Warning.Printfln("%d extra character(s): %q", r.Delta, truncate.StringWithTail(r.Extra, 20, "…"))
	case probe.MismatchMissing:
		pterm.Warning.Printfln("missing %d character(s)", r.Delta)
	default:
		pterm.Warning.Println(r.Mismatch.String())
	}
}

func renderSummary(results []probe.Result) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Pattern", "Result", "Detail"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT})

	for i, r := range results {
		status, detail := "pass", ""
		if !r.Passed {
			status = "FAIL"
			detail = r.Mismatch.String()
			if r.Delta > 0 {
				detail = fmt.Sprintf("%s (%d)", detail, r.Delta)
			}
		}
		table.Append([]string{fmt.Sprintf("%d", i+1), preview(r.Expected), status, detail})
	}

	sum := probe.Summarize(results)
	table.SetFooter([]string{"", fmt.Sprintf("%d patterns", sum.Total), fmt.Sprintf("%d passed", sum.Passed), fmt.Sprintf("%d failed", sum.Failed)})
	fmt.Println()
	table.Render()
}

// preview flattens a pattern onto one line and cuts it to previewWidth.
func preview(s string) string {
	flat := strings.Join(strings.Fields(s), " ")
	return truncate.StringWithTail(flat, previewWidth, "…")
}
