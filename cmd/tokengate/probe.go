package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/tokengate/keepa"
	"github.com/jonwraymond/tokengate/observe"
	"github.com/jonwraymond/tokengate/resilience"
)

func newProbeCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Ask upstream for the live token balance (costs nothing)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			// Probe output goes to stdout; keep telemetry quiet.
			cfg.Observe.Metrics.Enabled = false
			cfg.Observe.Tracing.Enabled = false

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			obs, err := observe.NewObserver(ctx, cfg.Observe)
			if err != nil {
				return err
			}
			defer func() { _ = obs.Shutdown(context.WithoutCancel(ctx)) }()

			gov, err := newGovernor(cfg, obs, nil)
			if err != nil {
				return err
			}
			res, err := keepa.New(gov, keepa.WithLogger(obs.Logger())).TokenStatus(ctx)
			if err != nil {
				return err
			}
			renderHint(cmd.OutOrStdout(), res.Hint)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall probe timeout")
	return cmd
}

func renderHint(w io.Writer, h *resilience.BudgetHint) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Upstream budget")
	if h.IsZero() {
		t.AppendRow(table.Row{"Hint", "none reported"})
		t.Render()
		return
	}
	if h.TokensLeft != nil {
		t.AppendRow(table.Row{"Tokens left", *h.TokensLeft})
	}
	if h.RefillRate != nil {
		per := time.Minute
		if h.RefillInterval != nil {
			per = *h.RefillInterval
		}
		t.AppendRow(table.Row{"Refill rate", fmt.Sprintf("%d per %s", *h.RefillRate, per)})
	}
	if h.RefillIn != nil {
		t.AppendRow(table.Row{"Refill in", h.RefillIn.Round(time.Second).String()})
	}
	t.Render()
}
