package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/tokengate/governor"
	"github.com/jonwraymond/tokengate/server"
)

func newStatusCmd() *cobra.Command {
	var (
		addr    string
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the budget and session stats of a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			base := strings.TrimRight(addr, "/")
			var rep server.TokenReport
			if err := getJSON(ctx, base+"/v1/tokens", &rep); err != nil {
				return err
			}
			var stats governor.Stats
			if err := getJSON(ctx, base+"/v1/stats", &stats); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"tokens": rep, "stats": stats})
			}
			renderStatus(out, rep, stats)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "server base URL")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func renderStatus(w io.Writer, rep server.TokenReport, stats governor.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Token budget")
	t.AppendRows([]table.Row{
		{"Available", fmt.Sprintf("%d / %d (%.0f%%)", rep.Available, rep.Capacity, rep.Percent)},
		{"Window", (time.Duration(rep.WindowMs) * time.Millisecond).String()},
		{"Refill in", (time.Duration(rep.RefillInMs) * time.Millisecond).Round(time.Second).String()},
		{"Circuit", orDash(rep.Circuit)},
		{"Last auth failure", formatTime(rep.LastAuthFailure)},
	})
	t.Render()

	s := table.NewWriter()
	s.SetOutputMirror(w)
	s.SetStyle(table.StyleRounded)
	s.SetTitle("Session")
	s.AppendRows([]table.Row{
		{"Since", formatTime(stats.Started)},
		{"Calls", stats.Calls},
		{"Failures", stats.Failures},
		{"Tokens consumed", stats.TokensConsumed},
		{"Cache hits", stats.CacheHits},
	})
	kinds := make([]string, 0, len(stats.FailuresByKind))
	for k := range stats.FailuresByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		s.AppendRow(table.Row{"  " + k, stats.FailuresByKind[k]})
	}
	s.Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
