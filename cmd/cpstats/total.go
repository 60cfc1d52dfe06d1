package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/cpstats/pkg/aggregate"
	"github.com/codeGROOVE-dev/cpstats/pkg/store"
)

func newTotalCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "total",
		Short: "Aggregate stored statistics across platforms for --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTotal(cmd.Context(), format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or table")
	return cmd
}

func (a *app) runTotal(ctx context.Context, format string) error {
	if a.userID == "" {
		return errors.New("--user is required")
	}
	if format != "json" && format != "table" {
		return fmt.Errorf("unknown format %q (want json or table)", format)
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	db, err := store.Open(a.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			a.logger.Warn("failed to close db", "error", err)
		}
	}()

	t, err := db.Recompute(ctx, a.userID, a.today())
	if err != nil {
		return err
	}
	if format == "table" {
		a.renderTotals(t)
		return nil
	}
	return a.outputJSON(t)
}

func (a *app) renderTotals(t *aggregate.Totals) {
	tw := table.NewWriter()
	tw.SetOutputMirror(a.stdout)
	tw.SetTitle("User " + a.userID)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Solved", t.TotalSolved},
		{"Easy", t.EasySolved},
		{"Medium", t.MediumSolved},
		{"Hard", t.HardSolved},
		{"Contests", t.Contests},
		{"Active days", t.ActiveDays},
		{"Today", t.TodayCount},
	})
	if len(t.Ratings) > 0 {
		tw.AppendSeparator()
		for _, r := range t.Ratings {
			tw.AppendRow(table.Row{"Rating (" + r.Platform.String() + ")", strconv.Itoa(r.Rating)})
		}
	}
	tw.SetStyle(table.StyleRounded)
	tw.Render()
}
