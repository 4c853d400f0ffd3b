package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/adit/cli/reader"
	"github.com/justapithecus/adit/cli/render"
	"github.com/justapithecus/adit/ledger"
)

// StatsCommand returns the stats command with subcommands.
// Stats returns aggregated, derived facts.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated statistics (activity, metrics)",
		Subcommands: []*cli.Command{
			statsActivityCommand(),
			statsMetricsCommand(),
		},
	}
}

func statsActivityCommand() *cli.Command {
	return &cli.Command{
		Name:  "activity",
		Usage: "Show aggregated activity statistics",
		Flags: append(append(TUIReadOnlyFlags(), storageFlags()...),
			&cli.StringFlag{
				Name:  "source",
				Usage: "Filter by source partition",
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Filter by operation category: call, object, env, server",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "Filter by environment",
			},
			&cli.StringFlag{
				Name:  "day",
				Usage: "Filter by day partition (YYYY-MM-DD)",
			},
		),
		Action: statsActivityAction,
	}
}

func statsActivityAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ds, err := buildReadDataset(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize storage reader: %v", err), 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	filter := ledger.ActivityFilter{
		Source:   c.String("source"),
		Category: c.String("category"),
		Env:      c.String("env"),
		Day:      c.String("day"),
	}

	stats, err := reader.StatsActivity(ctx, ds, filter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read activity from ledger: %v", err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_activity", stats)
	}

	return r.Render(stats)
}

func statsMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Show the latest persisted gateway counter snapshot",
		Flags: append(append(TUIReadOnlyFlags(), storageFlags()...),
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Read metrics for a specific gateway session",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Filter by source partition",
			},
		),
		Action: statsMetricsAction,
	}
}

func statsMetricsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ds, err := buildReadDataset(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize storage reader: %v", err), 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snapshot, err := reader.LatestMetrics(ctx, ds, c.String("run-id"), c.String("source"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read metrics from ledger: %v", err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_metrics", snapshot)
	}

	return r.Render(snapshot)
}
