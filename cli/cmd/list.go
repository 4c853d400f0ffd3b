package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/adit/cli/reader"
	"github.com/justapithecus/adit/cli/render"
	"github.com/justapithecus/adit/iox"
	"github.com/justapithecus/adit/ledger"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// storageFlags returns the Lode dataset selection flags shared by the
// ledger-reading commands. list and stats read the dataset directly;
// they never contact a gateway.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Lode dataset ID",
			Value: "adit",
		},
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Storage backend: fs or s3",
			Value: "fs",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Storage path (fs: directory, s3: bucket/prefix)",
			Value: "~/.adit/ledger",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for S3 backend",
		},
	}
}

// buildReadDataset creates a Lode dataset for reading based on CLI flags.
func buildReadDataset(c *cli.Context) (lode.Dataset, error) {
	dataset := c.String("storage-dataset")
	path := c.String("storage-path")

	switch backend := c.String("storage-backend"); backend {
	case "fs":
		return ledger.NewReadDatasetFS(dataset, iox.ExpandHome(path))
	case "s3":
		bucket, prefix := ledger.ParseS3Path(path)
		return ledger.NewReadDatasetS3(dataset, ledger.S3Config{
			Bucket: bucket,
			Prefix: prefix,
			Region: c.String("storage-region"),
		})
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", backend)
	}
}

// ListCommand returns the list command with subcommands.
// List returns thin record slices, not aggregates.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List ledger records (activity)",
		Subcommands: []*cli.Command{
			listActivityCommand(),
		},
	}
}

func listActivityCommand() *cli.Command {
	return &cli.Command{
		Name:  "activity",
		Usage: "List recent gateway activity from the ledger",
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
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of records to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listActivityAction,
	}
}

func listActivityAction(c *cli.Context) error {
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
		Limit:    c.Int("limit"),
	}

	rows, err := reader.ListActivity(ctx, ds, filter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read activity from ledger: %v", err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI("list_activity", rows)
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(rows) > listWarningThreshold && filter.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(rows))
	}

	return r.Render(rows)
}
