package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/adit/cli/render"
)

// keyRow is one stored key, flattened for rendering.
type keyRow struct {
	Env string `json:"env"`
	Key string `json:"key"`
}

// KeysCommand returns the keys command.
func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "List stored object keys per environment",
		Flags: append(append(GatewayFlags(), ReadOnlyFlags()...),
			&cli.StringFlag{
				Name:  "env",
				Usage: "Limit listing to one environment",
			},
		),
		Action: keysAction,
	}
}

func keysAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for keys
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for keys", 1)
	}

	cl, err := newClient(c)
	if err != nil {
		return cli.Exit(err.Error(), exitGatewayError)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	envs, err := cl.Keys(ctx, c.String("env"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("keys failed: %v", err), exitGatewayError)
	}

	// Flatten to rows sorted by env then key for deterministic output.
	names := make([]string, 0, len(envs))
	for name := range envs {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]keyRow, 0)
	for _, name := range names {
		keys := append([]string(nil), envs[name]...)
		sort.Strings(keys)
		for _, key := range keys {
			rows = append(rows, keyRow{Env: name, Key: key})
		}
	}

	return r.Render(rows)
}
