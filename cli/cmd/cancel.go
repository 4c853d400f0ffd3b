package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

// CancelCommand returns the cancel command.
func CancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel an active call by key, or all active calls",
		ArgsUsage: "<key>",
		Flags: append(GatewayFlags(),
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Cancel every active call",
			},
		),
		Action: cancelAction,
	}
}

func cancelAction(c *cli.Context) error {
	cl, err := newClient(c)
	if err != nil {
		return cli.Exit(err.Error(), exitGatewayError)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if c.Bool("all") {
		n, err := cl.CancelAll(ctx)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cancel failed: %v", err), exitGatewayError)
		}
		fmt.Printf("cancelled %d\n", n)
		return nil
	}

	if c.NArg() < 1 {
		return cli.Exit("call key required (or --all)", 1)
	}
	key := c.Args().First()

	if err := cl.Cancel(ctx, key); err != nil {
		return cli.Exit(fmt.Sprintf("cancel failed: %v", err), exitGatewayError)
	}

	fmt.Printf("cancelled %s\n", key)
	return nil
}
