package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/adit/cli/render"
	"github.com/justapithecus/adit/client"
)

// Exit codes for call:
//   - 0: success
//   - 1: remote failure (the invoked method raised)
//   - 2: gateway or transport failure
const (
	exitSuccess      = 0
	exitRemoteError  = 1
	exitGatewayError = 2
)

// CallCommand returns the call command.
// This is the only command that executes work.
func CallCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Invoke a module method on the gateway",
		ArgsUsage: "<module> <method> [args...]",
		Flags: append(GatewayFlags(),
			&cli.StringFlag{
				Name:  "env",
				Usage: "Target environment (default: gateway default env)",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "Call key (default: generated by the gateway)",
			},
			&cli.StringSliceFlag{
				Name:    "kwarg",
				Aliases: []string{"k"},
				Usage:   "Keyword argument as name=value (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "stream-logs",
				Usage: "Interleave captured log output with results",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Persist the result on the gateway after completion",
			},
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "Detach: print the call key instead of streaming output",
			},
		),
		Action: callAction,
	}
}

func callAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("module and method required", 1)
	}
	module := c.Args().Get(0)
	method := c.Args().Get(1)

	// Positional args and kwarg values parse as JSON with a plain-string
	// fallback so bare words don't need quoting.
	args := make([]any, 0, c.NArg()-2)
	for _, raw := range c.Args().Slice()[2:] {
		args = append(args, parseValue(raw))
	}

	kwargs, err := parseKwargs(c.StringSlice("kwarg"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	cl, err := newClient(c)
	if err != nil {
		return cli.Exit(err.Error(), exitGatewayError)
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Results ride stdout, log chunks ride stderr so piped output stays
	// clean. A detached call's single ack chunk carries the call key.
	printer := render.NewStreamPrinter(os.Stdout, os.Stderr)
	opts := client.CallOptions{
		Key:        c.String("key"),
		Env:        c.String("env"),
		Args:       args,
		Kwargs:     kwargs,
		StreamLogs: c.Bool("stream-logs"),
		Save:       c.Bool("save"),
		Remote:     c.Bool("remote"),
	}

	_, err = cl.Call(ctx, module, method, opts, printer.OnResponse)
	var remoteErr *client.RemoteError
	if errors.As(err, &remoteErr) {
		if remoteErr.Traceback != "" {
			fmt.Fprintln(os.Stderr, remoteErr.Traceback)
		}
		return cli.Exit(fmt.Sprintf("remote error: %s", remoteErr.Message), exitRemoteError)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("call failed: %v", err), exitGatewayError)
	}

	return nil
}

// parseKwargs splits name=value pairs into keyword arguments.
func parseKwargs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	kwargs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid kwarg %q (want name=value)", pair)
		}
		kwargs[name] = parseValue(raw)
	}
	return kwargs, nil
}

// parseValue decodes raw as JSON, falling back to the literal string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
