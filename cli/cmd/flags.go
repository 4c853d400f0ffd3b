// Package cmd provides CLI commands for the adit binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/adit/client"
)

// Shared flags for commands that talk to a gateway.
var (
	// AddrFlag selects the gateway to talk to.
	AddrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "Gateway base URL",
		Value: "http://127.0.0.1:32300",
	}

	// TokenFlag carries the bearer token for gateways with auth enabled.
	TokenFlag = &cli.StringFlag{
		Name:  "token",
		Usage: "Bearer token for gateway authorization",
	}
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (list, stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (list, stats only)",
	}
)

// GatewayFlags returns the shared connection flags for commands that
// talk to a gateway.
func GatewayFlags() []cli.Flag {
	return []cli.Flag{
		AddrFlag,
		TokenFlag,
	}
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// newClient builds a gateway client from the shared connection flags.
func newClient(c *cli.Context) (*client.Client, error) {
	var opts []client.Option
	if token := c.String("token"); token != "" {
		opts = append(opts, client.WithToken(token))
	}
	return client.New(c.String("addr"), opts...)
}
