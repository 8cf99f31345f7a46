package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/uacore-go/internal/cli/connection"
	"github.com/yndnr/uacore-go/internal/cli/output"
	"github.com/yndnr/uacore-go/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "uacore-cli",
		Usage:   "Inspect and administer a running uacore-server",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SessionCommand(),
			ChannelCommand(),
			NodeCommand(),
			SystemCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "uacore-server diagnostics address (e.g., 127.0.0.1:4850 or unix:///run/uacore.sock)",
			EnvVars: []string{"UACORE_SERVER"},
			Value:   "127.0.0.1:4850",
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "PEM bundle trusted for an HTTPS server",
			EnvVars: []string{"UACORE_CA_FILE"},
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Skip HTTPS certificate verification",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Request timeout",
			Value: 30 * time.Second,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:  "no-headers",
			Usage: "Omit table headers",
		},
	}
}

// GlobalFlags holds the flags available to all commands.
type GlobalFlags struct {
	Server   string
	CAFile   string
	Insecure bool
	Timeout  time.Duration

	Output    output.Format
	Wide      bool
	NoHeaders bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, _ := output.ParseFormat(c.String("output"))
	return &GlobalFlags{
		Server:    c.String("server"),
		CAFile:    c.String("ca-file"),
		Insecure:  c.Bool("insecure"),
		Timeout:   c.Duration("timeout"),
		Output:    format,
		Wide:      c.Bool("wide"),
		NoHeaders: c.Bool("no-headers"),
	}
}

// newClient builds the HTTP client from the global flags.
func newClient(c *cli.Context) (*connection.HTTPClient, error) {
	flags := ParseGlobalFlags(c)
	return connection.NewHTTPClient(flags.Server, connection.Options{
		Timeout:  flags.Timeout,
		CAFile:   flags.CAFile,
		Insecure: flags.Insecure,
	})
}

// call performs one API request bounded by the --timeout flag.
func call(c *cli.Context, method, path string, target any) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, ParseGlobalFlags(c).Timeout)
	defer cancel()
	return client.Call(ctx, method, path, nil, target)
}

// render writes data in the selected format. In table format tableView,
// when non-nil, is rendered instead of data.
func render(c *cli.Context, data, tableView any) error {
	flags := ParseGlobalFlags(c)
	f := output.NewFormatter(flags.Output, flags.Wide)
	if tf, ok := f.(*output.TableFormatter); ok {
		tf.NoHeaders = flags.NoHeaders
		if tableView != nil {
			data = tableView
		}
	}
	return f.Format(c.App.Writer, data)
}

// printf writes human-oriented text; it is suppressed for json and yaml so
// their output stays machine readable.
func printf(c *cli.Context, format string, args ...any) {
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return
	}
	fmt.Fprintf(c.App.Writer, format, args...)
}
