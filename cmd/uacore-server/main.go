package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/uacore-go/internal/infra/buildinfo"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newApp creates the CLI application. serve is the default action.
func newApp() *cli.App {
	return &cli.App{
		Name:    "uacore-server",
		Usage:   "OPC UA session, secure channel and access control core",
		Version: buildinfo.String(),
		Flags:   []cli.Flag{configFlag()},
		Action:  serveAction,
		Commands: []*cli.Command{
			serveCommand(),
			checkConfigCommand(),
			hashPasswordCommand(),
			thumbprintCommand(),
			versionCommand(),
		},
		HideVersion: true,
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		EnvVars: []string{"UACORE_CONFIG"},
	}
}
