package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/uacore-go/internal/core/service"
	"github.com/yndnr/uacore-go/internal/infra/buildinfo"
	"github.com/yndnr/uacore-go/internal/infra/tlsroots"
	"github.com/yndnr/uacore-go/internal/server/config"
)

func checkConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-config",
		Usage: "Validate a configuration file and print warnings",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "print",
				Usage: "Print the effective configuration with secrets masked",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			w := c.App.Writer
			for _, warning := range config.Warnings(cfg) {
				fmt.Fprintf(w, "warning: %s\n", warning)
			}
			if c.Bool("print") {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(config.Sanitize(cfg)); err != nil {
					return err
				}
			}
			fmt.Fprintln(w, "configuration OK")
			return nil
		},
	}
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "Print the argon2id hash of a password for identity.users",
		ArgsUsage: "[password]",
		Description: "Reads the first line of standard input when no password argument is given.\n" +
			"Prefer stdin so the password does not end up in shell history.",
		Action: func(c *cli.Context) error {
			password := c.Args().First()
			if password == "" {
				line, err := readLine(c.App.Reader)
				if err != nil {
					return err
				}
				password = line
			}
			if password == "" {
				return errors.New("empty password")
			}
			hash, err := service.HashPassword([]byte(password))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, hash)
			return nil
		},
	}
}

func thumbprintCommand() *cli.Command {
	return &cli.Command{
		Name:      "thumbprint",
		Usage:     "Print the SHA-256 thumbprints of the certificates in PEM files",
		ArgsUsage: "FILE...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("at least one PEM file is required")
			}
			for _, path := range c.Args().Slice() {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				certs, err := tlsroots.ParsePEM(data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				for _, cert := range certs {
					fmt.Fprintf(c.App.Writer, "%s  %s\n", tlsroots.Thumbprint(cert), cert.Subject.CommonName)
				}
			}
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print as JSON"},
		},
		Action: func(c *cli.Context) error {
			info := buildinfo.Get()
			if c.Bool("json") {
				return json.NewEncoder(c.App.Writer).Encode(info)
			}
			fmt.Fprintf(c.App.Writer, "uacore-server %s\n", info)
			return nil
		},
	}
}

func readLine(r io.Reader) (string, error) {
	if r == nil {
		r = os.Stdin
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
