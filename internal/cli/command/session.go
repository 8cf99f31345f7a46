package command

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/uacore-go/internal/core/domain"
)

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Inspect sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List sessions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "state",
						Usage: "Filter by state: created, activated, closing",
					},
				},
				Action: sessionListAction,
			},
			{
				Name:      "get",
				Usage:     "Show one session by its numeric id",
				ArgsUsage: "SESSION_ID",
				Action:    sessionGet,
			},
		},
	}
}

func sessionListAction(c *cli.Context) error {
	path := "/diagnostics/sessions"
	if state := c.String("state"); state != "" {
		path += "?state=" + url.QueryEscape(state)
	}

	var result sessionList
	if err := call(c, http.MethodGet, path, &result); err != nil {
		return err
	}

	now := time.Now()
	rows := make([]sessionRow, 0, len(result.Items))
	for _, s := range result.Items {
		rows = append(rows, newSessionRow(s, now))
	}
	if err := render(c, result, rows); err != nil {
		return err
	}
	printf(c, "\nTotal: %d sessions\n", result.Total)
	return nil
}

func sessionGet(c *cli.Context) error {
	arg := c.Args().First()
	if arg == "" {
		return fmt.Errorf("session ID required")
	}
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid session ID %q", arg)
	}

	var info domain.SessionInfo
	if err := call(c, http.MethodGet, "/diagnostics/sessions/"+strconv.FormatUint(id, 10), &info); err != nil {
		return err
	}
	return render(c, info, nil)
}
