package command

import (
	"net/http"

	"github.com/urfave/cli/v2"
)

// ChannelCommand returns the secure channel subcommand group.
func ChannelCommand() *cli.Command {
	return &cli.Command{
		Name:    "channel",
		Aliases: []string{"chan"},
		Usage:   "Inspect secure channels",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List secure channels",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "open",
						Usage: "Only show channels that are not closed",
					},
				},
				Action: channelListAction,
			},
		},
	}
}

func channelListAction(c *cli.Context) error {
	var result channelList
	if err := call(c, http.MethodGet, "/diagnostics/channels", &result); err != nil {
		return err
	}

	if c.Bool("open") {
		open := result.Items[:0]
		for _, ch := range result.Items {
			if !ch.Closed {
				open = append(open, ch)
			}
		}
		result.Items = open
		result.Total = len(open)
	}

	rows := make([]channelRow, 0, len(result.Items))
	for _, ch := range result.Items {
		rows = append(rows, newChannelRow(ch))
	}
	if err := render(c, result, rows); err != nil {
		return err
	}
	printf(c, "\nTotal: %d channels\n", result.Total)
	return nil
}
