package command

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/uacore-go/internal/cli/output"
	"github.com/yndnr/uacore-go/pkg/nodeid"
)

// NodeCommand returns the address space subcommand group.
func NodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "node",
		Usage: "Inspect address space nodes",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Show a node and its access descriptor",
				ArgsUsage: "NODE_ID (e.g. i=85 or \"ns=2;s=Boiler/Temperature\")",
				Action:    nodeGet,
			},
			{
				Name:      "children",
				Usage:     "List the child node ids of a node",
				ArgsUsage: "NODE_ID",
				Action:    nodeChildren,
			},
		},
	}
}

// fetchNode validates the id locally so typos fail before the request.
func fetchNode(c *cli.Context) (*node, error) {
	arg := c.Args().First()
	if arg == "" {
		return nil, fmt.Errorf("node ID required")
	}
	id, err := nodeid.Parse(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid node ID %q: %w", arg, err)
	}

	var n node
	if err := call(c, http.MethodGet, "/diagnostics/nodes/"+url.PathEscape(id.String()), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func nodeGet(c *cli.Context) error {
	n, err := fetchNode(c)
	if err != nil {
		return err
	}

	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("id", n.ID.String())
	t.AddRow("class", n.Class)
	t.AddRow("browse_name", n.BrowseName)
	if n.DataType != "" {
		t.AddRow("data_type", n.DataType)
	}
	if n.Parent != nil {
		t.AddRow("parent", n.Parent.String())
	}
	t.AddRow("children", strconv.Itoa(n.Children))
	if a := n.Access; a != nil {
		t.AddRow("owner_id", strconv.Itoa(int(a.OwnerID)))
		t.AddRow("group_id", strconv.Itoa(int(a.GroupID)))
		t.AddRow("owner", a.Owner.String())
		t.AddRow("group", a.Group.String())
		t.AddRow("other", a.Other.String())
	} else {
		t.AddRow("access", "-")
	}
	return render(c, n, t)
}

func nodeChildren(c *cli.Context) error {
	n, err := fetchNode(c)
	if err != nil {
		return err
	}
	return render(c, n.ChildIDs, nil)
}
