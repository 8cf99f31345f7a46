package command

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/uacore-go/internal/cli/connection"
	"github.com/yndnr/uacore-go/internal/cli/output"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server status and maintenance",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show the diagnostics summary",
				Action: systemStatus,
			},
			{
				Name:   "health",
				Usage:  "Check server liveness",
				Action: systemHealth,
			},
			{
				Name:   "ready",
				Usage:  "Check server readiness",
				Action: systemReady,
			},
			{
				Name:   "address-space",
				Usage:  "Show node count and index statistics",
				Action: systemAddressSpace,
			},
			{
				Name:   "purge",
				Usage:  "Run one session purge pass now",
				Action: systemPurge,
			},
			{
				Name:   "gc",
				Usage:  "Compact the policy store value log",
				Action: systemGC,
			},
		},
	}
}

func systemStatus(c *cli.Context) error {
	var s summary
	if err := call(c, http.MethodGet, "/diagnostics/summary", &s); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, s, nil)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "System Status\n")
	fmt.Fprintf(w, "=============\n\n")
	fmt.Fprintf(w, "Version:  %s (%s)\n", s.Build.Version, s.Build.Commit)
	fmt.Fprintf(w, "Uptime:   %s\n", time.Duration(s.UptimeSeconds)*time.Second)
	if a := s.AddressSpace; a != nil {
		fmt.Fprintf(w, "Nodes:    %d (max chain %d, avg %.2f)\n", a.Nodes, a.Index.MaxChain, a.Index.AvgChain)
	}
	if st := s.Storage; st != nil {
		fmt.Fprintf(w, "Storage:  %s LSM, %s value log, %d GC runs\n",
			humanize.IBytes(st.LSMBytes), humanize.IBytes(st.ValueLogBytes), st.GCRuns)
	}
	fmt.Fprintf(w, "\nSession diagnostics\n\n")

	names := make([]string, 0, len(s.Sessions))
	for name := range s.Sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	t := &output.Table{Headers: []string{"COUNTER", "VALUE"}}
	for _, name := range names {
		t.AddRow(name, fmt.Sprintf("%d", s.Sessions[name]))
	}
	return t.RenderWithOptions(w, ParseGlobalFlags(c).NoHeaders)
}

func systemHealth(c *cli.Context) error {
	var result status
	if err := call(c, http.MethodGet, "/health", &result); err != nil {
		return fmt.Errorf("server unhealthy: %w", err)
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, result, nil)
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Server is %s\n  Target: %s\n", result.Status, client.BaseURL())
	return nil
}

// systemReady reports the failed checks of a 503 as the error.
func systemReady(c *cli.Context) error {
	var result status
	err := call(c, http.MethodGet, "/ready", &result)

	var apiErr *connection.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
		return fmt.Errorf("server not ready: %s", strings.TrimSpace(string(apiErr.Details)))
	}
	if err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, result, nil)
	}
	fmt.Fprintf(c.App.Writer, "Server is %s\n", result.Status)
	return nil
}

func systemAddressSpace(c *cli.Context) error {
	var a addressSpace
	if err := call(c, http.MethodGet, "/diagnostics/address-space", &a); err != nil {
		return err
	}
	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("nodes", fmt.Sprintf("%d", a.Nodes))
	t.AddRow("buckets", fmt.Sprintf("%d", a.Index.Buckets))
	t.AddRow("used_buckets", fmt.Sprintf("%d", a.Index.UsedBuckets))
	t.AddRow("max_chain", fmt.Sprintf("%d", a.Index.MaxChain))
	t.AddRow("avg_chain", fmt.Sprintf("%.2f", a.Index.AvgChain))
	return render(c, a, t)
}

func systemPurge(c *cli.Context) error {
	var result struct {
		Purged int `json:"purged"`
	}
	if err := call(c, http.MethodPost, "/admin/purge", &result); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, result, nil)
	}
	fmt.Fprintf(c.App.Writer, "Purged %d sessions\n", result.Purged)
	return nil
}

func systemGC(c *cli.Context) error {
	var result struct {
		Rewrites int `json:"rewrites"`
	}
	if err := call(c, http.MethodPost, "/admin/storage/gc", &result); err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, result, nil)
	}
	fmt.Fprintf(c.App.Writer, "Storage GC completed: %d value log rewrites\n", result.Rewrites)
	return nil
}
