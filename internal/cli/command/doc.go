// Package command provides the uacore-cli commands.
//
// Commands are defined with urfave/cli/v2 and call the diagnostics API of a
// running uacore-server:
//
//   - root.go: application, global flags, client and output helpers
//   - session.go: session list and inspection
//   - channel.go: secure channel list
//   - node.go: address space node inspection
//   - system.go: summary, health, readiness and admin actions
//
// Every command writes to the application's writer in the format chosen
// with --output.
package command
