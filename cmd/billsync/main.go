// Package main provides the billsync CLI entrypoint.
//
// Only `sync` contacts the sync server; `history` and `version` are
// read-only.
//
// Usage:
//
//	billsync <command> [subcommand] [options]
//
// Exit codes for `sync`:
//   - 0: sync completed
//   - 1: sync failed
//   - 2: sync cancelled
//   - 3: invalid usage or configuration
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/billsync/cli/cmd"
	"github.com/pithecene-io/billsync/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

// exitInvalidUsage matches the sync command's invalid usage code.
const exitInvalidUsage = 3

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already exited for errors returned by commands.
		// This branch handles errors raised before a command runs.
		os.Exit(reportExit(os.Stderr, err))
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:           "billsync",
		Usage:          "Supplier bill synchronization client",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		OnUsageError:   usageError,
		Commands: []*cli.Command{
			cmd.SyncCommand(),
			cmd.HistoryCommand(),
			cmd.VersionCommand(commit),
		},
	}
	setUsageError(app.Commands)
	return app
}

// usageError turns flag parsing failures into invalid usage exits.
func usageError(_ *cli.Context, err error, _ bool) error {
	return cli.Exit(fmt.Sprintf("Incorrect usage: %v", err), exitInvalidUsage)
}

func setUsageError(cmds []*cli.Command) {
	for _, c := range cmds {
		c.OnUsageError = usageError
		setUsageError(c.Subcommands)
	}
}

// exitErrHandler prints the error, if any, and exits with its code.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(reportExit(os.Stderr, err))
}

// reportExit writes err's message to w and returns the process exit code.
// cli.Exit codes are preserved, including wrapped ones; an empty message
// or cli's "exit status N" placeholder prints nothing.
func reportExit(w io.Writer, err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
