// Package main provides the test-reporting CLI entrypoint.
//
// Usage:
//
//	test-reporting <command> [options]
//
// Exit codes of submit and validate:
//   - 0: success
//   - 1: report rejected (unreadable, unknown version, missing context, schema)
//   - 2: credential exchange failed
//   - 3: submission failed
//   - 4: invalid configuration
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Brightspace/test-reporting-action/cli/cmd"
	"github.com/Brightspace/test-reporting-action/ghactions"
	"github.com/Brightspace/test-reporting-action/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "test-reporting",
		Usage:          "Validate CI test reports and submit them to Timestream",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.SubmitCommand(),
			cmd.ValidateCommand(),
			cmd.ShowCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// Usage errors that never reached ExitErrHandler.
		os.Exit(cmd.ExitConfig)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(report(os.Stdout, os.Stderr, ghactions.InActions(os.LookupEnv), err))
}

// report prints err and returns the process exit code. Inside an Actions job
// the message becomes an error annotation on stdout.
func report(stdout, stderr io.Writer, inActions bool, err error) int {
	code := cmd.ExitReport
	msg := fmt.Sprintf("Error: %v", err)

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code = exitCoder.ExitCode()
		msg = exitCoder.Error()
		// cli.Exit("", N).Error() is "exit status N"
		if msg == "" || msg == fmt.Sprintf("exit status %d", code) {
			return code
		}
	}

	if inActions {
		ghactions.WriteError(stdout, msg)
	} else {
		fmt.Fprintln(stderr, msg)
	}
	return code
}
