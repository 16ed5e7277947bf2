package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Brightspace/test-reporting-action/types"
)

// Exit codes of submit and validate.
const (
	ExitSuccess    = 0
	ExitReport     = 1 // unreadable, unknown version, missing context, field collision, schema
	ExitCredential = 2
	ExitSubmission = 3
	ExitConfig     = 4
)

// ErrConfig classifies invalid flags, config files and wiring failures.
var ErrConfig = errors.New("invalid configuration")

// configError marks err as a configuration failure.
func configError(err error) error {
	return fmt.Errorf("%w: %w", ErrConfig, err)
}

// ExitCode maps a pipeline error to its exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrConfig), errors.Is(err, types.ErrInvalidInjectMode):
		return ExitConfig
	case errors.Is(err, types.ErrCredentialExchange):
		return ExitCredential
	case errors.Is(err, types.ErrSubmissionFailed):
		return ExitSubmission
	default:
		return ExitReport
	}
}

// exitError wraps err as a cli.ExitCoder carrying its exit code.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(err.Error(), ExitCode(err))
}
