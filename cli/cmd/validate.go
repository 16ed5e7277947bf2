package cmd

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/Brightspace/test-reporting-action/cli/render"
	"github.com/Brightspace/test-reporting-action/metrics"
	"github.com/Brightspace/test-reporting-action/types"
)

// ValidateCommand returns the validate command.
// It finalizes a report exactly as submit does and prints the canonical
// result, without contacting AWS.
func ValidateCommand() *cli.Command {
	return validateCommand(defaultDeps())
}

func validateCommand(d deps) *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "Upgrade, reconcile and validate a test report without submitting it",
		Flags:  append(reportFlags(), FormatFlag),
		Action: func(c *cli.Context) error { return exitError(runValidate(c, d)) },
	}
}

func runValidate(c *cli.Context, d deps) error {
	cfg, err := loadConfig(c, d.lookup)
	if err != nil {
		return configError(err)
	}
	choice, err := resolveReportChoice(c, cfg)
	if err != nil {
		return configError(err)
	}
	format, err := render.ParseFormat(c.String("format"))
	if err != nil {
		return configError(err)
	}
	if format == "" {
		format = render.FormatJSON
	}
	out := render.NewRendererWithWriter(format, d.stdout)

	logger, err := newLogger(d, choice)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	collector := metrics.NewCollector(string(choice.mode), "", "", true)
	r, err := finalizeReport(c.Context, d, logger, collector, choice)
	if err != nil {
		var sve *types.SchemaViolationError
		if errors.As(err, &sve) {
			if rerr := out.Render(render.NewViolationsView(sve)); rerr != nil {
				return rerr
			}
		}
		return err
	}

	return out.Render(render.ReportView{Report: r})
}
