package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Brightspace/test-reporting-action/archive"
	"github.com/Brightspace/test-reporting-action/cli/render"
)

// ShowCommand returns the show command.
// It reads a submitted report back from the archive by report id.
func ShowCommand() *cli.Command {
	return showCommand(defaultDeps())
}

func showCommand(d deps) *cli.Command {
	flags := []cli.Flag{
		configFlag(),
		&cli.StringFlag{
			Name:    "report-id",
			Usage:   "ID of the archived report",
			EnvVars: envVars("REPORT-ID", "REPORT_ID"),
		},
		FormatFlag,
	}
	return &cli.Command{
		Name:   "show",
		Usage:  "Show a report from the archive",
		Flags:  append(flags, archiveFlags()...),
		Action: func(c *cli.Context) error { return exitError(runShow(c, d)) },
	}
}

func runShow(c *cli.Context, d deps) error {
	cfg, err := loadConfig(c, d.lookup)
	if err != nil {
		return configError(err)
	}
	reportID := c.String("report-id")
	if reportID == "" {
		return configError(errors.New("--report-id is required"))
	}
	archiveCfg := resolveArchive(c, cfg)
	if archiveCfg.Backend == "" {
		return configError(errors.New("--archive-backend is required"))
	}
	format, err := render.ParseFormat(c.String("format"))
	if err != nil {
		return configError(err)
	}
	if format == "" {
		format = render.FormatJSON
	}

	arch, err := newArchive(c.Context, archiveCfg)
	if err != nil {
		return configError(err)
	}

	archived, err := archive.ReadReport(c.Context, arch.Dataset(), reportID)
	if err != nil {
		return fmt.Errorf("read archived report: %w", err)
	}
	return render.NewRendererWithWriter(format, d.stdout).Render(render.NewArchivedView(archived))
}
