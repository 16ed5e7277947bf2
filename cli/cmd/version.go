package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/Brightspace/test-reporting-action/cli/render"
	"github.com/Brightspace/test-reporting-action/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	ReportVersion int    `json:"report_version"`
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return versionCommand(defaultDeps(), commit)
}

func versionCommand(d deps, commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: []cli.Flag{FormatFlag},
		Action: func(c *cli.Context) error {
			format, err := render.ParseFormat(c.String("format"))
			if err != nil {
				return cli.Exit(err.Error(), ExitConfig)
			}
			if format == "" {
				format = render.FormatJSON
			}
			return render.NewRendererWithWriter(format, d.stdout).Render(VersionResponse{
				Version:       types.Version,
				Commit:        commit,
				ReportVersion: types.CurrentReportVersion,
			})
		},
	}
}
