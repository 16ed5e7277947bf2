// Package cmd provides CLI commands for the test-reporting binary.
package cmd

import "github.com/urfave/cli/v2"

// Defaults applied when neither a flag nor the config file sets a value.
const (
	defaultRegion        = "us-east-1"
	defaultDatabase      = "test_reporting"
	defaultSummaryTable  = "summary"
	defaultDetailsTable  = "details"
	defaultInjectContext = "auto"
	defaultLogFormat     = "console"
)

// Flags are bound to GitHub Action inputs (INPUT_<NAME>) and to
// TEST_REPORTING_<NAME> for use outside Actions. Action inputs win.
func envVars(input, plain string) []string {
	return []string{"INPUT_" + input, "TEST_REPORTING_" + plain}
}

// FormatFlag selects output format: json, table, yaml.
var FormatFlag = &cli.StringFlag{
	Name:    "format",
	Aliases: []string{"f"},
	Usage:   "Output format: json, table, yaml",
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to a test-reporting.yaml config file",
		EnvVars: envVars("CONFIG", "CONFIG"),
	}
}

// reportFlags are shared by submit and validate.
func reportFlags() []cli.Flag {
	return []cli.Flag{
		configFlag(),
		&cli.StringFlag{
			Name:    "report-path",
			Usage:   "Path to the test report JSON file",
			EnvVars: envVars("REPORT-PATH", "REPORT_PATH"),
		},
		&cli.StringFlag{
			Name:    "inject-context",
			Usage:   "Provenance injection mode: auto, force or off",
			Value:   defaultInjectContext,
			EnvVars: append(envVars("INJECT-GITHUB-CONTEXT", "INJECT_CONTEXT"), "INPUT_INJECT-CONTEXT"),
		},
		&cli.StringFlag{
			Name:    "lms-build-number",
			Usage:   "LMS build number to add to the report summary",
			EnvVars: envVars("LMS-BUILD-NUMBER", "LMS_BUILD_NUMBER"),
		},
		&cli.StringFlag{
			Name:    "lms-instance-url",
			Usage:   "LMS instance URL to add to the report summary",
			EnvVars: envVars("LMS-INSTANCE-URL", "LMS_INSTANCE_URL"),
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Enable debug logging",
			EnvVars: envVars("DEBUG", "DEBUG"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format: console or json",
			Value:   defaultLogFormat,
			EnvVars: envVars("LOG-FORMAT", "LOG_FORMAT"),
		},
	}
}

// submitFlags are the credential, destination and side-effect flags of submit.
func submitFlags() []cli.Flag {
	return append(archiveFlags(), []cli.Flag{
		// Credentials
		&cli.StringFlag{
			Name:    "aws-access-key-id",
			Usage:   "Source AWS access key ID (default credential chain when empty)",
			EnvVars: append(envVars("AWS-ACCESS-KEY-ID", "AWS_ACCESS_KEY_ID"), "AWS_ACCESS_KEY_ID"),
		},
		&cli.StringFlag{
			Name:    "aws-secret-access-key",
			Usage:   "Source AWS secret access key",
			EnvVars: append(envVars("AWS-SECRET-ACCESS-KEY", "AWS_SECRET_ACCESS_KEY"), "AWS_SECRET_ACCESS_KEY"),
		},
		&cli.StringFlag{
			Name:    "aws-session-token",
			Usage:   "Source AWS session token",
			EnvVars: append(envVars("AWS-SESSION-TOKEN", "AWS_SESSION_TOKEN"), "AWS_SESSION_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "role-arn",
			Usage:   "Role assumed for Timestream writes",
			EnvVars: envVars("ROLE-ARN", "ROLE_ARN"),
		},
		&cli.DurationFlag{
			Name:    "session-duration",
			Usage:   "Assumed role session duration",
			EnvVars: envVars("SESSION-DURATION", "SESSION_DURATION"),
		},
		// Destination
		&cli.StringFlag{
			Name:    "region",
			Usage:   "AWS region",
			Value:   defaultRegion,
			EnvVars: envVars("AWS-REGION", "REGION"),
		},
		&cli.StringFlag{
			Name:    "database",
			Usage:   "Timestream database",
			Value:   defaultDatabase,
			EnvVars: envVars("DATABASE", "DATABASE"),
		},
		&cli.StringFlag{
			Name:    "summary-table",
			Usage:   "Timestream table for summary records",
			Value:   defaultSummaryTable,
			EnvVars: envVars("SUMMARY-TABLE", "SUMMARY_TABLE"),
		},
		&cli.StringFlag{
			Name:    "details-table",
			Usage:   "Timestream table for detail records",
			Value:   defaultDetailsTable,
			EnvVars: envVars("DETAILS-TABLE", "DETAILS_TABLE"),
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Usage:   "Project and log write batches without submitting them",
			EnvVars: envVars("DRY-RUN", "DRY_RUN"),
		},
		// Notification
		&cli.StringFlag{
			Name:    "adapter",
			Usage:   "Notification adapter: webhook or redis (disabled when empty)",
			EnvVars: envVars("ADAPTER", "ADAPTER"),
		},
		&cli.StringFlag{
			Name:    "adapter-url",
			Usage:   "Webhook URL or redis:// URL",
			EnvVars: envVars("ADAPTER-URL", "ADAPTER_URL"),
		},
		&cli.StringFlag{
			Name:  "adapter-stream",
			Usage: "Redis stream key template ({organization}, {repository}, {outcome})",
		},
		&cli.IntFlag{
			Name:  "adapter-max-len",
			Usage: "Approximate Redis stream length",
		},
		&cli.StringFlag{
			Name:    "adapter-secret",
			Usage:   "Webhook HMAC-SHA256 signing secret",
			EnvVars: envVars("ADAPTER-SECRET", "ADAPTER_SECRET"),
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as Key=Value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt notification timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Extra notification attempts",
		},
	}...)
}

// archiveFlags locate the report archive for submit and show.
func archiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "archive-backend",
			Usage:   "Report archive backend: fs or s3 (disabled when empty)",
			EnvVars: envVars("ARCHIVE-BACKEND", "ARCHIVE_BACKEND"),
		},
		&cli.StringFlag{
			Name:    "archive-path",
			Usage:   "Archive location (fs: directory, s3: bucket/prefix)",
			EnvVars: envVars("ARCHIVE-PATH", "ARCHIVE_PATH"),
		},
		&cli.StringFlag{
			Name:  "archive-dataset",
			Usage: "Archive dataset name",
		},
		&cli.StringFlag{
			Name:  "archive-region",
			Usage: "Archive S3 region (default: credential chain)",
		},
		&cli.StringFlag{
			Name:  "archive-endpoint",
			Usage: "Archive S3 endpoint override",
		},
		&cli.BoolFlag{
			Name:  "archive-s3-path-style",
			Usage: "Use path-style S3 addressing",
		},
	}
}
