package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Brightspace/test-reporting-action/adapter"
	"github.com/Brightspace/test-reporting-action/adapter/redis"
	"github.com/Brightspace/test-reporting-action/adapter/webhook"
	"github.com/Brightspace/test-reporting-action/archive"
	"github.com/Brightspace/test-reporting-action/cli/config"
	"github.com/Brightspace/test-reporting-action/ghactions"
	"github.com/Brightspace/test-reporting-action/log"
	"github.com/Brightspace/test-reporting-action/metrics"
	"github.com/Brightspace/test-reporting-action/pipeline"
	"github.com/Brightspace/test-reporting-action/projection"
	"github.com/Brightspace/test-reporting-action/report"
	"github.com/Brightspace/test-reporting-action/schema"
	"github.com/Brightspace/test-reporting-action/timestream"
	"github.com/Brightspace/test-reporting-action/types"
)

// deps are the process boundaries of a command, replaced in tests.
type deps struct {
	lookup       ghactions.LookupFunc
	stdout       io.Writer
	stderr       io.Writer
	now          func() time.Time
	newExchanger func(region string) pipeline.CredentialExchanger
	newWriter    func(region, database string) pipeline.BatchWriter
}

func defaultDeps() deps {
	return deps{
		lookup: os.LookupEnv,
		stdout: os.Stdout,
		stderr: os.Stderr,
		now:    time.Now,
		newExchanger: func(region string) pipeline.CredentialExchanger {
			return timestream.NewRoleExchanger(region)
		},
		newWriter: func(region, database string) pipeline.BatchWriter {
			return timestream.NewWriter(region, database)
		},
	}
}

// SubmitCommand returns the submit command.
func SubmitCommand() *cli.Command {
	return submitCommand(defaultDeps())
}

func submitCommand(d deps) *cli.Command {
	return &cli.Command{
		Name:   "submit",
		Usage:  "Validate a test report and submit it to Timestream",
		Flags:  append(reportFlags(), submitFlags()...),
		Action: func(c *cli.Context) error { return exitError(runSubmit(c, d)) },
	}
}

// reportChoice holds the resolved settings shared by submit and validate.
type reportChoice struct {
	reportPath string
	mode       types.InjectMode
	lms        types.LMSInfo
	debug      bool
	logFormat  string
}

func resolveReportChoice(c *cli.Context, cfg *config.Config) (reportChoice, error) {
	choice := reportChoice{
		reportPath: c.String("report-path"),
		lms: types.LMSInfo{
			BuildNumber: resolveString(c, "lms-build-number", configVal(cfg, func(c *config.Config) string { return c.LMS.BuildNumber })),
			InstanceURL: resolveString(c, "lms-instance-url", configVal(cfg, func(c *config.Config) string { return c.LMS.InstanceURL })),
		},
		debug:     c.Bool("debug"),
		logFormat: resolveString(c, "log-format", configVal(cfg, func(c *config.Config) string { return c.LogFormat })),
	}
	if choice.reportPath == "" {
		return choice, fmt.Errorf("--report-path is required")
	}

	mode, err := types.ParseInjectMode(resolveString(c, "inject-context", configVal(cfg, func(c *config.Config) string { return c.InjectContext })))
	if err != nil {
		return choice, err
	}
	choice.mode = mode
	return choice, nil
}

// submitChoice holds the resolved settings of submit.
type submitChoice struct {
	reportChoice
	source          timestream.SourceCredentials
	roleARN         string
	sessionDuration time.Duration
	region          string
	database        string
	tables          projection.Tables
	dryRun          bool
	archive         config.ArchiveConfig
	adapter         adapterChoice
}

type adapterChoice struct {
	kind    string
	url     string
	stream  string
	maxLen  int
	secret  string
	headers map[string]string
	timeout time.Duration
	retries int
}

func resolveSubmitChoice(c *cli.Context, cfg *config.Config) (submitChoice, error) {
	rc, err := resolveReportChoice(c, cfg)
	if err != nil {
		return submitChoice{}, err
	}

	choice := submitChoice{
		reportChoice: rc,
		source: timestream.SourceCredentials{
			AccessKeyID:     c.String("aws-access-key-id"),
			SecretAccessKey: c.String("aws-secret-access-key"),
			SessionToken:    c.String("aws-session-token"),
		},
		roleARN:         resolveString(c, "role-arn", configVal(cfg, func(c *config.Config) string { return c.RoleARN })),
		sessionDuration: resolveDuration(c, "session-duration", configVal(cfg, func(c *config.Config) time.Duration { return c.SessionDuration.Duration })),
		region:          resolveString(c, "region", configVal(cfg, func(c *config.Config) string { return c.Region })),
		database:        resolveString(c, "database", configVal(cfg, func(c *config.Config) string { return c.Database })),
		tables: projection.Tables{
			Summary: resolveString(c, "summary-table", configVal(cfg, func(c *config.Config) string { return c.Tables.Summary })),
			Details: resolveString(c, "details-table", configVal(cfg, func(c *config.Config) string { return c.Tables.Details })),
		},
		dryRun: resolveBool(c, "dry-run", configVal(cfg, func(c *config.Config) bool { return c.DryRun })),
		archive: resolveArchive(c, cfg),
	}

	headers, err := parseHeaders(c.StringSlice("adapter-header"), configVal(cfg, func(c *config.Config) map[string]string { return c.Adapter.Headers }))
	if err != nil {
		return choice, err
	}
	choice.adapter = adapterChoice{
		kind:    resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type })),
		url:     resolveString(c, "adapter-url", configVal(cfg, func(c *config.Config) string { return c.Adapter.URL })),
		stream:  resolveString(c, "adapter-stream", configVal(cfg, func(c *config.Config) string { return c.Adapter.Stream })),
		maxLen:  resolveInt(c, "adapter-max-len", configVal(cfg, func(c *config.Config) *int { return c.Adapter.MaxLen })),
		secret:  resolveString(c, "adapter-secret", configVal(cfg, func(c *config.Config) string { return c.Adapter.Secret })),
		headers: headers,
		timeout: resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.Timeout.Duration })),
		retries: resolveInt(c, "adapter-retries", configVal(cfg, func(c *config.Config) *int { return c.Adapter.Retries })),
	}

	if choice.roleARN == "" {
		return choice, fmt.Errorf("--role-arn is required")
	}
	if choice.source.AccessKeyID != "" && choice.source.SecretAccessKey == "" {
		return choice, fmt.Errorf("--aws-secret-access-key is required with --aws-access-key-id")
	}
	return choice, nil
}

func resolveArchive(c *cli.Context, cfg *config.Config) config.ArchiveConfig {
	return config.ArchiveConfig{
		Backend:     resolveString(c, "archive-backend", configVal(cfg, func(c *config.Config) string { return c.Archive.Backend })),
		Path:        resolveString(c, "archive-path", configVal(cfg, func(c *config.Config) string { return c.Archive.Path })),
		Dataset:     resolveString(c, "archive-dataset", configVal(cfg, func(c *config.Config) string { return c.Archive.Dataset })),
		Region:      resolveString(c, "archive-region", configVal(cfg, func(c *config.Config) string { return c.Archive.Region })),
		Endpoint:    resolveString(c, "archive-endpoint", configVal(cfg, func(c *config.Config) string { return c.Archive.Endpoint })),
		S3PathStyle: resolveBool(c, "archive-s3-path-style", configVal(cfg, func(c *config.Config) bool { return c.Archive.S3PathStyle })),
	}
}

func newLogger(d deps, rc reportChoice) (*log.Logger, error) {
	logger, err := log.NewLogger(log.Options{
		Format: rc.logFormat,
		Debug:  rc.debug,
		Output: d.stderr,
	})
	if err != nil {
		return nil, configError(err)
	}
	return logger, nil
}

func runSubmit(c *cli.Context, d deps) error {
	cfg, err := loadConfig(c, d.lookup)
	if err != nil {
		return configError(err)
	}
	choice, err := resolveSubmitChoice(c, cfg)
	if err != nil {
		return configError(err)
	}
	logger, err := newLogger(d, choice.reportChoice)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("submitting report", map[string]any{
		"report_path":    choice.reportPath,
		"inject_context": string(choice.mode),
		"dry_run":        choice.dryRun,
		"region":         choice.region,
		"database":       choice.database,
	})

	collector := metrics.NewCollector(string(choice.mode), choice.database, choice.archive.Backend, choice.dryRun)
	defer func() { logger.Info("submission metrics", collector.Snapshot().Fields()) }()

	r, err := finalizeReport(ctx, d, logger, collector, choice.reportChoice)
	if err != nil {
		return err
	}

	opts := []pipeline.SubmitterOption{
		pipeline.WithLogger(logger),
		pipeline.WithCollector(collector),
		pipeline.WithClock(d.now),
	}
	if choice.archive.Backend != "" {
		arch, err := newArchive(ctx, choice.archive)
		if err != nil {
			return configError(err)
		}
		opts = append(opts, pipeline.WithArchiver(arch))
	}
	if choice.adapter.kind != "" {
		notifier, err := newAdapter(choice.adapter)
		if err != nil {
			return configError(err)
		}
		defer func() { _ = notifier.Close() }()
		opts = append(opts, pipeline.WithNotifier(notifier))
	}

	submitter := pipeline.NewSubmitter(pipeline.SubmitConfig{
		Source:          choice.source,
		RoleARN:         choice.roleARN,
		SessionDuration: choice.sessionDuration,
		Database:        choice.database,
		Tables:          choice.tables,
		DryRun:          choice.dryRun,
	}, d.newExchanger(choice.region), d.newWriter(choice.region, choice.database), opts...)

	if _, err := submitter.Submit(ctx, r); err != nil {
		return err
	}

	writeStepSummary(d, logger, r, choice)
	return nil
}

// finalizeReport runs Finalize with the runner environment as context.
func finalizeReport(ctx context.Context, d deps, logger *log.Logger, collector *metrics.Collector, rc reportChoice) (*report.Report, error) {
	registry, err := schema.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}

	provider := &ghactions.EnvProvider{Lookup: d.lookup}
	if rc.mode != types.InjectOff {
		if ec, err := provider.ExecutionContext(ctx); err == nil {
			logger.Info("gathered execution context", map[string]any{
				"organization": ec.Organization,
				"repository":   ec.Repository,
				"workflow":     ec.Workflow,
				"run_id":       ec.RunID,
				"run_attempt":  ec.RunAttempt,
				"branch":       ec.Branch,
				"sha":          ec.SHA,
			})
		}
	}

	return pipeline.NewFinalizer(registry, logger, collector).Finalize(ctx, pipeline.FileSource{Path: rc.reportPath}, pipeline.FinalizeOptions{
		Mode:    rc.mode,
		LMS:     rc.lms,
		Context: provider,
	})
}

// writeStepSummary links the dashboards from the job summary. Skipped on dry
// run since nothing was submitted.
func writeStepSummary(d deps, logger *log.Logger, r *report.Report, choice submitChoice) {
	if choice.dryRun {
		logger.Info("dry run, skipping job summary", nil)
		return
	}
	s := r.Summary()
	markdown := ghactions.StepSummary(s.GitHub.Organization, s.GitHub.Repository)
	logger.Debug("generated job summary", map[string]any{"markdown": markdown})
	if err := ghactions.AppendStepSummary(d.lookup, markdown); err != nil {
		logger.Warn("failed to write job summary", map[string]any{"error": err.Error()})
	}
}

func newArchive(ctx context.Context, cfg config.ArchiveConfig) (*archive.Archive, error) {
	switch cfg.Backend {
	case "fs":
		if cfg.Path == "" {
			return nil, fmt.Errorf("--archive-path is required for the fs archive")
		}
		return archive.NewFS(cfg.Dataset, cfg.Path)
	case "s3":
		bucket, prefix := archive.ParseS3Path(cfg.Path)
		return archive.NewS3(ctx, cfg.Dataset, archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive backend %q (must be fs or s3)", cfg.Backend)
	}
}

func newAdapter(choice adapterChoice) (adapter.Adapter, error) {
	switch choice.kind {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Secret:  choice.secret,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     choice.url,
			Stream:  choice.stream,
			MaxLen:  int64(choice.maxLen),
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q (must be webhook or redis)", choice.kind)
	}
}
