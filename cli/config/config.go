package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Brightspace/test-reporting-action/types"
)

// Config represents a test-reporting.yaml configuration file.
// All values are optional and act as defaults for submit and validate flags.
// CLI flags always override config values.
type Config struct {
	Region          string        `yaml:"region"`
	RoleARN         string        `yaml:"role_arn"`
	Database        string        `yaml:"database"`
	Tables          TablesConfig  `yaml:"tables"`
	SessionDuration Duration      `yaml:"session_duration"`
	InjectContext   string        `yaml:"inject_context"`
	DryRun          bool          `yaml:"dry_run"`
	LogFormat       string        `yaml:"log_format"`
	LMS             types.LMSInfo `yaml:"lms"`
	Archive         ArchiveConfig `yaml:"archive"`
	Adapter         AdapterConfig `yaml:"adapter"`
}

// TablesConfig names the Timestream tables.
type TablesConfig struct {
	Summary string `yaml:"summary"`
	Details string `yaml:"details"`
}

// ArchiveConfig holds report archive defaults from the config file.
// An empty backend disables archiving.
type ArchiveConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds notification adapter defaults from the config file.
// An empty type disables notifications.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Stream  string            `yaml:"stream,omitempty"`
	MaxLen  *int              `yaml:"max_len,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "1h").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values. Presence of required values is checked
// by the command after flags are merged.
func (c *Config) Validate() error {
	var problems []string

	if c.InjectContext != "" {
		if _, err := types.ParseInjectMode(c.InjectContext); err != nil {
			problems = append(problems, err.Error())
		}
	}
	switch c.LogFormat {
	case "", "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q must be json or console", c.LogFormat))
	}
	switch c.Archive.Backend {
	case "", "fs", "s3":
	default:
		problems = append(problems, fmt.Sprintf("archive.backend %q must be fs or s3", c.Archive.Backend))
	}
	if c.Archive.Backend != "" && c.Archive.Path == "" {
		problems = append(problems, "archive.path is required when archive.backend is set")
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		problems = append(problems, fmt.Sprintf("adapter.type %q must be webhook or redis", c.Adapter.Type))
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		problems = append(problems, "adapter.url is required when adapter.type is set")
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		problems = append(problems, "adapter.retries must be >= 0")
	}
	if c.Adapter.MaxLen != nil && *c.Adapter.MaxLen < 0 {
		problems = append(problems, "adapter.max_len must be >= 0")
	}
	if c.SessionDuration.Duration < 0 {
		problems = append(problems, "session_duration must be positive")
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}
