package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Brightspace/test-reporting-action/cli/config"
	"github.com/Brightspace/test-reporting-action/ghactions"
)

// Precedence for every setting: explicit flag or its env var, then the
// config file, then the flag default.

func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if cfgVal != "" {
		return cfgVal
	}
	return c.String(name)
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveInt(c *cli.Context, name string, cfgVal *int) int {
	if c.IsSet(name) || cfgVal == nil {
		return c.Int(name)
	}
	return *cfgVal
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// configVal reads a field from an optional config.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// loadConfig loads --config when set. Returns nil without a config file.
func loadConfig(c *cli.Context, lookup ghactions.LookupFunc) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	cfg, err := config.LoadWith(path, config.LookupFunc(lookup))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseHeaders parses Key=Value pairs over the config file headers.
func parseHeaders(pairs []string, base map[string]string) (map[string]string, error) {
	if len(pairs) == 0 && len(base) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(base)+len(pairs))
	for k, v := range base {
		headers[k] = v
	}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q (want Key=Value)", pair)
		}
		headers[strings.TrimSpace(k)] = v
	}
	return headers, nil
}
