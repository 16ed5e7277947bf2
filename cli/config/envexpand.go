// Package config handles YAML config file loading for test-reporting.
package config

import (
	"os"
	"regexp"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(string) (string, bool)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// - ${VAR} expands to the env var value, or empty string if unset
// - ${VAR:-default} expands to the env var value, or "default" if unset/empty
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} patterns using the process
// environment.
func ExpandEnv(input string) string {
	return ExpandEnvWith(input, os.LookupEnv)
}

// ExpandEnvWith replaces ${VAR} and ${VAR:-default} patterns using lookup.
//
// Unset variables without defaults expand to empty string. Missing secrets
// such as role_arn surface later in Validate.
func ExpandEnvWith(input string, lookup LookupFunc) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		if value, ok := lookup(groups[1]); ok && value != "" {
			return value
		}
		if len(groups) >= 3 && groups[2] != "" {
			return groups[2]
		}
		return ""
	})
}
