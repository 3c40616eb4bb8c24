package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/archdrift/internal/config"
)

// ConfigCheckResult holds the result of configuration validation
type ConfigCheckResult struct {
	Missing  []string          // Required settings that are missing
	Present  map[string]string // Settings that are set (masked values)
	Warnings []string          // Non-fatal warnings
	Provider string            // Configured AI provider
}

// envName is the environment variable overriding a configuration key
func envName(key string) string {
	return config.EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// CheckRequiredConfig reports which credentials and locations are configured,
// from the file or the environment
func CheckRequiredConfig(cfg *config.Config) *ConfigCheckResult {
	result := &ConfigCheckResult{
		Missing:  []string{},
		Present:  make(map[string]string),
		Warnings: []string{},
		Provider: cfg.AI.Provider,
	}

	check := func(key, value string, secret, required bool) {
		switch {
		case value != "" && secret:
			result.Present[envName(key)] = maskSecret(value)
		case value != "":
			result.Present[envName(key)] = value
		case required:
			result.Missing = append(result.Missing, envName(key))
		}
	}

	check("ai.api_key", cfg.AI.APIKey, true, cfg.AI.Provider != "ollama")
	check("ai.base_url", cfg.AI.BaseURL, false, false)
	check("platform.github.token", cfg.Platform.GitHub.Token, true, false)
	check("platform.gitlab.token", cfg.Platform.GitLab.Token, true, false)

	if cfg.Model.Path == "" && cfg.Model.Repo == "" {
		result.Missing = append(result.Missing, envName("model.path")+" or "+envName("model.repo"))
	}
	check("model.path", cfg.Model.Path, false, false)
	check("model.repo", cfg.Model.Repo, false, false)

	if cfg.Platform.GitHub.Token == "" && cfg.Platform.GitLab.Token == "" {
		result.Warnings = append(result.Warnings, "no platform token set; only public repositories can be read and nothing can be published")
	}
	if cfg.Publish.OpenPR && cfg.Model.Repo == "" {
		result.Warnings = append(result.Warnings, "publish.open_pr is enabled but no model repository is configured")
	}

	return result
}

// PrintConfigCheck prints the configuration check results
func PrintConfigCheck(w io.Writer, result *ConfigCheckResult) {
	fmt.Fprintln(w, "=== Configuration Check ===")
	fmt.Fprintf(w, "AI provider: %s\n", result.Provider)
	fmt.Fprintln(w, "")

	if len(result.Missing) > 0 {
		fmt.Fprintln(w, "❌ Missing required settings:")
		for _, v := range result.Missing {
			fmt.Fprintf(w, "   - %s\n", v)
		}
		fmt.Fprintln(w, "")
	}

	if len(result.Present) > 0 {
		keys := make([]string, 0, len(result.Present))
		for k := range result.Present {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(w, "✓ Configured settings:")
		for _, k := range keys {
			fmt.Fprintf(w, "   - %s = %s\n", k, result.Present[k])
		}
		fmt.Fprintln(w, "")
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "⚠ Warning: %s\n", warning)
	}

	if len(result.Missing) == 0 {
		fmt.Fprintln(w, "✓ All required configuration is present")
	}

	fmt.Fprintln(w, "============================")
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

// LoadEnvFile loads environment variables from a file, overwriting existing ones.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}

	return scanner.Err()
}
