package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides, e.g. ARCHDRIFT_AI_PROVIDER -> ai.provider
const EnvPrefix = "ARCHDRIFT_"

// Config represents the application configuration
type Config struct {
	General  GeneralConfig  `koanf:"general"`
	AI       AIConfig       `koanf:"ai"`
	Platform PlatformConfig `koanf:"platform"`
	Model    ModelConfig    `koanf:"model"`
	Analysis AnalysisConfig `koanf:"analysis"`
	Patch    PatchConfig    `koanf:"patch"`
	Publish  PublishConfig  `koanf:"publish"`
}

type GeneralConfig struct {
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	LogDir    string `koanf:"log_dir"`
}

type AIConfig struct {
	Provider      string  `koanf:"provider"`
	APIKey        string  `koanf:"api_key"`
	BaseURL       string  `koanf:"base_url"`
	FastModel     string  `koanf:"fast_model"`
	AdvancedModel string  `koanf:"advanced_model"`
	Temperature   float64 `koanf:"temperature"`
	MaxTokens     int     `koanf:"max_tokens"`
}

type PlatformConfig struct {
	GitHub HostConfig `koanf:"github"`
	GitLab HostConfig `koanf:"gitlab"`
}

// HostConfig holds credentials for one hosting platform. An empty URL means the public service.
type HostConfig struct {
	Token string `koanf:"token"`
	URL   string `koanf:"url"`
}

type ModelConfig struct {
	Path   string `koanf:"path"`
	Repo   string `koanf:"repo"`
	Ref    string `koanf:"ref"`
	Format string `koanf:"format"`
}

type AnalysisConfig struct {
	MaxFiles          int           `koanf:"max_files"`
	MaxLines          int           `koanf:"max_lines"`
	Timeout           time.Duration `koanf:"timeout"`
	ExtraSkipPatterns []string      `koanf:"extra_skip_patterns"`
}

type PatchConfig struct {
	Enabled    bool              `koanf:"enabled"`
	UseAI      bool              `koanf:"use_ai"`
	Validators map[string]string `koanf:"validators"`
}

type PublishConfig struct {
	Comment    bool   `koanf:"comment"`
	OpenPR     bool   `koanf:"open_pr"`
	Draft      bool   `koanf:"draft"`
	BaseBranch string `koanf:"base_branch"`
	CIOutput   string `koanf:"ci_output"`
}

// Defaults returns the built-in configuration values
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"general.log_level":            "info",
		"general.log_format":           "auto",
		"general.log_dir":              "",
		"ai.provider":                  "openai",
		"ai.fast_model":                "gpt-4o-mini",
		"ai.advanced_model":            "gpt-4o",
		"ai.temperature":               0.2,
		"ai.max_tokens":                8192,
		"model.format":                 "auto",
		"analysis.max_files":           50,
		"analysis.max_lines":           5000,
		"analysis.timeout":             15 * time.Minute,
		"patch.enabled":                false,
		"patch.use_ai":                 true,
		"patch.validators.likec4":      "likec4 validate {workspace}",
		"patch.validators.structurizr": "structurizr-cli validate -workspace {file}",
		"publish.comment":              false,
		"publish.open_pr":              false,
		"publish.draft":                true,
		"publish.base_branch":          "",
		"publish.ci_output":            "",
		"platform.github.url":          "",
		"platform.gitlab.url":          "https://gitlab.com",
		"analysis.extra_skip_patterns": []string{},
	}
}

// LoadConfig loads the configuration from defaults, a TOML file and the environment
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	defaults := Defaults()
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" && fileExists(configPath) {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./archdrift.toml", "$HOME/.archdrift.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if fileExists(path) {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	keys := envKeyMap(defaults)
	k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		name := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if key, ok := keys[name]; ok {
			return key
		}
		return strings.Replace(name, "_", ".", 1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// envKeyMap maps "ai_api_key" style names onto their dotted keys so that
// keys containing underscores survive the env transform.
func envKeyMap(defaults map[string]interface{}) map[string]string {
	keys := make(map[string]string, len(defaults)+4)
	for key := range defaults {
		keys[strings.ReplaceAll(key, ".", "_")] = key
	}
	for _, key := range []string{"ai.api_key", "ai.base_url", "platform.github.token", "platform.gitlab.token", "model.path", "model.repo", "model.ref"} {
		keys[strings.ReplaceAll(key, ".", "_")] = key
	}
	return keys
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if fileExists(configPath) {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# archdrift configuration

[general]
log_level = "info"
log_format = "auto"   # auto | console | json
# log_dir = "run_logs"

[ai]
provider = "openai"   # openai | claude | gemini | ollama
api_key = "your-api-key"
fast_model = "gpt-4o-mini"
advanced_model = "gpt-4o"
temperature = 0.2

[platform.github]
token = "your-github-token"

[platform.gitlab]
url = "https://gitlab.com"
token = "your-gitlab-token"

[model]
repo = "https://github.com/acme/architecture"
ref = "main"
path = "model"
format = "auto"       # auto | likec4 | structurizr

[analysis]
max_files = 50
max_lines = 5000
timeout = "15m"

[patch]
enabled = false
use_ai = true

[patch.validators]
likec4 = "likec4 validate {workspace}"
structurizr = "structurizr-cli validate -workspace {file}"

[publish]
comment = true
open_pr = false
draft = true
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	switch config.AI.Provider {
	case "openai", "claude", "gemini", "ollama":
	case "":
		return fmt.Errorf("ai provider is required")
	default:
		return fmt.Errorf("unsupported ai provider: %s", config.AI.Provider)
	}

	if config.AI.Provider != "ollama" && config.AI.APIKey == "" {
		return fmt.Errorf("ai api_key is required for provider %s", config.AI.Provider)
	}

	if config.AI.FastModel == "" || config.AI.AdvancedModel == "" {
		return fmt.Errorf("ai fast_model and advanced_model are required")
	}

	if config.Model.Path == "" && config.Model.Repo == "" {
		return fmt.Errorf("model path or model repo is required")
	}

	switch config.Model.Format {
	case "auto", "likec4", "structurizr":
	default:
		return fmt.Errorf("unsupported model format: %s", config.Model.Format)
	}

	if config.Analysis.MaxFiles <= 0 {
		return fmt.Errorf("analysis max_files must be positive")
	}

	if config.Analysis.MaxLines <= 0 {
		return fmt.Errorf("analysis max_lines must be positive")
	}

	if config.Analysis.Timeout < 0 {
		return fmt.Errorf("analysis timeout must not be negative")
	}

	if config.Publish.OpenPR && config.Model.Repo == "" {
		return fmt.Errorf("publish open_pr requires model repo")
	}

	return nil
}
