package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archdrift/internal/config"
	"github.com/archdrift/internal/providers"
	"github.com/archdrift/pkg/models"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "****", maskSecret("12345678"))
	assert.Equal(t, "gh****yz", maskSecret("ghp_abcdefxyz"))
}

func TestCheckRequiredConfig(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		cfg := &config.Config{AI: config.AIConfig{Provider: "openai"}}

		result := CheckRequiredConfig(cfg)

		assert.Equal(t, []string{
			"ARCHDRIFT_AI_API_KEY",
			"ARCHDRIFT_MODEL_PATH or ARCHDRIFT_MODEL_REPO",
		}, result.Missing)
		assert.Len(t, result.Warnings, 1)
	})

	t.Run("ollama needs no key", func(t *testing.T) {
		cfg := &config.Config{
			AI:    config.AIConfig{Provider: "ollama", BaseURL: "http://localhost:11434"},
			Model: config.ModelConfig{Path: "./architecture"},
			Platform: config.PlatformConfig{
				GitHub: config.HostConfig{Token: "ghp_abcdefxyz"},
			},
		}

		result := CheckRequiredConfig(cfg)

		assert.Empty(t, result.Missing)
		assert.Empty(t, result.Warnings)
		assert.Equal(t, "gh****yz", result.Present["ARCHDRIFT_PLATFORM_GITHUB_TOKEN"])
		assert.Equal(t, "./architecture", result.Present["ARCHDRIFT_MODEL_PATH"])
		assert.Equal(t, "http://localhost:11434", result.Present["ARCHDRIFT_AI_BASE_URL"])
	})
}

func TestPrintConfigCheck(t *testing.T) {
	var buf bytes.Buffer
	PrintConfigCheck(&buf, &ConfigCheckResult{
		Missing:  []string{"ARCHDRIFT_AI_API_KEY"},
		Present:  map[string]string{"ARCHDRIFT_MODEL_REPO": "https://github.com/acme/arch", "ARCHDRIFT_MODEL_PATH": "model"},
		Provider: "openai",
	})

	out := buf.String()
	assert.Contains(t, out, "AI provider: openai")
	assert.Contains(t, out, "   - ARCHDRIFT_AI_API_KEY\n")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("ARCHDRIFT_MODEL_PATH")), bytes.Index(buf.Bytes(), []byte("ARCHDRIFT_MODEL_REPO")))
	assert.NotContains(t, out, "All required configuration is present")
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv("ARCHDRIFT_AI_PROVIDER", "openai")
	t.Setenv("ARCHDRIFT_MODEL_REPO", "")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nARCHDRIFT_AI_PROVIDER=\"claude\"\nexport ARCHDRIFT_MODEL_REPO='https://github.com/acme/arch'\nnot a pair\n"), 0o644))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "claude", os.Getenv("ARCHDRIFT_AI_PROVIDER"))
	assert.Equal(t, "https://github.com/acme/arch", os.Getenv("ARCHDRIFT_MODEL_REPO"))

	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing")))
}

func TestCloneCredentials(t *testing.T) {
	cfg := &config.Config{Platform: config.PlatformConfig{
		GitHub: config.HostConfig{Token: "gh-token"},
		GitLab: config.HostConfig{Token: "gl-token", URL: "https://git.acme.io"},
	}}
	detector := providers.NewDetector().AddHost(models.PlatformGitLab, cfg.Platform.GitLab.URL)
	creds := cloneCredentials(cfg, detector)

	user, pass := creds("https://github.com/acme/arch.git")
	assert.Equal(t, "x-access-token", user)
	assert.Equal(t, "gh-token", pass)

	user, pass = creds("https://git.acme.io/platform/arch.git")
	assert.Equal(t, "oauth2", user)
	assert.Equal(t, "gl-token", pass)

	user, pass = creds("https://bitbucket.org/acme/arch")
	assert.Empty(t, user)
	assert.Empty(t, pass)
}
