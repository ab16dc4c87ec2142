package conformance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	imap "github.com/BrianLeishman/go-imap-conform"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conform.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
folder_prefix = "ct"
parallel = 4
run = ["append-uid"]

[server]
host = "mail.example.com"
tls = true
command_timeout = "5s"

[[accounts]]
username = "a@example.com"
password = "pw"

[[accounts]]
username = "b@example.com"
oauth2_token = "tok"

[logging]
format = "json"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "mail.example.com", cfg.Server.Host)
	assert.Equal(t, 993, cfg.Server.GetPort())
	assert.Equal(t, "ct", cfg.FolderPrefix)
	assert.Equal(t, 4, cfg.Parallel)
	assert.Equal(t, []string{"append-uid"}, cfg.Run)
	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "tok", cfg.Accounts[1].OAuth2Token)
	assert.Equal(t, "json", cfg.Logging.Format)

	// defaults survive for keys the file leaves out
	assert.Equal(t, "10s", cfg.Server.DialTimeout)
	assert.Equal(t, 3, cfg.Server.RetryCount)
	assert.Equal(t, "info", cfg.Logging.Level)

	opts, err := cfg.Options(imap.DiscardLogger())
	require.NoError(t, err)
	assert.True(t, opts.TLS)
	assert.Equal(t, 10*time.Second, opts.DialTimeout)
	assert.Equal(t, 5*time.Second, opts.CommandTimeout)
	assert.Equal(t, 3, opts.RetryCount)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeConfig(t, "parallel = \n"))
	assert.ErrorContains(t, err, "parsing")

	_, err = LoadConfig(writeConfig(t, "[server]\nhost = \"x\"\nhots = \"y\"\n"))
	assert.ErrorContains(t, err, "unknown keys: server.hots")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"no host", func(c *Config) { c.Server.Host = "" }, "server.host is required"},
		{"no accounts", func(c *Config) { c.Accounts = nil }, "at least one"},
		{"no username", func(c *Config) { c.Accounts[0].Username = "" }, "accounts[0]: username is required"},
		{"parallel", func(c *Config) { c.Parallel = 0 }, "parallel must be at least 1"},
		{"unknown scenario", func(c *Config) { c.Run = []string{"copy-uid", "nope"} }, `unknown scenario "nope"`},
		{"bad duration", func(c *Config) { c.Server.DialTimeout = "soon" }, `invalid duration "soon"`},
		{"negative duration", func(c *Config) { c.ScenarioTimeout = "-1s" }, "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestServerConfigGetPort(t *testing.T) {
	assert.Equal(t, 143, ServerConfig{}.GetPort())
	assert.Equal(t, 993, ServerConfig{TLS: true}.GetPort())
	assert.Equal(t, 3143, ServerConfig{Port: 3143, TLS: true}.GetPort())
}

func TestGetScenarioTimeout(t *testing.T) {
	cfg := DefaultConfig()
	d, err := cfg.GetScenarioTimeout()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	cfg.ScenarioTimeout = ""
	d, err = cfg.GetScenarioTimeout()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	cfg.ScenarioTimeout = "90s"
	d, err = cfg.GetScenarioTimeout()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
}

func TestExampleConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "conform.example.toml"))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}
