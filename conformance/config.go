package conformance

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	imap "github.com/BrianLeishman/go-imap-conform"
)

// Config describes the server under test and how to run the scenarios.
type Config struct {
	Server          ServerConfig  `toml:"server"`
	Accounts        []Account     `toml:"accounts"`
	FolderPrefix    string        `toml:"folder_prefix"`    // Prefix of the per-scenario folders (default: "conform")
	Parallel        int           `toml:"parallel"`         // Scenarios run at once (default: 1)
	ScenarioTimeout string        `toml:"scenario_timeout"` // Upper bound for one scenario (default: "2m")
	Run             []string      `toml:"run"`              // Scenario names to run; empty runs all
	Logging         LoggingConfig `toml:"logging"`
}

// ServerConfig holds connection settings.
type ServerConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`            // default: 143, or 993 with tls
	TLS            bool   `toml:"tls"`             // implicit TLS, no STARTTLS
	TLSSkipVerify  bool   `toml:"tls_skip_verify"` // accept any certificate
	DialTimeout    string `toml:"dial_timeout"`    // default: "10s"
	CommandTimeout string `toml:"command_timeout"` // default: "30s"
	RetryCount     int    `toml:"retry_count"`     // connection attempts after the first (default: 3)
	ReadRetries    int    `toml:"read_retries"`    // reconnect-and-retry budget for SELECT, SEARCH, FETCH (default: 0)
}

// Account is one login on the server under test. OAuth2Token selects
// XOAUTH2 instead of LOGIN.
type Account struct {
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	OAuth2Token string `toml:"oauth2_token"`
}

// LoggingConfig selects the log output.
type LoggingConfig struct {
	Level   string `toml:"level"`   // debug, info, warn, error (default: "info")
	Format  string `toml:"format"`  // text or json (default: "text")
	Verbose bool   `toml:"verbose"` // log the IMAP wire traffic at debug level
}

// DefaultConfig returns a configuration for a local server on port 143.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "localhost",
			DialTimeout:    "10s",
			CommandTimeout: "30s",
			RetryCount:     3,
		},
		FolderPrefix:    "conform",
		Parallel:        1,
		ScenarioTimeout: "2m",
		Logging:         LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	content, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	md, err := toml.Decode(string(content), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Validate reports the first problem with the configuration.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if len(c.Accounts) == 0 {
		return errors.New("at least one [[accounts]] entry is required")
	}
	for i, a := range c.Accounts {
		if a.Username == "" {
			return fmt.Errorf("accounts[%d]: username is required", i)
		}
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	for _, name := range c.Run {
		if _, ok := Lookup(name); !ok {
			return fmt.Errorf("unknown scenario %q", name)
		}
	}
	for _, s := range []string{c.Server.DialTimeout, c.Server.CommandTimeout, c.ScenarioTimeout} {
		if _, err := parseDuration(s); err != nil {
			return err
		}
	}
	return nil
}

// GetPort returns the configured port or the IMAP default for the transport.
func (s ServerConfig) GetPort() int {
	if s.Port != 0 {
		return s.Port
	}
	if s.TLS {
		return 993
	}
	return 143
}

// GetScenarioTimeout parses the scenario timeout.
func (c *Config) GetScenarioTimeout() (time.Duration, error) {
	if c.ScenarioTimeout == "" {
		return 2 * time.Minute, nil
	}
	return parseDuration(c.ScenarioTimeout)
}

// Options turns the server section into session options.
func (c *Config) Options(logger imap.Logger) (imap.Options, error) {
	opts := imap.DefaultOptions()
	opts.TLS = c.Server.TLS
	opts.TLSSkipVerify = c.Server.TLSSkipVerify
	opts.RetryCount = c.Server.RetryCount
	opts.ReadRetries = c.Server.ReadRetries
	opts.Verbose = c.Logging.Verbose
	opts.Logger = logger

	var err error
	if c.Server.DialTimeout != "" {
		if opts.DialTimeout, err = parseDuration(c.Server.DialTimeout); err != nil {
			return opts, err
		}
	}
	if c.Server.CommandTimeout != "" {
		if opts.CommandTimeout, err = parseDuration(c.Server.CommandTimeout); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: negative", s)
	}
	return d, nil
}
