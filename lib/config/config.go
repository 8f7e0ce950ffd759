// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/webcli/lib/credential"
	"github.com/bureau-foundation/webcli/lib/secret"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local machines. Origins are permissive.
	Development Environment = "development"
	// Production refuses insecure defaults.
	Production Environment = "production"
)

// AnyOrigin in AllowedOrigins accepts every browser origin.
const AnyOrigin = "*"

// Config is the complete webcli server configuration.
type Config struct {
	Environment Environment `yaml:"environment" json:"environment"`

	Server  ServerConfig  `yaml:"server" json:"server"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	Session SessionConfig `yaml:"session" json:"session"`
	Log     LogConfig     `yaml:"log" json:"log"`

	// Per-environment overrides, applied after the base file.
	Development *ConfigOverrides `yaml:"development,omitempty" json:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty" json:"production,omitempty"`
}

// ConfigOverrides contains the sections that can be overridden per
// environment. Empty fields leave the base value alone.
type ConfigOverrides struct {
	Server  *ServerConfig  `yaml:"server,omitempty" json:"server,omitempty"`
	Auth    *AuthConfig    `yaml:"auth,omitempty" json:"auth,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty" json:"session,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty" json:"log,omitempty"`
}

// ServerConfig configures the HTTP listener and browser-facing URLs.
type ServerConfig struct {
	// Port is the TCP listen port. Default: 3001
	Port int `yaml:"port" json:"port"`

	// ListenHost is the bind address. Default: all interfaces.
	ListenHost string `yaml:"listen_host" json:"listen_host"`

	// APIBaseURL is the public URL of this server. The OAuth callback
	// is APIBaseURL + "/auth/google/callback".
	// Default: http://localhost:<port>
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url"`

	// FrontendURL is where the browser UI lives. Successful logins
	// redirect here with the credential in the query string.
	// Default: http://localhost:5173
	FrontendURL string `yaml:"frontend_url" json:"frontend_url"`

	// AllowedOrigins lists the Origin header values accepted on the
	// WebSocket handshake. "*" accepts any origin.
	// Default: ["*"] (development), [FrontendURL] (production)
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// AuthConfig configures the identity provider and credential signing.
type AuthConfig struct {
	GoogleClientID     string `yaml:"google_client_id" json:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret" json:"google_client_secret"`

	// Secret is the credential-signing secret. Prefer SecretFile or
	// the CREDENTIAL_SECRET environment variable over putting the
	// secret in a config file.
	Secret string `yaml:"secret" json:"secret"`

	// SecretFile is a path whose trimmed contents are the secret.
	// Takes precedence over Secret.
	SecretFile string `yaml:"secret_file" json:"secret_file"`

	// CredentialTTL is how long minted credentials stay valid, as a
	// Go duration string. Default: 1h
	CredentialTTL string `yaml:"credential_ttl" json:"credential_ttl"`
}

// SessionConfig configures the session registry.
type SessionConfig struct {
	// IdleTimeout evicts sessions with no activity for this long.
	// "0" disables eviction. Default: 30m
	IdleTimeout string `yaml:"idle_timeout" json:"idle_timeout"`

	// ReapInterval is how often the reaper scans. Default: 1m
	ReapInterval string `yaml:"reap_interval" json:"reap_interval"`

	// DefaultWorkingDirectory is where new sessions start when the
	// client does not ask for a directory. Default: the server
	// process's home directory.
	DefaultWorkingDirectory string `yaml:"default_working_directory" json:"default_working_directory"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level" json:"level"`

	// Format is "text", "json", or "auto" (text on a terminal).
	// Default: auto
	Format string `yaml:"format" json:"format"`
}

// Default returns the base configuration before any file or
// environment variable is applied.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Port:        3001,
			FrontendURL: "http://localhost:5173",
		},
		Auth: AuthConfig{
			CredentialTTL: "1h",
		},
		Session: SessionConfig{
			IdleTimeout:             "30m",
			ReapInterval:            "1m",
			DefaultWorkingDirectory: homeDir,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load builds a Config from defaults, the optional file at path, and
// the process environment. An empty path falls back to WEBCLI_CONFIG;
// if that is also empty no file is read.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	if path == "" {
		path, _ = lookup("WEBCLI_CONFIG")
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	if value, ok := lookup("WEBCLI_ENV"); ok && value != "" {
		cfg.Environment = Environment(value)
	}
	cfg.applyEnvironmentOverrides()

	if err := cfg.applyEnvironmentVariables(lookup); err != nil {
		return nil, err
	}
	cfg.deriveDefaults()
	return cfg, nil
}

// loadFile merges a single configuration file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		server := overrides.Server
		if server.Port != 0 {
			c.Server.Port = server.Port
		}
		if server.ListenHost != "" {
			c.Server.ListenHost = server.ListenHost
		}
		if server.APIBaseURL != "" {
			c.Server.APIBaseURL = server.APIBaseURL
		}
		if server.FrontendURL != "" {
			c.Server.FrontendURL = server.FrontendURL
		}
		if len(server.AllowedOrigins) > 0 {
			c.Server.AllowedOrigins = server.AllowedOrigins
		}
	}

	if overrides.Auth != nil {
		auth := overrides.Auth
		if auth.GoogleClientID != "" {
			c.Auth.GoogleClientID = auth.GoogleClientID
		}
		if auth.GoogleClientSecret != "" {
			c.Auth.GoogleClientSecret = auth.GoogleClientSecret
		}
		if auth.Secret != "" {
			c.Auth.Secret = auth.Secret
		}
		if auth.SecretFile != "" {
			c.Auth.SecretFile = auth.SecretFile
		}
		if auth.CredentialTTL != "" {
			c.Auth.CredentialTTL = auth.CredentialTTL
		}
	}

	if overrides.Session != nil {
		session := overrides.Session
		if session.IdleTimeout != "" {
			c.Session.IdleTimeout = session.IdleTimeout
		}
		if session.ReapInterval != "" {
			c.Session.ReapInterval = session.ReapInterval
		}
		if session.DefaultWorkingDirectory != "" {
			c.Session.DefaultWorkingDirectory = session.DefaultWorkingDirectory
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

func (c *Config) applyEnvironmentVariables(lookup func(string) (string, bool)) error {
	set := func(name string, target *string) {
		if value, ok := lookup(name); ok && value != "" {
			*target = value
		}
	}

	if value, ok := lookup("PORT"); ok && value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("PORT=%q: %w", value, err)
		}
		c.Server.Port = port
	}
	set("API_BASE_URL", &c.Server.APIBaseURL)
	set("FRONTEND_URL", &c.Server.FrontendURL)
	if value, ok := lookup("ALLOWED_ORIGINS"); ok && value != "" {
		c.Server.AllowedOrigins = splitList(value)
	}

	set("GOOGLE_CLIENT_ID", &c.Auth.GoogleClientID)
	set("GOOGLE_CLIENT_SECRET", &c.Auth.GoogleClientSecret)
	// JWT_SECRET is the historical name; CREDENTIAL_SECRET wins.
	set("JWT_SECRET", &c.Auth.Secret)
	set("CREDENTIAL_SECRET", &c.Auth.Secret)
	set("CREDENTIAL_SECRET_FILE", &c.Auth.SecretFile)
	set("CREDENTIAL_TTL", &c.Auth.CredentialTTL)

	set("SESSION_IDLE_TIMEOUT", &c.Session.IdleTimeout)
	set("LOG_LEVEL", &c.Log.Level)
	set("LOG_FORMAT", &c.Log.Format)
	return nil
}

func (c *Config) deriveDefaults() {
	if c.Server.APIBaseURL == "" {
		c.Server.APIBaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	c.Server.APIBaseURL = strings.TrimRight(c.Server.APIBaseURL, "/")

	if len(c.Server.AllowedOrigins) == 0 {
		if c.Environment == Production {
			c.Server.AllowedOrigins = []string{c.Server.FrontendURL}
		} else {
			c.Server.AllowedOrigins = []string{AnyOrigin}
		}
	}
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.FrontendURL == "" {
		errs = append(errs, errors.New("server.frontend_url is required"))
	}
	if len(c.Server.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("server.allowed_origins is empty"))
	}

	if ttl, err := time.ParseDuration(c.Auth.CredentialTTL); err != nil {
		errs = append(errs, fmt.Errorf("auth.credential_ttl: %w", err))
	} else if ttl <= 0 {
		errs = append(errs, fmt.Errorf("auth.credential_ttl must be positive, got %s", ttl))
	}
	if idle, err := time.ParseDuration(c.Session.IdleTimeout); err != nil {
		errs = append(errs, fmt.Errorf("session.idle_timeout: %w", err))
	} else if idle < 0 {
		errs = append(errs, fmt.Errorf("session.idle_timeout must not be negative, got %s", idle))
	}
	if interval, err := time.ParseDuration(c.Session.ReapInterval); err != nil {
		errs = append(errs, fmt.Errorf("session.reap_interval: %w", err))
	} else if interval <= 0 {
		errs = append(errs, fmt.Errorf("session.reap_interval must be positive, got %s", interval))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of auto, text, json; got %q", c.Log.Format))
	}

	if c.Environment == Production {
		if c.UsesInsecureSecret() {
			errs = append(errs, errors.New("production requires a credential secret (CREDENTIAL_SECRET or auth.secret_file)"))
		}
		if c.PermissiveOrigins() {
			errs = append(errs, errors.New("production must not allow any origin (\"*\")"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// UsesInsecureSecret reports whether credentials would be signed with
// the built-in default secret.
func (c *Config) UsesInsecureSecret() bool {
	if c.Auth.SecretFile != "" {
		return false
	}
	return c.Auth.Secret == "" || c.Auth.Secret == credential.InsecureDefaultSecret
}

// PermissiveOrigins reports whether any browser origin is accepted.
func (c *Config) PermissiveOrigins() bool {
	for _, origin := range c.Server.AllowedOrigins {
		if origin == AnyOrigin {
			return true
		}
	}
	return false
}

// OAuthEnabled reports whether the Google login routes can work.
func (c *Config) OAuthEnabled() bool {
	return c.Auth.GoogleClientID != "" && c.Auth.GoogleClientSecret != ""
}

// CallbackURL is the OAuth redirect URI registered with the provider.
func (c *Config) CallbackURL() string {
	return c.Server.APIBaseURL + "/auth/google/callback"
}

// ListenAddress is the host:port passed to net.Listen.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenHost, c.Server.Port)
}

// CredentialTTL returns the parsed credential lifetime. Call Validate
// first; an unparseable value yields credential.DefaultTTL.
func (c *Config) CredentialTTL() time.Duration {
	return parseDurationOr(c.Auth.CredentialTTL, credential.DefaultTTL)
}

// IdleTimeout returns the parsed session idle timeout. Zero disables
// eviction.
func (c *Config) IdleTimeout() time.Duration {
	return parseDurationOr(c.Session.IdleTimeout, 30*time.Minute)
}

// ReapInterval returns the parsed reaper scan interval.
func (c *Config) ReapInterval() time.Duration {
	return parseDurationOr(c.Session.ReapInterval, time.Minute)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// LoadSecret returns the signing secret in a locked buffer. The caller
// owns the buffer and must Close it. When no secret is configured the
// insecure built-in default is returned; callers log a warning via
// UsesInsecureSecret.
func (c *Config) LoadSecret() (*secret.Buffer, error) {
	if c.Auth.SecretFile != "" {
		return secret.ReadFile(c.Auth.SecretFile)
	}
	value := c.Auth.Secret
	if value == "" {
		value = credential.InsecureDefaultSecret
	}
	return secret.NewFromBytes([]byte(value))
}
