package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the apismoke configuration
type Config struct {
	BaseURL        string            `json:"baseURL,omitempty" yaml:"baseURL,omitempty" env:"API_BASE"`
	Timeout        *float64          `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"API_TIMEOUT"`                // seconds
	ProbeTimeout   *float64          `json:"probeTimeout,omitempty" yaml:"probeTimeout,omitempty" env:"API_PROBE_TIMEOUT"` // seconds
	Retries        *int              `json:"retries,omitempty" yaml:"retries,omitempty" env:"API_RETRIES"`
	BackoffFactor  *float64          `json:"backoffFactor,omitempty" yaml:"backoffFactor,omitempty" env:"API_BACKOFF_FACTOR"`
	UserAgent      string            `json:"userAgent,omitempty" yaml:"userAgent,omitempty" env:"API_UA"`
	AcceptLanguage string            `json:"acceptLanguage,omitempty" yaml:"acceptLanguage,omitempty" env:"API_ACCEPT_LANGUAGE"`
	Connection     string            `json:"connection,omitempty" yaml:"connection,omitempty" env:"API_CONNECTION"`
	APIKey         string            `json:"apiKey,omitempty" yaml:"apiKey,omitempty" env:"API_KEY"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" env:"API_HEADERS" envKeyValSeparator:":"`
	Proxy          string            `json:"proxy,omitempty" yaml:"proxy,omitempty" env:"API_PROXY"`
	ValidateSSL    *bool             `json:"validateSSL,omitempty" yaml:"validateSSL,omitempty" env:"API_VALIDATE_SSL"`
	Strict         *bool             `json:"strict,omitempty" yaml:"strict,omitempty" env:"API_STRICT"`
	SkipOnBlock    *bool             `json:"skipOnBlock,omitempty" yaml:"skipOnBlock,omitempty" env:"API_SKIP_ON_403"`
	LogLevel       string            `json:"logLevel,omitempty" yaml:"logLevel,omitempty" env:"LOG_LEVEL"`
	Reporters      []string          `json:"reporters,omitempty" yaml:"reporters,omitempty" env:"-"`
	OutputDir      string            `json:"outputDir,omitempty" yaml:"outputDir,omitempty" env:"-"`
	Parallel       *bool             `json:"parallel,omitempty" yaml:"parallel,omitempty" env:"-"`
	Concurrency    int               `json:"concurrency,omitempty" yaml:"concurrency,omitempty" env:"-"`
	Bail           *bool             `json:"bail,omitempty" yaml:"bail,omitempty" env:"-"`
	Verbose        *bool             `json:"verbose,omitempty" yaml:"verbose,omitempty" env:"-"`
	NoColor        *bool             `json:"noColor,omitempty" yaml:"noColor,omitempty" env:"-"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// IntPtr returns a pointer to n
func IntPtr(n int) *int {
	return &n
}

// FloatPtr returns a pointer to f
func FloatPtr(f float64) *float64 {
	return &f
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetStrict returns the strict setting, defaulting to false
func (c *Config) GetStrict() bool {
	return getBool(c.Strict, false)
}

// GetSkipOnBlock returns the skip-on-block setting, defaulting to true
func (c *Config) GetSkipOnBlock() bool {
	return getBool(c.SkipOnBlock, true)
}

// GetParallel returns the parallel setting, defaulting to false
func (c *Config) GetParallel() bool {
	return getBool(c.Parallel, false)
}

// GetBail returns the bail setting, defaulting to false
func (c *Config) GetBail() bool {
	return getBool(c.Bail, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetRetries returns the retry count, defaulting to DefaultRetries
func (c *Config) GetRetries() int {
	if c.Retries == nil {
		return DefaultRetries
	}
	return *c.Retries
}

// GetBackoffFactor returns the backoff factor, defaulting to DefaultBackoffFactor
func (c *Config) GetBackoffFactor() float64 {
	if c.BackoffFactor == nil {
		return DefaultBackoffFactor
	}
	return *c.BackoffFactor
}

// GetTimeout returns the per-request timeout in seconds, defaulting to DefaultTimeout
func (c *Config) GetTimeout() float64 {
	if c.Timeout == nil {
		return DefaultTimeout
	}
	return *c.Timeout
}

// GetProbeTimeout returns the probe timeout in seconds, defaulting to DefaultProbeTimeout
func (c *Config) GetProbeTimeout() float64 {
	if c.ProbeTimeout == nil {
		return DefaultProbeTimeout
	}
	return *c.ProbeTimeout
}

// TimeoutDuration converts the per-request timeout to a duration
func (c *Config) TimeoutDuration() time.Duration {
	return seconds(c.GetTimeout())
}

// ProbeTimeoutDuration converts the probe timeout to a duration
func (c *Config) ProbeTimeoutDuration() time.Duration {
	return seconds(c.GetProbeTimeout())
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Level parses LogLevel, falling back to warn
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.WarnLevel
	}
	return level
}

// RequestHeaders returns the default headers sent with every request
func (c *Config) RequestHeaders() map[string]string {
	headers := map[string]string{
		"Accept": "application/json",
	}
	if c.UserAgent != "" {
		headers["User-Agent"] = c.UserAgent
	}
	if c.AcceptLanguage != "" {
		headers["Accept-Language"] = c.AcceptLanguage
	}
	if c.Connection != "" {
		headers["Connection"] = c.Connection
	}
	if c.APIKey != "" {
		headers[APIKeyHeader] = c.APIKey
	}
	for k, v := range c.Headers {
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base URL %q: scheme must be http or https", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base URL %q: missing host", c.BaseURL)
	}
	if c.GetTimeout() <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.GetTimeout())
	}
	if c.GetProbeTimeout() <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %v", c.GetProbeTimeout())
	}
	if c.GetRetries() < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.GetRetries())
	}
	if c.GetBackoffFactor() < 0 {
		return fmt.Errorf("backoff factor must not be negative, got %v", c.GetBackoffFactor())
	}
	switch strings.ToLower(c.Connection) {
	case "", "close", "keep-alive":
	default:
		return fmt.Errorf("connection must be close or keep-alive, got %q", c.Connection)
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}
	if c.Proxy != "" {
		if _, err := url.Parse(c.Proxy); err != nil {
			return fmt.Errorf("invalid proxy URL %q: %w", c.Proxy, err)
		}
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"apismoke.json",
	"apismoke.yaml",
	"apismoke.yml",
	".apismoke.json",
}

// DefaultEnvFiles are loaded when present, in order
var DefaultEnvFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads the dotenv files that exist. Variables already set in
// the process environment are left untouched. It returns how many files
// were loaded.
func LoadEnvFiles(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load builds the effective configuration: defaults, then the config file
// (explicit path or discovered in the working directory), then the
// environment.
func Load(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields whose environment variable is set. The
// environment is parsed into an empty Config so unset variables stay nil
// and Merge keeps the values already in cfg.
func ApplyEnv(cfg *Config) error {
	overrides := &Config{}
	if err := env.Parse(overrides); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	*cfg = *cfg.Merge(overrides)
	return nil
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.BaseURL != "" {
		result.BaseURL = other.BaseURL
	}
	if other.UserAgent != "" {
		result.UserAgent = other.UserAgent
	}
	if other.AcceptLanguage != "" {
		result.AcceptLanguage = other.AcceptLanguage
	}
	if other.Connection != "" {
		result.Connection = other.Connection
	}
	if other.APIKey != "" {
		result.APIKey = other.APIKey
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.LogLevel != "" {
		result.LogLevel = other.LogLevel
	}
	if other.OutputDir != "" {
		result.OutputDir = other.OutputDir
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}

	// Pointer fields - only override if explicitly set in other config
	if other.Timeout != nil {
		result.Timeout = other.Timeout
	}
	if other.ProbeTimeout != nil {
		result.ProbeTimeout = other.ProbeTimeout
	}
	if other.Retries != nil {
		result.Retries = other.Retries
	}
	if other.BackoffFactor != nil {
		result.BackoffFactor = other.BackoffFactor
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.Strict != nil {
		result.Strict = other.Strict
	}
	if other.SkipOnBlock != nil {
		result.SkipOnBlock = other.SkipOnBlock
	}
	if other.Parallel != nil {
		result.Parallel = other.Parallel
	}
	if other.Bail != nil {
		result.Bail = other.Bail
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	// Merge headers
	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	// Merge reporters
	if len(other.Reporters) > 0 {
		result.Reporters = other.Reporters
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
