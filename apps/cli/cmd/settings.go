package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apismoke/packages/core/config"
)

// settingsFlags are the flags shared by every command that talks to a target
type settingsFlags struct {
	configPath string
	envFile    string
	baseURL    string
	timeout    float64
	retries    int
	backoff    float64
	proxy      string
	apiKey     string
	insecure   bool
	strict     bool
	logLevel   string
	verbose    int
	noColor    bool
}

func (s *settingsFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.configPath, "config", getEnvString("APISMOKE_CONFIG", ""), "Path to config file (env: APISMOKE_CONFIG)")
	f.StringVar(&s.envFile, "env-file", getEnvString("APISMOKE_ENV_FILE", ""), "Extra .env file loaded after .env and .env.local (env: APISMOKE_ENV_FILE)")
	f.StringVarP(&s.baseURL, "base-url", "b", "", "Target base URL (overrides API_BASE)")
	f.Float64Var(&s.timeout, "timeout", 0, "Per-request timeout in seconds (overrides API_TIMEOUT)")
	f.IntVar(&s.retries, "retries", 0, "Retries after the first attempt (overrides API_RETRIES)")
	f.Float64Var(&s.backoff, "backoff-factor", 0, "Exponential backoff factor (overrides API_BACKOFF_FACTOR)")
	f.StringVar(&s.proxy, "proxy", "", "Proxy URL for HTTP requests (overrides API_PROXY)")
	f.StringVar(&s.apiKey, "api-key", "", "Value sent as x-api-key (overrides API_KEY)")
	f.BoolVarP(&s.insecure, "insecure", "k", false, "Disable SSL certificate validation")
	f.BoolVar(&s.strict, "strict", false, "Xfail instead of skip when the target is blocked or unreachable")
	f.StringVar(&s.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	f.CountVarP(&s.verbose, "verbose", "v", "Verbose output (-v, -vv for debug logs)")
	f.BoolVar(&s.noColor, "no-color", getEnvBool("NO_COLOR", false), "Disable colored output (env: NO_COLOR)")
}

// overrides turns the flags the user actually set into a partial config
func (s *settingsFlags) overrides(cmd *cobra.Command) *config.Config {
	changed := cmd.Flags().Changed
	o := &config.Config{}
	if changed("base-url") {
		o.BaseURL = s.baseURL
	}
	if changed("timeout") {
		o.Timeout = config.FloatPtr(s.timeout)
	}
	if changed("retries") {
		o.Retries = config.IntPtr(s.retries)
	}
	if changed("backoff-factor") {
		o.BackoffFactor = config.FloatPtr(s.backoff)
	}
	if changed("proxy") {
		o.Proxy = s.proxy
	}
	if changed("api-key") {
		o.APIKey = s.apiKey
	}
	if changed("insecure") {
		o.ValidateSSL = config.BoolPtr(!s.insecure)
	}
	if changed("strict") {
		o.Strict = config.BoolPtr(s.strict)
	}
	if changed("log-level") {
		o.LogLevel = s.logLevel
	}
	if s.verbose > 0 {
		o.Verbose = config.BoolPtr(true)
	}
	if changed("no-color") {
		o.NoColor = config.BoolPtr(s.noColor)
	}
	return o
}

// load resolves defaults < file < env < flags and validates the result.
// Every failure is a configuration error.
func (s *settingsFlags) load(cmd *cobra.Command) (*config.Config, error) {
	if _, err := config.LoadEnvFiles(config.DefaultEnvFiles...); err != nil {
		return nil, withExitCode(ExitConfigError, fmt.Errorf("load .env files: %w", err))
	}
	if s.envFile != "" {
		n, err := config.LoadEnvFiles(s.envFile)
		if err != nil {
			return nil, withExitCode(ExitConfigError, fmt.Errorf("load %s: %w", s.envFile, err))
		}
		if n == 0 {
			return nil, withExitCode(ExitConfigError, fmt.Errorf("env file not found: %s", s.envFile))
		}
	}

	cfg, err := config.Load(s.configPath)
	if err != nil {
		return nil, withExitCode(ExitConfigError, err)
	}
	cfg = cfg.Merge(s.overrides(cmd))

	if err := cfg.Validate(); err != nil {
		return nil, withExitCode(ExitConfigError, fmt.Errorf("invalid configuration: %w", err))
	}
	return cfg, nil
}

// logger builds the diagnostic logger. It always writes to stderr so it
// never mixes with machine-readable reports on stdout.
func (s *settingsFlags) logger(cfg *config.Config) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: cfg.GetNoColor(),
	})

	level := cfg.Level()
	switch {
	case s.verbose >= 2 && level < logrus.DebugLevel:
		level = logrus.DebugLevel
	case s.verbose == 1 && level < logrus.InfoLevel:
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return logrus.NewEntry(l)
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
