package config

const (
	DefaultBaseURL        = "https://reqres.in"
	DefaultTimeout        = 15.0 // seconds
	DefaultProbeTimeout   = 10.0 // seconds
	DefaultRetries        = 3
	DefaultBackoffFactor  = 0.5
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 api-smoke/1.0"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultConnection     = "close"
	DefaultLogLevel       = "warn"
	DefaultConcurrency    = 5

	// APIKeyHeader carries API_KEY when one is configured
	APIKeyHeader = "x-api-key"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		Timeout:        FloatPtr(DefaultTimeout),
		ProbeTimeout:   FloatPtr(DefaultProbeTimeout),
		Retries:        IntPtr(DefaultRetries),
		BackoffFactor:  FloatPtr(DefaultBackoffFactor),
		UserAgent:      DefaultUserAgent,
		AcceptLanguage: DefaultAcceptLanguage,
		Connection:     DefaultConnection,
		ValidateSSL:    BoolPtr(true),
		Strict:         BoolPtr(false),
		SkipOnBlock:    BoolPtr(true),
		LogLevel:       DefaultLogLevel,
		Reporters:      []string{"console"},
		Parallel:       BoolPtr(false),
		Concurrency:    DefaultConcurrency,
		Bail:           BoolPtr(false),
		Verbose:        BoolPtr(false),
		NoColor:        BoolPtr(false),
	}
}
