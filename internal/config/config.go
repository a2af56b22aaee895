// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire suite configuration. Fields are populated from the
// config file, TROLLEY_* environment variables, and CLI flags via viper.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Suite   SuiteConfig   `mapstructure:"suite" yaml:"suite"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Retry   RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Shop    ShopConfig    `mapstructure:"shop" yaml:"shop"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
	Results ResultsConfig `mapstructure:"results" yaml:"results"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	// LogFile enables an additional JSON file sink, rotated by lumberjack.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// SuiteConfig controls scenario selection and execution.
type SuiteConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// BaseURL points the suite at an already-running storefront. When empty,
	// the runner boots the bundled demo shop and targets that.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Filter restricts execution to scenarios whose name contains it.
	Filter          string        `mapstructure:"filter" yaml:"filter"`
	Parallelism     int           `mapstructure:"parallelism" yaml:"parallelism"`
	ScenarioTimeout time.Duration `mapstructure:"scenario_timeout" yaml:"scenario_timeout"`
	ArtifactDir     string        `mapstructure:"artifact_dir" yaml:"artifact_dir"`
}

// BrowserConfig controls the shared Chrome instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// ActionTimeout bounds a single click/type/wait operation.
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// RetryConfig carries the default tunables for the polling helpers.
type RetryConfig struct {
	// Timeout bounds one poll or sampling loop end to end.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Interval is the delay between condition evaluations.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// StableReads is how many consecutive agreeing samples accept a value.
	StableReads int `mapstructure:"stable_reads" yaml:"stable_reads"`
}

// ShopConfig controls the bundled demo storefront, including the flakiness it
// injects so the resilience helpers have something real to absorb.
type ShopConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	// CartDelay is how long the cart badge lags behind an add-to-cart.
	CartDelay time.Duration `mapstructure:"cart_delay" yaml:"cart_delay"`
	// ModalDelay is how long after page load the newsletter modal appears.
	ModalDelay time.Duration `mapstructure:"modal_delay" yaml:"modal_delay"`
	// FlakyFailures makes the first N requests to flaky routes return 503.
	FlakyFailures int `mapstructure:"flaky_failures" yaml:"flaky_failures"`
	// RatePerSecond and Burst feed the rate limiting middleware; zero rate
	// disables it.
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
	// MaxConns caps concurrent connections on the listener.
	MaxConns  int    `mapstructure:"max_conns" yaml:"max_conns"`
	AccessLog string `mapstructure:"access_log" yaml:"access_log"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// ReportConfig controls report and artifact output.
type ReportConfig struct {
	JUnitPath string `mapstructure:"junit_path" yaml:"junit_path"`
	JSONPath  string `mapstructure:"json_path" yaml:"json_path"`
	// CompressArtifacts writes large text artifacts brotli-compressed.
	CompressArtifacts bool `mapstructure:"compress_artifacts" yaml:"compress_artifacts"`
}

// ResultsConfig controls optional run-history persistence.
type ResultsConfig struct {
	// DatabaseURL enables the Postgres results store when non-empty.
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
}

// Enabled reports whether run persistence is configured.
func (r ResultsConfig) Enabled() bool { return r.DatabaseURL != "" }

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failing to unmarshal them is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "trolley")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Suite --
	v.SetDefault("suite.name", "trolley")
	v.SetDefault("suite.base_url", "")
	v.SetDefault("suite.filter", "")
	v.SetDefault("suite.parallelism", 4)
	v.SetDefault("suite.scenario_timeout", "2m")
	v.SetDefault("suite.artifact_dir", "trolley-artifacts")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 960)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "15s")

	// -- Retry --
	v.SetDefault("retry.timeout", "10s")
	v.SetDefault("retry.interval", "100ms")
	v.SetDefault("retry.stable_reads", 2)

	// -- Shop --
	v.SetDefault("shop.listen", "127.0.0.1:0")
	v.SetDefault("shop.cart_delay", "600ms")
	v.SetDefault("shop.modal_delay", "400ms")
	v.SetDefault("shop.flaky_failures", 2)
	v.SetDefault("shop.rate_per_second", 0)
	v.SetDefault("shop.burst", 20)
	v.SetDefault("shop.max_conns", 64)
	v.SetDefault("shop.access_log", "")
	v.SetDefault("shop.jwt_secret", "")

	// -- Report --
	v.SetDefault("report.junit_path", "")
	v.SetDefault("report.json_path", "")
	v.SetDefault("report.compress_artifacts", true)

	// -- Results --
	v.SetDefault("results.database_url", "")
}

// NewFromViper creates a configuration instance from a viper object.
func NewFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for secrets so they never need to live in a
	// config file.
	v.BindEnv("shop.jwt_secret", "TROLLEY_SHOP_JWT_SECRET")
	v.BindEnv("results.database_url", "TROLLEY_RESULTS_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves home-relative paths ("~/...") in path-valued fields.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Suite.ArtifactDir, &c.Logger.LogFile, &c.Shop.AccessLog} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Suite.Parallelism <= 0 {
		return fmt.Errorf("suite.parallelism must be a positive integer")
	}
	if c.Suite.ScenarioTimeout <= 0 {
		return fmt.Errorf("suite.scenario_timeout must be a positive duration")
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry configuration invalid: %w", err)
	}
	if err := c.Shop.Validate(); err != nil {
		return fmt.Errorf("shop configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the retry tunables.
func (r *RetryConfig) Validate() error {
	if r.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if r.Interval <= 0 {
		return fmt.Errorf("interval must be a positive duration")
	}
	if r.Interval > r.Timeout {
		return fmt.Errorf("interval (%v) must not exceed timeout (%v)", r.Interval, r.Timeout)
	}
	if r.StableReads < 2 {
		return fmt.Errorf("stable_reads must be at least 2, got %d", r.StableReads)
	}
	return nil
}

// Validate checks the demo shop settings.
func (s *ShopConfig) Validate() error {
	if s.FlakyFailures < 0 {
		return fmt.Errorf("flaky_failures must not be negative")
	}
	if s.RatePerSecond < 0 {
		return fmt.Errorf("rate_per_second must not be negative")
	}
	if s.RatePerSecond > 0 && s.Burst <= 0 {
		return fmt.Errorf("burst must be positive when rate limiting is enabled")
	}
	if s.MaxConns <= 0 {
		return fmt.Errorf("max_conns must be a positive integer")
	}
	return nil
}
