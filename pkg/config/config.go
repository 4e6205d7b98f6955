package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the config layer reads
const EnvPrefix = "XMEDIAGRAB_"

// Config holds all configuration options for xmediagrab
type Config struct {
	// Target site, credentials and page markers
	X XConfig `yaml:"x" json:"x"`

	// Browser session and timeline scrolling
	Browser   BrowserConfig   `yaml:"browser" json:"browser"`
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Download settings
	Download  DownloadConfig  `yaml:"download" json:"download"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output     OutputConfig     `yaml:"output" json:"output"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// XConfig describes the target site and how its media grid is recognised
type XConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	UserID    string `yaml:"user_id" json:"user_id"`
	AuthToken string `yaml:"auth_token,omitempty" json:"-"`
	// Account names the stored credential to use when AuthToken is empty
	Account string `yaml:"account,omitempty" json:"account,omitempty"`

	// Fingerprint lists class-name fragments every media container carries
	Fingerprint     []string `yaml:"fingerprint" json:"fingerprint"`
	ImageAltMarkers []string `yaml:"image_alt_markers" json:"image_alt_markers"`
	NextLabels      []string `yaml:"next_labels" json:"next_labels"`
	CloseLabels     []string `yaml:"close_labels" json:"close_labels"`
}

// BrowserConfig controls how the browser session is started
type BrowserConfig struct {
	Engine    string `yaml:"engine" json:"engine"`
	Headless  bool   `yaml:"headless" json:"headless"`
	Bin       string `yaml:"bin" json:"bin"`
	NoSandbox bool   `yaml:"no_sandbox" json:"no_sandbox"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	// ControlURL attaches to an already running browser instead of launching one
	ControlURL    string        `yaml:"control_url" json:"control_url"`
	ActionTimeout time.Duration `yaml:"action_timeout" json:"action_timeout"`
}

// DiscoveryConfig tunes the scroll loop and the detail-view polling budgets
type DiscoveryConfig struct {
	MaxScrolls       int           `yaml:"max_scrolls" json:"max_scrolls"`
	StagnationLimit  int           `yaml:"stagnation_limit" json:"stagnation_limit"`
	ScrollStep       int           `yaml:"scroll_step" json:"scroll_step"`
	SettleDelay      time.Duration `yaml:"settle_delay" json:"settle_delay"`
	ContainerTimeout time.Duration `yaml:"container_timeout" json:"container_timeout"`
	OpenTimeout      time.Duration `yaml:"open_timeout" json:"open_timeout"`
	AdvanceTimeout   time.Duration `yaml:"advance_timeout" json:"advance_timeout"`
	CloseTimeout     time.Duration `yaml:"close_timeout" json:"close_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Skip                bool          `yaml:"skip" json:"skip"`
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts       int           `yaml:"retry_attempts" json:"retry_attempts"`
	UserAgent           string        `yaml:"user_agent" json:"user_agent"`
	// PreferOriginal rewrites media URLs to request the original upload size
	PreferOriginal bool `yaml:"prefer_original" json:"prefer_original"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	CreateUserFolders bool   `yaml:"create_user_folders" json:"create_user_folders"`
	FileNamePattern   string `yaml:"file_name_pattern" json:"file_name_pattern"`
	OverwriteExisting bool   `yaml:"overwrite_existing" json:"overwrite_existing"`
	WriteManifest     bool   `yaml:"write_manifest" json:"write_manifest"`
}

// CheckpointConfig controls persistence of discovery results
type CheckpointConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Directory string `yaml:"directory" json:"directory"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
	NoColor    bool   `yaml:"no_color" json:"no_color"`
}

// DefaultUserAgent is sent by both the browser and the image downloader
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36 Edg/142.0.0.0"

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		X: XConfig{
			BaseURL:         "https://x.com/",
			Fingerprint:     []string{"r-18u37iz", "r-9aw3ui"},
			ImageAltMarkers: []string{"Image", "图像"},
			NextLabels:      []string{"Next slide", "下一张幻灯片"},
			CloseLabels:     []string{"Close", "关闭"},
		},
		Browser: BrowserConfig{
			Engine:        "rod",
			Headless:      true,
			UserAgent:     DefaultUserAgent,
			ActionTimeout: 10 * time.Second,
		},
		Discovery: DiscoveryConfig{
			MaxScrolls:       40,
			StagnationLimit:  5,
			ScrollStep:       500,
			SettleDelay:      2 * time.Second,
			ContainerTimeout: 10 * time.Second,
			OpenTimeout:      3 * time.Second,
			AdvanceTimeout:   8 * time.Second,
			CloseTimeout:     20 * time.Second,
			PollInterval:     200 * time.Millisecond,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 3,
			Timeout:             30 * time.Second,
			RetryAttempts:       3,
			UserAgent:           DefaultUserAgent,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			BurstSize:         10,
			BackoffMultiplier: 2.0,
			RetryDelay:        1 * time.Second,
		},
		Output: OutputConfig{
			BaseDirectory:     "./downloads",
			CreateUserFolders: true,
			FileNamePattern:   "image_{index}.{ext}",
			OverwriteExisting: true,
			WriteManifest:     true,
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnComplete: true,
			OnError:    true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

func getenv(name string) (string, bool) {
	v := os.Getenv(EnvPrefix + name)
	return v, v != ""
}

func envInt(name string, dst *int) {
	if v, ok := getenv(name); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v, ok := getenv(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// SplitList splits a comma separated list, trimming blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromEnv loads configuration from XMEDIAGRAB_* environment variables
func (c *Config) LoadFromEnv() error {
	// X credentials and target
	if v, ok := getenv("AUTH_TOKEN"); ok {
		c.X.AuthToken = v
	}
	if v, ok := getenv("USER_ID"); ok {
		c.X.UserID = v
	}
	if v, ok := getenv("ACCOUNT"); ok {
		c.X.Account = v
	}
	if v, ok := getenv("BASE_URL"); ok {
		c.X.BaseURL = v
	}
	if v, ok := getenv("FINGERPRINT"); ok {
		c.X.Fingerprint = SplitList(v)
	}

	// Browser
	if v, ok := getenv("BROWSER_ENGINE"); ok {
		c.Browser.Engine = strings.ToLower(v)
	}
	if v, ok := getenv("BROWSER_BIN"); ok {
		c.Browser.Bin = v
	}
	if v, ok := getenv("BROWSER_CONTROL_URL"); ok {
		c.Browser.ControlURL = v
	}
	envBool("HEADLESS", &c.Browser.Headless)
	envBool("NO_SANDBOX", &c.Browser.NoSandbox)

	// Scroll loop
	envInt("MAX_SCROLLS", &c.Discovery.MaxScrolls)
	envInt("STAGNATION_LIMIT", &c.Discovery.StagnationLimit)

	// Concurrent downloads and rate limiting
	envInt("CONCURRENT_DOWNLOADS", &c.Download.ConcurrentDownloads)
	envInt("REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)
	envBool("PREFER_ORIGINAL", &c.Download.PreferOriginal)

	// Output directory
	if v, ok := getenv("OUTPUT_DIR"); ok {
		c.Output.BaseDirectory = v
	}

	// Notifications
	envBool("NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)

	// Logging level
	if v, ok := getenv("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := getenv("LOG_FILE"); ok {
		c.Logging.File = v
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the default locations; finding nothing there is not an error.
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// DefaultPath is where `config init` writes and the first user-level location searched
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "xmediagrab", "config.yaml")
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".xmediagrab.yaml",
		".xmediagrab.yml",
		DefaultPath(),
		filepath.Join(home, ".config", "xmediagrab", "config.yml"),
		filepath.Join(home, ".xmediagrab.yaml"),
	}

	// Check in order of precedence
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks if the configuration is valid. Credentials and the target
// user are checked separately by Params since commands like `config show`
// run without them.
func (c *Config) Validate() error {
	var errs []error

	// Validate site settings
	if !strings.HasPrefix(c.X.BaseURL, "http://") && !strings.HasPrefix(c.X.BaseURL, "https://") {
		errs = append(errs, errors.New("base URL must be an http(s) URL"))
	}
	if len(c.X.Fingerprint) == 0 {
		errs = append(errs, errors.New("at least one fingerprint fragment is required"))
	}
	if len(c.X.NextLabels) == 0 || len(c.X.CloseLabels) == 0 {
		errs = append(errs, errors.New("next and close labels are required"))
	}

	// Validate browser engine
	switch c.Browser.Engine {
	case "rod", "chromedp":
	default:
		errs = append(errs, fmt.Errorf("unknown browser engine %q", c.Browser.Engine))
	}

	// Validate scroll loop
	if c.Discovery.MaxScrolls <= 0 {
		errs = append(errs, errors.New("max scrolls must be positive"))
	}
	if c.Discovery.StagnationLimit <= 0 {
		errs = append(errs, errors.New("stagnation limit must be positive"))
	}
	if c.Discovery.ScrollStep <= 0 {
		errs = append(errs, errors.New("scroll step must be positive"))
	}
	if c.Discovery.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}

	// Validate download settings
	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RetryAttempts <= 0 {
		errs = append(errs, errors.New("retry attempts must be positive"))
	}

	// Validate rate limiting
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}

	// Validate output settings
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if !strings.Contains(c.Output.FileNamePattern, "{index}") {
		errs = append(errs, errors.New("file name pattern must contain {index}"))
	}

	// Validate logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Params is the immutable bundle a single scrape run starts from
type Params struct {
	Fingerprint []string
	AuthToken   string
	UserID      string
	MaxScrolls  int
	Headless    bool
}

// Params builds the run bundle, failing when the target user or the auth
// token is missing.
func (c *Config) Params() (Params, error) {
	var errs []error
	if c.X.UserID == "" {
		errs = append(errs, errors.New("target user id is required"))
	}
	if c.X.AuthToken == "" {
		errs = append(errs, errors.New("auth token is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return Params{}, err
	}

	return Params{
		Fingerprint: append([]string(nil), c.X.Fingerprint...),
		AuthToken:   c.X.AuthToken,
		UserID:      c.X.UserID,
		MaxScrolls:  c.Discovery.MaxScrolls,
		Headless:    c.Browser.Headless,
	}, nil
}

// Save writes the configuration as YAML, readable only by the owner
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges explicitly set command line flags
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["auth-token"].(string); ok && v != "" {
		c.X.AuthToken = v
	}
	if v, ok := flags["account"].(string); ok && v != "" {
		c.X.Account = v
	}
	if v, ok := flags["user"].(string); ok && v != "" {
		c.X.UserID = v
	}
	if v, ok := flags["fingerprint"].([]string); ok && len(v) > 0 {
		c.X.Fingerprint = v
	}
	if v, ok := flags["engine"].(string); ok && v != "" {
		c.Browser.Engine = strings.ToLower(v)
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["browser-bin"].(string); ok && v != "" {
		c.Browser.Bin = v
	}
	if v, ok := flags["max-scrolls"].(int); ok && v > 0 {
		c.Discovery.MaxScrolls = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.ConcurrentDownloads = v
	}
	if v, ok := flags["no-download"].(bool); ok && v {
		c.Download.Skip = true
	}
	if v, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["no-color"].(bool); ok && v {
		c.Logging.NoColor = true
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > environment (including .env files) > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	home := os.Getenv("HOME")
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(home, ".xmediagrab.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
