// Package config handles application configuration from defaults, an
// optional YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"tgreddit/internal/classifier"
	"tgreddit/internal/model"
)

// LongPollTimeout is how long a getUpdates request may wait for updates.
// Telegram requests must be allowed to run longer than this.
const LongPollTimeout = 60 * time.Second

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken       string        `koanf:"telegram_bot_token"`
	DatabasePath           string        `koanf:"database_path"`
	LogLevel               string        `koanf:"log_level"`
	AllowedUsers           []int64       `koanf:"allowed_users"`
	CheckInterval          time.Duration `koanf:"check_interval"`
	SkipInitialSend        bool          `koanf:"skip_initial_send"`
	OverwriteSubscriptions bool          `koanf:"overwrite_subscriptions"`
	LinksBaseURL           string        `koanf:"links_base_url"`
	DefaultLimit           int           `koanf:"default_limit"`
	DefaultTime            string        `koanf:"default_time"`
	DefaultFilter          string        `koanf:"default_filter"`
	VideoHosts             []string      `koanf:"video_hosts"`
	TelegramRateLimit      float64       `koanf:"telegram_rate_limit"`
	TelegramTimeout        time.Duration `koanf:"telegram_timeout"`
	DeliveryTimeout        time.Duration `koanf:"delivery_timeout"`
	MetricsAddr            string        `koanf:"metrics_addr"`
	ShutdownTimeout        time.Duration `koanf:"shutdown_timeout"`

	Reddit    RedditConfig    `koanf:"reddit"`
	Downloads DownloadsConfig `koanf:"downloads"`
}

// RedditConfig configures the content source client.
type RedditConfig struct {
	BaseURL   string        `koanf:"base_url"`
	UserAgent string        `koanf:"user_agent"`
	Timeout   time.Duration `koanf:"timeout"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// DownloadsConfig configures media downloads.
type DownloadsConfig struct {
	YtDlpPath string        `koanf:"ytdlp_path"`
	Timeout   time.Duration `koanf:"timeout"`
}

func defaultConfig() *Config {
	return &Config{
		DatabasePath:      "./data/bot.db",
		LogLevel:          "info",
		CheckInterval:     10 * time.Minute,
		SkipInitialSend:   true,
		DefaultLimit:      model.DefaultLimit,
		DefaultTime:       string(model.DefaultTime),
		VideoHosts:        classifier.DefaultVideoHosts,
		TelegramRateLimit: 20,
		TelegramTimeout:   2 * time.Minute,
		DeliveryTimeout:   15 * time.Minute,
		ShutdownTimeout:   2 * time.Minute,
		Reddit: RedditConfig{
			BaseURL:   "https://www.reddit.com",
			UserAgent: "tgreddit/1.0",
			Timeout:   30 * time.Second,
			CacheTTL:  time.Minute,
		},
		Downloads: DownloadsConfig{
			YtDlpPath: "yt-dlp",
			Timeout:   5 * time.Minute,
		},
	}
}

// envKeys maps environment variables to config paths.
var envKeys = map[string]string{
	"TELEGRAM_BOT_TOKEN":      "telegram_bot_token",
	"DATABASE_PATH":           "database_path",
	"LOG_LEVEL":               "log_level",
	"ALLOWED_USERS":           "allowed_users",
	"CHECK_INTERVAL":          "check_interval",
	"SKIP_INITIAL_SEND":       "skip_initial_send",
	"OVERWRITE_SUBSCRIPTIONS": "overwrite_subscriptions",
	"LINKS_BASE_URL":          "links_base_url",
	"DEFAULT_LIMIT":           "default_limit",
	"DEFAULT_TIME":            "default_time",
	"DEFAULT_FILTER":          "default_filter",
	"VIDEO_HOSTS":             "video_hosts",
	"TELEGRAM_RATE_LIMIT":     "telegram_rate_limit",
	"TELEGRAM_TIMEOUT":        "telegram_timeout",
	"DELIVERY_TIMEOUT":        "delivery_timeout",
	"METRICS_ADDR":            "metrics_addr",
	"SHUTDOWN_TIMEOUT":        "shutdown_timeout",
	"REDDIT_BASE_URL":         "reddit.base_url",
	"REDDIT_USER_AGENT":       "reddit.user_agent",
	"REDDIT_TIMEOUT":          "reddit.timeout",
	"REDDIT_CACHE_TTL":        "reddit.cache_ttl",
	"YTDLP_PATH":              "downloads.ytdlp_path",
	"DOWNLOAD_TIMEOUT":        "downloads.timeout",
}

// sliceKeys are parsed from comma-separated strings when set from env.
var sliceKeys = []string{"allowed_users", "video_hosts"}

// Load reads configuration. Later layers override earlier ones:
// built-in defaults, then the YAML file, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitSliceKeys(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envValue(key, value string) (string, interface{}) {
	path, ok := envKeys[key]
	if !ok || strings.TrimSpace(value) == "" {
		return "", nil
	}
	return path, value
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func splitSliceKeys(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		raw, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.TelegramBotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, errors.New("check_interval must be positive"))
	}
	if c.DefaultLimit < 1 || c.DefaultLimit > 100 {
		errs = append(errs, errors.New("default_limit must be between 1 and 100"))
	}
	if _, err := model.ParseTimePeriod(c.DefaultTime); err != nil {
		errs = append(errs, fmt.Errorf("default_time: %w", err))
	}
	if c.DefaultFilter != "" {
		if _, err := model.ParsePostType(c.DefaultFilter); err != nil {
			errs = append(errs, fmt.Errorf("default_filter: %w", err))
		}
	}
	for _, h := range c.VideoHosts {
		if err := classifier.ValidateHostRule(h); err != nil {
			errs = append(errs, err)
		}
	}
	if c.TelegramRateLimit < 0 {
		errs = append(errs, errors.New("telegram_rate_limit must not be negative"))
	}
	if c.TelegramTimeout <= LongPollTimeout {
		errs = append(errs, fmt.Errorf("telegram_timeout must exceed the %s long poll", LongPollTimeout))
	}
	if c.DeliveryTimeout <= 0 {
		errs = append(errs, errors.New("delivery_timeout must be positive"))
	}
	if c.Reddit.BaseURL == "" {
		errs = append(errs, errors.New("reddit.base_url is required"))
	}
	if c.Reddit.Timeout <= 0 || c.Downloads.Timeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListingDefaults returns the configured listing fallbacks. It assumes the
// config passed Validate.
func (c *Config) ListingDefaults() model.ListingDefaults {
	d := model.ListingDefaults{Limit: c.DefaultLimit}
	if p, err := model.ParseTimePeriod(c.DefaultTime); err == nil {
		d.Time = p
	}
	if t, err := model.ParsePostType(c.DefaultFilter); err == nil {
		d.Filter = &t
	}
	return d
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
