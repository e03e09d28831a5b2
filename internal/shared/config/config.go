package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

type Config struct {
	TelegramBotToken string            `koanf:"telegram_bot_token"`
	TelegramAPIURL   string            `koanf:"telegram_api_url"`
	StoragePath      string            `koanf:"storage_path"`
	HTTPPort         string            `koanf:"http_port"`
	BaseURL          string            `koanf:"base_url"`
	UpdateInterval   int               `koanf:"update_interval"`
	LogLevel         string            `koanf:"log_level"`
	AllowedUsers     []int64           `koanf:"allowed_users"`
	AppEnv           AppEnv            `koanf:"app_env"`
	Fetch            FetchConfig       `koanf:"fetch"`
	Aggregation      AggregationConfig `koanf:"aggregation"`
	Feed             FeedConfig        `koanf:"feed"`
}

type FetchConfig struct {
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	YouTubeBaseURL    string        `koanf:"youtube_base_url"`
	LBRYBaseURL       string        `koanf:"lbry_base_url"`
	PeerTubeScheme    string        `koanf:"peertube_scheme"`
}

type AggregationConfig struct {
	// PartialResults keeps successfully fetched videos when other
	// subscriptions fail.
	PartialResults bool `koanf:"partial_results"`
}

type FeedConfig struct {
	// Limit caps the number of exported videos; 0 exports everything.
	Limit int `koanf:"limit"`
}

var configFiles = []string{
	"config.yaml",
	"config.yml",
	"config.json",
	"config.toml",
}

var defaults = map[string]any{
	"telegram_api_url":            "https://api.telegram.org",
	"storage_path":                "./data",
	"http_port":                   "8080",
	"update_interval":             900,
	"log_level":                   "info",
	"app_env":                     "production",
	"fetch.timeout":               "15s",
	"fetch.requests_per_second":   10.0,
	"fetch.youtube_base_url":      "https://www.youtube.com/feeds/videos.xml",
	"fetch.lbry_base_url":         "https://odysee.com/$/rss",
	"fetch.peertube_scheme":       "https",
	"aggregation.partial_results": false,
	"feed.limit":                  100,
}

// Load reads the configuration from the working directory.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads dir/.env into the environment when present, then the first
// config file found in dir, then environment variables. Nested keys are
// spelled with a double underscore in the environment (FETCH__TIMEOUT).
func LoadFrom(dir string) (*Config, error) {
	k := koanf.New(".")

	dotenv := filepath.Join(dir, ".env")
	if _, err := os.Stat(dotenv); err == nil {
		if err := godotenv.Load(dotenv); err != nil {
			return nil, oops.With("env_file", dotenv).Wrap(err)
		}
	}

	configFile, found := lo.Find(configFiles, func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	})

	if found {
		var parser koanf.Parser
		switch ext := filepath.Ext(configFile); ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		case ".toml":
			parser = toml.Parser()
		default:
			return nil, oops.Errorf("unsupported config file extension: %s", ext)
		}

		path := filepath.Join(dir, configFile)
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, oops.With("config_file", path).Wrap(err)
		}
	}

	// Environment variables override config file values
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, oops.With("context", "loading environment variables").Wrap(err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, value); err != nil {
				return nil, oops.With("key", key).Wrap(err)
			}
		}
	}

	// allowed_users may be a comma separated string from the environment
	if raw, ok := k.Get("allowed_users").(string); ok {
		if err := k.Set("allowed_users", lo.ToAnySlice(ParseAllowedUsers(raw))); err != nil {
			return nil, oops.With("key", "allowed_users").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.With("context", "unmarshaling config").Wrap(err)
	}

	appEnv, err := ParseAppEnv(k.String("app_env"))
	if err != nil {
		appEnv = AppEnvProduction
	}
	cfg.AppEnv = appEnv

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch {
	case c.StoragePath == "":
		return oops.With("key", "storage_path").Errorf("storage path must not be empty")
	case c.HTTPPort == "":
		return oops.With("key", "http_port").Errorf("http port must not be empty")
	case c.UpdateInterval < 0:
		return oops.With("key", "update_interval", "value", c.UpdateInterval).Errorf("update interval must not be negative")
	case c.Fetch.Timeout < 0:
		return oops.With("key", "fetch.timeout", "value", c.Fetch.Timeout).Errorf("fetch timeout must not be negative")
	case c.Fetch.RequestsPerSecond < 0:
		return oops.With("key", "fetch.requests_per_second", "value", c.Fetch.RequestsPerSecond).Errorf("request rate must not be negative")
	case c.Feed.Limit < 0:
		return oops.With("key", "feed.limit", "value", c.Feed.Limit).Errorf("feed limit must not be negative")
	}
	return nil
}

// TelegramEnabled reports whether a bot token is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// UpdateEvery is the background reload period; zero disables it.
func (c *Config) UpdateEvery() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Second
}

// Level parses log_level, falling back to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// PublicURL is the address used in exported feed links.
func (c *Config) PublicURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "http://localhost:" + c.HTTPPort
}

// ParseAllowedUsers parses comma-separated user IDs string into []int64
func ParseAllowedUsers(s string) []int64 {
	return lo.FilterMap(strings.Split(s, ","), func(part string, _ int) (int64, bool) {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		return id, err == nil
	})
}
