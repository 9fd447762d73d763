// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NOTICE_TARGET_STOCK_CODE.
const EnvPrefix = "NOTICE"

// Cache backends.
const (
	BackendFS     = "fs"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Download modes.
const (
	ModeHTTP = "http"
	ModeCurl = "curl"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Target    TargetConfig    `mapstructure:"target"`
	Endpoints EndpointsConfig `mapstructure:"endpoints"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Download  DownloadConfig  `mapstructure:"download"`
	Pacing    PacingConfig    `mapstructure:"pacing"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// TargetConfig selects the issuer and announcement category to crawl.
type TargetConfig struct {
	StockCode    string `mapstructure:"stock_code"`
	FNode        string `mapstructure:"f_node"`
	SNode        string `mapstructure:"s_node"`
	PageSize     int    `mapstructure:"page_size"`
	AnnType      string `mapstructure:"ann_type"`
	ClientSource string `mapstructure:"client_source"`
}

// EndpointsConfig overrides the remote base URLs.
type EndpointsConfig struct {
	ListingURL string `mapstructure:"listing_url"`
	DetailURL  string `mapstructure:"detail_url"`
}

// HTTPConfig configures the JSON transport.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// MaxRPS caps requests per second per host; zero disables the cap.
	MaxRPS float64 `mapstructure:"max_rps"`
	Burst  int     `mapstructure:"burst"`
}

// DownloadConfig configures document retrieval.
type DownloadConfig struct {
	UserAgent   string        `mapstructure:"user_agent"`
	OutputDir   string        `mapstructure:"output_dir"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	Mode        string        `mapstructure:"mode"`
	CurlPath    string        `mapstructure:"curl_path"`
	// TimeoutSeconds bounds one whole document transfer.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// PacingConfig holds the fixed politeness delays.
type PacingConfig struct {
	RecordDelay time.Duration `mapstructure:"record_delay"`
	PageDelay   time.Duration `mapstructure:"page_delay"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Dir          string `mapstructure:"dir"`
	ExpireDays   int    `mapstructure:"expire_days"`
	Backend      string `mapstructure:"backend"`
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisDB      int    `mapstructure:"redis_db"`
	RedisPrefix  string `mapstructure:"redis_prefix"`
	SweepOnStart bool   `mapstructure:"sweep_on_start"`
}

// FilterConfig holds title keyword lists.
type FilterConfig struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StorageConfig selects the optional document mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres ledger.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig holds metadata for retrieval notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// legacyKeys maps flat keys of the old JSON configuration onto sections.
var legacyKeys = map[string]string{
	"stock_code":        "target.stock_code",
	"f_node":            "target.f_node",
	"s_node":            "target.s_node",
	"cache_expire_days": "cache.expire_days",
	"download_dir":      "download.output_dir",
	"cache_dir":         "cache.dir",
}

// Load builds a Config from a .env file, the environment and an optional
// config file, in increasing precedence for the file over defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		applyLegacy(v)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Filter.Include = append(cfg.Filter.Include, keywordList(v.Get("notice_title_keywords"))...)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target.stock_code", "601225")
	v.SetDefault("target.f_node", "0")
	v.SetDefault("target.s_node", "0")
	v.SetDefault("target.page_size", 50)
	v.SetDefault("target.ann_type", "A")
	v.SetDefault("target.client_source", "web")
	v.SetDefault("endpoints.listing_url", "https://np-anotice-stock.eastmoney.com/api/security/ann")
	v.SetDefault("endpoints.detail_url", "https://np-cnotice-stock.eastmoney.com/api/content/ann")
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36 Edg/137.0.0.0")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_rps", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("download.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("download.output_dir", "downloads")
	v.SetDefault("download.max_attempts", 3)
	v.SetDefault("download.backoff", time.Second)
	v.SetDefault("download.timeout_seconds", 600)
	v.SetDefault("download.mode", ModeHTTP)
	v.SetDefault("download.curl_path", "curl")
	v.SetDefault("pacing.record_delay", time.Second)
	v.SetDefault("pacing.page_delay", 2*time.Second)
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.expire_days", 7)
	v.SetDefault("cache.backend", BackendFS)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", "announcement:")
	v.SetDefault("cache.sweep_on_start", true)
	v.SetDefault("filter.include", []string{})
	v.SetDefault("filter.exclude", []string{})
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.prefix", "mirror")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "announcement_documents")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.ensure_schema", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// applyLegacy installs flat keys as defaults for their sectioned equivalents
// unless the sectioned key was set in the file as well. Environment variables
// still override them.
func applyLegacy(v *viper.Viper) {
	for flat, nested := range legacyKeys {
		if !v.InConfig(flat) || v.InConfig(nested) {
			continue
		}
		v.SetDefault(nested, v.Get(flat))
	}
}

// keywordList accepts a single keyword or a list of keywords.
func keywordList(raw any) []string {
	switch value := raw.(type) {
	case string:
		if strings.TrimSpace(value) == "" {
			return nil
		}
		return []string{value}
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Target.StockCode) == "" {
		return fmt.Errorf("target.stock_code is required")
	}
	if c.Target.PageSize <= 0 {
		return fmt.Errorf("target.page_size must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRPS < 0 {
		return fmt.Errorf("http.max_rps must be >= 0")
	}
	if c.Download.OutputDir == "" {
		return fmt.Errorf("download.output_dir is required")
	}
	if c.Download.TimeoutSeconds <= 0 {
		return fmt.Errorf("download.timeout_seconds must be > 0")
	}
	if c.Download.MaxAttempts <= 0 {
		return fmt.Errorf("download.max_attempts must be > 0")
	}
	if c.Download.Backoff < 0 {
		return fmt.Errorf("download.backoff must be >= 0")
	}
	switch c.Download.Mode {
	case ModeHTTP, ModeCurl:
	default:
		return fmt.Errorf("download.mode must be %q or %q", ModeHTTP, ModeCurl)
	}
	if c.Pacing.RecordDelay < 0 || c.Pacing.PageDelay < 0 {
		return fmt.Errorf("pacing delays must be >= 0")
	}
	if c.Cache.ExpireDays <= 0 {
		return fmt.Errorf("cache.expire_days must be > 0")
	}
	switch c.Cache.Backend {
	case BackendFS:
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache.dir is required for the fs backend")
		}
	case BackendMemory:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be one of fs, memory, redis")
	}
	if c.Storage.GCSBucket != "" && c.Storage.LocalDir != "" {
		return fmt.Errorf("storage.gcs_bucket and storage.local_dir are mutually exclusive")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic_name is set")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// DownloadTimeout converts the document transfer timeout into a duration.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}
