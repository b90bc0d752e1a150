package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
// It is built once at process start and passed explicitly to every component.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	StorageType   string `mapstructure:"storage_type"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	BBoltPath     string `mapstructure:"bbolt_path"`
	MaxPageSize   int    `mapstructure:"max_page_size"`

	ClassifierType           string        `mapstructure:"classifier_type"`
	ClassifierURL            string        `mapstructure:"classifier_url"`
	ClassifierAPIKey         string        `mapstructure:"classifier_api_key"`
	ClassifierSecretKey      string        `mapstructure:"classifier_secret_key"`
	ClassifierTimeoutSeconds int64         `mapstructure:"classifier_timeout_seconds"`
	ClassifierRetryCount     int           `mapstructure:"classifier_retry_count"`
	ClassifierRetryWaitMs    int64         `mapstructure:"classifier_retry_wait_ms"`
	ClassifierRetryMaxWaitMs int64         `mapstructure:"classifier_retry_max_wait_ms"`
	ClassifierTimeout        time.Duration `mapstructure:"-"`
	ClassifierRetryWait      time.Duration `mapstructure:"-"`
	ClassifierRetryMaxWait   time.Duration `mapstructure:"-"`

	EnrichmentQueueSize    int           `mapstructure:"enrichment_queue_size"`
	EnrichmentWorkers      int           `mapstructure:"enrichment_workers"`
	DrainTimeoutSeconds    int64         `mapstructure:"enrichment_drain_timeout_seconds"`
	DrainTimeout           time.Duration `mapstructure:"-"`
	KeywordsOnUpsert       bool          `mapstructure:"keywords_on_upsert"`
	DispatchersFile        string        `mapstructure:"dispatchers_file"`
	SourcesFile            string        `mapstructure:"sources_file"`
	ImportIntervalSeconds  int64         `mapstructure:"import_interval"`
	ImportInterval         time.Duration `mapstructure:"-"`
	ImportRequestTimeoutMs int64         `mapstructure:"import_request_timeout_ms"`
	ImportRequestTimeout   time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "xread")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("storage_type", "mongo")
	v.SetDefault("mongo_uri", "")
	v.SetDefault("mongo_database", "xread")
	v.SetDefault("bbolt_path", "./data/xread.db")
	v.SetDefault("max_page_size", 100)
	v.SetDefault("classifier_type", "local")
	v.SetDefault("classifier_url", "https://aip.baidubce.com")
	v.SetDefault("classifier_api_key", "")
	v.SetDefault("classifier_secret_key", "")
	v.SetDefault("classifier_timeout_seconds", 10)
	v.SetDefault("classifier_retry_count", 2)
	v.SetDefault("classifier_retry_wait_ms", 500)
	v.SetDefault("classifier_retry_max_wait_ms", 5000)
	v.SetDefault("enrichment_queue_size", 256)
	v.SetDefault("enrichment_workers", 2)
	v.SetDefault("enrichment_drain_timeout_seconds", 30)
	v.SetDefault("keywords_on_upsert", false)
	v.SetDefault("dispatchers_file", "")
	v.SetDefault("sources_file", "")
	v.SetDefault("import_interval", 900) // seconds
	v.SetDefault("import_request_timeout_ms", 15000)

	v.AutomaticEnv()
	// Deployments export the connection string as MONGO.
	if err := v.BindEnv("mongo_uri", "MONGO_URI", "MONGO"); err != nil {
		return nil, fmt.Errorf("bind mongo_uri env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize validates numeric settings and derives durations.
func (cfg *Config) finalize() error {
	cfg.StorageType = strings.ToLower(strings.TrimSpace(cfg.StorageType))
	cfg.ClassifierType = strings.ToLower(strings.TrimSpace(cfg.ClassifierType))

	if cfg.StorageType == "mongo" && strings.TrimSpace(cfg.MongoURI) == "" {
		return fmt.Errorf("mongo storage requires MONGO or MONGO_URI to be set")
	}
	if cfg.MaxPageSize <= 0 {
		return fmt.Errorf("invalid max_page_size (must be positive)")
	}
	if cfg.ClassifierTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid classifier_timeout_seconds (must be positive seconds)")
	}
	if cfg.ClassifierRetryCount < 0 {
		return fmt.Errorf("invalid classifier_retry_count (must not be negative)")
	}
	if cfg.EnrichmentQueueSize <= 0 {
		return fmt.Errorf("invalid enrichment_queue_size (must be positive)")
	}
	if cfg.EnrichmentWorkers <= 0 {
		return fmt.Errorf("invalid enrichment_workers (must be positive)")
	}
	if cfg.DrainTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid enrichment_drain_timeout_seconds (must be positive seconds)")
	}
	if cfg.ImportIntervalSeconds <= 0 {
		return fmt.Errorf("invalid import_interval (must be positive seconds)")
	}
	if cfg.ImportRequestTimeoutMs <= 0 {
		return fmt.Errorf("invalid import_request_timeout_ms (must be positive)")
	}

	cfg.ClassifierTimeout = time.Duration(cfg.ClassifierTimeoutSeconds) * time.Second
	cfg.ClassifierRetryWait = time.Duration(cfg.ClassifierRetryWaitMs) * time.Millisecond
	cfg.ClassifierRetryMaxWait = time.Duration(cfg.ClassifierRetryMaxWaitMs) * time.Millisecond
	cfg.DrainTimeout = time.Duration(cfg.DrainTimeoutSeconds) * time.Second
	cfg.ImportInterval = time.Duration(cfg.ImportIntervalSeconds) * time.Second
	cfg.ImportRequestTimeout = time.Duration(cfg.ImportRequestTimeoutMs) * time.Millisecond
	return nil
}

// Redacted returns a copy safe to log: secrets and credentials in the
// connection string are masked.
func (cfg Config) Redacted() Config {
	if cfg.ClassifierAPIKey != "" {
		cfg.ClassifierAPIKey = "***"
	}
	if cfg.ClassifierSecretKey != "" {
		cfg.ClassifierSecretKey = "***"
	}
	cfg.MongoURI = redactURI(cfg.MongoURI)
	return cfg
}

func redactURI(uri string) string {
	scheme := strings.Index(uri, "://")
	at := strings.LastIndex(uri, "@")
	if scheme < 0 || at < scheme {
		return uri
	}
	return uri[:scheme+3] + "***" + uri[at:]
}
