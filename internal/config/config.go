package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Wikipedia WikipediaConfig `yaml:"wikipedia" mapstructure:"wikipedia"`
	Wikidata  WikidataConfig  `yaml:"wikidata" mapstructure:"wikidata"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Locks     LockConfig      `yaml:"locks" mapstructure:"locks"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Worker    WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres | sqlite
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// WikipediaConfig configures the MediaWiki API and page-info endpoints.
type WikipediaConfig struct {
	APIURL  string `yaml:"api_url" mapstructure:"api_url"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// WikidataConfig configures the SPARQL endpoint.
type WikidataConfig struct {
	SPARQLURL string `yaml:"sparql_url" mapstructure:"sparql_url"`
}

// HTTPConfig configures the shared rate-limited HTTP client. Rate budgets
// are per host, requests per second.
type HTTPConfig struct {
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	WikipediaRate  float64 `yaml:"wikipedia_rate" mapstructure:"wikipedia_rate"`
	WikidataRate   float64 `yaml:"wikidata_rate" mapstructure:"wikidata_rate"`
	DefaultRate    float64 `yaml:"default_rate" mapstructure:"default_rate"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// LockConfig configures the distributed lock manager.
type LockConfig struct {
	// TTL is the default lock expiry for day and batch locks.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
	// QueryTTL is the expiry for per-query dedup locks.
	QueryTTL time.Duration `yaml:"query_ttl" mapstructure:"query_ttl"`
	// Window rounds batch/query lock keys to this granularity so identical
	// work may re-run once the window rolls over. Zero disables the window,
	// making content-hash dedup permanent for the lock's lifetime.
	Window time.Duration `yaml:"window" mapstructure:"window"`
}

// BatchConfig configures title batching.
type BatchConfig struct {
	Size          int `yaml:"size" mapstructure:"size"`
	AttrGroupSize int `yaml:"attr_group_size" mapstructure:"attr_group_size"`
}

// EnrichConfig configures SPARQL retry behavior.
type EnrichConfig struct {
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
}

// ReconcileConfig configures the reconciliation freshness window.
type ReconcileConfig struct {
	// FreshnessWindow treats records fact-updated within this span as too
	// recent to rewrite.
	FreshnessWindow time.Duration `yaml:"freshness_window" mapstructure:"freshness_window"`
}

// ScrapeConfig configures the metadata sweep.
type ScrapeConfig struct {
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Delay     time.Duration `yaml:"delay" mapstructure:"delay"`
	// Staleness picks persons whose metadata was last refreshed before
	// now minus this duration.
	Staleness time.Duration `yaml:"staleness" mapstructure:"staleness"`
}

// WorkerConfig configures the worker pool.
type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency" mapstructure:"concurrency"`
	TaskTimeout  time.Duration `yaml:"task_timeout" mapstructure:"task_timeout"`
	LeaseTimeout time.Duration `yaml:"lease_timeout" mapstructure:"lease_timeout"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// ScheduleConfig names the day-of-year pages to crawl.
type ScheduleConfig struct {
	Months []string `yaml:"months" mapstructure:"months"`
	Days   []int    `yaml:"days" mapstructure:"days"`
}

// ServerConfig configures the ops status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NOTABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "notablehumans.db")
	v.SetDefault("wikipedia.api_url", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("wikipedia.base_url", "https://en.wikipedia.org")
	v.SetDefault("wikidata.sparql_url", "https://query.wikidata.org/sparql")
	v.SetDefault("http.user_agent", "NotableHumans/1.0 (mailto:ops@notablehumans.org)")
	v.SetDefault("http.timeout_secs", 60)
	v.SetDefault("http.wikipedia_rate", 10)
	v.SetDefault("http.wikidata_rate", 5)
	v.SetDefault("http.default_rate", 20)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("locks.ttl", 30*time.Second)
	v.SetDefault("locks.query_ttl", time.Minute)
	v.SetDefault("locks.window", time.Minute)
	v.SetDefault("batch.size", 50)
	v.SetDefault("batch.attr_group_size", 5)
	v.SetDefault("enrich.max_retries", 5)
	v.SetDefault("enrich.base_delay", 2*time.Second)
	v.SetDefault("reconcile.freshness_window", 2*time.Minute)
	v.SetDefault("scrape.batch_size", 100)
	v.SetDefault("scrape.delay", time.Second)
	v.SetDefault("scrape.staleness", 7*24*time.Hour)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.task_timeout", 5*time.Minute)
	v.SetDefault("worker.lease_timeout", 10*time.Minute)
	v.SetDefault("worker.poll_interval", 2*time.Second)
	v.SetDefault("schedule.months", []string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	})
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
