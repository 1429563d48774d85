package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/matrimony/backend/internal/matching"
)

const (
	App       = "matchd"
	EnvPrefix = "MATCHD"
)

type Config struct {
	ServerAddress  string   `mapstructure:"server-address"`
	JWTSecret      string   `mapstructure:"jwt-secret"`
	DataDir        string   `mapstructure:"data-dir"`
	AllowedOrigins []string `mapstructure:"allowed-origins"`
	Debug          bool     `mapstructure:"debug"`
	JSON           bool     `mapstructure:"json"`

	Mongo    MongoConfig    `mapstructure:"mongo"`
	Search   SearchConfig   `mapstructure:"search"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Matching MatchingConfig `mapstructure:"matching"`
}

// MongoConfig selects the document store. An empty URI runs on in-memory stores.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type SearchConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Index       string        `mapstructure:"index"`
	Limit       int           `mapstructure:"limit"`
	ScanLimit   int           `mapstructure:"scan-limit"`
	HealthCheck time.Duration `mapstructure:"health-check"`
}

type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	Lease        time.Duration `mapstructure:"lease"`
	JobTimeout   time.Duration `mapstructure:"job-timeout"`
	RetryDelay   time.Duration `mapstructure:"retry-delay"`
	// NightlyAt is the UTC wall-clock time of the standard fan-out, "HH:MM".
	NightlyAt string `mapstructure:"nightly-at"`
}

type MatchingConfig struct {
	StandardTTL  time.Duration         `mapstructure:"standard-ttl"`
	PriorityTTL  time.Duration         `mapstructure:"priority-ttl"`
	PriorityWait time.Duration         `mapstructure:"priority-wait"`
	VIPRules     []matching.RuleConfig `mapstructure:"vip-rules"`
}

// Environment names kept from the original deployment.
var envBindings = map[string]string{
	"mongo.uri":      "MONGO_URI",
	"mongo.database": "MONGO_DB",
	"server-address": "SERVER_ADDRESS",
	"jwt-secret":     "JWT_SECRET",
	"data-dir":       "DATA_DIR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server-address", ":8080")
	v.SetDefault("jwt-secret", "your-secret-key-change-in-production")
	v.SetDefault("data-dir", "./data")
	v.SetDefault("allowed-origins", []string{"http://localhost:3000"})
	v.SetDefault("debug", false)
	v.SetDefault("json", false)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "matrimony")

	v.SetDefault("search.enabled", true)
	v.SetDefault("search.index", "profiles_search")
	v.SetDefault("search.limit", 200)
	v.SetDefault("search.scan-limit", 1000)
	v.SetDefault("search.health-check", 30*time.Second)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.poll-interval", time.Second)
	v.SetDefault("worker.lease", 2*time.Minute)
	v.SetDefault("worker.job-timeout", time.Minute)
	v.SetDefault("worker.retry-delay", 30*time.Second)
	v.SetDefault("worker.nightly-at", "02:00")

	v.SetDefault("matching.standard-ttl", 7*24*time.Hour)
	v.SetDefault("matching.priority-ttl", 14*24*time.Hour)
	v.SetDefault("matching.priority-wait", 5*time.Second)
}

// Load reads defaults, the config file already set on v (if any), and the environment.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s environment variable: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if len(cfg.Matching.VIPRules) == 0 {
		cfg.Matching.VIPRules = matching.DefaultVIPRules()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UseMongo reports whether a document store is configured.
func (c *Config) UseMongo() bool {
	return c.Mongo.URI != ""
}

func (c *Config) Validate() error {
	var errs []error
	if c.Worker.Concurrency < 1 {
		errs = append(errs, errors.New("worker.concurrency must be at least 1"))
	}
	// A lease that can run out mid-job lets a second worker take the request.
	if c.Worker.JobTimeout <= 0 {
		errs = append(errs, errors.New("worker.job-timeout must be positive"))
	} else if c.Worker.Lease <= c.Worker.JobTimeout {
		errs = append(errs, fmt.Errorf("worker.lease (%s) must be longer than worker.job-timeout (%s)", c.Worker.Lease, c.Worker.JobTimeout))
	}
	if c.Search.Limit < 1 {
		errs = append(errs, errors.New("search.limit must be at least 1"))
	}
	if c.Search.ScanLimit < 1 {
		errs = append(errs, errors.New("search.scan-limit must be at least 1"))
	}
	if _, _, err := c.Worker.NightlyClock(); err != nil {
		errs = append(errs, err)
	}
	if _, err := matching.NewVIPFilter(c.Matching.VIPRules); err != nil {
		errs = append(errs, fmt.Errorf("matching.vip-rules: %w", err))
	}
	return errors.Join(errs...)
}

// NightlyClock parses NightlyAt.
func (w WorkerConfig) NightlyClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", w.NightlyAt)
	if err != nil {
		return 0, 0, fmt.Errorf("worker.nightly-at %q: expected HH:MM", w.NightlyAt)
	}
	return t.Hour(), t.Minute(), nil
}
