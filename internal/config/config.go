// Package config loads the service configuration from environment
// variables (and an optional YAML file) via viper, using the usual
// SetDefault/AutomaticEnv pattern.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Postgres holds connection settings for the Submission Store.
type Postgres struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a lib/pq connection string from the Postgres settings.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Redis holds connection settings for the Job Queue.
type Redis struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Prefix string `mapstructure:"prefix"`
}

// Addr returns the host:port address go-redis expects.
func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// QueueName returns the FIFO list key for the submission queue.
func (r Redis) QueueName() string {
	return r.Prefix + "_submission_queue"
}

// WorkersKey returns the hash key used for the worker registry.
func (r Redis) WorkersKey() string {
	return r.Prefix + "_workers"
}

// FailedKey returns the counter key used for FailedCount.
func (r Redis) FailedKey() string {
	return r.Prefix + "_failed_jobs"
}

// Sandbox holds the default sandbox-limit values applied to a
// submission when no per-submission override is supplied. Only the
// numeric limits are applied that way; the boolean toggles are read
// here but a submission that leaves one unset gets false.
type Sandbox struct {
	CPUTimeLimit                     float64 `mapstructure:"cpu_time_limit"`
	CPUExtraTime                     float64 `mapstructure:"cpu_extra_time"`
	WallTimeLimit                    float64 `mapstructure:"wall_time_limit"`
	MemoryLimit                      int64   `mapstructure:"memory_limit"`
	MaxProcesses                     int     `mapstructure:"max_processes"`
	MaxFileSize                      int64   `mapstructure:"max_file_size"`
	NumberOfRuns                     int     `mapstructure:"number_of_runs"`
	EnablePerProcessTimeLimit        bool    `mapstructure:"enable_per_process_time_limit"`
	EnablePerProcessMemoryLimit      bool    `mapstructure:"enable_per_process_memory_limit"`
	RedirectStderrToStdout           bool    `mapstructure:"redirect_stderr_to_stdout"`
	EnableNetwork                    bool    `mapstructure:"enable_network"`
	MaxAdditionalFiles               int     `mapstructure:"max_additional_files"`
	MaxAdditionalFilesSize           int64   `mapstructure:"max_additional_files_size"`
}

// RateLimit is read from configuration but not enforced here; a
// reverse proxy or API gateway in front of judgesrv is expected to
// apply it.
type RateLimit struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
}

// Config is the full service configuration.
type Config struct {
	LogLevel          string        `mapstructure:"log_level"`
	BindAddress       string        `mapstructure:"bind_address"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
	WaitModeTimeout   time.Duration `mapstructure:"wait_mode_timeout"`
	CatalogSeedPath   string        `mapstructure:"catalog_seed_path"`
	IsolatePath       string        `mapstructure:"isolate_path"`

	Postgres  Postgres  `mapstructure:"postgres"`
	Redis     Redis     `mapstructure:"redis"`
	Sandbox   Sandbox   `mapstructure:"sandbox"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
}

// Load reads configuration from environment variables (prefixed
// JUDGE_, with "." replaced by "_" in nested keys, plus the flat
// POSTGRES_*/REDIS_*/SANDBOX_* names bindLegacy also honors) and an
// optional YAML file.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("bind_address", "0.0.0.0:2000")
	v.SetDefault("worker_concurrency", 4)
	v.SetDefault("wait_mode_timeout", "15s")
	v.SetDefault("catalog_seed_path", "")
	v.SetDefault("isolate_path", "isolate")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "judge")
	v.SetDefault("postgres.password", "judge")
	v.SetDefault("postgres.database", "judge")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.prefix", "judge")

	v.SetDefault("sandbox.cpu_time_limit", 2.0)
	v.SetDefault("sandbox.cpu_extra_time", 0.5)
	v.SetDefault("sandbox.wall_time_limit", 5.0)
	v.SetDefault("sandbox.memory_limit", 128000)
	v.SetDefault("sandbox.max_processes", 128)
	v.SetDefault("sandbox.max_file_size", 10240)
	v.SetDefault("sandbox.number_of_runs", 1)
	v.SetDefault("sandbox.enable_per_process_time_limit", false)
	v.SetDefault("sandbox.enable_per_process_memory_limit", false)
	v.SetDefault("sandbox.redirect_stderr_to_stdout", false)
	v.SetDefault("sandbox.enable_network", false)
	v.SetDefault("sandbox.max_additional_files", 10)
	v.SetDefault("sandbox.max_additional_files_size", 2048)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 60)

	v.SetEnvPrefix("JUDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Operators commonly reach for flat POSTGRES_*/REDIS_*/SANDBOX_*
	// variable names rather than the nested JUDGE_POSTGRES_* shape
	// AutomaticEnv produces; bind each one explicitly so both forms work.
	bindLegacy(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/kode-judge/")
	v.AddConfigPath("$HOME/.kode-judge/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func bindLegacy(v *viper.Viper) {
	pairs := map[string]string{
		"postgres.host":                      "POSTGRES_HOST",
		"postgres.port":                      "POSTGRES_PORT",
		"postgres.user":                      "POSTGRES_USER",
		"postgres.password":                  "POSTGRES_PASSWORD",
		"postgres.database":                  "POSTGRES_DB",
		"postgres.sslmode":                   "POSTGRES_SSLMODE",
		"redis.host":                         "REDIS_HOST",
		"redis.port":                         "REDIS_PORT",
		"redis.prefix":                       "REDIS_PREFIX",
		"worker_concurrency":                 "WORKER_CONCURRENCY",
		"catalog_seed_path":                  "CATALOG_SEED_PATH",
		"sandbox.cpu_time_limit":             "SANDBOX_CPU_TIME_LIMIT",
		"sandbox.cpu_extra_time":             "SANDBOX_CPU_EXTRA_TIME",
		"sandbox.wall_time_limit":            "SANDBOX_WALL_TIME_LIMIT",
		"sandbox.memory_limit":               "SANDBOX_MEMORY_LIMIT",
		"sandbox.max_processes":              "SANDBOX_MAX_PROCESSES",
		"sandbox.max_file_size":              "SANDBOX_MAX_FILE_SIZE",
		"sandbox.number_of_runs":             "SANDBOX_NUMBER_OF_RUNS",
		"sandbox.enable_per_process_time_limit":   "SANDBOX_ENABLE_PER_PROCESS_TIME_LIMIT",
		"sandbox.enable_per_process_memory_limit": "SANDBOX_ENABLE_PER_PROCESS_MEMORY_LIMIT",
		"sandbox.redirect_stderr_to_stdout":  "SANDBOX_REDIRECT_STDERR_TO_STDOUT",
		"sandbox.enable_network":             "SANDBOX_ENABLE_NETWORK",
		"sandbox.max_additional_files":       "SANDBOX_MAX_ADDITIONAL_FILES",
		"sandbox.max_additional_files_size":  "SANDBOX_MAX_ADDITIONAL_FILES_SIZE",
		"rate_limit.enabled":                 "RATE_LIMIT_ENABLED",
		"rate_limit.requests_per_minute":     "RATE_LIMIT_REQUESTS_PER_MINUTE",
	}
	for key, env := range pairs {
		_ = v.BindEnv(key, env)
	}
}

func validate(cfg *Config) error {
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.WorkerConcurrency <= 0 {
		return fmt.Errorf("worker_concurrency must be positive")
	}
	if cfg.Redis.Prefix == "" {
		return fmt.Errorf("redis.prefix must not be empty")
	}
	return nil
}

// GetLogLevel returns the parsed log level, defaulting to Info on
// failure (validate already rejects unparseable levels at load time).
func (c *Config) GetLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
