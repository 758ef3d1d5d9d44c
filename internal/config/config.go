// Package config loads and validates the engine's deployment
// configuration, following the teacher's viper-based Config/Validate
// split: defaults are registered once, a single file plus environment
// overlay is unmarshaled into a typed struct, and the struct validates
// its own internal consistency before the engine starts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the engine's full runtime configuration.
type Config struct {
	// Profile selects the deployment profile: "lite" (in-process locks,
	// SQLite install index, no Redis) or "standard" (distributed locks,
	// Postgres install index, Redis-backed L2 cache).
	Profile DeploymentProfile `mapstructure:"profile"`

	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Lock     LockConfig     `mapstructure:"lock"`
	App      AppConfig      `mapstructure:"app"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Guard    GuardConfig    `mapstructure:"guard"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Safety   SafetyConfig   `mapstructure:"safety"`
}

// DeploymentProfile selects the engine's concurrency-control and
// storage strategy.
type DeploymentProfile string

const (
	// ProfileLite runs single-process: in-process mutex locks, SQLite
	// install index, no Redis required.
	ProfileLite DeploymentProfile = "lite"

	// ProfileStandard runs HA-ready: Redis-backed distributed locks and
	// L2 cache, Postgres install index.
	ProfileStandard DeploymentProfile = "standard"
)

// StorageConfig selects the module install index backend.
type StorageConfig struct {
	Backend        StorageBackend `mapstructure:"backend"`
	FilesystemPath string         `mapstructure:"filesystem_path"`
	ModuleRoot     string         `mapstructure:"module_root"`
}

// StorageBackend is the install index implementation.
type StorageBackend string

const (
	StorageBackendSQLite   StorageBackend = "sqlite"
	StorageBackendPostgres StorageBackend = "postgres"
)

// DatabaseConfig configures the Postgres install index (Standard
// profile only).
type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Database       string        `mapstructure:"database"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	SSLMode        string        `mapstructure:"ssl_mode"`
	MaxConnections int           `mapstructure:"max_connections"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	URL            string        `mapstructure:"url"`
}

// RedisConfig configures the L2 decision cache and the distributed
// module lock (Standard profile only).
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// LLMConfig configures the LlmPort adapter and its model-tier fallback.
type LLMConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// LogConfig configures structured logging output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// CacheConfig configures the decision engine's two-tier cache.
type CacheConfig struct {
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	L1Size        int           `mapstructure:"l1_size"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
}

// LockConfig configures the per-module execution lock.
type LockConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	ReleaseTimeout time.Duration `mapstructure:"release_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ValuePrefix    string        `mapstructure:"value_prefix"`
}

// AppConfig holds engine-level metadata and worker pool sizing.
type AppConfig struct {
	Name          string        `mapstructure:"name"`
	Version       string        `mapstructure:"version"`
	Environment   string        `mapstructure:"environment"`
	Debug         bool          `mapstructure:"debug"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	WorkerTimeout time.Duration `mapstructure:"worker_timeout"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// QueueConfig configures the bounded modification queue.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// GuardConfig configures the loop detector and modification guard.
type GuardConfig struct {
	MaxModsPerWindow int           `mapstructure:"max_mods_per_window"`
	Window           time.Duration `mapstructure:"window"`
	CooldownDuration time.Duration `mapstructure:"cooldown_duration"`
	LoopThreshold    int           `mapstructure:"loop_threshold"`
	MaxFileSize      int64         `mapstructure:"max_file_size"`
}

// SandboxConfig configures per-module resource limits and the audit
// log.
type SandboxConfig struct {
	MaxMemoryBytes int64         `mapstructure:"max_memory_bytes"`
	MaxCPUTime     time.Duration `mapstructure:"max_cpu_time"`
	MaxThreads     int           `mapstructure:"max_threads"`
	MaxFileHandles int           `mapstructure:"max_file_handles"`
	MaxNetworkBps  int64         `mapstructure:"max_network_bps"`
	AuditCapacity  int           `mapstructure:"audit_capacity"`
	AuditFilePath  string        `mapstructure:"audit_file_path"`
}

// SafetyConfig configures the coordinator-level preconditions and the
// gate-timeout/pass-fail policy of the safety pipeline.
type SafetyConfig struct {
	CriticalFiles      []string      `mapstructure:"critical_files"`
	AllowedPaths       []string      `mapstructure:"allowed_paths"`
	FailFast           bool          `mapstructure:"fail_fast"`
	RequireAllGates    bool          `mapstructure:"require_all_gates"`
	DefaultGateTimeout time.Duration `mapstructure:"default_gate_timeout"`
}

// Load reads configuration from configPath (YAML, optional) layered
// under environment-variable overrides, unmarshals it, and validates
// the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", "lite")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.filesystem_path", "/data/autodev-engine/installed.db")
	v.SetDefault("storage.module_root", "/data/autodev-engine/modules")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "autodev_engine")
	v.SetDefault("database.username", "autodev")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.connect_timeout", "10s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.max_retries", 3)

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.l1_size", 1000)
	v.SetDefault("cache.enable_metrics", true)

	v.SetDefault("lock.ttl", "30s")
	v.SetDefault("lock.acquire_timeout", "5s")
	v.SetDefault("lock.release_timeout", "2s")
	v.SetDefault("lock.poll_interval", "100ms")
	v.SetDefault("lock.value_prefix", "autodev:module-lock:")

	v.SetDefault("app.name", "autodev-engine")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.max_workers", 4)
	v.SetDefault("app.worker_timeout", "5m")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("queue.capacity", 1000)

	v.SetDefault("guard.max_mods_per_window", 5)
	v.SetDefault("guard.window", "60s")
	v.SetDefault("guard.cooldown_duration", "300s")
	v.SetDefault("guard.loop_threshold", 3)
	v.SetDefault("guard.max_file_size", 1<<20)

	v.SetDefault("sandbox.max_memory_bytes", 100*1024*1024)
	v.SetDefault("sandbox.max_cpu_time", "60s")
	v.SetDefault("sandbox.max_threads", 10)
	v.SetDefault("sandbox.max_file_handles", 50)
	v.SetDefault("sandbox.max_network_bps", 10*1024*1024)
	v.SetDefault("sandbox.audit_capacity", 10000)

	v.SetDefault("safety.critical_files", []string{})
	v.SetDefault("safety.allowed_paths", []string{})
	v.SetDefault("safety.fail_fast", false)
	v.SetDefault("safety.require_all_gates", false)
	v.SetDefault("safety.default_gate_timeout", "30s")
}

// Validate checks internal consistency between Profile and the
// backends it implies.
func (c *Config) Validate() error {
	if err := c.validateProfile(); err != nil {
		return fmt.Errorf("profile validation failed: %w", err)
	}

	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}

	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}

	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.Queue.Capacity)
	}

	return nil
}

func (c *Config) validateProfile() error {
	if c.Profile != ProfileLite && c.Profile != ProfileStandard {
		return fmt.Errorf("invalid deployment profile: %s (must be 'lite' or 'standard')", c.Profile)
	}

	switch c.Profile {
	case ProfileLite:
		if c.Storage.Backend != StorageBackendSQLite {
			return fmt.Errorf("lite profile requires storage.backend='sqlite' (got '%s')", c.Storage.Backend)
		}
		if c.Storage.FilesystemPath == "" {
			return fmt.Errorf("lite profile requires storage.filesystem_path")
		}
	case ProfileStandard:
		if c.Storage.Backend != StorageBackendPostgres {
			return fmt.Errorf("standard profile requires storage.backend='postgres' (got '%s')", c.Storage.Backend)
		}
		if c.Database.Host == "" {
			return fmt.Errorf("database host cannot be empty (required for standard profile)")
		}
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr cannot be empty (required for standard profile)")
		}
	}

	return nil
}

// IsLiteProfile reports whether the engine is running single-process.
func (c *Config) IsLiteProfile() bool { return c.Profile == ProfileLite }

// IsStandardProfile reports whether the engine is running HA-ready.
func (c *Config) IsStandardProfile() bool { return c.Profile == ProfileStandard }

// DatabaseURL constructs the Postgres connection string from
// Database, unless an explicit URL was provided.
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		sslMode,
	)
}
