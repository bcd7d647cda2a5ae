// Package config loads BLite Server's process configuration, grounded on
// the teacher's infrastructure/config/services.go Load/LoadFromPath/
// LoadOrDefault/Default family: read a YAML file, overlay environment
// variables, validate, fall back to hardcoded defaults when no file
// exists.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds process-level bind addresses and logging knobs.
type ServerConfig struct {
	HTTPAddr            string `yaml:"httpAddr"`
	RPCAddr             string `yaml:"rpcAddr"`
	LogLevel            string `yaml:"logLevel"`
	LogFormat           string `yaml:"logFormat"`
	TenantFileDirectory string `yaml:"tenantFileDirectory"`
}

// QueryCacheConfig mirrors spec.md §6's QueryCache.* knobs.
type QueryCacheConfig struct {
	Enabled                   bool `yaml:"enabled"`
	SlidingExpirationSeconds  int  `yaml:"slidingExpirationSeconds"`
	AbsoluteExpirationSeconds int  `yaml:"absoluteExpirationSeconds"`
	MaxSizeBytes              int  `yaml:"maxSizeBytes"`
	MaxResultSetSize          int  `yaml:"maxResultSetSize"`
}

// TransactionsConfig mirrors spec.md §6's Transactions.* knobs.
type TransactionsConfig struct {
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

// EmbeddingConfig mirrors spec.md §6's Embedding.* knobs.
type EmbeddingConfig struct {
	ModelDirectory string `yaml:"modelDirectory"`
	MaxTokens      int    `yaml:"maxTokens"`
}

// EmbeddingWorkerConfig mirrors spec.md §6's EmbeddingWorker.* knobs.
type EmbeddingWorkerConfig struct {
	Enabled             bool `yaml:"enabled"`
	IntervalSeconds     int  `yaml:"intervalSeconds"`
	BatchSize           int  `yaml:"batchSize"`
	StaleTimeoutMinutes int  `yaml:"staleTimeoutMinutes"`
}

// Config is the full set of recognised options from spec.md §6.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	QueryCache      QueryCacheConfig      `yaml:"queryCache"`
	Transactions    TransactionsConfig    `yaml:"transactions"`
	Embedding       EmbeddingConfig       `yaml:"embedding"`
	EmbeddingWorker EmbeddingWorkerConfig `yaml:"embeddingWorker"`
}

// Default returns the hardcoded configuration used when no file is found
// and no environment overlay is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:            ":8080",
			RPCAddr:             ":8081",
			LogLevel:            "info",
			LogFormat:           "json",
			TenantFileDirectory: "data/tenants",
		},
		QueryCache: QueryCacheConfig{
			Enabled:                   false,
			SlidingExpirationSeconds:  30,
			AbsoluteExpirationSeconds: 300,
			MaxSizeBytes:              64 << 20,
			MaxResultSetSize:          5000,
		},
		Transactions: TransactionsConfig{TimeoutSeconds: 300},
		Embedding:    EmbeddingConfig{ModelDirectory: "", MaxTokens: 512},
		EmbeddingWorker: EmbeddingWorkerConfig{
			Enabled:             false,
			IntervalSeconds:     30,
			BatchSize:           64,
			StaleTimeoutMinutes: 10,
		},
	}
}

// Load reads config/bliteserver.yaml, following the teacher's
// LoadServicesConfig convention of a fixed default path under config/.
func Load() (*Config, error) {
	return LoadFromPath(filepath.Join("config", "bliteserver.yaml"))
}

// LoadFromPath reads the YAML file at path, overlays environment
// variables, and validates the result. A missing file is an error here
// (use LoadOrDefault for the fallback behavior).
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	applyEnvOverlay(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads from path, falling back to Default() (still
// overlaid with environment variables) if the file cannot be read.
func LoadOrDefault(path string) *Config {
	cfg, err := LoadFromPath(path)
	if err == nil {
		return cfg
	}
	cfg = Default()
	applyEnvOverlay(cfg)
	return cfg
}

// envOverlay describes one BLITE_<SECTION>_<KEY> environment variable and
// how to apply it to cfg.
type envOverlay struct {
	key   string
	apply func(cfg *Config, raw string)
}

func envBool(raw string) (bool, bool) {
	b, err := strconv.ParseBool(raw)
	return b, err == nil
}

func envInt(raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

var overlays = []envOverlay{
	{"BLITE_SERVER_HTTPADDR", func(c *Config, v string) { c.Server.HTTPAddr = v }},
	{"BLITE_SERVER_RPCADDR", func(c *Config, v string) { c.Server.RPCAddr = v }},
	{"BLITE_SERVER_LOGLEVEL", func(c *Config, v string) { c.Server.LogLevel = v }},
	{"BLITE_SERVER_LOGFORMAT", func(c *Config, v string) { c.Server.LogFormat = v }},
	{"BLITE_SERVER_TENANTFILEDIRECTORY", func(c *Config, v string) { c.Server.TenantFileDirectory = v }},
	{"BLITE_QUERYCACHE_ENABLED", func(c *Config, v string) {
		if b, ok := envBool(v); ok {
			c.QueryCache.Enabled = b
		}
	}},
	{"BLITE_QUERYCACHE_SLIDINGEXPIRATIONSECONDS", func(c *Config, v string) {
		if n, ok := envInt(v); ok {
			c.QueryCache.SlidingExpirationSeconds = n
		}
	}},
	{"BLITE_QUERYCACHE_ABSOLUTEEXPIRATIONSECONDS", func(c *Config, v string) {
		if n, ok := envInt(v); ok {
			c.QueryCache.AbsoluteExpirationSeconds = n
		}
	}},
	{"BLITE_QUERYCACHE_MAXSIZEBYTES", func(c *Config, v string) {
		if n, ok := envInt(v); ok {
			c.QueryCache.MaxSizeBytes = n
		}
	}},
	{"BLITE_QUERYCACHE_MAXRESULTSETSIZE", func(c *Config, v string) {
		if n, ok := envInt(v); ok {
			c.QueryCache.MaxResultSetSize = n
		}
	}},
	{"BLITE_TRANSACTIONS_TIMEOUTSECONDS", func(c *Config, v string) {
		if n, ok := envInt(v); ok {
			c.Transactions.TimeoutSeconds = n
		}
	}},
	{"BLITE_EMBEDDING_MODELDIRECTORY", func(c *Config, v string) { c.Embedding.ModelDirectory = v }},
	{"BLITE_EMBEDDING_MAXTOKENS", func(c *Config, v string) {
		if n, ok := envInt(v); ok {
			c.Embedding.MaxTokens = n
		}
	}},
	{"BLITE_EMBEDDINGWORKER_ENABLED", func(c *Config, v string) {
		if b, ok := envBool(v); ok {
			c.EmbeddingWorker.Enabled = b
		}
	}},
	{"BLITE_EMBEDDINGWORKER_INTERVALSECONDS", func(c *Config, v string) {
		if n, ok := envInt(v); ok {
			c.EmbeddingWorker.IntervalSeconds = n
		}
	}},
	{"BLITE_EMBEDDINGWORKER_BATCHSIZE", func(c *Config, v string) {
		if n, ok := envInt(v); ok {
			c.EmbeddingWorker.BatchSize = n
		}
	}},
	{"BLITE_EMBEDDINGWORKER_STALETIMEOUTMINUTES", func(c *Config, v string) {
		if n, ok := envInt(v); ok {
			c.EmbeddingWorker.StaleTimeoutMinutes = n
		}
	}},
}

// applyEnvOverlay overlays every recognised BLITE_<SECTION>_<KEY>
// environment variable onto cfg, following spec.md §6/SPEC_FULL.md §6's
// "environment-variable overlay" requirement.
func applyEnvOverlay(cfg *Config) {
	for _, o := range overlays {
		if v, ok := os.LookupEnv(o.key); ok {
			o.apply(cfg, strings.TrimSpace(v))
		}
	}
}

// Validate checks every field for a usable value, grounded on the
// teacher's services_types.go per-field validation style (LoadFromPath
// there rejects a zero Port; here every positive-int knob and every
// required address gets the same treatment).
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("config: server.httpAddr is required")
	}
	if c.Server.RPCAddr == "" {
		return fmt.Errorf("config: server.rpcAddr is required")
	}
	if c.QueryCache.SlidingExpirationSeconds <= 0 {
		return fmt.Errorf("config: queryCache.slidingExpirationSeconds must be positive")
	}
	if c.QueryCache.AbsoluteExpirationSeconds <= 0 {
		return fmt.Errorf("config: queryCache.absoluteExpirationSeconds must be positive")
	}
	if c.QueryCache.MaxResultSetSize <= 0 {
		return fmt.Errorf("config: queryCache.maxResultSetSize must be positive")
	}
	if c.Transactions.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: transactions.timeoutSeconds must be positive")
	}
	if c.Embedding.MaxTokens <= 0 {
		return fmt.Errorf("config: embedding.maxTokens must be positive")
	}
	if c.EmbeddingWorker.Enabled {
		if c.EmbeddingWorker.IntervalSeconds <= 0 {
			return fmt.Errorf("config: embeddingWorker.intervalSeconds must be positive when enabled")
		}
		if c.EmbeddingWorker.BatchSize <= 0 {
			return fmt.Errorf("config: embeddingWorker.batchSize must be positive when enabled")
		}
		if c.EmbeddingWorker.StaleTimeoutMinutes <= 0 {
			return fmt.Errorf("config: embeddingWorker.staleTimeoutMinutes must be positive when enabled")
		}
	}
	return nil
}
