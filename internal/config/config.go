package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	searchuc "github.com/kailas-cloud/imgdex/internal/usecase/search"
)

// Backend drivers.
const (
	DriverRedis    = "redis"
	DriverMemory   = "memory"
	DriverPGVector = "pgvector"
)

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds the imgdex configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Vector    VectorConfig    `yaml:"vector"`
	Models    ModelsConfig    `yaml:"models"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Search    SearchConfig    `yaml:"search"`
	Documents DocumentsConfig `yaml:"documents"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int64 `yaml:"max_body_bytes"`
}

// DatabaseConfig holds document store settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	Driver          string `yaml:"driver"` // redis, pgvector, memory (default: database.driver)
	Dimensions      int    `yaml:"dimensions"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	DSN             string `yaml:"dsn"` // pgvector only
	MaxConns        int    `yaml:"max_conns"`
}

// ModelConfig holds one model endpoint.
type ModelConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
	// Instruction prefixes for asymmetric embedding models; embedding only.
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
	// Truncate sends vector.dimensions with embedding requests (Matryoshka models).
	Truncate bool `yaml:"truncate"`
}

// ModelsConfig holds the model gateway settings.
type ModelsConfig struct {
	Description ModelConfig `yaml:"description"`
	Embedding   ModelConfig `yaml:"embedding"`
	Attempts    int         `yaml:"attempts"`
	BackoffMs   int         `yaml:"backoff_ms"`
	MaxTokens   int         `yaml:"max_tokens"`
	Temperature float32     `yaml:"temperature"`
	Cache       CacheConfig `yaml:"cache"`
}

// CacheConfig holds embedding cache settings. The cache needs the redis database driver.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled"`
	TTLHours int  `yaml:"ttl_hours"` // 0 = keep forever
}

// PipelineConfig holds embedding pipeline defaults.
type PipelineConfig struct {
	BatchSize    int `yaml:"batch_size"`
	MaxDocuments int `yaml:"max_documents"`
	Concurrency  int `yaml:"concurrency"`
	Attempts     int `yaml:"attempts"`
	BackoffMs    int `yaml:"backoff_ms"`
	// StoreTimeoutSec bounds every document store and vector index call made by
	// the pipeline and the reconciler.
	StoreTimeoutSec int `yaml:"store_timeout_sec"`
}

// StoreTimeout returns the per-call storage deadline.
func (c PipelineConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSec) * time.Second
}

// SearchConfig holds hybrid ranking settings.
type SearchConfig struct {
	VectorWeight float64 `yaml:"vector_weight"`
	TextWeight   float64 `yaml:"text_weight"`
	Oversample   int     `yaml:"oversample"`
}

// DocumentsConfig holds pagination and batch limits.
type DocumentsConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
	MaxBatchSize    int `yaml:"max_batch_size"`
}

// ReconcileConfig holds synchronizer settings.
type ReconcileConfig struct {
	IntervalSec    int `yaml:"interval_sec"` // 0 disables the periodic loop
	CandidateLimit int `yaml:"candidate_limit"`
}

// Interval returns the reconcile period.
func (c ReconcileConfig) Interval() time.Duration { return time.Duration(c.IntervalSec) * time.Second }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadDotEnv loads variables from .env files into the process environment.
// Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// pipeline and sync calls run inside the request
		c.HTTP.WriteTimeoutSec = 600
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 64 << 20
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Vector.Driver == "" {
		c.Vector.Driver = c.Database.Driver
	}
	if c.Vector.HNSWM <= 0 {
		c.Vector.HNSWM = 16
	}
	if c.Vector.HNSWEFConstruct <= 0 {
		c.Vector.HNSWEFConstruct = 200
	}
	if c.Models.Description.Provider == "" {
		c.Models.Description.Provider = ProviderOpenAI
	}
	if c.Models.Embedding.Provider == "" {
		c.Models.Embedding.Provider = ProviderOpenAI
	}
	if c.Models.Description.TimeoutSec <= 0 {
		c.Models.Description.TimeoutSec = 60
	}
	if c.Models.Embedding.TimeoutSec <= 0 {
		c.Models.Embedding.TimeoutSec = 30
	}
	if c.Models.Attempts <= 0 {
		c.Models.Attempts = 3
	}
	if c.Models.BackoffMs <= 0 {
		c.Models.BackoffMs = 500
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 50
	}
	if c.Pipeline.MaxDocuments <= 0 {
		c.Pipeline.MaxDocuments = 1000
	}
	if c.Pipeline.Concurrency <= 0 {
		c.Pipeline.Concurrency = 4
	}
	if c.Pipeline.Attempts <= 0 {
		c.Pipeline.Attempts = 3
	}
	if c.Pipeline.BackoffMs <= 0 {
		c.Pipeline.BackoffMs = 500
	}
	if c.Pipeline.StoreTimeoutSec <= 0 {
		c.Pipeline.StoreTimeoutSec = 10
	}
	if c.Search.VectorWeight == 0 && c.Search.TextWeight == 0 {
		c.Search.VectorWeight = 0.7
		c.Search.TextWeight = 0.3
	}
	if c.Search.Oversample <= 0 {
		c.Search.Oversample = 3
	}
	if c.Documents.DefaultPageSize <= 0 {
		c.Documents.DefaultPageSize = 20
	}
	if c.Documents.MaxPageSize <= 0 {
		c.Documents.MaxPageSize = 100
	}
	if c.Documents.MaxBatchSize <= 0 {
		c.Documents.MaxBatchSize = 100
	}
	if c.Reconcile.CandidateLimit <= 0 {
		c.Reconcile.CandidateLimit = 100_000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return errors.New("database.addrs is required for the redis driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverRedis, DriverMemory, c.Database.Driver)
	}

	switch c.Vector.Driver {
	case DriverRedis:
		if c.Database.Driver != DriverRedis {
			return errors.New("vector.driver redis needs database.driver redis")
		}
	case DriverPGVector:
		if c.Vector.DSN == "" {
			return errors.New("vector.dsn is required for the pgvector driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("vector.driver must be redis, pgvector or memory, got %q", c.Vector.Driver)
	}
	if c.Vector.Dimensions <= 0 {
		return fmt.Errorf("vector.dimensions must be positive, got %d", c.Vector.Dimensions)
	}

	switch c.Models.Description.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("models.description.provider must be %q or %q, got %q",
			ProviderOpenAI, ProviderAnthropic, c.Models.Description.Provider)
	}
	if c.Models.Embedding.Provider != ProviderOpenAI {
		return fmt.Errorf("models.embedding.provider must be %q, got %q", ProviderOpenAI, c.Models.Embedding.Provider)
	}
	if c.Models.Description.Model == "" || c.Models.Embedding.Model == "" {
		return errors.New("models.description.model and models.embedding.model are required")
	}
	if c.Models.Cache.Enabled && c.Database.Driver != DriverRedis {
		return errors.New("models.cache needs database.driver redis")
	}

	weights := searchuc.Weights{Vector: c.Search.VectorWeight, Text: c.Search.TextWeight}
	if err := searchuc.ValidateWeights(weights); err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if c.Documents.DefaultPageSize > c.Documents.MaxPageSize {
		return fmt.Errorf("documents.default_page_size %d exceeds max_page_size %d",
			c.Documents.DefaultPageSize, c.Documents.MaxPageSize)
	}
	if c.Reconcile.IntervalSec < 0 {
		return fmt.Errorf("reconcile.interval_sec must not be negative, got %d", c.Reconcile.IntervalSec)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
