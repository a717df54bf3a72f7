package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the partsearch configuration shared by the API and the indexer.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
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
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector store connection and HNSW settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds provider credentials and the models bound to each use.
type EmbeddingConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Text      VectorizerConfig          `yaml:"text"`
	Image     VectorizerConfig          `yaml:"image"`
	Caption   ChatModelConfig           `yaml:"caption"`
	Summary   ChatModelConfig           `yaml:"summary"`
	Chat      ChatModelConfig           `yaml:"chat"`
	TimeoutMs int                       `yaml:"timeout_ms"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit      int64   `yaml:"daily_token_limit"`       // 0 = unlimited
	MonthlyTokenLimit    int64   `yaml:"monthly_token_limit"`     // 0 = unlimited
	CostPerMillionTokens float64 `yaml:"cost_per_million_tokens"` // dashboards only
	Action               string  `yaml:"action"`                  // "reject" | "warn" (default)
}

// ProviderConfig holds an OpenAI-compatible endpoint.
type ProviderConfig struct {
	APIKey  string       `yaml:"api_key"`
	BaseURL string       `yaml:"base_url"`
	Budget  BudgetConfig `yaml:"budget"`
}

// VectorizerConfig binds an embedding model to a provider.
type VectorizerConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// ChatModelConfig binds a chat model to a provider.
type ChatModelConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// SearchConfig holds hybrid retrieval and fusion settings.
type SearchConfig struct {
	TextWeight        float64 `yaml:"text_weight"`
	ImageWeight       float64 `yaml:"image_weight"`
	TopK              int     `yaml:"top_k"`
	MaxResults        int     `yaml:"max_results"`
	ImagesRoot        string  `yaml:"images_root"`
	SubqueryTimeoutMs int     `yaml:"subquery_timeout_ms"`
}

// SubqueryTimeout returns the per-sub-query deadline.
func (s SearchConfig) SubqueryTimeout() time.Duration {
	return time.Duration(s.SubqueryTimeoutMs) * time.Millisecond
}

// IndexerConfig holds catalog indexing settings.
type IndexerConfig struct {
	BatchSize int `yaml:"batch_size"`
	Workers   int `yaml:"workers"`
}

// MaxUpsertBatch is the largest batch the vector index accepts per upsert.
const MaxUpsertBatch = 100

// MaxSearchResults caps the ranked list returned by one search.
const MaxSearchResults = 5

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML with ${VAR} expansion, applies defaults and validates.
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
		// chat responses stream for a while
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.HNSWM <= 0 {
		c.Database.HNSWM = 16
	}
	if c.Database.HNSWEFConstruct <= 0 {
		c.Database.HNSWEFConstruct = 200
	}
	c.applyEmbeddingDefaults()
	c.applySearchDefaults()
	if c.Indexer.BatchSize <= 0 {
		c.Indexer.BatchSize = MaxUpsertBatch
	}
	if c.Indexer.Workers <= 0 {
		c.Indexer.Workers = 4
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "partsearch:"
	}
}

func (c *Config) applyEmbeddingDefaults() {
	e := &c.Embedding
	if e.Text.Model == "" {
		e.Text.Model = "text-embedding-3-small"
	}
	if e.Text.Dimensions <= 0 {
		e.Text.Dimensions = 1536
	}
	if e.Image.Model == "" {
		e.Image.Model = "openai/clip-vit-base-patch32"
	}
	if e.Image.Dimensions <= 0 {
		e.Image.Dimensions = 512
	}
	if e.Caption.Model == "" {
		e.Caption.Model = "gpt-4o-mini"
	}
	if e.Caption.MaxTokens <= 0 {
		e.Caption.MaxTokens = 150
	}
	if e.Summary.Model == "" {
		e.Summary.Model = "gpt-3.5-turbo"
	}
	if e.Summary.MaxTokens <= 0 {
		e.Summary.MaxTokens = 200
	}
	if e.Chat.Model == "" {
		e.Chat.Model = "gpt-4-turbo-preview"
	}
	if e.Chat.MaxTokens <= 0 {
		e.Chat.MaxTokens = 1024
	}
	if e.TimeoutMs <= 0 {
		e.TimeoutMs = 30000
	}
}

func (c *Config) applySearchDefaults() {
	s := &c.Search
	if s.TextWeight <= 0 {
		s.TextWeight = 0.6
	}
	if s.ImageWeight <= 0 {
		s.ImageWeight = 0.4
	}
	if s.TopK <= 0 {
		s.TopK = 5
	}
	if s.MaxResults <= 0 {
		s.MaxResults = 5
	}
	if s.ImagesRoot == "" {
		s.ImagesRoot = "images"
	}
	if s.SubqueryTimeoutMs <= 0 {
		s.SubqueryTimeoutMs = 10000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	for name, p := range c.Embedding.Providers {
		switch p.Budget.Action {
		case "", "warn", "reject":
			// ok
		default:
			return fmt.Errorf(
				"embedding.providers.%s.budget.action must be \"warn\" or \"reject\", got %q",
				name, p.Budget.Action,
			)
		}
	}
	for use, provider := range map[string]string{
		"text":    c.Embedding.Text.Provider,
		"image":   c.Embedding.Image.Provider,
		"caption": c.Embedding.Caption.Provider,
		"summary": c.Embedding.Summary.Provider,
		"chat":    c.Embedding.Chat.Provider,
	} {
		if provider == "" {
			continue
		}
		if _, ok := c.Embedding.Providers[provider]; !ok {
			return fmt.Errorf("embedding.%s.provider %q is not defined in embedding.providers", use, provider)
		}
	}
	if c.Search.MaxResults > MaxSearchResults {
		return fmt.Errorf("search.max_results must be at most %d, got %d", MaxSearchResults, c.Search.MaxResults)
	}
	if c.Indexer.BatchSize > MaxUpsertBatch {
		return fmt.Errorf("indexer.batch_size must be at most %d, got %d", MaxUpsertBatch, c.Indexer.BatchSize)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// relative to the source file, for tests run from package dirs
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
