package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ragchat configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Chat        ChatConfig        `yaml:"chat"`
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
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // streaming responses lift this per request
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// KnowledgeConfig points at the folder /ingest reads.
type KnowledgeConfig struct {
	Dir string `yaml:"dir"`
}

// ChunkingConfig holds the token window policy.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig holds debug endpoint defaults.
type RetrievalConfig struct {
	DebugTopK    int `yaml:"debug_top_k"`
	AugmentTopK  int `yaml:"augment_top_k"`
	PreviewChars int `yaml:"preview_chars"`
}

// VectorStoreConfig selects and configures the vector backend.
type VectorStoreConfig struct {
	Driver           string   `yaml:"driver"` // file, redis, valkey, postgres (default: file)
	Collection       string   `yaml:"collection"`
	Dir              string   `yaml:"dir"`   // file
	Addrs            []string `yaml:"addrs"` // redis, valkey
	Password         string   `yaml:"password"`
	DSN              string   `yaml:"dsn"` // postgres
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
}

// OpenAIConfig holds settings for OpenAI-compatible endpoints.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// BedrockConfig holds AWS Bedrock runtime settings. Credentials come from the
// default AWS chain (env, shared config, instance role).
type BedrockConfig struct {
	Region      string `yaml:"region"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider     string        `yaml:"provider"` // bedrock, openai
	Model        string        `yaml:"model"`
	Dimensions   int           `yaml:"dimensions"` // 0 = model default
	// DisableCache turns off caching of vectors in the vector store's key space.
	DisableCache bool          `yaml:"disable_cache"`
	OpenAI       OpenAIConfig  `yaml:"openai"`
	Bedrock      BedrockConfig `yaml:"bedrock"`
}

// ChatConfig holds chat model provider settings.
type ChatConfig struct {
	Provider string        `yaml:"provider"` // bedrock, openai
	Model    string        `yaml:"model"`
	OpenAI   OpenAIConfig  `yaml:"openai"`
	Bedrock  BedrockConfig `yaml:"bedrock"`
}

// Load reads configuration from a YAML file by environment name (local, dev, docker, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Knowledge.Dir == "" {
		c.Knowledge.Dir = "./knowledge"
	}
	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 800
		if c.Chunking.Overlap == 0 {
			c.Chunking.Overlap = 100
		}
	}
	if c.Chunking.Overlap < 0 {
		c.Chunking.Overlap = 0
	}
	if c.Retrieval.DebugTopK <= 0 {
		c.Retrieval.DebugTopK = 4
	}
	if c.Retrieval.AugmentTopK <= 0 {
		c.Retrieval.AugmentTopK = 3
	}
	if c.Retrieval.PreviewChars <= 0 {
		c.Retrieval.PreviewChars = 300
	}
	c.applyVectorStoreDefaults()
	c.applyProviderDefaults()
}

func (c *Config) applyVectorStoreDefaults() {
	vs := &c.VectorStore
	if vs.Driver == "" {
		vs.Driver = "file"
	}
	if vs.Collection == "" {
		vs.Collection = "kb_main"
	}
	if vs.Dir == "" {
		vs.Dir = "./data/vectors"
	}
	if vs.ReadinessTimeout <= 0 {
		vs.ReadinessTimeout = 10
	}
	if vs.HNSWM <= 0 {
		vs.HNSWM = 16
	}
	if vs.HNSWEFConstruct <= 0 {
		vs.HNSWEFConstruct = 200
	}
}

func (c *Config) applyProviderDefaults() {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "bedrock"
	}
	if c.Embedding.Model == "" && c.Embedding.Provider == "bedrock" {
		c.Embedding.Model = "amazon.titan-embed-text-v2:0"
	}
	if c.Chat.Provider == "" {
		c.Chat.Provider = "bedrock"
	}
	if c.Chat.Model == "" && c.Chat.Provider == "bedrock" {
		c.Chat.Model = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	for _, b := range []*BedrockConfig{&c.Embedding.Bedrock, &c.Chat.Bedrock} {
		if b.Region == "" {
			b.Region = "us-east-1"
		}
		if b.MaxAttempts <= 0 {
			b.MaxAttempts = 3
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap (%d) must be smaller than chunking.size (%d)",
			c.Chunking.Overlap, c.Chunking.Size)
	}

	switch c.VectorStore.Driver {
	case "file":
	case "redis", "valkey":
		if len(c.VectorStore.Addrs) == 0 {
			return fmt.Errorf("vector_store.addrs is required for driver %q", c.VectorStore.Driver)
		}
	case "postgres":
		if c.VectorStore.DSN == "" {
			return fmt.Errorf("vector_store.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf(
			"vector_store.driver must be one of file, redis, valkey, postgres, got %q", c.VectorStore.Driver,
		)
	}

	if err := validateProvider("embedding", c.Embedding.Provider, c.Embedding.Model); err != nil {
		return err
	}
	return validateProvider("chat", c.Chat.Provider, c.Chat.Model)
}

func validateProvider(section, provider, model string) error {
	switch provider {
	case "bedrock", "openai":
	default:
		return fmt.Errorf("%s.provider must be \"bedrock\" or \"openai\", got %q", section, provider)
	}
	if model == "" {
		return fmt.Errorf("%s.model is required", section)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
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
