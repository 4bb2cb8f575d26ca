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

// Config holds the vecrag service configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Index       IndexConfig       `yaml:"index"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Generation  GenerationConfig  `yaml:"generation"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Events      EventsConfig      `yaml:"events"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
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

// DatabaseConfig holds KV connection settings. Empty addrs disables the KV store.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// Enabled reports whether a KV store is configured.
func (d DatabaseConfig) Enabled() bool { return len(d.Addrs) > 0 }

// Object store backends.
const (
	BackendNone = "none"
	BackendS3   = "s3"
	BackendKV   = "kv"
)

// ObjectStoreConfig holds the remote index tier settings.
type ObjectStoreConfig struct {
	Backend           string `yaml:"backend"` // s3, kv, none (default: none)
	Bucket            string `yaml:"bucket"`
	Region            string `yaml:"region"`
	Endpoint          string `yaml:"endpoint"` // e.g. https://nyc3.digitaloceanspaces.com
	AccessKey         string `yaml:"access_key"`
	SecretKey         string `yaml:"secret_key"`
	UsePathStyle      bool   `yaml:"use_path_style"`
	KeyPrefix         string `yaml:"key_prefix"`
	UploadAttempts    int    `yaml:"upload_attempts"`
	UploadBaseDelayMS int    `yaml:"upload_base_delay_ms"`
	TimeoutSec        int    `yaml:"timeout_sec"`
}

// IndexConfig holds the tenant index cache settings.
type IndexConfig struct {
	CacheCapacity int    `yaml:"cache_capacity"`
	LocalDir      string `yaml:"local_dir"`
	DefaultTopK   int    `yaml:"default_top_k"`
	MaxTopK       int    `yaml:"max_top_k"`
	MaxBatchSize  int    `yaml:"max_batch_size"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// ProviderConfig holds settings for one OpenAI-compatible provider.
type ProviderConfig struct {
	Kind         string  `yaml:"kind"` // openai, fastembed (embedding only)
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	Dimensions   int     `yaml:"dimensions"`
	CacheDir     string  `yaml:"cache_dir"`
	TimeoutSec   int     `yaml:"timeout_sec"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // 0 = unlimited
	Burst        int     `yaml:"burst"`
	InputPrice   float64 `yaml:"input_price_per_million"`
	OutputPrice  float64 `yaml:"output_price_per_million"`
}

// EmbeddingConfig holds the embedding gateway settings.
type EmbeddingConfig struct {
	Primary       ProviderConfig `yaml:"primary"`
	Secondary     ProviderConfig `yaml:"secondary"`
	AllowStub     *bool          `yaml:"allow_stub"`
	CacheEnabled  bool           `yaml:"cache_enabled"`
	CacheTTLHours int            `yaml:"cache_ttl_hours"` // 0 = cached vectors never expire
	Budget        BudgetConfig   `yaml:"budget"`
}

// StubAllowed reports whether degraded stub vectors may be returned. Defaults to true.
func (e EmbeddingConfig) StubAllowed() bool { return e.AllowStub == nil || *e.AllowStub }

// GenerationConfig holds the generation gateway settings.
type GenerationConfig struct {
	Providers       map[string]ProviderConfig `yaml:"providers"`
	Primary         string                    `yaml:"primary"`
	Secondary       string                    `yaml:"secondary"`
	PlanPreferences map[string]string         `yaml:"plan_preferences"`
	MaxTokens       int                       `yaml:"max_tokens"`
	// Temperature defaults to 0.3 when unset; 0 is a valid setting.
	Temperature *float32 `yaml:"temperature"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	EscalationThreshold *float64 `yaml:"escalation_threshold"` // unset = 0.3
	TopK                int      `yaml:"top_k"`
	CitationLimit       int      `yaml:"citation_limit"`
	LatencyBudgetMS     int      `yaml:"latency_budget_ms"` // 0 = unlimited
	ApologyAnswer       string   `yaml:"apology_answer"`
}

// EventsConfig holds the usage ledger and escalation sink settings.
type EventsConfig struct {
	NATSURL           string `yaml:"nats_url"` // empty = log-only sinks
	UsageSubject      string `yaml:"usage_subject"`
	EscalationSubject string `yaml:"escalation_subject"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

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
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "vecrag:"
	}
	c.applyObjectStoreDefaults()
	c.applyIndexDefaults()
	c.applyProviderDefaults()
	c.applyPipelineDefaults()
	if c.Events.UsageSubject == "" {
		c.Events.UsageSubject = "vecrag.usage"
	}
	if c.Events.EscalationSubject == "" {
		c.Events.EscalationSubject = "vecrag.escalations"
	}
}

func (c *Config) applyObjectStoreDefaults() {
	s := &c.ObjectStore
	if s.Backend == "" {
		s.Backend = BackendNone
	}
	if s.Region == "" {
		s.Region = "us-east-1"
	}
	if s.UploadAttempts <= 0 {
		s.UploadAttempts = 3
	}
	if s.UploadBaseDelayMS <= 0 {
		s.UploadBaseDelayMS = 1000
	}
	if s.TimeoutSec <= 0 {
		s.TimeoutSec = 30
	}
}

func (c *Config) applyIndexDefaults() {
	if c.Index.CacheCapacity <= 0 {
		c.Index.CacheCapacity = 50
	}
	if c.Index.LocalDir == "" {
		c.Index.LocalDir = filepath.Join(os.TempDir(), "vecrag_indexes")
	}
	if c.Index.DefaultTopK <= 0 {
		c.Index.DefaultTopK = 5
	}
	if c.Index.MaxTopK <= 0 {
		c.Index.MaxTopK = 50
	}
	if c.Index.MaxBatchSize <= 0 {
		c.Index.MaxBatchSize = 256
	}
}

func (c *Config) applyProviderDefaults() {
	if c.Embedding.Primary.Kind == "" {
		c.Embedding.Primary.Kind = "openai"
	}
	if c.Embedding.Primary.Model == "" {
		c.Embedding.Primary.Model = "text-embedding-3-small"
	}
	if c.Embedding.Primary.TimeoutSec <= 0 {
		c.Embedding.Primary.TimeoutSec = 30
	}
	if c.Embedding.Secondary.TimeoutSec <= 0 {
		c.Embedding.Secondary.TimeoutSec = 30
	}
	for name, p := range c.Generation.Providers {
		if p.TimeoutSec <= 0 {
			p.TimeoutSec = 30
		}
		c.Generation.Providers[name] = p
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 500
	}
	if c.Generation.Temperature == nil {
		t := float32(0.3)
		c.Generation.Temperature = &t
	}
}

func (c *Config) applyPipelineDefaults() {
	if c.Pipeline.EscalationThreshold == nil {
		t := 0.3
		c.Pipeline.EscalationThreshold = &t
	}
	if c.Pipeline.TopK <= 0 {
		c.Pipeline.TopK = c.Index.DefaultTopK
	}
	if c.Pipeline.CitationLimit <= 0 {
		c.Pipeline.CitationLimit = 3
	}
	if c.Pipeline.ApologyAnswer == "" {
		c.Pipeline.ApologyAnswer = "I'm sorry, I'm experiencing technical issues. Please try again later."
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if err := c.validateObjectStore(); err != nil {
		return err
	}
	if c.Embedding.CacheEnabled && !c.Database.Enabled() {
		return fmt.Errorf("embedding.cache_enabled requires database.addrs")
	}
	if c.Embedding.CacheTTLHours < 0 {
		return fmt.Errorf("embedding.cache_ttl_hours must not be negative, got %d", c.Embedding.CacheTTLHours)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q",
			c.Embedding.Budget.Action,
		)
	}
	switch c.Embedding.Secondary.Kind {
	case "", "openai", "fastembed":
	default:
		return fmt.Errorf("embedding.secondary.kind must be \"openai\" or \"fastembed\", got %q",
			c.Embedding.Secondary.Kind)
	}
	return c.validateGeneration()
}

func (c *Config) validateObjectStore() error {
	switch c.ObjectStore.Backend {
	case "", BackendNone:
	case BackendS3:
		if c.ObjectStore.Bucket == "" {
			return fmt.Errorf("object_store.bucket is required for backend %q", BackendS3)
		}
	case BackendKV:
		if !c.Database.Enabled() {
			return fmt.Errorf("object_store backend %q requires database.addrs", BackendKV)
		}
	default:
		return fmt.Errorf("object_store.backend must be one of none, s3, kv, got %q", c.ObjectStore.Backend)
	}
	return nil
}

func (c *Config) validateGeneration() error {
	g := c.Generation
	if len(g.Providers) == 0 {
		return fmt.Errorf("generation.providers must define at least one provider")
	}
	if _, ok := g.Providers[g.Primary]; !ok {
		return fmt.Errorf("generation.primary %q is not a configured provider", g.Primary)
	}
	if g.Secondary != "" {
		if _, ok := g.Providers[g.Secondary]; !ok {
			return fmt.Errorf("generation.secondary %q is not a configured provider", g.Secondary)
		}
	}
	for plan, name := range g.PlanPreferences {
		if _, ok := g.Providers[name]; !ok {
			return fmt.Errorf("generation.plan_preferences.%s: unknown provider %q", plan, name)
		}
	}
	if t := c.Generation.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("generation.temperature must be in [0, 2], got %v", *t)
	}
	if t := c.Pipeline.EscalationThreshold; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("pipeline.escalation_threshold must be in [0, 1], got %v", *t)
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
