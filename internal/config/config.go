package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Bounds on the repair loop.
const (
	DefaultMaxRepairs = 2
	MaxRepairsLimit   = 10
)

// Config is the top-level configuration.
type Config struct {
	Providers ProvidersConfig `yaml:"providers"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Store     StoreConfig     `yaml:"store"`
	Source    SourceConfig    `yaml:"source"`
	Notify    NotifyConfig    `yaml:"notify"`
	Batch     BatchConfig     `yaml:"batch"`
}

// ProviderConfig holds settings for a single provider (embedding or LLM).
type ProviderConfig struct {
	Type        string   `yaml:"type"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key"`
	URL         string   `yaml:"url"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// ProvidersConfig groups the generation, repair and embedding providers.
// Empty repair fields inherit from generation.
type ProvidersConfig struct {
	Generation ProviderConfig `yaml:"generation"`
	Repair     ProviderConfig `yaml:"repair"`
	Embedding  ProviderConfig `yaml:"embedding"`
}

// WorkflowConfig bounds each fix invocation.
type WorkflowConfig struct {
	// MaxRepairs is a pointer so that an explicit 0 survives defaulting.
	MaxRepairs        *int   `yaml:"max_repairs"`
	TopK              int    `yaml:"top_k"`
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// StoreConfig selects the knowledge store backend.
type StoreConfig struct {
	Type       string `yaml:"type"`
	Path       string `yaml:"path"`
	DSN        string `yaml:"dsn"`
	Table      string `yaml:"table"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
	Overfetch  int    `yaml:"overfetch"`
	Compress   bool   `yaml:"compress"`
}

// SourceConfig tells the batch command where to read flagged code from.
type SourceConfig struct {
	Dir    string       `yaml:"dir"`
	GitHub GitHubConfig `yaml:"github"`
}

// GitHubConfig holds repository and authentication settings for reading
// source files through the GitHub API.
type GitHubConfig struct {
	Repo           string `yaml:"repo"`
	Ref            string `yaml:"ref"`
	Token          string `yaml:"token"`
	AppID          string `yaml:"app_id"`
	InstallationID string `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKey     string `yaml:"private_key"`
}

// NotifyConfig holds notification webhook URLs.
type NotifyConfig struct {
	SlackWebhook   string `yaml:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook"`
}

// BatchConfig controls concurrent processing of a Sonar report.
type BatchConfig struct {
	Workers           int    `yaml:"workers"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	MetricsAddr       string `yaml:"metrics_addr"`
}

// RequestTimeout returns the parsed per-call timeout.
func (w WorkflowConfig) RequestTimeout() (time.Duration, error) {
	if w.RequestTimeoutRaw == "" {
		return 60 * time.Second, nil
	}
	return time.ParseDuration(w.RequestTimeoutRaw)
}

// Repairs returns the configured repair bound.
func (w WorkflowConfig) Repairs() int {
	if w.MaxRepairs == nil {
		return DefaultMaxRepairs
	}
	return *w.MaxRepairs
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	gen := &cfg.Providers.Generation
	if gen.Temperature == nil {
		t := 0.7
		gen.Temperature = &t
	}

	rep := &cfg.Providers.Repair
	if rep.Type == "" {
		rep.Type = gen.Type
		if rep.APIKey == "" {
			rep.APIKey = gen.APIKey
		}
		if rep.URL == "" {
			rep.URL = gen.URL
		}
	}
	if rep.Model == "" && rep.Type == gen.Type {
		rep.Model = gen.Model
	}
	if rep.Temperature == nil {
		t := 0.0
		rep.Temperature = &t
	}
	if rep.MaxTokens == 0 {
		rep.MaxTokens = gen.MaxTokens
	}

	if cfg.Workflow.MaxRepairs == nil {
		n := DefaultMaxRepairs
		cfg.Workflow.MaxRepairs = &n
	}
	if cfg.Workflow.TopK == 0 {
		cfg.Workflow.TopK = 3
	}
	if cfg.Workflow.RequestTimeoutRaw == "" {
		cfg.Workflow.RequestTimeoutRaw = "60s"
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = "sqlite"
	}
	switch cfg.Store.Type {
	case "sqlite":
		if cfg.Store.Path == "" {
			cfg.Store.Path = "~/.sonarfix/fixes.db"
		}
	case "chromem":
		if cfg.Store.Path == "" {
			cfg.Store.Path = "~/.sonarfix/chromem"
		}
	case "qdrant":
		if cfg.Store.Host == "" {
			cfg.Store.Host = "localhost"
		}
		if cfg.Store.Port == 0 {
			cfg.Store.Port = 6334
		}
	}
	cfg.Store.Path = ExpandHome(cfg.Store.Path)

	if cfg.Source.GitHub.Ref == "" {
		cfg.Source.GitHub.Ref = "HEAD"
	}

	if cfg.Batch.Workers == 0 {
		cfg.Batch.Workers = 4
	}
}

func validate(cfg *Config) error {
	validLLMTypes := map[string]bool{"openai": true, "ollama": true, "anthropic": true, "": true}
	if !validLLMTypes[cfg.Providers.Generation.Type] {
		return fmt.Errorf("unsupported generation provider type: %s", cfg.Providers.Generation.Type)
	}
	if !validLLMTypes[cfg.Providers.Repair.Type] {
		return fmt.Errorf("unsupported repair provider type: %s", cfg.Providers.Repair.Type)
	}
	validEmbedTypes := map[string]bool{"openai": true, "ollama": true, "": true}
	if !validEmbedTypes[cfg.Providers.Embedding.Type] {
		return fmt.Errorf("unsupported embedding provider type: %s", cfg.Providers.Embedding.Type)
	}

	for name, p := range map[string]ProviderConfig{"generation": cfg.Providers.Generation, "repair": cfg.Providers.Repair} {
		if t := *p.Temperature; t < 0 || t > 2 {
			return fmt.Errorf("%s temperature must be between 0 and 2, got %g", name, t)
		}
		if p.MaxTokens < 0 {
			return fmt.Errorf("%s max_tokens must not be negative, got %d", name, p.MaxTokens)
		}
	}

	if n := *cfg.Workflow.MaxRepairs; n < 0 || n > MaxRepairsLimit {
		return fmt.Errorf("max_repairs must be between 0 and %d, got %d", MaxRepairsLimit, n)
	}
	if cfg.Workflow.TopK < 1 {
		return fmt.Errorf("top_k must be positive, got %d", cfg.Workflow.TopK)
	}
	if _, err := time.ParseDuration(cfg.Workflow.RequestTimeoutRaw); err != nil {
		return fmt.Errorf("invalid request_timeout %q: %w", cfg.Workflow.RequestTimeoutRaw, err)
	}

	if cfg.Store.Dimensions < 0 {
		return fmt.Errorf("store dimensions must not be negative, got %d", cfg.Store.Dimensions)
	}
	switch cfg.Store.Type {
	case "sqlite":
	case "chromem":
		if cfg.Store.Dimensions == 0 {
			return fmt.Errorf("store type chromem requires dimensions")
		}
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store type postgres requires dsn")
		}
		if cfg.Store.Dimensions == 0 {
			return fmt.Errorf("store type postgres requires dimensions")
		}
	case "qdrant":
		if cfg.Store.Dimensions == 0 {
			return fmt.Errorf("store type qdrant requires dimensions")
		}
	default:
		return fmt.Errorf("unsupported store type: %s", cfg.Store.Type)
	}

	if repo := cfg.Source.GitHub.Repo; repo != "" {
		if parts := strings.Split(repo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("source.github.repo must be owner/name, got %q", repo)
		}
	}

	if cfg.Batch.Workers < 1 {
		return fmt.Errorf("batch workers must be positive, got %d", cfg.Batch.Workers)
	}
	if cfg.Batch.RequestsPerMinute < 0 {
		return fmt.Errorf("batch requests_per_minute must not be negative, got %d", cfg.Batch.RequestsPerMinute)
	}

	return nil
}
