package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseBasicConfig(t *testing.T) {
	yaml := `
providers:
  generation:
    type: openai
    model: gpt-4o-mini
    api_key: sk-test-key
    temperature: 0.8
  repair:
    type: anthropic
    model: claude-sonnet-4-20250514
    api_key: sk-ant-key
  embedding:
    type: openai
    model: text-embedding-3-small
    api_key: sk-test-key
workflow:
  max_repairs: 3
  top_k: 5
  request_timeout: 30s
store:
  type: sqlite
  path: /tmp/sonarfix.db
source:
  dir: /src/project
notify:
  slack_webhook: https://hooks.slack.com/test
batch:
  workers: 8
  requests_per_minute: 120
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Providers.Generation.Model != "gpt-4o-mini" {
		t.Errorf("expected generation model 'gpt-4o-mini', got %q", cfg.Providers.Generation.Model)
	}
	if *cfg.Providers.Generation.Temperature != 0.8 {
		t.Errorf("expected generation temperature 0.8, got %f", *cfg.Providers.Generation.Temperature)
	}
	if cfg.Providers.Repair.Type != "anthropic" {
		t.Errorf("expected repair type 'anthropic', got %q", cfg.Providers.Repair.Type)
	}
	if cfg.Providers.Repair.APIKey != "sk-ant-key" {
		t.Errorf("expected repair api key to stay its own, got %q", cfg.Providers.Repair.APIKey)
	}
	if *cfg.Providers.Repair.Temperature != 0 {
		t.Errorf("expected repair temperature 0, got %f", *cfg.Providers.Repair.Temperature)
	}
	if cfg.Workflow.Repairs() != 3 {
		t.Errorf("expected max_repairs 3, got %d", cfg.Workflow.Repairs())
	}
	if cfg.Workflow.TopK != 5 {
		t.Errorf("expected top_k 5, got %d", cfg.Workflow.TopK)
	}
	if cfg.Store.Path != "/tmp/sonarfix.db" {
		t.Errorf("expected store path '/tmp/sonarfix.db', got %q", cfg.Store.Path)
	}
	if cfg.Source.Dir != "/src/project" {
		t.Errorf("expected source dir, got %q", cfg.Source.Dir)
	}
	if cfg.Notify.SlackWebhook != "https://hooks.slack.com/test" {
		t.Errorf("expected slack webhook, got %q", cfg.Notify.SlackWebhook)
	}
	if cfg.Batch.Workers != 8 || cfg.Batch.RequestsPerMinute != 120 {
		t.Errorf("unexpected batch config: %+v", cfg.Batch)
	}

	timeout, err := cfg.Workflow.RequestTimeout()
	if err != nil {
		t.Fatalf("unexpected error parsing request timeout: %v", err)
	}
	if timeout.Seconds() != 30 {
		t.Errorf("expected 30s timeout, got %v", timeout)
	}
}

func TestParseDefaults(t *testing.T) {
	yaml := `
providers:
  generation:
    type: ollama
  embedding:
    type: ollama
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Workflow.Repairs() != DefaultMaxRepairs {
		t.Errorf("expected default max_repairs %d, got %d", DefaultMaxRepairs, cfg.Workflow.Repairs())
	}
	if cfg.Workflow.TopK != 3 {
		t.Errorf("expected default top_k 3, got %d", cfg.Workflow.TopK)
	}
	timeout, err := cfg.Workflow.RequestTimeout()
	if err != nil || timeout.Seconds() != 60 {
		t.Errorf("expected default 60s timeout, got %v (err %v)", timeout, err)
	}
	if *cfg.Providers.Generation.Temperature != 0.7 {
		t.Errorf("expected default generation temperature 0.7, got %f", *cfg.Providers.Generation.Temperature)
	}
	if cfg.Providers.Repair.Type != "ollama" {
		t.Errorf("expected repair to inherit generation type, got %q", cfg.Providers.Repair.Type)
	}
	if cfg.Store.Type != "sqlite" {
		t.Errorf("expected default store type sqlite, got %q", cfg.Store.Type)
	}
	if !strings.HasSuffix(cfg.Store.Path, filepath.Join(".sonarfix", "fixes.db")) {
		t.Errorf("unexpected default store path %q", cfg.Store.Path)
	}
	if strings.HasPrefix(cfg.Store.Path, "~") {
		t.Errorf("expected tilde to be expanded, got %q", cfg.Store.Path)
	}
	if cfg.Source.GitHub.Ref != "HEAD" {
		t.Errorf("expected default ref HEAD, got %q", cfg.Source.GitHub.Ref)
	}
	if cfg.Batch.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Batch.Workers)
	}
}

func TestRepairInheritsGeneration(t *testing.T) {
	yaml := `
providers:
  generation:
    type: openai
    model: gpt-4o
    api_key: sk-gen
    url: https://proxy.example.com/v1
    max_tokens: 4096
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rep := cfg.Providers.Repair
	if rep.Type != "openai" || rep.Model != "gpt-4o" || rep.APIKey != "sk-gen" || rep.URL != "https://proxy.example.com/v1" {
		t.Errorf("repair did not inherit generation: %+v", rep)
	}
	if rep.MaxTokens != 4096 {
		t.Errorf("expected inherited max_tokens 4096, got %d", rep.MaxTokens)
	}
}

func TestExplicitZeroRepairsSurvivesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("workflow:\n  max_repairs: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workflow.Repairs() != 0 {
		t.Errorf("expected max_repairs 0, got %d", cfg.Workflow.Repairs())
	}
}

func TestValidationMaxRepairsBounds(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative", "workflow:\n  max_repairs: -1\n"},
		{"too large", "workflow:\n  max_repairs: 11\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}

	if _, err := Parse([]byte("workflow:\n  max_repairs: 10\n")); err != nil {
		t.Errorf("expected max_repairs 10 to be accepted, got %v", err)
	}
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("SONARFIX_TEST_KEY", "sk-from-env")

	yaml := `
providers:
  generation:
    type: openai
    api_key: ${SONARFIX_TEST_KEY}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.Generation.APIKey != "sk-from-env" {
		t.Errorf("expected expanded key, got %q", cfg.Providers.Generation.APIKey)
	}
}

func TestEnvVarMissing(t *testing.T) {
	os.Unsetenv("SONARFIX_DEFINITELY_NOT_SET")

	yaml := `
providers:
  generation:
    api_key: ${SONARFIX_DEFINITELY_NOT_SET}
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "SONARFIX_DEFINITELY_NOT_SET") {
		t.Errorf("expected error to name the variable, got %v", err)
	}
}

func TestValidationInvalidDuration(t *testing.T) {
	_, err := Parse([]byte("workflow:\n  request_timeout: soon\n"))
	if err == nil {
		t.Error("expected validation error for request_timeout, got nil")
	}
}

func TestValidationInvalidTemperature(t *testing.T) {
	yaml := `
providers:
  generation:
    type: openai
    temperature: 2.5
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Error("expected validation error for temperature, got nil")
	}
}

func TestValidationInvalidProviderTypes(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"generation", "providers:\n  generation:\n    type: cohere\n"},
		{"repair", "providers:\n  repair:\n    type: cohere\n"},
		{"embedding anthropic", "providers:\n  embedding:\n    type: anthropic\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidationValidProviderTypes(t *testing.T) {
	for _, typ := range []string{"openai", "ollama", "anthropic"} {
		yaml := "providers:\n  generation:\n    type: " + typ + "\n"
		if _, err := Parse([]byte(yaml)); err != nil {
			t.Errorf("expected %s to be valid, got %v", typ, err)
		}
	}
}

func TestStoreValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"sqlite without dimensions", "store:\n  type: sqlite\n  path: /tmp/x.db\n", false},
		{"postgres without dsn", "store:\n  type: postgres\n  dimensions: 3\n", true},
		{"postgres without dimensions", "store:\n  type: postgres\n  dsn: postgres://x\n", true},
		{"postgres ok", "store:\n  type: postgres\n  dsn: postgres://x\n  dimensions: 1536\n", false},
		{"chromem without dimensions", "store:\n  type: chromem\n", true},
		{"chromem ok", "store:\n  type: chromem\n  dimensions: 768\n", false},
		{"qdrant without dimensions", "store:\n  type: qdrant\n", true},
		{"qdrant ok", "store:\n  type: qdrant\n  dimensions: 768\n", false},
		{"unknown", "store:\n  type: redis\n", true},
		{"negative dimensions", "store:\n  type: sqlite\n  dimensions: -1\n", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if (err != nil) != tc.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestQdrantDefaults(t *testing.T) {
	cfg, err := Parse([]byte("store:\n  type: qdrant\n  dimensions: 8\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Host != "localhost" || cfg.Store.Port != 6334 {
		t.Errorf("expected localhost:6334, got %s:%d", cfg.Store.Host, cfg.Store.Port)
	}
}

func TestValidationGitHubRepo(t *testing.T) {
	if _, err := Parse([]byte("source:\n  github:\n    repo: just-a-name\n")); err == nil {
		t.Error("expected error for repo without owner, got nil")
	}
	if _, err := Parse([]byte("source:\n  github:\n    repo: acme/api\n")); err != nil {
		t.Errorf("unexpected error for valid repo: %v", err)
	}
}

func TestValidationBatch(t *testing.T) {
	if _, err := Parse([]byte("batch:\n  workers: -2\n")); err == nil {
		t.Error("expected error for negative workers, got nil")
	}
	if _, err := Parse([]byte("batch:\n  requests_per_minute: -1\n")); err == nil {
		t.Error("expected error for negative rate, got nil")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get home dir: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"tilde prefix", "~/.sonarfix/fixes.db", filepath.Join(home, ".sonarfix/fixes.db")},
		{"tilde only", "~", home},
		{"absolute path unchanged", "/tmp/fixes.db", "/tmp/fixes.db"},
		{"relative path unchanged", "data/fixes.db", "data/fixes.db"},
		{"tilde in middle unchanged", "/some/~/path", "/some/~/path"},
		{"tilde user unchanged", "~bob/fixes.db", "~bob/fixes.db"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := ExpandHome(tc.input)
			if result != tc.expected {
				t.Errorf("ExpandHome(%q) = %q, want %q", tc.input, result, tc.expected)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("workflow:\n  top_k: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workflow.TopK != 7 {
		t.Errorf("expected top_k 7, got %d", cfg.Workflow.TopK)
	}
}
