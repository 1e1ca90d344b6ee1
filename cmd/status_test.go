package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jacklau/sonarfix/internal/config"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name     string
		bytes    int64
		expected string
	}{
		{"zero", 0, "0 B"},
		{"small", 512, "512 B"},
		{"1KB", 1024, "1.0 KB"},
		{"1.5KB", 1536, "1.5 KB"},
		{"1MB", 1024 * 1024, "1.0 MB"},
		{"1GB", 1024 * 1024 * 1024, "1.0 GB"},
		{"2.5MB", 2621440, "2.5 MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatBytes(tt.bytes)
			if result != tt.expected {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, result, tt.expected)
			}
		})
	}
}

func TestDbFileSize_NonExistent(t *testing.T) {
	_, err := dbFileSize("/nonexistent/path/to/db.sqlite")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestDbFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixes.db")
	if err := os.WriteFile(path, make([]byte, 2048), 0o600); err != nil {
		t.Fatal(err)
	}
	size, err := dbFileSize(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 2048 {
		t.Errorf("dbFileSize() = %d, want 2048", size)
	}
}

func TestStoreLocation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StoreConfig
		want string
	}{
		{"sqlite", config.StoreConfig{Type: "sqlite", Path: "/data/fixes.db"}, "/data/fixes.db"},
		{"postgres default table", config.StoreConfig{Type: "postgres", DSN: "postgres://u:secret@h/db"}, "postgres table sonar_fixes"},
		{"postgres custom table", config.StoreConfig{Type: "postgres", Table: "fixes"}, "postgres table fixes"},
		{"qdrant", config.StoreConfig{Type: "qdrant", Host: "localhost", Port: 6334}, "localhost:6334"},
		{"chromem in memory", config.StoreConfig{Type: "chromem"}, "in-memory"},
		{"chromem persistent", config.StoreConfig{Type: "chromem", Path: "/data/chromem"}, "/data/chromem"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := storeLocation(tt.cfg)
			if got != tt.want {
				t.Errorf("storeLocation() = %q, want %q", got, tt.want)
			}
			if strings.Contains(got, "secret") {
				t.Errorf("storeLocation leaked credentials: %q", got)
			}
		})
	}
}

func TestDescribeProvider(t *testing.T) {
	tests := []struct {
		p    config.ProviderConfig
		want string
	}{
		{config.ProviderConfig{}, "not configured"},
		{config.ProviderConfig{Type: "openai"}, "openai (default model)"},
		{config.ProviderConfig{Type: "ollama", Model: "qwen2.5-coder:7b"}, "ollama/qwen2.5-coder:7b"},
	}
	for _, tt := range tests {
		if got := describeProvider(tt.p); got != tt.want {
			t.Errorf("describeProvider(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestPrintStatus(t *testing.T) {
	cfg, err := config.Parse([]byte(`
providers:
  generation:
    type: ollama
    model: qwen2.5-coder:7b
  embedding:
    type: ollama
    model: nomic-embed-text
store:
  type: sqlite
  path: /nonexistent/fixes.db
workflow:
  max_repairs: 3
  top_k: 5
`))
	if err != nil {
		t.Fatalf("parsing config: %v", err)
	}

	var buf bytes.Buffer
	printStatus(&buf, cfg, 42)
	out := buf.String()

	for _, want := range []string{
		"Store:",
		"sqlite",
		"/nonexistent/fixes.db",
		"Stored fixes:",
		"42",
		"ollama/qwen2.5-coder:7b",
		"ollama/nomic-embed-text",
		"Max repairs:",
		"3",
		"Top K:",
		"5",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Database size") {
		t.Errorf("did not expect a database size for a missing file:\n%s", out)
	}
}
