package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup for sonarfix configuration",
	Long:  `Creates a default configuration file with guided prompts.`,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// initAnswers are the choices gathered by the init prompts.
type initAnswers struct {
	Generation string
	Embedding  string
	Store      string
	SourceDir  string
	SlackURL   string
	DiscordURL string
}

func prompt(reader *bufio.Reader, out io.Writer, question, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def
	}
	return answer
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Welcome to sonarfix setup!")
	fmt.Fprintln(out, "This will create a configuration file for you.")
	fmt.Fprintln(out)

	configPath := cfgFile
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(out, "Config file already exists at %s\n", configPath)
		answer := strings.ToLower(prompt(reader, out, "Overwrite? (y/N)", ""))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	answers := initAnswers{
		Generation: prompt(reader, out, "LLM provider (openai/anthropic/ollama)", "openai"),
		Embedding:  prompt(reader, out, "Embedding provider (openai/ollama)", "openai"),
		Store:      prompt(reader, out, "Knowledge store (sqlite/postgres/chromem/qdrant)", "sqlite"),
		SourceDir:  prompt(reader, out, "Local checkout for batch runs (or press Enter to skip)", ""),
		SlackURL:   prompt(reader, out, "Slack webhook URL (or press Enter to skip)", ""),
		DiscordURL: prompt(reader, out, "Discord webhook URL (or press Enter to skip)", ""),
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(buildConfigYAML(answers)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", configPath)
	fmt.Fprintln(out, "Edit the file to add API keys and customize settings.")
	return nil
}

func buildConfigYAML(a initAnswers) string {
	var b strings.Builder

	b.WriteString("# sonarfix configuration\n")
	b.WriteString("# ${VAR} references are expanded from the environment.\n\n")

	b.WriteString("providers:\n")
	genModel, genKey := llmProviderDefaults(a.Generation)
	b.WriteString("  generation:\n")
	fmt.Fprintf(&b, "    type: %s\n", a.Generation)
	fmt.Fprintf(&b, "    model: %s\n", genModel)
	fmt.Fprintf(&b, "    api_key: %s\n", genKey)
	b.WriteString("    temperature: 0.7\n")
	b.WriteString("  repair:\n")
	b.WriteString("    # empty fields inherit from generation\n")
	b.WriteString("    temperature: 0.0\n")
	embedModel, embedKey := embeddingProviderDefaults(a.Embedding)
	b.WriteString("  embedding:\n")
	fmt.Fprintf(&b, "    type: %s\n", a.Embedding)
	fmt.Fprintf(&b, "    model: %s\n", embedModel)
	fmt.Fprintf(&b, "    api_key: %s\n", embedKey)
	b.WriteString("\n")

	b.WriteString("workflow:\n")
	b.WriteString("  max_repairs: 2\n")
	b.WriteString("  top_k: 3\n")
	b.WriteString("  request_timeout: 60s\n")
	b.WriteString("\n")

	b.WriteString("store:\n")
	b.WriteString(storeYAML(a.Store, embeddingDimensions(a.Embedding)))
	b.WriteString("\n")

	b.WriteString("source:\n")
	if a.SourceDir != "" {
		fmt.Fprintf(&b, "  dir: %s\n", a.SourceDir)
	} else {
		b.WriteString("  # dir: /path/to/checkout\n")
	}
	b.WriteString("  # github:\n")
	b.WriteString("  #   repo: owner/name\n")
	b.WriteString("  #   ref: main\n")
	b.WriteString("  #   token: ${GITHUB_TOKEN}\n")
	b.WriteString("\n")

	b.WriteString("notify:\n")
	if a.SlackURL != "" {
		fmt.Fprintf(&b, "  slack_webhook: %s\n", a.SlackURL)
	} else {
		b.WriteString("  # slack_webhook: https://hooks.slack.com/services/...\n")
	}
	if a.DiscordURL != "" {
		fmt.Fprintf(&b, "  discord_webhook: %s\n", a.DiscordURL)
	} else {
		b.WriteString("  # discord_webhook: https://discord.com/api/webhooks/...\n")
	}
	b.WriteString("\n")

	b.WriteString("batch:\n")
	b.WriteString("  workers: 4\n")
	b.WriteString("  requests_per_minute: 0\n")

	return b.String()
}

func storeYAML(storeType string, dims int) string {
	switch storeType {
	case "postgres":
		return fmt.Sprintf("  type: postgres\n  dsn: ${SONARFIX_PG_DSN}\n  table: sonar_fixes\n  dimensions: %d\n", dims)
	case "chromem":
		return fmt.Sprintf("  type: chromem\n  path: ~/.sonarfix/chromem\n  collection: sonar_fixes\n  dimensions: %d\n", dims)
	case "qdrant":
		return fmt.Sprintf("  type: qdrant\n  host: localhost\n  port: 6334\n  collection: sonar_fixes\n  dimensions: %d\n", dims)
	default:
		return "  type: sqlite\n  path: ~/.sonarfix/fixes.db\n"
	}
}

// embeddingProviderDefaults returns the default model and api_key placeholder
// for the given embedding provider type.
func embeddingProviderDefaults(provider string) (model, apiKey string) {
	switch provider {
	case "ollama":
		return "nomic-embed-text", "\"\" # not required for ollama"
	default: // openai
		return "text-embedding-3-small", "${OPENAI_API_KEY}"
	}
}

// embeddingDimensions is the vector size of each default embedding model.
func embeddingDimensions(provider string) int {
	if provider == "ollama" {
		return 768
	}
	return 1536
}

// llmProviderDefaults returns the default model and api_key placeholder
// for the given LLM provider type.
func llmProviderDefaults(provider string) (model, apiKey string) {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-20250514", "${ANTHROPIC_API_KEY}"
	case "ollama":
		return "qwen2.5-coder:7b", "\"\" # not required for ollama"
	default: // openai
		return "gpt-4o-mini", "${OPENAI_API_KEY}"
	}
}
