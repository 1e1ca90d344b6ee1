package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jacklau/sonarfix/internal/config"
	"github.com/jacklau/sonarfix/internal/fix"
	"github.com/jacklau/sonarfix/internal/github"
	"github.com/jacklau/sonarfix/internal/knowledge"
	"github.com/jacklau/sonarfix/internal/metrics"
	"github.com/jacklau/sonarfix/internal/notify"
	"github.com/jacklau/sonarfix/internal/provider"
	"github.com/jacklau/sonarfix/internal/source"
	"github.com/jacklau/sonarfix/internal/workflow"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sonarfix",
	Short: "Generate validated fixes for Sonar findings with an LLM",
	Long: `Sonarfix asks a language model for a structured fix to each Sonar issue,
validates the answer, repairs it when it is malformed, and keeps every
accepted fix in a vector store so similar past fixes can be looked up.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sonarfix/config.yaml"
	}
	return filepath.Join(home, ".sonarfix", "config.yaml")
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	return config.Load(path)
}

// components holds initialized components for use by subcommands.
type components struct {
	Config  *config.Config
	Store   knowledge.Store
	Engine  *workflow.Engine
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Close releases the store.
func (c *components) Close() error {
	return c.Store.Close()
}

// storeConfig maps the store section onto the knowledge factory config.
func storeConfig(cfg *config.Config) knowledge.Config {
	s := cfg.Store
	return knowledge.Config{
		Type:       s.Type,
		Path:       s.Path,
		DSN:        s.DSN,
		Table:      s.Table,
		Host:       s.Host,
		Port:       s.Port,
		APIKey:     s.APIKey,
		UseTLS:     s.UseTLS,
		Collection: s.Collection,
		Dimensions: s.Dimensions,
		Overfetch:  s.Overfetch,
		Compress:   s.Compress,
	}
}

// openStore opens the configured knowledge store, creating the parent
// directory of a sqlite file when needed.
func openStore(ctx context.Context, cfg *config.Config) (knowledge.Store, error) {
	if cfg.Store.Type == knowledge.BackendSQLite && cfg.Store.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	st, err := knowledge.Open(ctx, storeConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Type, err)
	}
	return st, nil
}

func providerConfig(p config.ProviderConfig) provider.Config {
	return provider.Config{Type: p.Type, Model: p.Model, APIKey: p.APIKey, URL: p.URL}
}

// initComponents creates the engine and everything it depends on.
func initComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	providers := cfg.Providers
	if providers.Generation.Type == "" {
		return nil, errors.New("providers.generation.type is not configured")
	}
	if providers.Embedding.Type == "" {
		return nil, errors.New("providers.embedding.type is not configured")
	}

	genCompleter, err := provider.NewCompleter(providerConfig(providers.Generation))
	if err != nil {
		return nil, fmt.Errorf("creating generation provider: %w", err)
	}
	repairCompleter := genCompleter
	if providerConfig(providers.Repair) != providerConfig(providers.Generation) {
		repairCompleter, err = provider.NewCompleter(providerConfig(providers.Repair))
		if err != nil {
			return nil, fmt.Errorf("creating repair provider: %w", err)
		}
	}
	embedder, err := provider.NewEmbedder(providerConfig(providers.Embedding))
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	gen, err := fix.NewGenerator(
		fix.Profile{
			Completer:   genCompleter,
			Temperature: *providers.Generation.Temperature,
			MaxTokens:   providers.Generation.MaxTokens,
		},
		fix.Profile{
			Completer:   repairCompleter,
			Temperature: *providers.Repair.Temperature,
			MaxTokens:   providers.Repair.MaxTokens,
		},
	)
	if err != nil {
		return nil, err
	}

	timeout, err := cfg.Workflow.RequestTimeout()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	engine, err := workflow.New(workflow.Config{
		MaxRepairs:     cfg.Workflow.Repairs(),
		DefaultTopK:    cfg.Workflow.TopK,
		RequestTimeout: timeout,
	}, workflow.Deps{
		Generator: gen,
		Repairer:  fix.NewRepairer(gen),
		Embedder:  embedder,
		Store:     st,
		Observer:  m,
		Logger:    logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &components{
		Config:  cfg,
		Store:   st,
		Engine:  engine,
		Metrics: m,
		Logger:  logger,
	}, nil
}

// createNotifier builds a Notifier from config and flag override. It returns
// nil when no webhook is configured and no flag was given.
func createNotifier(cfg *config.Config, notifyFlag string) (notify.Notifier, error) {
	notifyType := notifyFlag
	if notifyType == "" {
		hasSlack := cfg.Notify.SlackWebhook != ""
		hasDiscord := cfg.Notify.DiscordWebhook != ""
		switch {
		case hasSlack && hasDiscord:
			notifyType = "both"
		case hasSlack:
			notifyType = "slack"
		case hasDiscord:
			notifyType = "discord"
		default:
			return nil, nil
		}
	}

	n, err := notify.NewNotifier(notifyType, cfg.Notify.SlackWebhook, cfg.Notify.DiscordWebhook)
	if err != nil {
		return nil, err
	}
	return notify.WithRetry(n, 0), nil
}

// createFetcher picks where flagged code is read from. A directory flag wins
// over the config; a configured GitHub repository is used otherwise.
func createFetcher(cfg *config.Config, dirFlag string, logger *slog.Logger) (source.Fetcher, error) {
	dir := dirFlag
	if dir == "" {
		dir = cfg.Source.Dir
	}
	if dir != "" {
		return source.NewDirFetcher(config.ExpandHome(dir))
	}

	gh := cfg.Source.GitHub
	if gh.Repo == "" {
		return nil, errors.New("no source configured: pass --source-dir or set source.dir or source.github.repo")
	}
	client, err := github.NewClient(github.AuthConfig{
		Token:          gh.Token,
		AppID:          gh.AppID,
		InstallationID: gh.InstallationID,
		PrivateKey:     []byte(gh.PrivateKey),
		PrivateKeyPath: config.ExpandHome(gh.PrivateKeyPath),
	})
	if err != nil {
		return nil, fmt.Errorf("creating GitHub client: %w", err)
	}
	return github.NewContentsFetcher(client, gh.Repo, gh.Ref, logger)
}
