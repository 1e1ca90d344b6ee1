package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jacklau/sonarfix/internal/config"
	"github.com/jacklau/sonarfix/internal/knowledge"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge store and workflow settings",
	Long: `Display the configured store backend, how many fixes it holds, and the
providers and bounds the fix workflow runs with.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	count, err := st.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting entries: %w", err)
	}

	printStatus(cmd.OutOrStdout(), cfg, count)
	return nil
}

func printStatus(out io.Writer, cfg *config.Config, count int) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Store:\t%s\n", cfg.Store.Type)
	fmt.Fprintf(w, "Location:\t%s\n", storeLocation(cfg.Store))
	fmt.Fprintf(w, "Stored fixes:\t%d\n", count)
	if cfg.Store.Type == knowledge.BackendSQLite {
		if size, err := dbFileSize(cfg.Store.Path); err == nil {
			fmt.Fprintf(w, "Database size:\t%s\n", formatBytes(size))
		}
	}
	fmt.Fprintf(w, "Generation:\t%s\n", describeProvider(cfg.Providers.Generation))
	fmt.Fprintf(w, "Repair:\t%s\n", describeProvider(cfg.Providers.Repair))
	fmt.Fprintf(w, "Embedding:\t%s\n", describeProvider(cfg.Providers.Embedding))
	fmt.Fprintf(w, "Max repairs:\t%d\n", cfg.Workflow.Repairs())
	fmt.Fprintf(w, "Top K:\t%d\n", cfg.Workflow.TopK)
	w.Flush()
}

// storeLocation names where the store lives without printing credentials.
func storeLocation(s config.StoreConfig) string {
	switch s.Type {
	case knowledge.BackendPostgres:
		table := s.Table
		if table == "" {
			table = "sonar_fixes"
		}
		return "postgres table " + table
	case knowledge.BackendQdrant:
		return fmt.Sprintf("%s:%d", s.Host, s.Port)
	case knowledge.BackendChromem:
		if s.Path == "" {
			return "in-memory"
		}
		return s.Path
	default:
		return s.Path
	}
}

func describeProvider(p config.ProviderConfig) string {
	if p.Type == "" {
		return "not configured"
	}
	if p.Model == "" {
		return p.Type + " (default model)"
	}
	return p.Type + "/" + p.Model
}

// formatBytes formats bytes into a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// dbFileSize returns the size in bytes of the database file.
func dbFileSize(path string) (int64, error) {
	info, err := os.Stat(config.ExpandHome(path))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
