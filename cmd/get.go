package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacklau/sonarfix/internal/knowledge"
)

var getCmd = &cobra.Command{
	Use:   "get <issue-number>",
	Short: "Print the stored fix for an issue number",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
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

	entry, err := st.Get(ctx, args[0])
	if errors.Is(err, knowledge.ErrNotFound) {
		return fmt.Errorf("no stored fix for %s", args[0])
	}
	if err != nil {
		return err
	}
	rec, err := entry.Record()
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), rec)
}
