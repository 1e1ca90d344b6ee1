package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jacklau/sonarfix/internal/knowledge"
)

var (
	searchTopK int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find stored fixes similar to free text",
	Long: `Search embeds the given text and lists the closest stored fixes by cosine
distance. Pass code, a rule id or a description of the problem.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := initComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Close()

	hits, err := c.Engine.Similar(ctx, strings.Join(args, " "), searchTopK)
	if err != nil {
		return err
	}

	if searchJSON {
		return writeJSON(cmd.OutOrStdout(), hits)
	}
	printHits(cmd.OutOrStdout(), hits)
	return nil
}

func printHits(out io.Writer, hits []knowledge.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(out, "No stored fixes yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ISSUE\tTYPE\tLINES\tCONFIDENCE\tDISTANCE")
	fmt.Fprintln(w, "-----\t----\t-----\t----------\t--------")
	for _, h := range hits {
		r := h.Record
		fmt.Fprintf(w, "%s\t%s\t%d-%d\t%.2f\t%.4f\n",
			r.IssueNumber, r.TypeOfIssue, r.FromLine, r.ToLine, r.Confidence, h.Distance)
	}
	w.Flush()
}
