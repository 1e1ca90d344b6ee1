package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacklau/sonarfix/internal/fix"
)

var (
	fixInput    string
	fixRule     string
	fixCategory string
	fixFrom     int
	fixTo       int
	fixCode     string
	fixCodeFile string
	fixFile     string
	fixMessage  string
	fixTopK     int
)

// errFixFailed makes the process exit non-zero after the output was printed.
var errFixFailed = errors.New("fix failed")

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Generate, validate and store a fix for one Sonar issue",
	Long: `Fix runs the workflow for a single issue and prints its output as JSON:
{"fixRecord": ..., "error": ..., "similarIssues": [...]}.

The issue comes either from --input, a JSON document of the form
{"issue": {"ruleId", "category", "fromLine", "toLine", "code"}, "topK": 3},
or from the individual flags.`,
	Args: cobra.NoArgs,
	RunE: runFix,
}

func init() {
	fixCmd.Flags().StringVarP(&fixInput, "input", "i", "", "invocation JSON file (- for stdin)")
	fixCmd.Flags().StringVar(&fixRule, "rule", "", "Sonar rule id, e.g. S2111")
	fixCmd.Flags().StringVar(&fixCategory, "category", "", "issue type: Bug, CodeSmell or Vulnerability")
	fixCmd.Flags().IntVar(&fixFrom, "from", 0, "first flagged line")
	fixCmd.Flags().IntVar(&fixTo, "to", 0, "last flagged line (defaults to --from)")
	fixCmd.Flags().StringVar(&fixCode, "code", "", "flagged code")
	fixCmd.Flags().StringVar(&fixCodeFile, "code-file", "", "read the flagged code from a file")
	fixCmd.Flags().StringVar(&fixFile, "file", "", "path of the flagged file, for prompt context")
	fixCmd.Flags().StringVar(&fixMessage, "message", "", "Sonar message, for prompt context")
	fixCmd.Flags().IntVar(&fixTopK, "top-k", 0, "number of similar past fixes to return (default from config)")
	rootCmd.AddCommand(fixCmd)
}

// invocation is the JSON input accepted by --input.
type invocation struct {
	Issue fix.Issue `json:"issue"`
	TopK  int       `json:"topK"`
}

// readInvocation decodes an invocation document. Unknown fields are rejected
// so that typos do not silently drop data.
func readInvocation(r io.Reader) (fix.Issue, int, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var inv invocation
	if err := dec.Decode(&inv); err != nil {
		return fix.Issue{}, 0, fmt.Errorf("decoding invocation: %w", err)
	}
	if inv.TopK < 0 {
		return fix.Issue{}, 0, fmt.Errorf("topK must not be negative, got %d", inv.TopK)
	}
	return inv.Issue, inv.TopK, nil
}

// issueFromFlags assembles an issue from the individual flags.
func issueFromFlags() (fix.Issue, error) {
	category, err := fix.ParseCategory(fixCategory)
	if err != nil {
		return fix.Issue{}, err
	}
	code := fixCode
	if fixCodeFile != "" {
		if code != "" {
			return fix.Issue{}, errors.New("--code and --code-file are mutually exclusive")
		}
		data, err := os.ReadFile(fixCodeFile)
		if err != nil {
			return fix.Issue{}, fmt.Errorf("reading code file: %w", err)
		}
		code = string(bytes.TrimRight(data, "\n"))
	}
	to := fixTo
	if to == 0 {
		to = fixFrom
	}
	return fix.Issue{
		RuleID:    fixRule,
		Category:  category,
		FromLine:  fixFrom,
		ToLine:    to,
		Code:      code,
		Message:   fixMessage,
		Component: fixFile,
	}, nil
}

func loadInvocation(stdin io.Reader) (fix.Issue, int, error) {
	if fixInput == "" {
		issue, err := issueFromFlags()
		return issue, fixTopK, err
	}

	r := stdin
	if fixInput != "-" {
		f, err := os.Open(fixInput)
		if err != nil {
			return fix.Issue{}, 0, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}
	issue, topK, err := readInvocation(r)
	if err != nil {
		return fix.Issue{}, 0, err
	}
	if fixTopK > 0 {
		topK = fixTopK
	}
	return issue, topK, nil
}

func runFix(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	issue, topK, err := loadInvocation(cmd.InOrStdin())
	if err != nil {
		return err
	}
	if err := issue.Validate(); err != nil {
		return err
	}

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

	st, err := c.Engine.Invoke(ctx, issue, topK)
	if err != nil {
		return err
	}

	if err := writeJSON(cmd.OutOrStdout(), st.Output()); err != nil {
		return err
	}
	if st.Failed() {
		return fmt.Errorf("%w: %s", errFixFailed, st.Error.Kind)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
