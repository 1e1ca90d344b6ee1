package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jacklau/sonarfix/internal/fix"
	"github.com/jacklau/sonarfix/internal/metrics"
	"github.com/jacklau/sonarfix/internal/notify"
	"github.com/jacklau/sonarfix/internal/pubsub"
	"github.com/jacklau/sonarfix/internal/sonar"
	"github.com/jacklau/sonarfix/internal/workflow"
)

var (
	batchNotify      string
	batchWorkers     int
	batchRPM         int
	batchSourceDir   string
	batchTopK        int
	batchOutput      string
	batchMetricsAddr string
	batchLimit       int
)

var batchCmd = &cobra.Command{
	Use:   "batch <report.json>",
	Short: "Fix every open issue in a Sonar report",
	Long: `Batch reads a SonarQube api/issues/search response, loads the flagged code
from a local checkout or a GitHub repository, and runs the fix workflow for
each issue concurrently. A summary is printed and optionally posted to
Slack/Discord.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchNotify, "notify", "", "notification target: slack, discord, or both")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "concurrent invocations (default from config)")
	batchCmd.Flags().IntVar(&batchRPM, "rpm", -1, "max invocations started per minute, 0 for unlimited (default from config)")
	batchCmd.Flags().StringVar(&batchSourceDir, "source-dir", "", "local checkout to read flagged code from")
	batchCmd.Flags().IntVar(&batchTopK, "top-k", 0, "similar past fixes per issue (default from config)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "write per-issue results as JSON to this file")
	batchCmd.Flags().StringVar(&batchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "process at most this many issues")
	rootCmd.AddCommand(batchCmd)
}

// invoker runs the workflow for one issue.
type invoker interface {
	Invoke(ctx context.Context, issue fix.Issue, topK int) (*workflow.State, error)
}

type batchOptions struct {
	Workers           int
	RequestsPerMinute int
	TopK              int
}

// runItems invokes eng for every item with bounded concurrency and returns
// results in item order. Events are published as each run starts and ends.
// Only cancellation stops the batch early; failed runs are results.
func runItems(ctx context.Context, eng invoker, items []sonar.Item, opts batchOptions, broker *pubsub.Broker[notify.FixResult], logger *slog.Logger) ([]notify.FixResult, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	results := make([]notify.FixResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, item := range items {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
			}
			if err := gctx.Err(); err != nil {
				return err
			}

			pending := notify.FixResult{
				Key:       item.Key,
				RuleID:    item.Issue.RuleID,
				Component: item.Issue.Component,
				FromLine:  item.Issue.FromLine,
				ToLine:    item.Issue.ToLine,
			}
			broker.Publish(pubsub.Started, pending)

			st, err := eng.Invoke(gctx, item.Issue, opts.TopK)
			if err != nil {
				logger.Warn("issue rejected", "key", item.Key, "error", err)
				pending.ErrorKind = workflow.KindValidation.String()
				pending.Error = err.Error()
				results[i] = pending
				broker.Publish(pubsub.Failed, pending)
				return nil
			}

			res := notify.NewFixResult(item.Key, st)
			results[i] = res
			if res.Accepted() {
				broker.Publish(pubsub.Fixed, res)
			} else {
				broker.Publish(pubsub.Failed, res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// trackProgress advances bar for every finished run until events closes.
func trackProgress(events <-chan pubsub.Event[notify.FixResult], bar *progressBar, logger *slog.Logger) {
	for evt := range events {
		switch evt.Type {
		case pubsub.Fixed:
			logger.Debug("issue fixed", "key", evt.Payload.Key, "rule", evt.Payload.RuleID)
			bar.Done(true)
		case pubsub.Failed:
			logger.Debug("issue failed", "key", evt.Payload.Key, "rule", evt.Payload.RuleID, "kind", evt.Payload.ErrorKind)
			bar.Done(false)
		}
	}
}

// serveMetrics exposes m on addr until the returned stop function is called.
func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

func printSummary(w io.Writer, s notify.Summary, total int, outcomes string) {
	fmt.Fprintf(w, "\nBatch complete for %s\n", s.Source)
	fmt.Fprintf(w, "  Issues in report: %d\n", total)
	fmt.Fprintf(w, "  Skipped:          %d\n", s.Skipped)
	fmt.Fprintf(w, "  Fixed:            %d\n", len(s.Accepted()))
	fmt.Fprintf(w, "  Failed:           %d\n", len(s.Failed()))
	if outcomes != "" {
		fmt.Fprintf(w, "  Outcomes:         %s\n", outcomes)
	}
	fmt.Fprintf(w, "  Duration:         %s\n", notify.FormatDuration(s.Duration))
}

func runBatch(cmd *cobra.Command, args []string) error {
	reportPath := args[0]
	logger := setupLogger()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	f, err := os.Open(reportPath)
	if err != nil {
		return fmt.Errorf("opening report: %w", err)
	}
	report, err := sonar.Parse(f)
	f.Close()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fetcher, err := createFetcher(cfg, batchSourceDir, logger)
	if err != nil {
		return err
	}
	items, skipped, err := report.Issues(ctx, fetcher)
	if err != nil {
		return fmt.Errorf("reading flagged code: %w", err)
	}
	for _, s := range skipped {
		logger.Info("skipping issue", "key", s.Key, "reason", s.Reason)
	}
	if batchLimit > 0 && len(items) > batchLimit {
		items = items[:batchLimit]
	}

	n, err := createNotifier(cfg, batchNotify)
	if err != nil {
		logger.Warn("failed to create notifier", "error", err)
	}

	c, err := initComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Close()

	metricsAddr := batchMetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Batch.MetricsAddr
	}
	if metricsAddr != "" {
		stop, err := serveMetrics(metricsAddr, c.Metrics, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	opts := batchOptions{
		Workers:           cfg.Batch.Workers,
		RequestsPerMinute: cfg.Batch.RequestsPerMinute,
		TopK:              batchTopK,
	}
	if batchWorkers > 0 {
		opts.Workers = batchWorkers
	}
	if batchRPM >= 0 {
		opts.RequestsPerMinute = batchRPM
	}

	logger.Info("starting batch", "report", reportPath, "issues", len(items), "skipped", len(skipped), "workers", opts.Workers)

	broker := pubsub.NewBroker[notify.FixResult]()
	subCtx, stopProgress := context.WithCancel(ctx)
	events := broker.SubscribeBuffered(subCtx, 2*len(items))
	bar := newProgressBar(len(items), "Fixing", cmd.ErrOrStderr())
	progressDone := make(chan struct{})
	go func() {
		trackProgress(events, bar, logger)
		close(progressDone)
	}()

	start := time.Now()
	results, runErr := runItems(ctx, c.Engine, items, opts, broker, logger)
	stopProgress()
	<-progressDone
	bar.Finish()

	summary := notify.Summary{
		Source:   reportPath,
		Results:  results,
		Skipped:  len(skipped),
		Duration: time.Since(start),
	}
	if runErr != nil {
		return fmt.Errorf("batch interrupted: %w", runErr)
	}

	printSummary(cmd.OutOrStdout(), summary, len(report.Issues), metrics.FormatSummary(c.Metrics.Summary()))

	if batchOutput != "" {
		out, err := os.Create(batchOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		werr := writeJSON(out, results)
		if cerr := out.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return werr
		}
	}

	if n != nil {
		if err := n.Notify(ctx, summary); err != nil {
			logger.Warn("failed to send summary notification", "error", err)
		}
	}
	return nil
}
