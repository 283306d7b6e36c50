package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/memohai/forum/internal/reprocess"
)

var (
	reprocessPageRetries int
	reprocessRetryDelay  time.Duration
)

var reprocessCmd = &cobra.Command{
	Use:       "reprocess <stage>",
	Short:     "Run a batch stage to completion, one page at a time",
	Long:      "Stages: " + strings.Join(stageNames(), ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: stageNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		p, err := newPipeline(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer p.Close()
		return runBatch(ctx, cmd.OutOrStdout(), p.controller, reprocess.Stage(args[0]), log)
	},
}

func init() {
	reprocessCmd.Flags().IntVar(&reprocessPageRetries, "page-retries", 3, "retries of a failed page before giving up")
	reprocessCmd.Flags().DurationVar(&reprocessRetryDelay, "retry-delay", 2*time.Second, "wait between page retries")
}

// batchRunner is the part of reprocess.Controller the loop drives.
type batchRunner interface {
	Start(ctx context.Context, stage reprocess.Stage) (reprocess.State, error)
	Continue(ctx context.Context, st reprocess.State) (reprocess.State, reprocess.Outcome, error)
}

func runBatch(ctx context.Context, out io.Writer, runner batchRunner, stage reprocess.Stage, log *slog.Logger) error {
	st, err := runner.Start(ctx, stage)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s pages of up to %d messages\n", stage, humanize.Comma(int64(st.TotalSteps)), st.PageSize)

	var processed, skipped, invalid int
	failures := 0
	for !st.Complete() {
		next, outcome, err := runner.Continue(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures > reprocessPageRetries {
				return fmt.Errorf("page %d failed %d times: %w", max(st.CurrentStep, 0)+1, failures, err)
			}
			log.Warn("page failed, retrying", slog.Int("attempt", failures), slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reprocessRetryDelay):
			}
			continue
		}
		failures = 0
		st = next
		processed += outcome.Processed
		skipped += outcome.Skipped
		invalid += len(outcome.Failures)
		for _, f := range outcome.Failures {
			reason := "invalid body"
			if len(f.Fields) > 0 {
				reason = f.Fields[0].Message
			}
			fmt.Fprintf(out, "  message %d left unchanged: %s\n", f.ID, reason)
		}
		fmt.Fprintf(out, "  page %s/%s done, %s processed\n",
			humanize.Comma(int64(st.CurrentStep)), humanize.Comma(int64(st.TotalSteps)), humanize.Comma(int64(processed)))
	}
	fmt.Fprintf(out, "%s complete: %s processed, %s skipped, %s invalid, started %s\n", stage,
		humanize.Comma(int64(processed)), humanize.Comma(int64(skipped)), humanize.Comma(int64(invalid)),
		humanize.Time(st.StartedAt))
	return nil
}

func stageNames() []string {
	var names []string
	for _, s := range reprocess.Stages() {
		names = append(names, string(s))
	}
	return names
}
