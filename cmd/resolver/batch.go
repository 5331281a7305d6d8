package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lineitem_engine/pkg/core/pipeline"
)

var (
	batchSave        bool
	batchConcurrency int
	batchFormat      string
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Resolve every *.json bundle in a directory concurrently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		paths, err := filepath.Glob(filepath.Join(args[0], "*.json"))
		if err != nil {
			return eris.Wrap(err, "list bundles")
		}
		if len(paths) == 0 {
			return eris.Errorf("no *.json bundles in %s", args[0])
		}
		sort.Strings(paths)

		e, st, err := newEngine(ctx, cfg, batchSave)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
		}

		// unreadable bundles are reported, not fatal
		var jobs []pipeline.Job
		var failed []pipeline.BatchResult
		for _, p := range paths {
			b, err := readBundle(p)
			if err != nil {
				zap.L().Warn("batch: skipping bundle", zap.String("path", p), zap.Error(err))
				failed = append(failed, pipeline.BatchResult{Company: companyName(p, ""), Err: err})
				continue
			}
			jobs = append(jobs, pipeline.Job{Company: companyName(p, ""), Bundle: b})
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}
		results, err := e.RunBatch(ctx, jobs, concurrency)
		if err != nil {
			return err
		}
		results = append(results, failed...)

		if err := writeBatch(cmd, results); err != nil {
			return err
		}
		if n := countFailed(results); n > 0 {
			return eris.Errorf("%d of %d bundles failed", n, len(results))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "persist each report to the configured store")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent runs (default: batch.concurrency)")
	batchCmd.Flags().StringVar(&batchFormat, "format", formatText, "output format: text or json")
	rootCmd.AddCommand(batchCmd)
}

// batchRow is the JSON shape of one batch outcome.
type batchRow struct {
	Company string           `json:"company"`
	Report  *pipeline.Report `json:"report,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func writeBatch(cmd *cobra.Command, results []pipeline.BatchResult) error {
	out := cmd.OutOrStdout()
	switch batchFormat {
	case formatJSON:
		rows := make([]batchRow, len(results))
		for i, r := range results {
			rows[i] = batchRow{Company: r.Company, Report: r.Report}
			if r.Err != nil {
				rows[i].Error = r.Err.Error()
			}
		}
		return writeJSON(out, rows)
	case formatText:
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COMPANY\tPASSED\tRECONCILIATION\tDEBT\tRUN")
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(tw, "%s\t-\terror: %v\t-\t-\n", r.Company, r.Err)
				continue
			}
			debt := "-"
			if v := r.Report.Triangulation.Summary.RecommendedValue; v != nil {
				debt = fmt.Sprintf("%.2f", *v)
			}
			fmt.Fprintf(tw, "%s\t%d/%d\t%s\t%s\t%s\n", r.Company, r.Report.Passed(), len(r.Report.Validation),
				r.Report.Reconciliation.OverallStatus, debt, r.Report.RunID)
		}
		return tw.Flush()
	}
	return eris.Errorf("unknown format %q (want text or json)", batchFormat)
}

func countFailed(results []pipeline.BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

