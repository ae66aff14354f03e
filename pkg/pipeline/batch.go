package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hazyhaar/supplier-ingest/pkg/catalog"
	"golang.org/x/sync/errgroup"
)

// Report merges the results of one batch run.
type Report struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Files      []*FileResult   `json:"files"`
	Totals     catalog.Summary `json:"totals"`
	Products   int             `json:"products"`
	Failed     int             `json:"failed"`
}

// RunBatch processes files on a bounded pool of workers, one file per worker
// at a time. Cancellation is checked before each file starts; files not
// started are reported with the context error. Results keep the input order.
func (r *Runner) RunBatch(ctx context.Context, files []string) *Report {
	rep := &Report{RunID: uuid.NewString(), StartedAt: time.Now()}
	results := make([]*FileResult, len(files))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			results[i] = cancelled(f, err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = cancelled(f, err)
				return nil
			}
			results[i] = r.ProcessFile(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	rep.FinishedAt = time.Now()
	rep.Files = results
	for _, res := range results {
		rep.Totals.Add(res.Summary)
		rep.Products += len(res.Products)
		if res.Err != nil {
			rep.Failed++
		}
	}
	r.logger.Info("batch complete",
		"run_id", rep.RunID,
		"files", len(files),
		"failed", rep.Failed,
		"products", rep.Products,
		"elapsed", rep.FinishedAt.Sub(rep.StartedAt),
	)
	return rep
}

func cancelled(file string, err error) *FileResult {
	res := &FileResult{File: file}
	return res.fail(fmt.Errorf("not started: %w", err))
}

// WriteText writes a plain-text run report.
func (rep *Report) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Run %s  %s  (%s)\n\n", rep.RunID, rep.StartedAt.Format(time.RFC3339), rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	for _, res := range rep.Files {
		if res.Err != nil {
			fmt.Fprintf(w, "  ERROR  %-40s  %s\n", res.File, res.Err)
			continue
		}
		s := res.Summary
		fmt.Fprintf(w, "  OK     %-40s  %-15s  products=%d rows=%d skipped=%d coercion=%d uncategorized=%d duplicates=%d\n",
			res.File, res.Provider, len(res.Products), s.TotalRows, s.SkippedRows,
			s.CoercionFailures, s.UncategorizedCount, s.DuplicatePairsFound)
	}
	t := rep.Totals
	_, err := fmt.Fprintf(w, "\nFiles: %d (failed %d)  Products: %d  Rows: %d  Skipped: %d  Coercion failures: %d  Uncategorized: %d  Duplicate pairs: %d\n",
		len(rep.Files), rep.Failed, rep.Products, t.TotalRows, t.SkippedRows,
		t.CoercionFailures, t.UncategorizedCount, t.DuplicatePairsFound)
	return err
}
