// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Job pairs a paper with the runner that produces its stage outputs.
type Job struct {
	PaperID string
	Runner  StageRunner
}

// BatchSummary holds counts from a batch run over many papers.
type BatchSummary struct {
	Succeeded int
	Failed    int

	// Fields is the total non-null field count across succeeded papers.
	Fields int
}

// Total returns the number of papers processed.
func (s BatchSummary) Total() int {
	return s.Succeeded + s.Failed
}

// HasFailures reports whether any paper failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// RunBatch processes papers independently, writing one result file per
// paper into outputDir. Papers share no mutable state, so the batch is
// parallel at paper granularity; stages within a paper stay sequential.
// One paper's fatal failure never aborts the batch.
func RunBatch(ctx context.Context, jobs []Job, outputDir string, opts Options, workers int, w io.Writer) (BatchSummary, error) {
	if err := opts.fill(); err != nil {
		return BatchSummary{}, err
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var (
		mu      sync.Mutex
		summary BatchSummary
		wg      sync.WaitGroup
		queue   = make(chan Job)
	)

	report := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, format, args...)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				perPaper := opts
				perPaper.Log = &lockedWriter{mu: &mu, w: w}

				result, err := Run(ctx, job.PaperID, job.Runner, perPaper)
				if err != nil {
					report("failed  %s: %v\n", job.PaperID, err)
					mu.Lock()
					summary.Failed++
					mu.Unlock()
					continue
				}

				path, err := WriteResult(outputDir, result)
				if err != nil {
					report("failed  %s: %v\n", job.PaperID, err)
					mu.Lock()
					summary.Failed++
					mu.Unlock()
					continue
				}

				report("ok      %s -> %s\n", job.PaperID, path)
				mu.Lock()
				summary.Succeeded++
				summary.Fields += result.FieldCount()
				mu.Unlock()
			}
		}()
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			close(queue)
			wg.Wait()
			return summary, err
		}
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return summary, ctx.Err()
		case queue <- job:
		}
	}
	close(queue)
	wg.Wait()

	fmt.Fprintf(w, "\nsucceeded: %d, failed: %d, fields: %d\n",
		summary.Succeeded, summary.Failed, summary.Fields)
	return summary, nil
}

// lockedWriter serializes per-paper log lines from concurrent workers.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
