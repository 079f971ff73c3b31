// Package pipeline runs entity recognition over a corpus and writes the
// predictions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/go-der/iob"
)

// Recognizer finds entity spans in a single text. *der.Recognizer satisfies it.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]iob.Span, error)
}

// RecognitionError reports a document the recognizer failed on. The run
// continues with no predictions for that document.
type RecognitionError struct {
	DocID string
	Err   error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognize document %q: %v", e.DocID, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// Report summarizes a run.
type Report struct {
	Documents int
	Spans     int
	Failed    []*RecognitionError
	Elapsed   time.Duration
}

// Runner recognizes entities in documents with bounded parallelism.
type Runner struct {
	Recognizer Recognizer

	// Workers bounds concurrent recognitions. Values below 1 mean 1.
	Workers int

	// EntityType keeps only spans of this type. Empty keeps all.
	EntityType string

	// Logger receives progress and per-document failures. Nil means
	// slog.Default().
	Logger *slog.Logger

	// ProgressEvery logs progress after this many documents. Zero picks
	// roughly every tenth of the corpus.
	ProgressEvery int
}

// Run returns one predicted document per input document, in input order.
// Recognition failures are recorded in the report; only cancellation of
// ctx aborts the run.
func (r *Runner) Run(ctx context.Context, docs []iob.Document) ([]iob.Document, Report, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := max(r.Workers, 1)
	every := r.ProgressEvery
	if every <= 0 {
		every = max(len(docs)/10, 1)
	}

	start := time.Now()
	out := make([]iob.Document, len(docs))

	var (
		done  atomic.Int64
		spans atomic.Int64
	)
	// One slot per document keeps failures in input order.
	failures := make([]*RecognitionError, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	logger.Info("recognition started", "documents", len(docs), "workers", workers)

	for i, doc := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out[i] = iob.Document{ID: doc.ID, Text: doc.Text}

			found, err := r.Recognizer.Recognize(gctx, doc.Text)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("recognition failed", "doc", doc.ID, "error", err)
				failures[i] = &RecognitionError{DocID: doc.ID, Err: err}
				found = nil
			}

			out[i].Entities = r.keep(found)
			spans.Add(int64(len(out[i].Entities)))

			if n := done.Add(1); n%int64(every) == 0 || int(n) == len(docs) {
				logger.Info("recognition progress", "done", n, "total", len(docs))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Report{}, err
	}

	report := Report{
		Documents: len(docs),
		Spans:     int(spans.Load()),
		Failed:    slices.DeleteFunc(failures, func(e *RecognitionError) bool { return e == nil }),
		Elapsed:   time.Since(start),
	}
	logger.Info("recognition finished",
		"documents", report.Documents,
		"spans", report.Spans,
		"failed", len(report.Failed),
		"elapsed", report.Elapsed)

	return out, report, nil
}

// keep filters spans to the runner's entity type and orders them by start.
func (r *Runner) keep(spans []iob.Span) []iob.Span {
	out := make([]iob.Span, 0, len(spans))
	for _, s := range spans {
		if r.EntityType == "" || s.Type == r.EntityType {
			out = append(out, s)
		}
	}
	iob.SortSpans(out)
	return out
}

// Err joins the report's failures, or returns nil when there are none.
func (rep Report) Err() error {
	errs := make([]error, len(rep.Failed))
	for i, e := range rep.Failed {
		errs[i] = e
	}
	return errors.Join(errs...)
}
