// Package batch orchestrates one processing run over a set of discovered
// files. Per-file faults are isolated into failure-status records; a bad
// file never aborts the batch or skips the files after it.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sammcj/docflow/internal/adapters"
	"github.com/sammcj/docflow/internal/docproc"
)

// ProgressFunc is invoked after each file completes. Observability only;
// the orchestrator never branches on it.
type ProgressFunc func(index, total int, path string)

// Options tune a Runner without affecting the per-file contract
type Options struct {
	// Concurrency is the number of files processed at once. Zero or one
	// means sequential. Results keep discovery order either way.
	Concurrency int
	// RateLimit, when set, gates collaborator invocations. Model calls are
	// expensive; the limit protects a shared accelerator.
	RateLimit *rate.Limiter
	// Progress receives completion notifications.
	Progress ProgressFunc
}

// Runner executes batches against a fixed pair of adapters. The adapters are
// long-lived and shared read-mostly across all files; per-file overrides
// travel through the Request, never through adapter state. Runners are
// re-entrant: concurrent Run calls share no mutable state.
type Runner struct {
	structure adapters.Adapter
	ocr       adapters.Adapter
	logger    *logrus.Logger
	opts      Options
}

// New creates a Runner. Either adapter may be nil when the corresponding
// stage can never run in this process.
func New(structure, ocr adapters.Adapter, logger *logrus.Logger, opts Options) *Runner {
	return &Runner{structure: structure, ocr: ocr, logger: logger, opts: opts}
}

// Run processes every file in discovery order and returns one record per
// file. On cancellation it returns the records completed so far together
// with the context error; callers still report over the partial results.
func (r *Runner) Run(ctx context.Context, files []docproc.InputFile, req docproc.Request) ([]docproc.MergedRecord, error) {
	if err := docproc.ValidateRequest(req); err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	log := r.logger.WithFields(logrus.Fields{
		"batch_id": batchID,
		"mode":     req.Mode,
		"files":    len(files),
	})
	log.Info("Starting batch")

	// Availability is decided once per batch. A missing collaborator
	// downgrades the mode here instead of failing every file.
	structureSkip := r.downgrade(log, req.WantsStructure(), r.structure, docproc.StageStructure)
	ocrSkip := r.downgrade(log, req.WantsOCR(), r.ocr, docproc.StageOCR)

	start := time.Now()
	var records []docproc.MergedRecord
	var err error
	if r.opts.Concurrency > 1 {
		records, err = r.runConcurrent(ctx, files, req, structureSkip, ocrSkip)
	} else {
		records, err = r.runSequential(ctx, files, req, structureSkip, ocrSkip)
	}

	log.WithFields(logrus.Fields{
		"completed": len(records),
		"elapsed":   time.Since(start),
	}).Info("Batch finished")

	return records, err
}

// downgrade returns the skip reason for a requested stage whose collaborator
// is unavailable, or empty when the stage can run.
func (r *Runner) downgrade(log *logrus.Entry, requested bool, adapter adapters.Adapter, stage docproc.Stage) string {
	if !requested {
		return ""
	}
	if adapter == nil {
		log.WithField("stage", stage).Warn("Collaborator not configured, downgrading processing mode")
		return "collaborator not configured"
	}
	if !adapter.Available() {
		log.WithFields(logrus.Fields{
			"stage":  stage,
			"engine": adapter.Name(),
		}).Warn("Collaborator unavailable, downgrading processing mode")
		return fmt.Sprintf("%s unavailable: %s", adapter.Name(), adapters.ErrUnavailable)
	}
	return ""
}

func (r *Runner) runSequential(ctx context.Context, files []docproc.InputFile, req docproc.Request, structureSkip, ocrSkip string) ([]docproc.MergedRecord, error) {
	records := make([]docproc.MergedRecord, 0, len(files))
	for i, file := range files {
		select {
		case <-ctx.Done():
			return records, ctx.Err()
		default:
		}

		records = append(records, r.processFile(ctx, file, req, structureSkip, ocrSkip))
		if r.opts.Progress != nil {
			r.opts.Progress(i, len(files), file.Path)
		}
	}
	return records, nil
}

func (r *Runner) runConcurrent(ctx context.Context, files []docproc.InputFile, req docproc.Request, structureSkip, ocrSkip string) ([]docproc.MergedRecord, error) {
	results := make([]*docproc.MergedRecord, len(files))
	indexCh := make(chan int, len(files))
	for i := range files {
		indexCh <- i
	}
	close(indexCh)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	workers := min(r.opts.Concurrency, len(files))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexCh {
				if ctx.Err() != nil {
					return
				}
				record := r.processFile(ctx, files[i], req, structureSkip, ocrSkip)
				mu.Lock()
				results[i] = &record
				mu.Unlock()
				if r.opts.Progress != nil {
					r.opts.Progress(i, len(files), files[i].Path)
				}
			}
		}()
	}
	wg.Wait()

	// Compact in discovery order; cancelled runs leave holes.
	records := make([]docproc.MergedRecord, 0, len(files))
	for _, res := range results {
		if res != nil {
			records = append(records, *res)
		}
	}
	if err := ctx.Err(); err != nil {
		return records, err
	}
	return records, nil
}

// processFile runs the enabled stages for one file and merges the outcomes.
// Never returns an error: faults become failure-status stage results.
func (r *Runner) processFile(ctx context.Context, file docproc.InputFile, req docproc.Request, structureSkip, ocrSkip string) docproc.MergedRecord {
	var structureRes, ocrRes *docproc.StageResult

	if req.WantsStructure() {
		var res docproc.StageResult
		if r.stageRunnable(r.structure, file, structureSkip) {
			res = r.invoke(ctx, r.structure, file, req)
		} else {
			res = docproc.Skipped(docproc.StageStructure, structureSkip)
		}
		structureRes = &res
	}

	if req.WantsOCR() {
		var res docproc.StageResult
		if r.stageRunnable(r.ocr, file, ocrSkip) {
			res = r.invoke(ctx, r.ocr, file, req)
		} else {
			res = docproc.Skipped(docproc.StageOCR, ocrSkip)
		}
		ocrRes = &res
	}

	return docproc.Merge(file.Path, structureRes, ocrRes, req)
}

// stageRunnable decides whether a stage runs for this file. The batch-wide
// downgrade yields to adapters that can still serve the individual file, so
// inputs with a native processing path survive a failed collaborator probe.
func (r *Runner) stageRunnable(adapter adapters.Adapter, file docproc.InputFile, skip string) bool {
	if skip == "" {
		return true
	}
	if fc, ok := adapter.(adapters.FileCapable); ok && fc.AvailableFor(file) {
		return true
	}
	return false
}

// invoke calls one adapter with rate limiting and panic isolation
func (r *Runner) invoke(ctx context.Context, adapter adapters.Adapter, file docproc.InputFile, req docproc.Request) (res docproc.StageResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.WithFields(logrus.Fields{
				"stage": adapter.Stage(),
				"file":  file.Path,
				"panic": p,
			}).Error("Adapter panicked")
			res = docproc.Failed(adapter.Stage(), fmt.Errorf("adapter panic: %v", p), time.Since(start))
		}
	}()

	if r.opts.RateLimit != nil {
		if err := r.opts.RateLimit.Wait(ctx); err != nil {
			return docproc.Failed(adapter.Stage(), err, time.Since(start))
		}
	}

	return adapter.Analyze(ctx, file, req)
}
