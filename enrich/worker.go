package enrich

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/worker"
)

const (
	InlineWorkerName   = "inline"
	BackfillWorkerName = "backfill"
)

// Worker drives a Processor over one scope. Inline workers only look at
// recently created chunks so new uploads are embedded quickly; backfill
// workers scan everything, including chunks made stale by a version bump.
type Worker struct {
	processor *Processor
	name      string
	workerID  string
	recent    time.Duration
	now       func() time.Time
}

// NewInlineWorker creates a worker limited to chunks created within the
// configured RecentWindow.
func NewInlineWorker(processor *Processor) *Worker {
	return newWorker(processor, InlineWorkerName, processor.config.RecentWindow)
}

// NewBackfillWorker creates a worker over the whole chunk table.
func NewBackfillWorker(processor *Processor) *Worker {
	return newWorker(processor, BackfillWorkerName, 0)
}

func newWorker(processor *Processor, name string, recent time.Duration) *Worker {
	return &Worker{
		processor: processor,
		name:      name,
		workerID:  name + "-" + uuid.NewString(),
		recent:    recent,
		now:       time.Now,
	}
}

// Name returns the worker's label.
func (w *Worker) Name() string {
	return w.name
}

// WorkerID returns the identity recorded on claims.
func (w *Worker) WorkerID() string {
	return w.workerID
}

func (w *Worker) scope() Scope {
	s := Scope{Name: w.name, WorkerID: w.workerID}
	if w.recent > 0 {
		s.Since = w.now().Add(-w.recent)
	}
	return s
}

// RunCycle runs a single cycle over the worker's scope.
func (w *Worker) RunCycle(ctx context.Context) (*CycleResult, error) {
	return w.processor.RunCycle(ctx, w.scope())
}

// Run polls until ctx is canceled. A cycle that claimed work is followed
// immediately by another unless the backend is rate limiting.
func (w *Worker) Run(ctx context.Context) error {
	loop := &worker.Loop{
		Name:     w.name,
		Interval: w.processor.config.Interval,
		Logger:   w.processor.logger,
	}
	return loop.Run(ctx, func(ctx context.Context) (bool, error) {
		res, err := w.RunCycle(ctx)
		if res == nil {
			return false, err
		}
		return res.Claimed > 0 && !res.RateLimited, err
	})
}

// Drain runs cycles until nothing in scope is claimable and reports progress
// to out. Chunks that keep failing stop being claimable once their attempts
// run out, so Drain always terminates unless the backend rate limits forever,
// in which case it waits Interval between cycles.
func (w *Worker) Drain(ctx context.Context, out io.Writer) (*CycleResult, error) {
	total := &CycleResult{}
	stats, err := w.pending(ctx)
	if err != nil {
		return total, err
	}
	if stats == 0 {
		fmt.Fprintf(out, "Nothing to embed (0 chunks)\n")
	} else {
		fmt.Fprintf(out, "Embedding %d chunks (batch size: %d)\n", stats, w.processor.config.BatchSize)
	}

	tracker := worker.NewProgressTracker(out, "chunks", stats, w.processor.config.ReportInterval)
	tracker.Start()

	for {
		res, err := w.RunCycle(ctx)
		if res != nil {
			total.Target = res.Target
			total.Claimed += res.Claimed
			total.Completed += res.Completed
			total.Failed += res.Failed
			total.Released += res.Released
			total.Lost += res.Lost
			total.Requeued += res.Requeued
			total.Exhausted = res.Exhausted
			tracker.Increment(res.Completed)
		}
		if err != nil {
			return total, err
		}
		if res.Claimed == 0 {
			break
		}
		if res.RateLimited {
			timer := time.NewTimer(w.processor.config.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return total, ctx.Err()
			case <-timer.C:
			}
		}
	}

	tracker.Finish()
	if stats > 0 {
		elapsed := tracker.Elapsed()
		fmt.Fprintf(out, "Embedding complete. %d completed, %d failed, %d exhausted in %v\n",
			total.Completed, total.Failed, total.Exhausted, elapsed.Round(time.Millisecond))
	}
	return total, nil
}

// pending estimates the chunks a drain will process.
func (w *Worker) pending(ctx context.Context) (int, error) {
	target, err := w.processor.settings.EmbeddingTarget(ctx)
	if err != nil {
		return 0, fmt.Errorf("read embedding target: %w", err)
	}
	stats, err := w.processor.chunks.Stats(ctx, target.Version)
	if err != nil {
		return 0, err
	}
	return stats.ByStatus[core.ChunkPending] + stats.ByStatus[core.ChunkProcessing] +
		stats.ByStatus[core.ChunkFailed] + stats.Stale, nil
}
