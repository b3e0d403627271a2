package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/receipts-backend/pkg/config"
	"github.com/angelmondragon/receipts-backend/pkg/db/models"
	"github.com/angelmondragon/receipts-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipts-backend/pkg/errors"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
	"github.com/angelmondragon/receipts-backend/pkg/metrics"
)

const jobName = "receipt_pipeline"

// Processor runs the pipeline for one claimed event.
type Processor interface {
	Process(ctx context.Context, eventID string) error
}

// eventFinalizer stamps the terminal status on the event row once the queue
// gives up on it. Without this, an exhausted event would sit in PROCESSING
// forever and block a manual resend.
type eventFinalizer interface {
	Finalize(ctx context.Context, eventID string, status enums.WebhookStatus, lastError string) error
}

// Worker pulls due jobs and runs them through the processor with bounded
// concurrency. Attempt scheduling lives here; the processor only has to be
// idempotent per attempt.
type Worker struct {
	cfg     config.DispatchConfig
	repo    Repository
	proc    Processor
	events  eventFinalizer
	metrics *metrics.JobMetrics
	logg    *logger.Logger
}

// WorkerParams wires the worker dependencies.
type WorkerParams struct {
	Config    config.DispatchConfig
	Repo      Repository
	Processor Processor
	Events    eventFinalizer
	Metrics   *metrics.JobMetrics
	Logger    *logger.Logger
}

// NewWorker validates wiring and returns a worker.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("job repository required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("processor required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("events finalizer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg := params.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 60 * time.Second
	}

	return &Worker{
		cfg:     cfg,
		repo:    params.Repo,
		proc:    params.Processor,
		events:  params.Events,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Run polls until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "dispatch worker context canceled")
			return ctx.Err()
		default:
		}

		processed, err := w.runOnce(ctx)
		if err != nil {
			w.logg.Error(ctx, "dispatch poll error", err)
		}
		if processed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// runOnce claims one batch and runs it to completion. Returns the number of
// jobs attempted.
func (w *Worker) runOnce(ctx context.Context) (int, error) {
	jobs, err := w.repo.ClaimDue(ctx, w.cfg.Concurrency)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	for i := range jobs {
		job := jobs[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runJob(ctx, &job)
		}()
	}
	wg.Wait()
	return len(jobs), nil
}

func (w *Worker) runJob(ctx context.Context, job *models.ReceiptJob) {
	ctx = w.logg.WithEventID(ctx, job.EventID)
	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	err := w.proc.Process(attemptCtx, job.EventID)
	w.metrics.ObserveDuration(jobName, time.Since(start))

	if err == nil {
		if completeErr := w.repo.Complete(ctx, job.ID); completeErr != nil {
			w.logg.Error(ctx, "discarding finished job", completeErr)
			return
		}
		w.metrics.IncSuccess(jobName)
		w.logg.Info(ctx, "receipt job completed")
		return
	}

	attempt := job.Attempts + 1
	if !pkgerrors.IsRetryable(err) || attempt >= w.cfg.MaxAttempts {
		if markErr := w.repo.MarkExhausted(ctx, job, err.Error()); markErr != nil {
			w.logg.Error(ctx, "retaining exhausted job", markErr)
		}
		// The event must land in a terminal state so a later resend can
		// re-claim it; Finalize never demotes a COMPLETED row.
		if finErr := w.events.Finalize(ctx, job.EventID, enums.WebhookFailed, err.Error()); finErr != nil {
			w.logg.Error(ctx, "finalizing exhausted event", finErr)
		}
		w.metrics.IncFailure(jobName)
		w.logg.Error(ctx, "receipt job failed permanently", err)
		return
	}

	nextRunAt := time.Now().UTC().Add(w.backoff(attempt))
	if rescheduleErr := w.repo.Reschedule(ctx, job, err.Error(), nextRunAt); rescheduleErr != nil {
		w.logg.Error(ctx, "rescheduling job", rescheduleErr)
	}
	w.metrics.IncRetry(jobName)
	w.logg.Error(ctx, "receipt job attempt failed, rescheduled", err)
}

// backoff doubles per completed attempt: base, 2x, 4x, ...
func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return d
}
