package extract

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hirewire/scout/errors"
	"github.com/hirewire/scout/throttle"
)

// Options tunes an Orchestrator beyond its collaborators.
// Zero values fall back to defaults.
type Options struct {
	Policy      *RetryPolicy      // Retry/backoff policy (default: DefaultRetryPolicy)
	Limiter     *throttle.Limiter // Upstream call budget (nil: unlimited)
	Store       *Store            // Run history persistence (nil: none)
	ItemTimeout time.Duration     // Per-item operation timeout (0: none)
}

// Orchestrator drives one extraction run at a time through batched,
// rate-limited applicant processing. Collaborators are injected at
// construction; the orchestrator never reaches into ambient globals.
//
// All state mutation happens on the single orchestration goroutine under
// the orchestrator lock. External callers read via Snapshot and request
// transitions through the narrow control API.
type Orchestrator struct {
	mu   sync.Mutex
	cond *sync.Cond

	source     ApplicantSource
	fetcher    ProfileFetcher
	downloader CVDownloader // Optional; nil skips CV downloads

	policy      RetryPolicy
	limiter     *throttle.Limiter
	store       *Store
	itemTimeout time.Duration

	emitter *Emitter
	log     *zap.SugaredLogger
	ctx     context.Context

	run  *Run
	done chan struct{}

	// sleep is the cooldown suspension point. Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator with a background parent context.
func New(source ApplicantSource, fetcher ProfileFetcher, downloader CVDownloader, opts Options, log *zap.SugaredLogger) *Orchestrator {
	return NewWithContext(context.Background(), source, fetcher, downloader, opts, log)
}

// NewWithContext creates an orchestrator whose runs are bounded by ctx.
// Useful for tests and for shutdown coordination from a server.
func NewWithContext(ctx context.Context, source ApplicantSource, fetcher ProfileFetcher, downloader CVDownloader, opts Options, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	policy := DefaultRetryPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	o := &Orchestrator{
		source:      source,
		fetcher:     fetcher,
		downloader:  downloader,
		policy:      policy,
		limiter:     opts.Limiter,
		store:       opts.Store,
		itemTimeout: opts.ItemTimeout,
		emitter:     NewEmitter(),
		log:         log.Named("extract"),
		ctx:         ctx,
		sleep:       sleepCtx,
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Events exposes the emitter for subscriptions.
func (o *Orchestrator) Events() *Emitter {
	return o.emitter
}

// Phase returns the current run phase, or PhaseIdle when no run exists.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return PhaseIdle
	}
	return o.run.Phase
}

// Start begins a new extraction run and returns its ID. Fails with an
// invalid-state error while another run is active, and with a validation
// error for a bad config. A terminal previous run is replaced.
func (o *Orchestrator) Start(cfg RunConfig) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run != nil && !o.run.Phase.Terminal() {
		return "", errors.Wrapf(errors.ErrRunActive,
			"cannot start while run %s is %s", o.run.ID, o.run.Phase)
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	run := newRun(cfg)
	o.run = run
	o.done = make(chan struct{})

	o.log.Infow("Run starting",
		"run_id", run.ID,
		"job_id", cfg.JobID,
		"batch_size", cfg.BatchSize,
		"max_items", cfg.MaxItems,
		"cooldown", cfg.Cooldown,
	)

	go o.execute(run, o.done)
	return run.ID, nil
}

// Pause requests a pause. Honored at the next batch boundary, never
// mid-item, so no partially processed item is left behind.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run == nil || o.run.Phase != PhaseRunning {
		return errors.NewInvalidStateError("pause requires a running extraction (phase: %s)", o.phaseLocked())
	}
	o.run.pauseRequested = true
	return nil
}

// Resume continues a paused run, or withdraws a pause request that has not
// yet been honored.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.run == nil:
		return errors.NewInvalidStateError("resume requires a paused extraction (phase: idle)")
	case o.run.Phase == PhasePaused:
		o.run.markResumed()
		o.cond.Broadcast()
		return nil
	case o.run.Phase == PhaseRunning && o.run.pauseRequested:
		// Pause was requested but not yet honored; just withdraw it.
		o.run.pauseRequested = false
		return nil
	default:
		return errors.NewInvalidStateError("resume requires a paused extraction (phase: %s)", o.run.Phase)
	}
}

// Cancel requests cancellation. Cooperative: the in-flight item finishes,
// then no further batch is scheduled.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run == nil || o.run.Phase.Terminal() {
		return errors.NewInvalidStateError("cancel requires an active extraction (phase: %s)", o.phaseLocked())
	}
	o.run.cancelRequested = true
	o.cond.Broadcast()
	return nil
}

// Reset clears a terminal run back to idle.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run != nil && !o.run.Phase.Terminal() {
		return errors.NewInvalidStateError("cannot reset while run %s is %s", o.run.ID, o.run.Phase)
	}
	o.run = nil
	o.done = nil
	return nil
}

// Snapshot returns an immutable copy of the current run state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return Snapshot{Phase: PhaseIdle}
	}
	return o.run.snapshot()
}

// ExportResults serializes the current run's results to the sink.
func (o *Orchestrator) ExportResults(w io.Writer) error {
	snap := o.Snapshot()
	if snap.Phase == PhaseIdle {
		return errors.NewInvalidStateError("no run to export")
	}
	return WriteResults(w, snap)
}

// Wait blocks until the current run reaches a terminal phase or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done == nil {
		return errors.NewInvalidStateError("no run started")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (o *Orchestrator) phaseLocked() Phase {
	if o.run == nil {
		return PhaseIdle
	}
	return o.run.Phase
}

// execute is the single orchestration flow for one run.
// Suspension points: inter-batch cooldown, paused wait, retry backoff.
func (o *Orchestrator) execute(run *Run, done chan struct{}) {
	defer close(done)

	log := o.log.With("run_id", run.ID, "job_id", run.Target.JobID)
	cfg := run.Target

	refs, err := o.source.ListApplicants(o.ctx, cfg.JobID, cfg.ApplicantViewID)
	if err != nil {
		o.fatal(run, log, "connect", errors.Wrap(err, "failed to list applicants"))
		return
	}

	if o.isCancelRequested(run) {
		o.finishCancelled(run, log)
		return
	}

	total := len(refs)
	if cfg.MaxItems < total {
		total = cfg.MaxItems
	}
	plans := PlanBatches(refs, cfg.BatchSize, cfg.MaxItems)

	o.mu.Lock()
	run.markRunning(total)
	o.mu.Unlock()

	o.emitter.Emit(EventStarted, run.ID, map[string]interface{}{
		"job_id":        cfg.JobID,
		"total_items":   total,
		"total_batches": len(plans),
		"batch_size":    cfg.BatchSize,
	})
	log.Infow("Run connected", "total_items", total, "total_batches", len(plans))

	for i, plan := range plans {
		if o.isCancelRequested(run) {
			o.finishCancelled(run, log)
			return
		}

		o.emitter.Emit(EventBatchStarted, run.ID, map[string]interface{}{
			"batch_index":   plan.BatchIndex,
			"total_batches": plan.TotalBatches,
			"batch_items":   len(plan.Items),
		})

		batchProcessed, batchSuccess, batchFailed, fatalErr := o.processBatch(run, log, plan)
		if fatalErr != nil {
			o.fatal(run, log, "batch", fatalErr)
			return
		}

		if o.isCancelRequested(run) {
			o.finishCancelled(run, log)
			return
		}

		o.emitter.Emit(EventBatchCompleted, run.ID, map[string]interface{}{
			"batch_index":     plan.BatchIndex,
			"processed_count": batchProcessed,
			"success_count":   batchSuccess,
			"failed_count":    batchFailed,
		})

		if cancelled := o.pauseIfRequested(run, log); cancelled {
			o.finishCancelled(run, log)
			return
		}

		// Cooldown between batches, skipped after the last one.
		if i < len(plans)-1 && cfg.Cooldown > 0 {
			if err := o.sleep(o.ctx, cfg.Cooldown); err != nil {
				o.fatal(run, log, "cooldown", err)
				return
			}
		}
	}

	o.finishCompleted(run, log)
}

// processBatch handles every item of one batch. Returns per-batch counters
// and a non-nil fatalErr when the run must abort.
func (o *Orchestrator) processBatch(run *Run, log *zap.SugaredLogger, plan BatchPlan) (processed, succeeded, failed int, fatalErr error) {
	for _, ref := range plan.Items {
		if o.isCancelRequested(run) {
			// Finish the current item, never start the next.
			return processed, succeeded, failed, nil
		}

		item, fatal := o.processItem(run, log, ref)
		if fatal != nil {
			// The fatal error record was already appended; the item
			// itself never joins the processed set.
			return processed, succeeded, failed, fatal
		}

		o.mu.Lock()
		run.appendItem(item)
		cursor := run.Cursor
		totalItems := run.TotalItems
		o.mu.Unlock()

		processed++
		if item.Success {
			succeeded++
		} else {
			failed++
		}

		o.emitter.Emit(EventProgress, run.ID, map[string]interface{}{
			"source_ref": ref.ID,
			"success":    item.Success,
			"attempts":   item.Attempts,
			"cursor":     cursor,
			"total":      totalItems,
		})
	}
	return processed, succeeded, failed, nil
}

// processItem fetches one profile (and optionally its CV) under the retry
// policy. A fatal classification is returned to abort the run; retryable
// exhaustion records a recoverable error and processing continues.
func (o *Orchestrator) processItem(run *Run, log *zap.SugaredLogger, ref ApplicantRef) (ItemResult, error) {
	stop := func() bool { return o.isCancelRequested(run) }

	var profile *ProfileData
	attempts, err := o.policy.Do(o.ctx, stop, func(ctx context.Context) error {
		if o.limiter != nil {
			if err := o.limiter.Allow(); err != nil {
				return err
			}
		}
		fetchCtx := ctx
		if o.itemTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, o.itemTimeout)
			defer cancel()
		}
		p, err := o.fetcher.FetchProfile(fetchCtx, ref)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})

	if err != nil {
		kind := o.policy.Classify(err)
		rec := ErrorRecord{
			ItemRef:     ref.ID,
			Kind:        string(kind),
			Message:     err.Error(),
			Recoverable: kind == FailureRetryable,
			Timestamp:   time.Now(),
		}
		if kind == FailureFatal {
			o.mu.Lock()
			run.appendError(rec)
			o.mu.Unlock()
			log.Errorw("Fatal item failure", "item_ref", ref.ID, "attempts", attempts, "error", err)
			return ItemResult{}, err
		}

		o.mu.Lock()
		run.appendError(rec)
		o.mu.Unlock()
		log.Warnw("Item failed after retries",
			"item_ref", ref.ID,
			"attempts", attempts,
			"error", err,
		)
		return ItemResult{SourceRef: ref, Success: false, Attempts: attempts}, nil
	}

	item := ItemResult{SourceRef: ref, Success: true, Profile: profile, Attempts: attempts}

	if o.downloader != nil && ref.CVURL != "" {
		result, fatal := o.downloadCV(run, log, ref)
		if fatal != nil {
			return ItemResult{}, fatal
		}
		item.CVDownload = &result
	}

	return item, nil
}

// downloadCV fetches the applicant's CV under the retry policy. Failures
// never fail the item itself; only a fatal classification aborts the run.
func (o *Orchestrator) downloadCV(run *Run, log *zap.SugaredLogger, ref ApplicantRef) (DownloadResult, error) {
	o.emitter.Emit(EventCVDownloadStarted, run.ID, map[string]interface{}{
		"source_ref": ref.ID,
		"cv_url":     ref.CVURL,
	})

	progress := func(received, total int64) {
		o.emitter.Emit(EventCVDownloadProgress, run.ID, map[string]interface{}{
			"source_ref": ref.ID,
			"received":   received,
			"total":      total,
		})
	}

	stop := func() bool { return o.isCancelRequested(run) }
	var result DownloadResult
	_, err := o.policy.Do(o.ctx, stop, func(ctx context.Context) error {
		dlCtx := ctx
		if o.itemTimeout > 0 {
			var cancel context.CancelFunc
			dlCtx, cancel = context.WithTimeout(ctx, o.itemTimeout)
			defer cancel()
		}
		r, err := o.downloader.DownloadCV(dlCtx, ref, progress)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if err != nil {
		kind := o.policy.Classify(err)
		o.mu.Lock()
		run.appendError(ErrorRecord{
			ItemRef:     ref.ID,
			Kind:        string(kind),
			Message:     err.Error(),
			Recoverable: kind == FailureRetryable,
			Timestamp:   time.Now(),
		})
		o.mu.Unlock()

		o.emitter.Emit(EventCVDownloadError, run.ID, map[string]interface{}{
			"source_ref": ref.ID,
			"error":      err.Error(),
		})
		log.Warnw("CV download failed", "item_ref", ref.ID, "error", err)

		if kind == FailureFatal {
			return DownloadResult{Success: false, Message: err.Error()}, err
		}
		return DownloadResult{Success: false, Message: err.Error()}, nil
	}

	o.emitter.Emit(EventCVDownloadCompleted, run.ID, map[string]interface{}{
		"source_ref": ref.ID,
		"file_path":  result.FilePath,
	})
	return result, nil
}

// pauseIfRequested honors a pending pause request at a batch boundary.
// Blocks cooperatively until resumed or cancelled. Returns true when the
// run was cancelled while paused.
func (o *Orchestrator) pauseIfRequested(run *Run, log *zap.SugaredLogger) (cancelled bool) {
	o.mu.Lock()
	if run.cancelRequested {
		o.mu.Unlock()
		return true
	}
	if !run.pauseRequested {
		o.mu.Unlock()
		return false
	}
	run.markPaused()
	cursor := run.Cursor
	totalItems := run.TotalItems
	o.mu.Unlock()

	o.emitter.Emit(EventPaused, run.ID, map[string]interface{}{
		"cursor": cursor,
		"total":  totalItems,
	})
	log.Infow("Run paused", "cursor", cursor)

	o.mu.Lock()
	for run.Phase == PhasePaused && !run.cancelRequested {
		o.cond.Wait()
	}
	cancelled = run.cancelRequested
	o.mu.Unlock()

	if cancelled {
		return true
	}

	o.emitter.Emit(EventResumed, run.ID, nil)
	log.Infow("Run resumed", "cursor", cursor)
	return false
}

func (o *Orchestrator) isCancelRequested(run *Run) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return run.cancelRequested
}

// finishCompleted ends the run successfully.
func (o *Orchestrator) finishCompleted(run *Run, log *zap.SugaredLogger) {
	o.mu.Lock()
	run.complete()
	snap := run.snapshot()
	o.mu.Unlock()

	o.emitter.Emit(EventCompleted, run.ID, terminalPayload(snap))
	duration := time.Duration(0)
	if snap.EndTime != nil {
		duration = snap.EndTime.Sub(snap.StartTime)
	}
	log.Infow("Run completed",
		"processed", len(snap.ProcessedItems),
		"errors", len(snap.Errors),
		"duration", duration,
	)
	o.persist(snap, log)
}

// finishCancelled ends the run at the caller's request. The cancelled
// event is the final event for the run and carries the partial results.
func (o *Orchestrator) finishCancelled(run *Run, log *zap.SugaredLogger) {
	o.mu.Lock()
	run.cancel()
	snap := run.snapshot()
	o.mu.Unlock()

	o.emitter.Emit(EventCancelled, run.ID, terminalPayload(snap))
	log.Infow("Run cancelled", "processed", len(snap.ProcessedItems))
	o.persist(snap, log)
}

// fatal ends the run on an unrecoverable failure. Accumulated results are
// never discarded; the error event carries everything collected so far.
func (o *Orchestrator) fatal(run *Run, log *zap.SugaredLogger, stage string, err error) {
	o.mu.Lock()
	run.fail(err)
	snap := run.snapshot()
	o.mu.Unlock()

	payload := terminalPayload(snap)
	payload["stage"] = stage
	payload["error"] = err.Error()
	o.emitter.Emit(EventError, run.ID, payload)
	log.Errorw("Run failed", "stage", stage, "error", err, "processed", len(snap.ProcessedItems))
	o.persist(snap, log)
}

// terminalPayload builds the event payload every terminal event carries,
// so a consuming UI can always render what was accomplished.
func terminalPayload(snap Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"items":         snap.ProcessedItems,
		"errors":        snap.Errors,
		"processed":     len(snap.ProcessedItems),
		"success_count": successCount(snap.ProcessedItems),
		"cursor":        snap.Cursor,
		"total":         snap.TotalItems,
	}
}

func (o *Orchestrator) persist(snap Snapshot, log *zap.SugaredLogger) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveRun(snap); err != nil {
		log.Warnw("Failed to persist run", "error", err)
	}
}
