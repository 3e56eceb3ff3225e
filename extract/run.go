// Package extract drives rate-limited batch extraction of job applicants.
package extract

import (
	"time"

	"github.com/google/uuid"

	"github.com/hirewire/scout/errors"
)

// Phase represents the current state of an extraction run
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseRunning    Phase = "running"
	PhasePaused     Phase = "paused"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
	PhaseCancelled  Phase = "cancelled"
)

// Terminal returns true for phases no transition leaves.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseError, PhaseCancelled:
		return true
	default:
		return false
	}
}

// IsValidPhase returns true if the phase string is a valid Phase
func IsValidPhase(s string) bool {
	switch Phase(s) {
	case PhaseIdle, PhaseConnecting, PhaseRunning, PhasePaused,
		PhaseCompleted, PhaseError, PhaseCancelled:
		return true
	default:
		return false
	}
}

// RunConfig is the immutable target configuration for one extraction run.
type RunConfig struct {
	JobID           string        `json:"job_id"`
	ApplicantViewID string        `json:"applicant_view_id,omitempty"`
	MaxItems        int           `json:"max_items"`
	BatchSize       int           `json:"batch_size"`
	Cooldown        time.Duration `json:"cooldown"`
	ItemTimeout     time.Duration `json:"item_timeout,omitempty"`
}

// Validate checks the run configuration before any state change.
// MaxItems of 0 is allowed and yields an immediately completed empty run.
func (c RunConfig) Validate() error {
	if c.JobID == "" {
		return errors.NewValidationError("job_id cannot be empty")
	}
	if c.BatchSize < 1 {
		return errors.NewValidationError("batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.MaxItems < 0 {
		return errors.NewValidationError("max_items must be >= 0, got %d", c.MaxItems)
	}
	if c.Cooldown < 0 {
		return errors.NewValidationError("cooldown must be >= 0, got %s", c.Cooldown)
	}
	return nil
}

// ItemResult records the outcome for one applicant. Immutable once appended.
type ItemResult struct {
	SourceRef  ApplicantRef    `json:"source_ref"`
	Success    bool            `json:"success"`
	Profile    *ProfileData    `json:"profile,omitempty"`
	CVDownload *DownloadResult `json:"cv_download,omitempty"`
	Attempts   int             `json:"attempts"`
}

// ErrorRecord is an append-only entry in the run's error log.
type ErrorRecord struct {
	ItemRef     string    `json:"item_ref"`
	Kind        string    `json:"error_kind"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
}

// Run holds the mutable state of one extraction run.
// Owned exclusively by the Orchestrator; all mutation goes through its
// transition methods under the orchestrator's lock. External callers only
// ever see Snapshot copies.
type Run struct {
	ID             string
	Phase          Phase
	Target         RunConfig
	Cursor         int
	TotalItems     int // Effective total: min(source length, max items)
	ProcessedItems []ItemResult
	Errors         []ErrorRecord
	Err            string
	StartTime      time.Time
	EndTime        *time.Time

	pauseRequested  bool
	cancelRequested bool
}

// newRun creates a run in the Connecting phase. Config must be validated
// by the caller.
func newRun(cfg RunConfig) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Phase:     PhaseConnecting,
		Target:    cfg,
		StartTime: time.Now(),
	}
}

// markRunning records the effective item total and enters Running.
func (r *Run) markRunning(totalItems int) {
	r.Phase = PhaseRunning
	r.TotalItems = totalItems
}

// markPaused enters Paused. Only called at a batch boundary.
func (r *Run) markPaused() {
	r.Phase = PhasePaused
	r.pauseRequested = false
}

// markResumed re-enters Running from Paused.
func (r *Run) markResumed() {
	r.Phase = PhaseRunning
}

// complete finishes the run successfully.
func (r *Run) complete() {
	now := time.Now()
	r.Phase = PhaseCompleted
	r.EndTime = &now
}

// fail ends the run with a fatal error. Accumulated results are preserved.
func (r *Run) fail(err error) {
	now := time.Now()
	r.Phase = PhaseError
	r.Err = err.Error()
	r.EndTime = &now
}

// cancel ends the run at the caller's request.
func (r *Run) cancel() {
	now := time.Now()
	r.Phase = PhaseCancelled
	r.EndTime = &now
}

// appendItem records a processed item and advances the cursor.
func (r *Run) appendItem(item ItemResult) {
	r.ProcessedItems = append(r.ProcessedItems, item)
	r.Cursor++
}

// appendError records an item failure. Fatal (non-recoverable) records also
// advance the cursor so the batch-boundary accounting invariant holds.
func (r *Run) appendError(rec ErrorRecord) {
	r.Errors = append(r.Errors, rec)
	if !rec.Recoverable {
		r.Cursor++
	}
}

// Snapshot is an immutable point-in-time copy of a run's state.
type Snapshot struct {
	ID             string        `json:"id"`
	Phase          Phase         `json:"phase"`
	Target         RunConfig     `json:"target"`
	Cursor         int           `json:"cursor"`
	TotalItems     int           `json:"total_items"`
	ProcessedItems []ItemResult  `json:"processed_items"`
	Errors         []ErrorRecord `json:"errors"`
	Err            string        `json:"error,omitempty"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        *time.Time    `json:"end_time,omitempty"`
}

// snapshot deep-copies the run state.
func (r *Run) snapshot() Snapshot {
	items := make([]ItemResult, len(r.ProcessedItems))
	for i, item := range r.ProcessedItems {
		items[i] = item
		if item.Profile != nil {
			profile := *item.Profile
			if item.Profile.Skills != nil {
				profile.Skills = append([]string(nil), item.Profile.Skills...)
			}
			items[i].Profile = &profile
		}
		if item.CVDownload != nil {
			dl := *item.CVDownload
			items[i].CVDownload = &dl
		}
	}

	errs := append([]ErrorRecord(nil), r.Errors...)

	var endTime *time.Time
	if r.EndTime != nil {
		t := *r.EndTime
		endTime = &t
	}

	return Snapshot{
		ID:             r.ID,
		Phase:          r.Phase,
		Target:         r.Target,
		Cursor:         r.Cursor,
		TotalItems:     r.TotalItems,
		ProcessedItems: items,
		Errors:         errs,
		Err:            r.Err,
		StartTime:      r.StartTime,
		EndTime:        endTime,
	}
}

// successCount counts successful items in the given slice.
func successCount(items []ItemResult) int {
	n := 0
	for _, item := range items {
		if item.Success {
			n++
		}
	}
	return n
}
