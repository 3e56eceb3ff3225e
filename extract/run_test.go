package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewire/scout/errors"
)

func TestRunConfigValidate(t *testing.T) {
	valid := RunConfig{
		JobID:     "job-1",
		BatchSize: 5,
		MaxItems:  100,
		Cooldown:  3 * time.Second,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"empty job id", func(c *RunConfig) { c.JobID = "" }},
		{"zero batch size", func(c *RunConfig) { c.BatchSize = 0 }},
		{"negative batch size", func(c *RunConfig) { c.BatchSize = -1 }},
		{"negative max items", func(c *RunConfig) { c.MaxItems = -1 }},
		{"negative cooldown", func(c *RunConfig) { c.Cooldown = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}

	t.Run("zero max items is allowed", func(t *testing.T) {
		cfg := valid
		cfg.MaxItems = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestPhaseTerminal(t *testing.T) {
	for _, p := range []Phase{PhaseCompleted, PhaseError, PhaseCancelled} {
		assert.True(t, p.Terminal(), "phase %s", p)
	}
	for _, p := range []Phase{PhaseIdle, PhaseConnecting, PhaseRunning, PhasePaused} {
		assert.False(t, p.Terminal(), "phase %s", p)
	}
}

func TestRunLifecycle(t *testing.T) {
	run := newRun(RunConfig{JobID: "job-1", BatchSize: 2, MaxItems: 10})
	require.NotEmpty(t, run.ID)
	assert.Equal(t, PhaseConnecting, run.Phase)
	assert.False(t, run.StartTime.IsZero())
	assert.Nil(t, run.EndTime)

	run.markRunning(4)
	assert.Equal(t, PhaseRunning, run.Phase)
	assert.Equal(t, 4, run.TotalItems)

	run.pauseRequested = true
	run.markPaused()
	assert.Equal(t, PhasePaused, run.Phase)
	assert.False(t, run.pauseRequested)

	run.markResumed()
	assert.Equal(t, PhaseRunning, run.Phase)

	run.complete()
	assert.Equal(t, PhaseCompleted, run.Phase)
	require.NotNil(t, run.EndTime)
}

func TestRunCursorAccounting(t *testing.T) {
	run := newRun(RunConfig{JobID: "job-1", BatchSize: 2, MaxItems: 10})
	run.markRunning(4)

	run.appendItem(ItemResult{SourceRef: ApplicantRef{ID: "a"}, Success: true, Attempts: 1})
	assert.Equal(t, 1, run.Cursor)

	// Retryable exhaustion yields both a failed item and a recoverable
	// error record; only the item advances the cursor.
	run.appendItem(ItemResult{SourceRef: ApplicantRef{ID: "b"}, Success: false, Attempts: 4})
	run.appendError(ErrorRecord{ItemRef: "b", Recoverable: true, Timestamp: time.Now()})
	assert.Equal(t, 2, run.Cursor)

	// A fatal error advances the cursor on its own; the item never joins
	// the processed set.
	run.appendError(ErrorRecord{ItemRef: "c", Recoverable: false, Timestamp: time.Now()})
	assert.Equal(t, 3, run.Cursor)

	fatal := 0
	for _, rec := range run.Errors {
		if !rec.Recoverable {
			fatal++
		}
	}
	assert.Equal(t, run.Cursor, len(run.ProcessedItems)+fatal)
}

func TestSnapshotDeepCopy(t *testing.T) {
	run := newRun(RunConfig{JobID: "job-1", BatchSize: 2, MaxItems: 10})
	run.markRunning(2)
	run.appendItem(ItemResult{
		SourceRef: ApplicantRef{ID: "a"},
		Success:   true,
		Profile:   &ProfileData{Name: "Ada", Skills: []string{"go"}},
		Attempts:  1,
	})

	snap := run.snapshot()
	snap.ProcessedItems[0].Profile.Name = "mutated"
	snap.ProcessedItems[0].Profile.Skills[0] = "mutated"
	snap.ProcessedItems = append(snap.ProcessedItems, ItemResult{})

	fresh := run.snapshot()
	require.Len(t, fresh.ProcessedItems, 1)
	assert.Equal(t, "Ada", fresh.ProcessedItems[0].Profile.Name)
	assert.Equal(t, []string{"go"}, fresh.ProcessedItems[0].Profile.Skills)
}
