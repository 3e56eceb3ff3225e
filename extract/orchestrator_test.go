package extract

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewire/scout/errors"
)

type staticSource struct {
	refs []ApplicantRef
	err  error
}

func (s *staticSource) ListApplicants(ctx context.Context, jobID, viewID string) ([]ApplicantRef, error) {
	return s.refs, s.err
}

// scriptedFetcher replays a per-applicant queue of failures before
// succeeding. Safe for use from the orchestration goroutine plus asserts.
type scriptedFetcher struct {
	mu       sync.Mutex
	failures map[string][]error
	calls    map[string]int
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (f *scriptedFetcher) failWith(id string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = append(f.failures[id], errs...)
}

func (f *scriptedFetcher) FetchProfile(ctx context.Context, ref ApplicantRef) (*ProfileData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ref.ID]++
	if q := f.failures[ref.ID]; len(q) > 0 {
		err := q[0]
		f.failures[ref.ID] = q[1:]
		return nil, err
	}
	return &ProfileData{Name: "Profile " + ref.ID}, nil
}

// gateFetcher blocks each fetch until the test releases it, so tests can
// inject control calls at exact points in the run.
type gateFetcher struct {
	calls   chan string
	release chan error
}

func newGateFetcher() *gateFetcher {
	return &gateFetcher{calls: make(chan string), release: make(chan error)}
}

func (f *gateFetcher) FetchProfile(ctx context.Context, ref ApplicantRef) (*ProfileData, error) {
	f.calls <- ref.ID
	if err := <-f.release; err != nil {
		return nil, err
	}
	return &ProfileData{Name: "Profile " + ref.ID}, nil
}

type fakeDownloader struct {
	err error
}

func (d *fakeDownloader) DownloadCV(ctx context.Context, ref ApplicantRef, progress DownloadProgress) (DownloadResult, error) {
	if progress != nil {
		progress(512, 1024)
		progress(1024, 1024)
	}
	if d.err != nil {
		return DownloadResult{}, d.err
	}
	return DownloadResult{Success: true, FilePath: "/tmp/cv-" + ref.ID + ".pdf"}, nil
}

// eventRecorder collects emitted events. Reads are safe after Wait returns
// or under the recorder's own lock.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, ev := range r.events {
		names[i] = ev.Name
	}
	return names
}

func (r *eventRecorder) byName(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func testOptions(maxRetries int) Options {
	policy := fastPolicy(maxRetries)
	return Options{Policy: &policy}
}

func runConfig(maxItems, batchSize int) RunConfig {
	return RunConfig{JobID: "job-1", MaxItems: maxItems, BatchSize: batchSize}
}

func waitDone(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))
}

func TestOrchestratorHappyPath(t *testing.T) {
	source := &staticSource{refs: makeRefs(5)}
	o := New(source, newScriptedFetcher(), nil, testOptions(3), nil)

	rec := &eventRecorder{}
	o.Events().SubscribeAll(rec.record)

	id, err := o.Start(runConfig(100, 2))
	require.NoError(t, err)
	require.NotEmpty(t, id)
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Equal(t, 5, snap.TotalItems)
	assert.Equal(t, 5, snap.Cursor)
	require.Len(t, snap.ProcessedItems, 5)
	assert.Empty(t, snap.Errors)
	for _, item := range snap.ProcessedItems {
		assert.True(t, item.Success)
		assert.Equal(t, 1, item.Attempts)
	}

	// 5 items at batch size 2 means batches of 2, 2 and 1.
	assert.Equal(t, []string{
		EventStarted,
		EventBatchStarted, EventProgress, EventProgress, EventBatchCompleted,
		EventBatchStarted, EventProgress, EventProgress, EventBatchCompleted,
		EventBatchStarted, EventProgress, EventBatchCompleted,
		EventCompleted,
	}, rec.names())

	completed := rec.byName(EventCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, id, completed[0].RunID)
	assert.Equal(t, 5, completed[0].Data["processed"])
	assert.Equal(t, 5, completed[0].Data["success_count"])
}

func TestOrchestratorMaxItemsCap(t *testing.T) {
	source := &staticSource{refs: makeRefs(10)}
	o := New(source, newScriptedFetcher(), nil, testOptions(3), nil)

	_, err := o.Start(runConfig(7, 3))
	require.NoError(t, err)
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Equal(t, 7, snap.TotalItems)
	assert.Len(t, snap.ProcessedItems, 7)
}

func TestOrchestratorEmptySource(t *testing.T) {
	o := New(&staticSource{}, newScriptedFetcher(), nil, testOptions(3), nil)

	rec := &eventRecorder{}
	o.Events().SubscribeAll(rec.record)

	_, err := o.Start(runConfig(100, 2))
	require.NoError(t, err)
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Empty(t, snap.ProcessedItems)
	assert.Equal(t, []string{EventStarted, EventCompleted}, rec.names())
}

func TestOrchestratorZeroMaxItems(t *testing.T) {
	o := New(&staticSource{refs: makeRefs(5)}, newScriptedFetcher(), nil, testOptions(3), nil)

	_, err := o.Start(runConfig(0, 2))
	require.NoError(t, err)
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Equal(t, 0, snap.TotalItems)
	assert.Empty(t, snap.ProcessedItems)
}

func TestOrchestratorConnectFailure(t *testing.T) {
	source := &staticSource{err: errors.ErrNavigation}
	o := New(source, newScriptedFetcher(), nil, testOptions(3), nil)

	rec := &eventRecorder{}
	o.Events().SubscribeAll(rec.record)

	_, err := o.Start(runConfig(100, 2))
	require.NoError(t, err)
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.NotEmpty(t, snap.Err)
	assert.Equal(t, []string{EventError}, rec.names())
	assert.Equal(t, "connect", rec.byName(EventError)[0].Data["stage"])
}

func TestOrchestratorRetryDeterminism(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.failWith("applicant-0",
		errors.New("connection reset"),
		errors.New("connection reset"),
	)
	o := New(&staticSource{refs: makeRefs(2)}, fetcher, nil, testOptions(3), nil)

	_, err := o.Start(runConfig(100, 2))
	require.NoError(t, err)
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	require.Len(t, snap.ProcessedItems, 2)
	assert.True(t, snap.ProcessedItems[0].Success)
	assert.Equal(t, 3, snap.ProcessedItems[0].Attempts)
	assert.Equal(t, 1, snap.ProcessedItems[1].Attempts)
	assert.Empty(t, snap.Errors)
}

func TestOrchestratorRetryExhaustionContinues(t *testing.T) {
	fetcher := newScriptedFetcher()
	for i := 0; i < 10; i++ {
		fetcher.failWith("applicant-0", errors.New("connection reset"))
	}
	o := New(&staticSource{refs: makeRefs(2)}, fetcher, nil, testOptions(2), nil)

	_, err := o.Start(runConfig(100, 2))
	require.NoError(t, err)
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	require.Len(t, snap.ProcessedItems, 2)
	assert.False(t, snap.ProcessedItems[0].Success)
	assert.Equal(t, 3, snap.ProcessedItems[0].Attempts)
	assert.True(t, snap.ProcessedItems[1].Success)

	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "applicant-0", snap.Errors[0].ItemRef)
	assert.True(t, snap.Errors[0].Recoverable)
}

func TestOrchestratorFatalAbortsPreservingResults(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.failWith("applicant-4", errors.ErrAuthExpired)
	o := New(&staticSource{refs: makeRefs(6)}, fetcher, nil, testOptions(3), nil)

	rec := &eventRecorder{}
	o.Events().SubscribeAll(rec.record)

	_, err := o.Start(runConfig(100, 2))
	require.NoError(t, err)
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	require.Len(t, snap.ProcessedItems, 4)
	require.Len(t, snap.Errors, 1)
	assert.False(t, snap.Errors[0].Recoverable)
	assert.Equal(t, 5, snap.Cursor)

	names := rec.names()
	require.NotEmpty(t, names)
	assert.Equal(t, EventError, names[len(names)-1])
	errEvent := rec.byName(EventError)[0]
	assert.Equal(t, 4, errEvent.Data["processed"])
}

func TestOrchestratorPauseAtBatchBoundary(t *testing.T) {
	fetcher := newGateFetcher()
	o := New(&staticSource{refs: makeRefs(4)}, fetcher, nil, testOptions(3), nil)

	rec := &eventRecorder{}
	o.Events().SubscribeAll(rec.record)

	_, err := o.Start(runConfig(100, 2))
	require.NoError(t, err)

	<-fetcher.calls
	fetcher.release <- nil

	// Pause mid-batch: honored only once the batch finishes.
	<-fetcher.calls
	require.NoError(t, o.Pause())
	assert.Equal(t, PhaseRunning, o.Phase())
	fetcher.release <- nil

	require.Eventually(t, func() bool {
		return o.Phase() == PhasePaused
	}, 2*time.Second, time.Millisecond)

	snap := o.Snapshot()
	assert.Equal(t, 2, snap.Cursor)
	assert.Len(t, snap.ProcessedItems, 2)

	require.NoError(t, o.Resume())
	for i := 0; i < 2; i++ {
		<-fetcher.calls
		fetcher.release <- nil
	}
	waitDone(t, o)

	assert.Equal(t, PhaseCompleted, o.Phase())
	assert.Len(t, o.Snapshot().ProcessedItems, 4)

	names := rec.names()
	assert.Contains(t, names, EventPaused)
	assert.Contains(t, names, EventResumed)
	pausedIdx, resumedIdx := -1, -1
	for i, name := range names {
		switch name {
		case EventPaused:
			pausedIdx = i
		case EventResumed:
			resumedIdx = i
		}
	}
	assert.Less(t, pausedIdx, resumedIdx)
}

func TestOrchestratorCancelFinishesCurrentItem(t *testing.T) {
	fetcher := newGateFetcher()
	o := New(&staticSource{refs: makeRefs(4)}, fetcher, nil, testOptions(3), nil)

	rec := &eventRecorder{}
	o.Events().SubscribeAll(rec.record)

	_, err := o.Start(runConfig(100, 4))
	require.NoError(t, err)

	<-fetcher.calls
	fetcher.release <- nil

	// Cancel while the second item is in flight: it finishes, the third
	// never starts.
	<-fetcher.calls
	require.NoError(t, o.Cancel())
	fetcher.release <- nil
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseCancelled, snap.Phase)
	assert.Len(t, snap.ProcessedItems, 2)

	names := rec.names()
	assert.Equal(t, EventCancelled, names[len(names)-1])
	cancelled := rec.byName(EventCancelled)[0]
	assert.Equal(t, 2, cancelled.Data["processed"])
}

func TestOrchestratorCancelWhilePaused(t *testing.T) {
	fetcher := newGateFetcher()
	o := New(&staticSource{refs: makeRefs(4)}, fetcher, nil, testOptions(3), nil)

	_, err := o.Start(runConfig(100, 2))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		<-fetcher.calls
		if i == 1 {
			require.NoError(t, o.Pause())
		}
		fetcher.release <- nil
	}
	require.Eventually(t, func() bool {
		return o.Phase() == PhasePaused
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, o.Cancel())
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseCancelled, snap.Phase)
	assert.Len(t, snap.ProcessedItems, 2)
}

func TestOrchestratorSingleRunAtATime(t *testing.T) {
	fetcher := newGateFetcher()
	o := New(&staticSource{refs: makeRefs(1)}, fetcher, nil, testOptions(3), nil)

	_, err := o.Start(runConfig(100, 1))
	require.NoError(t, err)

	_, err = o.Start(runConfig(100, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRunActive))
	assert.True(t, errors.IsInvalidStateError(err))

	<-fetcher.calls
	fetcher.release <- nil
	waitDone(t, o)

	// A terminal run is replaced by the next start.
	fetcher2 := newScriptedFetcher()
	o2 := New(&staticSource{refs: makeRefs(1)}, fetcher2, nil, testOptions(3), nil)
	first, err := o2.Start(runConfig(100, 1))
	require.NoError(t, err)
	waitDone(t, o2)
	second, err := o2.Start(runConfig(100, 1))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	waitDone(t, o2)
}

func TestOrchestratorControlCallsRequireRightPhase(t *testing.T) {
	o := New(&staticSource{}, newScriptedFetcher(), nil, testOptions(3), nil)

	assert.True(t, errors.IsInvalidStateError(o.Pause()))
	assert.True(t, errors.IsInvalidStateError(o.Resume()))
	assert.True(t, errors.IsInvalidStateError(o.Cancel()))
	assert.True(t, errors.IsInvalidStateError(o.ExportResults(&bytes.Buffer{})))
	assert.Equal(t, PhaseIdle, o.Snapshot().Phase)

	_, err := o.Start(RunConfig{JobID: "", BatchSize: 2, MaxItems: 10})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestOrchestratorCVDownload(t *testing.T) {
	refs := makeRefs(2)
	refs[0].CVURL = "https://cdn.example.com/cv-0.pdf"
	refs[1].CVURL = "https://cdn.example.com/cv-1.pdf"

	o := New(&staticSource{refs: refs}, newScriptedFetcher(), &fakeDownloader{}, testOptions(3), nil)

	rec := &eventRecorder{}
	o.Events().SubscribeAll(rec.record)

	_, err := o.Start(runConfig(100, 2))
	require.NoError(t, err)
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	require.Len(t, snap.ProcessedItems, 2)
	for i, item := range snap.ProcessedItems {
		require.NotNil(t, item.CVDownload)
		assert.True(t, item.CVDownload.Success)
		assert.Equal(t, fmt.Sprintf("/tmp/cv-applicant-%d.pdf", i), item.CVDownload.FilePath)
	}

	assert.Len(t, rec.byName(EventCVDownloadStarted), 2)
	assert.Len(t, rec.byName(EventCVDownloadProgress), 4)
	assert.Len(t, rec.byName(EventCVDownloadCompleted), 2)
}

func TestOrchestratorCVDownloadFailureDoesNotFailItem(t *testing.T) {
	refs := makeRefs(1)
	refs[0].CVURL = "https://cdn.example.com/cv-0.pdf"

	downloader := &fakeDownloader{err: errors.New("connection reset")}
	o := New(&staticSource{refs: refs}, newScriptedFetcher(), downloader, testOptions(1), nil)

	rec := &eventRecorder{}
	o.Events().SubscribeAll(rec.record)

	_, err := o.Start(runConfig(100, 1))
	require.NoError(t, err)
	waitDone(t, o)

	snap := o.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	require.Len(t, snap.ProcessedItems, 1)
	assert.True(t, snap.ProcessedItems[0].Success)
	require.NotNil(t, snap.ProcessedItems[0].CVDownload)
	assert.False(t, snap.ProcessedItems[0].CVDownload.Success)

	require.Len(t, snap.Errors, 1)
	assert.True(t, snap.Errors[0].Recoverable)
	assert.Len(t, rec.byName(EventCVDownloadError), 1)
}

func TestOrchestratorReset(t *testing.T) {
	o := New(&staticSource{refs: makeRefs(1)}, newScriptedFetcher(), nil, testOptions(3), nil)

	_, err := o.Start(runConfig(100, 1))
	require.NoError(t, err)
	waitDone(t, o)

	require.NoError(t, o.Reset())
	assert.Equal(t, PhaseIdle, o.Snapshot().Phase)
	assert.True(t, errors.IsInvalidStateError(o.Wait(context.Background())))
}
