package extract

import (
	"sync"
	"time"

	"github.com/hirewire/scout/errors"
)

// Event names form a fixed, closed vocabulary. Subscribing to anything else
// fails with a validation error, mirroring channel allow-listing at the
// transport layer.
const (
	EventStarted        = "started"
	EventProgress       = "progress"
	EventBatchStarted   = "batch-started"
	EventBatchCompleted = "batch-completed"
	EventPaused         = "paused"
	EventResumed        = "resumed"
	EventCompleted      = "completed"
	EventError          = "error"
	EventCancelled      = "cancelled"

	EventCVDownloadStarted   = "cv-download-started"
	EventCVDownloadProgress  = "cv-download-progress"
	EventCVDownloadCompleted = "cv-download-completed"
	EventCVDownloadError     = "cv-download-error"
)

// eventVocabulary is the allow-list consulted at subscribe time.
var eventVocabulary = map[string]struct{}{
	EventStarted:             {},
	EventProgress:            {},
	EventBatchStarted:        {},
	EventBatchCompleted:      {},
	EventPaused:              {},
	EventResumed:             {},
	EventCompleted:           {},
	EventError:               {},
	EventCancelled:           {},
	EventCVDownloadStarted:   {},
	EventCVDownloadProgress:  {},
	EventCVDownloadCompleted: {},
	EventCVDownloadError:     {},
}

// IsValidEvent returns true if name belongs to the event vocabulary.
func IsValidEvent(name string) bool {
	_, ok := eventVocabulary[name]
	return ok
}

// EventNames returns the full event vocabulary.
func EventNames() []string {
	names := make([]string, 0, len(eventVocabulary))
	for name := range eventVocabulary {
		names = append(names, name)
	}
	return names
}

// Event is one lifecycle notification for a run.
type Event struct {
	Name      string                 `json:"name"`
	RunID     string                 `json:"run_id"`
	Seq       uint64                 `json:"seq"` // Strictly increasing per emitter
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Handler receives events. Handlers run synchronously on the emitting
// goroutine, so per-subscriber delivery order equals emission order.
type Handler func(Event)

type listener struct {
	name    string // Empty means all events
	handler Handler
}

// Emitter publishes lifecycle events to any number of subscribers.
// Single producer (the orchestration goroutine), multiple consumers.
type Emitter struct {
	mu        sync.Mutex
	seq       uint64
	listeners []*listener
}

// NewEmitter creates an empty event emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers handler for the named event and returns an
// unsubscribe function. Unknown event names fail with a validation error
// and register nothing.
func (e *Emitter) Subscribe(name string, handler Handler) (func(), error) {
	if !IsValidEvent(name) {
		return nil, errors.NewValidationError("unknown event name: %q", name)
	}
	return e.add(&listener{name: name, handler: handler}), nil
}

// SubscribeAll registers handler for every event in the vocabulary and
// returns an unsubscribe function. Used by transports that forward the
// whole stream (websocket hub, CLI renderer).
func (e *Emitter) SubscribeAll(handler Handler) func() {
	return e.add(&listener{handler: handler})
}

func (e *Emitter) add(l *listener) func() {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, cur := range e.listeners {
				if cur == l {
					e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers the event to every matching subscriber in registration
// order. The listener set is snapshotted per dispatch: un/subscribing from
// inside a handler never skips or double-invokes other listeners of the
// same dispatch.
func (e *Emitter) Emit(name, runID string, data map[string]interface{}) Event {
	e.mu.Lock()
	e.seq++
	ev := Event{
		Name:      name,
		RunID:     runID,
		Seq:       e.seq,
		Timestamp: time.Now(),
		Data:      data,
	}
	snapshot := append([]*listener(nil), e.listeners...)
	e.mu.Unlock()

	for _, l := range snapshot {
		if l.name == "" || l.name == name {
			l.handler(ev)
		}
	}
	return ev
}
