package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewire/scout/errors"
)

func TestSubscribeUnknownEvent(t *testing.T) {
	e := NewEmitter()
	unsub, err := e.Subscribe("totally-made-up", func(Event) {})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Nil(t, unsub)
}

func TestSubscribeAndEmit(t *testing.T) {
	e := NewEmitter()

	var got []Event
	unsub, err := e.Subscribe(EventProgress, func(ev Event) {
		got = append(got, ev)
	})
	require.NoError(t, err)
	defer unsub()

	e.Emit(EventStarted, "run-1", nil)
	e.Emit(EventProgress, "run-1", map[string]interface{}{"cursor": 1})
	e.Emit(EventProgress, "run-1", map[string]interface{}{"cursor": 2})
	e.Emit(EventCompleted, "run-1", nil)

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Data["cursor"])
	assert.Equal(t, 2, got[1].Data["cursor"])
	assert.Less(t, got[0].Seq, got[1].Seq)
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	e := NewEmitter()

	var names []string
	unsub := e.SubscribeAll(func(ev Event) {
		names = append(names, ev.Name)
	})
	defer unsub()

	for _, name := range []string{EventStarted, EventBatchStarted, EventProgress, EventBatchCompleted, EventCompleted} {
		e.Emit(name, "run-1", nil)
	}
	assert.Equal(t, []string{EventStarted, EventBatchStarted, EventProgress, EventBatchCompleted, EventCompleted}, names)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	e := NewEmitter()

	count := 0
	unsub, err := e.Subscribe(EventCompleted, func(Event) { count++ })
	require.NoError(t, err)

	e.Emit(EventCompleted, "run-1", nil)
	unsub()
	unsub()
	e.Emit(EventCompleted, "run-1", nil)

	assert.Equal(t, 1, count)
}

func TestUnsubscribeDuringDispatch(t *testing.T) {
	e := NewEmitter()

	var first, second int
	var unsubFirst func()
	unsubFirst, err := e.Subscribe(EventCompleted, func(Event) {
		first++
		unsubFirst()
	})
	require.NoError(t, err)
	_, err = e.Subscribe(EventCompleted, func(Event) { second++ })
	require.NoError(t, err)

	// The dispatch snapshot means the second listener still fires even
	// though the first unsubscribed itself mid-dispatch.
	e.Emit(EventCompleted, "run-1", nil)
	e.Emit(EventCompleted, "run-1", nil)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestEventVocabulary(t *testing.T) {
	assert.Len(t, EventNames(), 13)
	for _, name := range EventNames() {
		assert.True(t, IsValidEvent(name))
	}
	assert.False(t, IsValidEvent("progress-v2"))
	assert.False(t, IsValidEvent(""))
}
