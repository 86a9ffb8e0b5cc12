package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/internal/domain/event"
)

func TestDispatchInOrder(t *testing.T) {
	d := New()
	var calls []string
	d.Subscribe(event.TypeApprovalStarted, "first", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "first")
		return nil
	})
	d.Subscribe(event.TypeApprovalStarted, "second", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(event.TypeWorkflowSaved, "other", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Dispatch(context.Background(), event.New(event.TypeApprovalStarted, "t1", "u1", "r1", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestDispatchStopsOnError(t *testing.T) {
	d := New()
	boom := errors.New("boom")
	reached := false
	d.Subscribe(event.TypeApprovalStarted, "failing", func(ctx context.Context, evt *event.Event) error {
		return boom
	})
	d.Subscribe(event.TypeApprovalStarted, "after", func(ctx context.Context, evt *event.Event) error {
		reached = true
		return nil
	})

	err := d.Dispatch(context.Background(), event.New(event.TypeApprovalStarted, "t1", "u1", "r1", nil))
	assert.ErrorIs(t, err, boom)
	assert.False(t, reached, "the chain must abort on the first handler error")
}

func TestDispatchRecoversPanics(t *testing.T) {
	d := New()
	d.Subscribe(event.TypeApprovalStarted, "panicking", func(ctx context.Context, evt *event.Event) error {
		panic("handler bug")
	})

	err := d.Dispatch(context.Background(), event.New(event.TypeApprovalStarted, "t1", "u1", "r1", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestDispatchAsync(t *testing.T) {
	d := New()
	var mu sync.Mutex
	var seen []string
	d.Subscribe(event.TypeTransitionExecuted, "collector", func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, evt.ResourceID)
		return nil
	})

	d.DispatchAsync(context.Background(), event.New(event.TypeTransitionExecuted, "t1", "u1", "r1", nil))
	d.DispatchAsync(context.Background(), event.New(event.TypeTransitionExecuted, "t1", "u1", "r2", nil))

	// Close waits for in-flight async handlers.
	require.NoError(t, d.Close())
	assert.ElementsMatch(t, []string{"r1", "r2"}, seen)
}

func TestClosedDispatcherRefusesEvents(t *testing.T) {
	d := New()
	fired := false
	d.Subscribe(event.TypeApprovalStarted, "handler", func(ctx context.Context, evt *event.Event) error {
		fired = true
		return nil
	})
	require.NoError(t, d.Close())

	err := d.Dispatch(context.Background(), event.New(event.TypeApprovalStarted, "t1", "u1", "r1", nil))
	assert.Error(t, err)

	d.DispatchAsync(context.Background(), event.New(event.TypeApprovalStarted, "t1", "u1", "r1", nil))
	assert.False(t, fired)
}
