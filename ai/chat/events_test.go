package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PublishToSubscribers(t *testing.T) {
	bus := NewEventBus()
	var started, completed atomic.Int32
	bus.Subscribe(func(context.Context, *TurnEvent) error {
		started.Add(1)
		return nil
	}, EventTurnStarted)
	bus.Subscribe(func(_ context.Context, e *TurnEvent) error {
		completed.Add(1)
		assert.False(t, e.Time.IsZero())
		return nil
	}, EventTurnCompleted, EventTurnFailed)

	assert.NoError(t, bus.Publish(context.Background(), &TurnEvent{Type: EventTurnStarted}))
	assert.NoError(t, bus.Publish(context.Background(), &TurnEvent{Type: EventTurnCompleted}))
	assert.NoError(t, bus.Publish(context.Background(), &TurnEvent{Type: EventTurnFailed}))
	assert.NoError(t, bus.Publish(context.Background(), &TurnEvent{Type: EventTurnRejected}))

	assert.EqualValues(t, 1, started.Load())
	assert.EqualValues(t, 2, completed.Load())
}

func TestEventBus_ListenerFailuresAreIsolated(t *testing.T) {
	bus := NewEventBus()
	bus.SetTimeout(50 * time.Millisecond)

	var ran atomic.Int32
	bus.Subscribe(func(context.Context, *TurnEvent) error { panic("boom") }, EventTurnFailed)
	bus.Subscribe(func(context.Context, *TurnEvent) error { return errors.New("listener error") }, EventTurnFailed)
	bus.Subscribe(func(ctx context.Context, _ *TurnEvent) error {
		<-ctx.Done()
		return ctx.Err()
	}, EventTurnFailed)
	bus.Subscribe(func(context.Context, *TurnEvent) error {
		ran.Add(1)
		return nil
	}, EventTurnFailed)

	err := bus.Publish(context.Background(), &TurnEvent{Type: EventTurnFailed})
	assert.Error(t, err)
	assert.EqualValues(t, 1, ran.Load())
}

func TestEventBus_NilIsNoop(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.Publish(context.Background(), &TurnEvent{Type: EventTurnStarted}))
}

func TestKindName(t *testing.T) {
	assert.Equal(t, "", KindName(nil))
	assert.Equal(t, "", KindName(errors.New("plain")))
	assert.Equal(t, "retrieval", KindName(turnError(ErrRetrieval, errors.New("x"))))
	assert.Equal(t, "turn_in_progress", KindName(turnError(ErrTurnInProgress, nil)))

	err := turnError(ErrCompletion, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrCompletion)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "completion failed: context deadline exceeded", err.Error())
}

func TestEventBus_SubscribeAllTypes(t *testing.T) {
	bus := NewEventBus()
	var n atomic.Int32
	bus.Subscribe(func(context.Context, *TurnEvent) error {
		n.Add(1)
		return nil
	})

	for _, typ := range []TurnEventType{EventTurnStarted, EventTurnCompleted, EventTurnFailed, EventTurnRejected} {
		assert.NoError(t, bus.Publish(context.Background(), &TurnEvent{Type: typ}))
	}
	assert.EqualValues(t, 4, n.Load())
}
