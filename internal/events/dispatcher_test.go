package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversToAllSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var first, second int
	d.Subscribe(EventSLABreached, func(ctx context.Context, e Event) error {
		first++
		return nil
	})
	d.Subscribe(EventSLABreached, func(ctx context.Context, e Event) error {
		second++
		return nil
	})
	d.Subscribe(EventSLAEscalated, func(ctx context.Context, e Event) error {
		t.Fatal("wrong event type delivered")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventSLABreached}))
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestDispatcherHandlerErrorDoesNotStopDelivery(t *testing.T) {
	d := NewInMemoryDispatcher()

	var delivered bool
	d.Subscribe(EventSLABreached, func(ctx context.Context, e Event) error {
		return errors.New("handler failed")
	})
	d.Subscribe(EventSLABreached, func(ctx context.Context, e Event) error {
		delivered = true
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventSLABreached}))
	assert.True(t, delivered)
}
