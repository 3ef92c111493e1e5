package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var calls []string
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketStatusChanged, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "ISSUE-20260105-0001"}))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestPublishRecoversHandlerPanic(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	reached := false
	d.Subscribe(EventTicketStatusChanged, func(context.Context, Event) error {
		panic("nil card")
	})
	d.Subscribe(EventTicketStatusChanged, func(context.Context, Event) error {
		reached = true
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketStatusChanged}))
	assert.True(t, reached)
}
