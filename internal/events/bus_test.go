package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	a, unsubA := bus.Subscribe(4, EventAlertUpdate)
	defer unsubA()
	b, unsubB := bus.Subscribe(4, EventAlertUpdate, EventSettingsUpdate)
	defer unsubB()

	bus.Publish(EventAlertUpdate, "x")
	bus.Publish(EventSettingsUpdate, "y")

	require.Len(t, a, 1)
	assert.Equal(t, Message{Type: EventAlertUpdate, Data: "x"}, <-a)
	require.Len(t, b, 2)
	assert.Equal(t, EventAlertUpdate, (<-b).Type)
	assert.Equal(t, EventSettingsUpdate, (<-b).Type)
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1, EventAlertUpdate)
	defer unsub()

	bus.Publish(EventAlertUpdate, 1)
	bus.Publish(EventAlertUpdate, 2)

	assert.Equal(t, int64(1), bus.Dropped())
	assert.Equal(t, 1, (<-ch).Data)
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1, EventAlertUpdate, EventSettingsUpdate)
	unsub()
	unsub()

	_, open := <-ch
	assert.False(t, open)
	bus.Publish(EventAlertUpdate, "after")
}
