package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FanOut(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe(4)
	b, cancelB := hub.Subscribe(4)
	defer cancelA()
	defer cancelB()

	hub.Publish(Event{Type: PackTaken, Room: RoomStorage, Added: -1})

	for _, ch := range []<-chan Event{a, b} {
		e := <-ch
		assert.Equal(t, PackTaken, e.Type)
		assert.Equal(t, RoomStorage, e.Room)
		assert.False(t, e.Time.IsZero())
	}
}

func TestHub_DropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Publish(
		Event{Type: ProductAdded, ProductName: "Croissant"},
		Event{Type: ProductAdded, ProductName: "Fladenbrot"},
	)

	e := <-ch
	assert.Equal(t, "Croissant", e.ProductName)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	require.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())

	// Publishing without subscribers is fine
	hub.Publish(Event{Type: ProductSold})
}
