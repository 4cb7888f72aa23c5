package events

import (
	"sync"
	"time"
)

// Type names a change in the store
type Type string

const (
	IngredientsAdded Type = "ingredients_added"
	IngredientsTaken Type = "ingredients_taken"
	PackAdded        Type = "pack_added"
	PackTaken        Type = "pack_taken"
	ProductAdded     Type = "product_added"
	ProductTaken     Type = "product_taken"
	ProductSold      Type = "product_sold"
)

// Rooms of the bakery a change can happen in
const (
	RoomStorage  = "storage"
	RoomBakeroom = "bakeroom"
	RoomCounter  = "counter"
	RoomTerminal = "terminal"
)

// Event is a committed change to the shared store
type Event struct {
	Type        Type      `json:"type"`
	Room        string    `json:"room"`
	ProductID   string    `json:"product_id,omitempty"`
	ProductName string    `json:"product_name,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Added       int       `json:"added"`
	Time        time.Time `json:"time"`
}

// Publisher receives events after the transaction that caused them has
// committed
type Publisher interface {
	Publish(events ...Event)
}

// Hub fans events out to subscribers. Slow subscribers miss events instead
// of blocking the robots.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel function unregisters it and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers events to every subscriber without blocking
func (h *Hub) Publish(events ...Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range events {
		if e.Time.IsZero() {
			e.Time = time.Now()
		}
		for _, ch := range h.subs {
			select {
			case ch <- e:
			default:
			}
		}
	}
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
