package application

import (
	"sync"

	"voice-assist/internal/domain"
)

// Publisher receives presentation updates from the controller and the reducer.
type Publisher interface {
	Publish(u domain.Update)
}

// Hub fans presentation updates out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses that update.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan domain.Update
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan domain.Update)}
}

func (h *Hub) Publish(u domain.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func unregisters it
// and closes the channel; calling it more than once is safe.
func (h *Hub) Subscribe(buffer int) (<-chan domain.Update, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan domain.Update, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

type noopPublisher struct{}

func (noopPublisher) Publish(domain.Update) {}
