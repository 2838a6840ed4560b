package services

import (
	"sync"

	"storefront/internal/models"

	"github.com/rs/zerolog/log"
)

// statusBuffer is how many updates a slow subscriber may fall behind before
// updates to it are dropped.
const statusBuffer = 8

// StatusHub fans out order status updates to subscribers keyed by order
// reference.
type StatusHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan models.OrderStatusUpdate]struct{}
}

// NewStatusHub creates an empty hub
func NewStatusHub() *StatusHub {
	return &StatusHub{subs: make(map[string]map[chan models.OrderStatusUpdate]struct{})}
}

// Subscribe registers for updates on reference. The returned cancel func
// must be called once the subscriber is done; it closes the channel.
func (h *StatusHub) Subscribe(reference string) (<-chan models.OrderStatusUpdate, func()) {
	ch := make(chan models.OrderStatusUpdate, statusBuffer)

	h.mu.Lock()
	if h.subs[reference] == nil {
		h.subs[reference] = make(map[chan models.OrderStatusUpdate]struct{})
	}
	h.subs[reference][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[reference], ch)
			if len(h.subs[reference]) == 0 {
				delete(h.subs, reference)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers update to every subscriber of its reference without
// blocking.
func (h *StatusHub) Publish(update models.OrderStatusUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[update.Reference] {
		select {
		case ch <- update:
		default:
			log.Warn().Str("reference", update.Reference).Msg("status subscriber is full, dropping update")
		}
	}
}

// Subscribers returns the number of live subscribers for reference.
func (h *StatusHub) Subscribers(reference string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[reference])
}
