package events

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/2re1million/ekko/internal/observability/metrics"
)

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	closed  bool
	metrics *metrics.Metrics
}

// NewBus creates an empty bus. m may be nil.
func NewBus(m *metrics.Metrics) *Bus {
	return &Bus{
		subs:    make(map[int]chan Event),
		metrics: m,
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel; it is safe to call more than
// once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber that has room for it.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			if b.metrics != nil {
				b.metrics.RecordEventDropped(string(ev.Kind))
			}
			log.Debug().Str("kind", string(ev.Kind)).Msg("Subscriber full, event dropped")
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
