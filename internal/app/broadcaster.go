package app

import (
	"sync"

	"gamification-service/internal/domain"
)

// Broadcaster fans committed score events out to in-process subscribers.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan domain.ScoreEvent]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan domain.ScoreEvent]struct{})}
}

// Subscribe registers a buffered channel; cancel unregisters and closes it.
func (b *Broadcaster) Subscribe() (<-chan domain.ScoreEvent, func()) {
	ch := make(chan domain.ScoreEvent, 16)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish never blocks: a full subscriber loses its oldest pending event.
func (b *Broadcaster) Publish(ev domain.ScoreEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Len reports the number of active subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
