// Package bus fans out event changes to live subscribers (the API's
// stream endpoint).
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/billion-eyes/incident-pipeline/internal/models"
)

// Update announces that an event was created or grew by one detection.
type Update struct {
	Event  *models.Event `json:"event"`
	Status string        `json:"status"` // "new" or "updated"
}

type Broadcaster struct {
	subscribers map[uint64]chan Update
	nextID      atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan Update),
	}
}

func (b *Broadcaster) Subscribe() (uint64, chan Update) {
	id := b.nextID.Add(1)
	ch := make(chan Update, 64)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- u:
		default:
			// Skip slow subscribers
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
