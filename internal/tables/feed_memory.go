package tables

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryFeed is an in-process feed for single-instance runs and tests.
// Slow subscribers drop snapshots rather than block publishers.
type MemoryFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan FeedEvent
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[int]chan FeedEvent)}
}

func feedKey(locationID string, tableID uuid.UUID) string {
	return locationID + "/" + tableID.String()
}

func (f *MemoryFeed) Publish(_ context.Context, snapshot Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[feedKey(snapshot.LocationID, snapshot.TableID)] {
		copied := snapshot
		select {
		case ch <- FeedEvent{Snapshot: &copied}:
		default:
		}
	}
	return nil
}

func (f *MemoryFeed) Subscribe(_ context.Context, locationID string, tableID uuid.UUID) (<-chan FeedEvent, Unsubscribe, error) {
	key := feedKey(locationID, tableID)
	ch := make(chan FeedEvent, 16)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	if f.subs[key] == nil {
		f.subs[key] = make(map[int]chan FeedEvent)
	}
	f.subs[key][id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[key], id)
			if len(f.subs[key]) == 0 {
				delete(f.subs, key)
			}
			f.mu.Unlock()
			close(ch)
		})
	}, nil
}

// Subscribers reports how many open subscriptions a table has.
func (f *MemoryFeed) Subscribers(locationID string, tableID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[feedKey(locationID, tableID)])
}
