package tables

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
)

// ErrFeedClosed is delivered when the underlying subscription ends on its own.
var ErrFeedClosed = errors.New("table feed closed")

// Snapshot is one state of a table as pushed to room sessions.
type Snapshot struct {
	LocationID string    `json:"location_id"`
	TableID    uuid.UUID `json:"table_id"`
	Table      *TableDTO `json:"table,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// FeedEvent carries either a snapshot or a terminal subscription error.
type FeedEvent struct {
	Snapshot *Snapshot
	Err      error
}

// Unsubscribe releases a feed subscription. Calling it more than once is safe.
type Unsubscribe func()

// SnapshotPublisher pushes table snapshots to subscribers.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snapshot Snapshot) error
}

// SnapshotSubscriber opens a feed for one table.
type SnapshotSubscriber interface {
	Subscribe(ctx context.Context, locationID string, tableID uuid.UUID) (<-chan FeedEvent, Unsubscribe, error)
}

type feedClient interface {
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channels ...string) (*redislib.PubSub, error)
	TableChannel(locationID, tableID string) string
}

// RedisFeed fans table snapshots out over Redis pub/sub.
type RedisFeed struct {
	client feedClient
	logg   *logger.Logger
	buffer int
}

func NewRedisFeed(client feedClient, logg *logger.Logger) *RedisFeed {
	return &RedisFeed{client: client, logg: logg, buffer: 16}
}

func (f *RedisFeed) Publish(ctx context.Context, snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return f.client.Publish(ctx, f.client.TableChannel(snapshot.LocationID, snapshot.TableID.String()), payload)
}

func (f *RedisFeed) Subscribe(ctx context.Context, locationID string, tableID uuid.UUID) (<-chan FeedEvent, Unsubscribe, error) {
	ps, err := f.client.Subscribe(ctx, f.client.TableChannel(locationID, tableID.String()))
	if err != nil {
		return nil, nil, err
	}

	out := make(chan FeedEvent, f.buffer)
	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			if err := ps.Close(); err != nil && f.logg != nil {
				f.logg.Warn(f.logg.WithField(ctx, "error", err.Error()), "table feed close failed")
			}
		})
	}

	go func() {
		defer close(out)
		messages := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					f.deliver(out, done, FeedEvent{Err: ErrFeedClosed})
					return
				}
				var snapshot Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err != nil {
					f.deliver(out, done, FeedEvent{Err: fmt.Errorf("decode snapshot: %w", err)})
					return
				}
				if !f.deliver(out, done, FeedEvent{Snapshot: &snapshot}) {
					return
				}
			}
		}
	}()

	return out, unsubscribe, nil
}

func (f *RedisFeed) deliver(out chan<- FeedEvent, done <-chan struct{}, event FeedEvent) bool {
	select {
	case out <- event:
		return true
	case <-done:
		return false
	}
}
