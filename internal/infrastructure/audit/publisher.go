package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
)

// Publisher delivers one history entry to an external audit store
type Publisher interface {
	Publish(ctx context.Context, entry entity.HistoryEntry) error
}

// StreamPublisher appends history entries to a Redis stream.
// Consumers deduplicate on entry_key since delivery is at-least-once, and order
// a request's entries by sequence since stream order can differ from commit order.
type StreamPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewStreamPublisher creates a publisher writing to stream, trimmed to roughly maxLen entries
func NewStreamPublisher(client redis.Cmdable, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish adds the entry to the stream
func (p *StreamPublisher) Publish(ctx context.Context, entry entity.HistoryEntry) error {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: streamValues(entry),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("audit: xadd %s: %w", p.stream, err)
	}
	return nil
}

// Ping checks the Redis connection
func (p *StreamPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// EntryKey identifies a history entry across redeliveries
func EntryKey(entry entity.HistoryEntry) string {
	return entry.RequestID + ":" + strconv.FormatInt(entry.Sequence, 10)
}

func streamValues(entry entity.HistoryEntry) map[string]interface{} {
	values := map[string]interface{}{
		"entry_key":      EntryKey(entry),
		"request_id":     entry.RequestID,
		"sequence":       entry.Sequence,
		"from_status":    string(entry.FromStatus),
		"to_status":      string(entry.ToStatus),
		"actor_role":     string(entry.ActorRole),
		"actor_identity": entry.ActorIdentity,
		"occurred_at":    entry.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if entry.ORNumber != nil {
		values["or_number"] = *entry.ORNumber
	}
	if entry.Remarks != "" {
		values["remarks"] = entry.Remarks
	}
	return values
}
