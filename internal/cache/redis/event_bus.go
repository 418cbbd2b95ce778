package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// replayLen bounds the replay stream (XADD MAXLEN ~).
const replayLen int64 = 5000

const eventField = "event"

// EventBus implements domain.EventBus. Live delivery goes over pub/sub; every
// event is also appended to a capped stream so new WebSocket clients can
// catch up on recent resolutions.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Emit publishes ev and appends it to the replay stream in one MULTI/EXEC.
func (b *EventBus) Emit(ctx context.Context, ev domain.ResolutionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal %s event: %w", ev.Type, err)
	}
	_, err = b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, domain.ChannelFor(ev.Type), payload)
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: domain.StreamResolutions,
			MaxLen: replayLen,
			Approx: true,
			Values: map[string]any{eventField: payload},
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: emit %s for market %d: %w", ev.Type, ev.MarketID, err)
	}
	return nil
}

// Subscribe listens on channels until ctx ends, then closes the returned
// channel.
func (b *EventBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.BusMessage, error) {
	if len(channels) == 0 {
		channels = domain.EventChannels
	}
	ps := b.rdb.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %v: %w", channels, err)
	}

	out := make(chan domain.BusMessage, 128)
	go func() {
		defer close(out)
		defer ps.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- domain.BusMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Replay returns up to count of the most recent events, oldest first.
func (b *EventBus) Replay(ctx context.Context, count int) ([]domain.StreamMessage, error) {
	if count <= 0 {
		return nil, nil
	}
	entries, err := b.rdb.XRevRangeN(ctx, domain.StreamResolutions, "+", "-", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: replay %d events: %w", count, err)
	}

	out := make([]domain.StreamMessage, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Values[eventField].(string)
		if !ok {
			continue
		}
		out = append(out, domain.StreamMessage{ID: e.ID, Payload: []byte(raw)})
	}
	slices.Reverse(out)
	return out, nil
}

var _ domain.EventBus = (*EventBus)(nil)
