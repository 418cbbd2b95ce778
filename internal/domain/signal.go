package domain

import (
	"context"
	"time"
)

// Event bus channels and the replay stream.
const (
	ChannelResolution = "oracle:ch:resolution"
	ChannelChallenge  = "oracle:ch:challenge"
	StreamResolutions = "oracle:stream:events"
)

// EventChannels lists every live event channel.
var EventChannels = []string{ChannelResolution, ChannelChallenge}

// EventType names a published resolution event.
type EventType string

const (
	EventMarketResolved     EventType = "market_resolved"
	EventResolutionFallback EventType = "resolution_fallback"
	EventChallengeFiled     EventType = "challenge_filed"
)

// ResolutionEvent is the JSON envelope published on the event bus.
type ResolutionEvent struct {
	Type       EventType `json:"type"`
	MarketID   int64     `json:"market_id"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	Mechanism  Mechanism `json:"mechanism,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	OnChain    bool      `json:"on_chain"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// ChannelFor maps an event type to the channel it is published on.
func ChannelFor(t EventType) string {
	if t == EventChallengeFiled {
		return ChannelChallenge
	}
	return ChannelResolution
}

// BusMessage is one event delivered by the bus.
type BusMessage struct {
	Channel string
	Payload []byte
}

// StreamMessage is one entry of the replay stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus fans resolution events out to live subscribers and keeps a
// bounded log for replay.
type EventBus interface {
	Emit(ctx context.Context, ev ResolutionEvent) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, error)
	Replay(ctx context.Context, count int) ([]StreamMessage, error)
}
