package domain

import (
	"context"
	"time"
)

// MarketStore persists off-chain market metadata.
type MarketStore interface {
	Create(ctx context.Context, market Market) (Market, error)
	GetByMarketID(ctx context.Context, marketID int64) (Market, error)
	GetByAddress(ctx context.Context, address string) (Market, error)
	List(ctx context.Context, filter MarketFilter) ([]Market, error)
	ListAll(ctx context.Context) ([]Market, error)
	// LinkAddress associates an on-chain address with a market. The first
	// association wins; later calls return ErrAlreadyExists.
	LinkAddress(ctx context.Context, marketID int64, address string) error
	NextMarketID(ctx context.Context) (int64, error)
}

// ResolutionStore owns ResolutionRecord durability and the active->resolved
// transition of the owning market.
type ResolutionStore interface {
	// Commit flips the market from active to resolved and appends rec as the
	// authoritative record in one transaction. It returns ErrAlreadyResolved
	// when the market is no longer active.
	Commit(ctx context.Context, rec ResolutionRecord) (ResolutionRecord, error)
	GetAuthoritative(ctx context.Context, marketID int64) (ResolutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]RecentResolution, error)
	Metrics(ctx context.Context, since *time.Time) (ResolutionMetrics, error)
	HourlySeries(ctx context.Context, since time.Time) ([]ResolutionPoint, error)
	ListBefore(ctx context.Context, before time.Time) ([]ResolutionRecord, error)
}

// ChallengeStore persists challenges against resolved markets.
type ChallengeStore interface {
	Create(ctx context.Context, ch Challenge) error
	ListByMarket(ctx context.Context, marketID int64) ([]Challenge, error)
	ListBefore(ctx context.Context, before time.Time) ([]Challenge, error)
}

// PositionStore persists off-chain copies of positions.
type PositionStore interface {
	// Add accumulates amount onto the (market, user, side) position.
	Add(ctx context.Context, pos Position) error
	ListByMarket(ctx context.Context, marketID int64) ([]Position, error)
	ListByUser(ctx context.Context, address string) ([]UserPosition, error)
}

// StatsStore aggregates betting activity from the database.
type StatsStore interface {
	BettorStats(ctx context.Context) (map[string]BettorAggregate, error)
	UserStats(ctx context.Context, address string) (BettorAggregate, error)
	CreatorCounts(ctx context.Context) (map[string]int, error)
}

// ChatStore persists market chat messages.
type ChatStore interface {
	Create(ctx context.Context, msg ChatMessage) (ChatMessage, error)
	ListByMarket(ctx context.Context, marketID int64) ([]ChatMessage, error)
}

// NoteStore persists market info notes.
type NoteStore interface {
	Create(ctx context.Context, note InfoNote) (InfoNote, error)
	ListByMarket(ctx context.Context, marketID int64) ([]InfoNote, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	Trail(ctx context.Context, q AuditQuery) ([]AuditEntry, error)
}

// AuditQuery filters the audit trail. Zero fields match everything; the
// newest entries come first.
type AuditQuery struct {
	EventPrefix string
	MarketID    int64
	Limit       int
}
