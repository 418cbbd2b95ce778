package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// ChallengeStore implements domain.ChallengeStore using PostgreSQL.
type ChallengeStore struct {
	db DB
}

// NewChallengeStore creates a new ChallengeStore backed by the given pool.
func NewChallengeStore(db DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

// Create records a new challenge.
func (s *ChallengeStore) Create(ctx context.Context, ch domain.Challenge) error {
	const query = `
		INSERT INTO challenges (id, market_id, challenger_address, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.Exec(ctx, query,
		ch.ID, ch.MarketID, ch.Challenger, ch.Reason, string(ch.Status), ch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create challenge for market %d: %w", ch.MarketID, err)
	}
	return nil
}

func scanChallenges(rows pgx.Rows) ([]domain.Challenge, error) {
	defer rows.Close()

	var out []domain.Challenge
	for rows.Next() {
		var ch domain.Challenge
		var status string
		if err := rows.Scan(&ch.ID, &ch.MarketID, &ch.Challenger, &ch.Reason, &status, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan challenge: %w", err)
		}
		ch.Status = domain.ChallengeStatus(status)
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: challenge rows: %w", err)
	}
	return out, nil
}

// ListByMarket returns all challenges filed against a market, newest first.
func (s *ChallengeStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.Challenge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id::text, market_id, challenger_address, reason, status, created_at
		 FROM challenges WHERE market_id = $1 ORDER BY created_at DESC`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list challenges for market %d: %w", marketID, err)
	}
	return scanChallenges(rows)
}

// ListBefore returns challenges created before the cutoff.
func (s *ChallengeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Challenge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id::text, market_id, challenger_address, reason, status, created_at
		 FROM challenges WHERE created_at < $1 ORDER BY created_at`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list challenges before %s: %w", before.Format(time.RFC3339), err)
	}
	return scanChallenges(rows)
}

var _ domain.ChallengeStore = (*ChallengeStore)(nil)
