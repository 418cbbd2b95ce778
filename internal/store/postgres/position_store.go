package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	db DB
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(db DB) *PositionStore {
	return &PositionStore{db: db}
}

// Add accumulates the stake onto the (market, user, side) row and bumps the
// market's total liquidity in one transaction.
func (s *PositionStore) Add(ctx context.Context, pos domain.Position) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin position tx: %w", err)
	}

	const upsert = `
		INSERT INTO positions (market_id, user_address, side, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id, user_address, side) DO UPDATE SET
			amount = positions.amount + EXCLUDED.amount`

	if _, err := tx.Exec(ctx, upsert,
		pos.MarketID, strings.ToLower(pos.UserAddress), string(pos.Side), pos.Amount,
	); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("postgres: upsert position market %d: %w", pos.MarketID, err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE markets SET total_liquidity = total_liquidity + $1 WHERE market_id = $2`,
		pos.Amount, pos.MarketID,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("postgres: bump liquidity market %d: %w", pos.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit position market %d: %w", pos.MarketID, err)
	}
	return nil
}

// ListByMarket returns all positions on a market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.Position, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, market_id, user_address, side, amount::float8, created_at
		 FROM positions WHERE market_id = $1 ORDER BY created_at DESC`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions market %d: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var side string
		if err := rows.Scan(&p.ID, &p.MarketID, &p.UserAddress, &side, &p.Amount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		p.Side = domain.Side(side)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return out, nil
}

// ListByUser returns a user's positions joined with market state.
func (s *PositionStore) ListByUser(ctx context.Context, address string) ([]domain.UserPosition, error) {
	const query = `
		SELECT p.id, p.market_id, p.user_address, p.side, p.amount::float8, p.created_at,
			m.question, m.status, m.outcome
		FROM positions p
		JOIN markets m ON m.market_id = p.market_id
		WHERE p.user_address = $1
		ORDER BY p.created_at DESC`

	rows, err := s.db.Query(ctx, query, strings.ToLower(address))
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", address, err)
	}
	defer rows.Close()

	var out []domain.UserPosition
	for rows.Next() {
		var up domain.UserPosition
		var side, status string
		var outcome int16
		if err := rows.Scan(
			&up.ID, &up.MarketID, &up.UserAddress, &side, &up.Amount, &up.CreatedAt,
			&up.Question, &status, &outcome,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan user position: %w", err)
		}
		up.Side = domain.Side(side)
		up.Status = domain.MarketStatus(status)
		up.Outcome = domain.Outcome(outcome)
		out = append(out, up)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list user positions rows: %w", err)
	}
	return out, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
