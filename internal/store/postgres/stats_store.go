package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// StatsStore implements domain.StatsStore using PostgreSQL.
type StatsStore struct {
	db DB
}

// NewStatsStore creates a new StatsStore backed by the given pool.
func NewStatsStore(db DB) *StatsStore {
	return &StatsStore{db: db}
}

// A position wins when its side matches the resolved outcome.
const bettorAggregateCols = `
	COUNT(*),
	COALESCE(SUM(p.amount), 0)::float8,
	COUNT(*) FILTER (WHERE m.status = 'resolved' AND ((m.outcome = 1 AND p.side = 'yes') OR (m.outcome = 2 AND p.side = 'no'))),
	COUNT(*) FILTER (WHERE m.status = 'resolved')`

// BettorStats aggregates positions per user address.
func (s *StatsStore) BettorStats(ctx context.Context) (map[string]domain.BettorAggregate, error) {
	query := `SELECT p.user_address,` + bettorAggregateCols + `
		FROM positions p
		JOIN markets m ON m.market_id = p.market_id
		GROUP BY p.user_address`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: bettor stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.BettorAggregate)
	for rows.Next() {
		var addr string
		var agg domain.BettorAggregate
		if err := rows.Scan(&addr, &agg.BetsCount, &agg.TotalVolume, &agg.Wins, &agg.ResolvedBets); err != nil {
			return nil, fmt.Errorf("postgres: scan bettor stats: %w", err)
		}
		out[strings.ToLower(addr)] = agg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bettor stats rows: %w", err)
	}
	return out, nil
}

// UserStats aggregates positions of a single address.
func (s *StatsStore) UserStats(ctx context.Context, address string) (domain.BettorAggregate, error) {
	query := `SELECT` + bettorAggregateCols + `
		FROM positions p
		JOIN markets m ON m.market_id = p.market_id
		WHERE p.user_address = $1`

	var agg domain.BettorAggregate
	err := s.db.QueryRow(ctx, query, strings.ToLower(address)).Scan(
		&agg.BetsCount, &agg.TotalVolume, &agg.Wins, &agg.ResolvedBets,
	)
	if err != nil {
		return domain.BettorAggregate{}, fmt.Errorf("postgres: user stats %s: %w", address, err)
	}
	return agg, nil
}

// CreatorCounts returns the number of markets created per address.
func (s *StatsStore) CreatorCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT lower(creator_address), COUNT(*) FROM markets GROUP BY lower(creator_address)`)
	if err != nil {
		return nil, fmt.Errorf("postgres: creator counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var addr string
		var n int
		if err := rows.Scan(&addr, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan creator count: %w", err)
		}
		if addr == domain.ZeroAddress {
			continue
		}
		out[addr] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: creator counts rows: %w", err)
	}
	return out, nil
}

var _ domain.StatsStore = (*StatsStore)(nil)
