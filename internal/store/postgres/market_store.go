package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	db DB
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(db DB) *MarketStore {
	return &MarketStore{db: db}
}

const marketCols = `id, market_id, COALESCE(market_address, ''), question, category,
	creator_address, end_time, resolution_time, status, outcome, mechanism,
	oracle_name, oracle_resolution_time, feed_id, image_url,
	total_liquidity::float8, created_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status, mechanism string
	var outcome int16
	err := row.Scan(
		&m.ID, &m.MarketID, &m.Address, &m.Question, &m.Category,
		&m.Creator, &m.EndTime, &m.ResolutionTime, &status, &outcome, &mechanism,
		&m.OracleName, &m.OracleResolutionTime, &m.FeedID, &m.ImageURL,
		&m.TotalLiquidity, &m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	m.Outcome = domain.Outcome(outcome)
	m.Mechanism = domain.Mechanism(mechanism)
	return m, nil
}

func collectMarkets(rows pgx.Rows, what string) ([]domain.Market, error) {
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", what, err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", what, err)
	}
	return markets, nil
}

// nullableAddress maps an empty address to SQL NULL so the unique index
// only applies to linked markets.
func nullableAddress(addr string) any {
	if addr == "" {
		return nil
	}
	return strings.ToLower(addr)
}

// Create inserts a new market row and returns it with its generated fields.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) (domain.Market, error) {
	const query = `
		INSERT INTO markets (
			market_id, market_address, question, category, creator_address,
			end_time, resolution_time, status, outcome, mechanism, oracle_name,
			oracle_resolution_time, feed_id, image_url, total_liquidity
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15
		)
		RETURNING ` + marketCols

	status := m.Status
	if status == "" {
		status = domain.MarketStatusActive
	}
	row := s.db.QueryRow(ctx, query,
		m.MarketID, nullableAddress(m.Address), m.Question, m.Category, strings.ToLower(m.Creator),
		m.EndTime, m.ResolutionTime, string(status), int16(m.Outcome), string(m.Mechanism), m.OracleName,
		m.OracleResolutionTime, m.FeedID, m.ImageURL, m.TotalLiquidity,
	)
	created, err := scanMarket(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Market{}, fmt.Errorf("postgres: create market %d: %w", m.MarketID, domain.ErrAlreadyExists)
		}
		return domain.Market{}, fmt.Errorf("postgres: create market %d: %w", m.MarketID, err)
	}
	return created, nil
}

// GetByMarketID retrieves a market by its numeric market id.
func (s *MarketStore) GetByMarketID(ctx context.Context, marketID int64) (domain.Market, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE market_id = $1`, marketID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", marketID, err)
	}
	return m, nil
}

// GetByAddress retrieves a market by its linked on-chain address.
func (s *MarketStore) GetByAddress(ctx context.Context, address string) (domain.Market, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE market_address = $1`, strings.ToLower(address))
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by address %s: %w", address, err)
	}
	return m, nil
}

// List returns markets filtered by category and ordered by the requested sort.
func (s *MarketStore) List(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Category != "" && !strings.EqualFold(filter.Category, "all") {
		query += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, filter.Category)
		argIdx++
	}

	switch filter.Sort {
	case domain.MarketSortTrending, domain.MarketSortLiquidity:
		query += " ORDER BY total_liquidity DESC, created_at DESC"
	case domain.MarketSortCategory:
		query += " ORDER BY category ASC, total_liquidity DESC, created_at DESC"
	default:
		query += " ORDER BY created_at DESC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	return collectMarkets(rows, "market")
}

// ListAll returns every market. Used by the directory merge.
func (s *MarketStore) ListAll(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.db.Query(ctx, `SELECT `+marketCols+` FROM markets ORDER BY market_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list all markets: %w", err)
	}
	return collectMarkets(rows, "market")
}

// LinkAddress sets the on-chain address of a market if none is set yet.
func (s *MarketStore) LinkAddress(ctx context.Context, marketID int64, address string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE markets SET market_address = $1 WHERE market_id = $2 AND market_address IS NULL`,
		strings.ToLower(address), marketID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: link market %d: %w", marketID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: link market %d: %w", marketID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.GetByMarketID(ctx, marketID); err != nil {
		return err
	}
	return fmt.Errorf("postgres: link market %d: %w", marketID, domain.ErrAlreadyExists)
}

// NextMarketID returns one past the highest market id in use.
func (s *MarketStore) NextMarketID(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(market_id), 0) + 1 FROM markets`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("postgres: next market id: %w", err)
	}
	return next, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
