package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL. Commit
// is the only path that moves a market out of the active state.
type ResolutionStore struct {
	db DB
}

// NewResolutionStore creates a new ResolutionStore backed by the given pool.
func NewResolutionStore(db DB) *ResolutionStore {
	return &ResolutionStore{db: db}
}

const (
	transitionMarketSQL = `UPDATE markets SET status = 'resolved', outcome = $1, resolved_at = $2 WHERE market_id = $3 AND status = 'active'`
	marketExistsSQL     = `SELECT EXISTS(SELECT 1 FROM markets WHERE market_id = $1)`
	insertResolutionSQL = `INSERT INTO oracle_resolutions (
			market_id, outcome, confidence_score, resolved_by, mechanism,
			value, threshold, tx_hash, authoritative, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)
		RETURNING id`
)

// Commit performs the conditional active->resolved update and appends the
// authoritative record in the same transaction. Zero rows affected means
// another attempt won the race.
func (s *ResolutionStore) Commit(ctx context.Context, rec domain.ResolutionRecord) (domain.ResolutionRecord, error) {
	if !rec.Outcome.Terminal() {
		return domain.ResolutionRecord{}, fmt.Errorf("postgres: commit resolution %d: %w: outcome %d", rec.MarketID, domain.ErrInvalidInput, rec.Outcome)
	}
	if rec.ResolvedAt.IsZero() {
		rec.ResolvedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.ResolutionRecord{}, fmt.Errorf("postgres: begin resolution tx %d: %w", rec.MarketID, err)
	}

	tag, err := tx.Exec(ctx, transitionMarketSQL, int16(rec.Outcome), rec.ResolvedAt, rec.MarketID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return domain.ResolutionRecord{}, fmt.Errorf("postgres: transition market %d: %w", rec.MarketID, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, marketExistsSQL, rec.MarketID).Scan(&exists); err != nil {
			_ = tx.Rollback(ctx)
			return domain.ResolutionRecord{}, fmt.Errorf("postgres: check market %d: %w", rec.MarketID, err)
		}
		_ = tx.Rollback(ctx)
		if !exists {
			return domain.ResolutionRecord{}, domain.ErrNotFound
		}
		return domain.ResolutionRecord{}, fmt.Errorf("postgres: market %d: %w", rec.MarketID, domain.ErrAlreadyResolved)
	}

	err = tx.QueryRow(ctx, insertResolutionSQL,
		rec.MarketID, int16(rec.Outcome), rec.Confidence, rec.ResolvedBy, string(rec.Mechanism),
		rec.Value, rec.Threshold, rec.TxHash, rec.ResolvedAt,
	).Scan(&rec.ID)
	if err != nil {
		_ = tx.Rollback(ctx)
		if isUniqueViolation(err) {
			return domain.ResolutionRecord{}, fmt.Errorf("postgres: market %d: %w", rec.MarketID, domain.ErrAlreadyResolved)
		}
		return domain.ResolutionRecord{}, fmt.Errorf("postgres: insert resolution %d: %w", rec.MarketID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ResolutionRecord{}, fmt.Errorf("postgres: commit resolution %d: %w", rec.MarketID, err)
	}

	rec.Authoritative = true
	return rec, nil
}

const resolutionCols = `r.id, r.market_id, r.outcome, r.confidence_score::float8, r.resolved_by,
	r.mechanism, r.value, r.threshold, r.tx_hash, r.authoritative, r.resolved_at`

func scanResolution(row pgx.Row, extra ...any) (domain.ResolutionRecord, error) {
	var rec domain.ResolutionRecord
	var outcome int16
	var mechanism string
	dest := []any{
		&rec.ID, &rec.MarketID, &outcome, &rec.Confidence, &rec.ResolvedBy,
		&mechanism, &rec.Value, &rec.Threshold, &rec.TxHash, &rec.Authoritative, &rec.ResolvedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.ResolutionRecord{}, err
	}
	rec.Outcome = domain.Outcome(outcome)
	rec.Mechanism = domain.Mechanism(mechanism)
	return rec, nil
}

// GetAuthoritative returns the authoritative resolution of a market.
func (s *ResolutionStore) GetAuthoritative(ctx context.Context, marketID int64) (domain.ResolutionRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+resolutionCols+` FROM oracle_resolutions r WHERE r.market_id = $1 AND r.authoritative`,
		marketID,
	)
	rec, err := scanResolution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ResolutionRecord{}, domain.ErrNotFound
		}
		return domain.ResolutionRecord{}, fmt.Errorf("postgres: get resolution %d: %w", marketID, err)
	}
	return rec, nil
}

// ListRecent returns the latest authoritative resolutions joined with their
// market question, category and liquidity.
func (s *ResolutionStore) ListRecent(ctx context.Context, limit int) ([]domain.RecentResolution, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + resolutionCols + `, m.question, m.category, m.total_liquidity::float8
		FROM oracle_resolutions r
		JOIN markets m ON m.market_id = r.market_id
		WHERE r.authoritative
		ORDER BY r.resolved_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent resolutions: %w", err)
	}
	defer rows.Close()

	var out []domain.RecentResolution
	for rows.Next() {
		var rr domain.RecentResolution
		rec, err := scanResolution(rows, &rr.Question, &rr.Category, &rr.TotalLiquidity)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan recent resolution: %w", err)
		}
		rr.ResolutionRecord = rec
		out = append(out, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent resolutions rows: %w", err)
	}
	return out, nil
}

// Metrics aggregates authoritative resolutions resolved at or after since.
// A nil since covers all time.
func (s *ResolutionStore) Metrics(ctx context.Context, since *time.Time) (domain.ResolutionMetrics, error) {
	const query = `
		SELECT
			COALESCE(AVG(EXTRACT(EPOCH FROM (r.resolved_at - m.end_time)) / 60), 0)::float8,
			COUNT(*),
			COUNT(*) FILTER (WHERE r.mechanism = 'fast-price'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (r.resolved_at - m.end_time)) / 60) FILTER (WHERE r.mechanism = 'fast-price'), 0)::float8,
			COALESCE(AVG(r.confidence_score) FILTER (WHERE r.mechanism = 'fast-price'), 0)::float8,
			COALESCE(AVG(r.confidence_score), 0)::float8,
			COALESCE(SUM(m.total_liquidity), 0)::float8
		FROM oracle_resolutions r
		JOIN markets m ON m.market_id = r.market_id
		WHERE r.authoritative AND ($1::timestamptz IS NULL OR r.resolved_at >= $1)`

	var out domain.ResolutionMetrics
	err := s.db.QueryRow(ctx, query, since).Scan(
		&out.AvgResolutionMinutes,
		&out.TotalResolutions,
		&out.FastPriceResolutions,
		&out.FastPriceAvgMinutes,
		&out.FastPriceAvgConfidence,
		&out.AvgConfidence,
		&out.TotalVolume,
	)
	if err != nil {
		return domain.ResolutionMetrics{}, fmt.Errorf("postgres: resolution metrics: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM challenges WHERE ($1::timestamptz IS NULL OR created_at >= $1)`,
		since,
	).Scan(&out.DisputeCount)
	if err != nil {
		return domain.ResolutionMetrics{}, fmt.Errorf("postgres: dispute count: %w", err)
	}
	return out, nil
}

// HourlySeries returns average minutes from market end to resolution per
// hour bucket and mechanism since the given time.
func (s *ResolutionStore) HourlySeries(ctx context.Context, since time.Time) ([]domain.ResolutionPoint, error) {
	const query = `
		SELECT
			date_trunc('hour', r.resolved_at) AS bucket,
			COALESCE(AVG(EXTRACT(EPOCH FROM (r.resolved_at - m.end_time)) / 60) FILTER (WHERE r.mechanism = 'fast-price'), 0)::float8,
			COALESCE(AVG(EXTRACT(EPOCH FROM (r.resolved_at - m.end_time)) / 60) FILTER (WHERE r.mechanism = 'delayed-dispute'), 0)::float8
		FROM oracle_resolutions r
		JOIN markets m ON m.market_id = r.market_id
		WHERE r.authoritative AND r.resolved_at >= $1
		GROUP BY bucket
		ORDER BY bucket`

	rows, err := s.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: hourly resolution series: %w", err)
	}
	defer rows.Close()

	var points []domain.ResolutionPoint
	for rows.Next() {
		var p domain.ResolutionPoint
		if err := rows.Scan(&p.Time, &p.FastPriceMinutes, &p.DisputeMinutes); err != nil {
			return nil, fmt.Errorf("postgres: scan resolution point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: hourly resolution series rows: %w", err)
	}
	return points, nil
}

// ListBefore returns every resolution record resolved before the cutoff,
// authoritative or not. Used by the archiver.
func (s *ResolutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ResolutionRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+resolutionCols+` FROM oracle_resolutions r WHERE r.resolved_at < $1 ORDER BY r.resolved_at`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolutions before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var out []domain.ResolutionRecord
	for rows.Next() {
		rec, err := scanResolution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan resolution: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list resolutions rows: %w", err)
	}
	return out, nil
}

var _ domain.ResolutionStore = (*ResolutionStore)(nil)
