package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

const defaultAuditLimit = 50

// AuditStore is the append-only audit_log table. Resolution commits,
// challenges and archive runs are recorded here.
type AuditStore struct {
	db DB
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

// Log appends one entry; detail is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: audit %s: marshal detail: %w", event, err)
	}
	if _, err := s.db.Exec(ctx, `INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, raw); err != nil {
		return fmt.Errorf("postgres: audit %s: %w", event, err)
	}
	return nil
}

// Trail returns the newest entries matching q. MarketID matches the
// market_id key of the detail document.
func (s *AuditStore) Trail(ctx context.Context, q domain.AuditQuery) ([]domain.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if q.EventPrefix != "" {
		args = append(args, q.EventPrefix)
		where = append(where, "event LIKE $"+strconv.Itoa(len(args))+" || '%'")
	}
	if q.MarketID > 0 {
		args = append(args, strconv.FormatInt(q.MarketID, 10))
		where = append(where, "detail->>'market_id' = $"+strconv.Itoa(len(args)))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	args = append(args, limit)

	sql := `SELECT id, event, detail, created_at FROM audit_log`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit trail: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEntry, error) {
		var (
			e   domain.AuditEntry
			raw []byte
		)
		if err := row.Scan(&e.ID, &e.Event, &raw, &e.CreatedAt); err != nil {
			return e, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Detail); err != nil {
				return e, fmt.Errorf("entry %d detail: %w", e.ID, err)
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: audit trail: %w", err)
	}
	return entries, nil
}

var _ domain.AuditStore = (*AuditStore)(nil)
