package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// ChatStore implements domain.ChatStore using PostgreSQL.
type ChatStore struct {
	db DB
}

// NewChatStore creates a new ChatStore backed by the given pool.
func NewChatStore(db DB) *ChatStore {
	return &ChatStore{db: db}
}

// Create appends a chat message to a market's thread.
func (s *ChatStore) Create(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	const query = `
		INSERT INTO market_chat_messages (market_id, user_address, message)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	msg.UserAddress = strings.ToLower(msg.UserAddress)
	err := s.db.QueryRow(ctx, query, msg.MarketID, msg.UserAddress, msg.Message).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("postgres: create chat message market %d: %w", msg.MarketID, err)
	}
	return msg, nil
}

// ListByMarket returns a market's chat in posting order.
func (s *ChatStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.ChatMessage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, market_id, user_address, message, created_at
		 FROM market_chat_messages WHERE market_id = $1 ORDER BY created_at ASC`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chat market %d: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.MarketID, &m.UserAddress, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan chat message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list chat rows: %w", err)
	}
	return out, nil
}

// NoteStore implements domain.NoteStore using PostgreSQL.
type NoteStore struct {
	db DB
}

// NewNoteStore creates a new NoteStore backed by the given pool.
func NewNoteStore(db DB) *NoteStore {
	return &NoteStore{db: db}
}

// Create stores an info note.
func (s *NoteStore) Create(ctx context.Context, note domain.InfoNote) (domain.InfoNote, error) {
	const query = `
		INSERT INTO market_info_notes (market_id, user_address, title, content, link_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	note.UserAddress = strings.ToLower(note.UserAddress)
	err := s.db.QueryRow(ctx, query,
		note.MarketID, note.UserAddress, note.Title, note.Content, note.LinkURL,
	).Scan(&note.ID, &note.CreatedAt)
	if err != nil {
		return domain.InfoNote{}, fmt.Errorf("postgres: create note market %d: %w", note.MarketID, err)
	}
	return note, nil
}

// ListByMarket returns a market's notes, newest first.
func (s *NoteStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.InfoNote, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, market_id, user_address, title, content, link_url, created_at
		 FROM market_info_notes WHERE market_id = $1 ORDER BY created_at DESC`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notes market %d: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.InfoNote
	for rows.Next() {
		var n domain.InfoNote
		if err := rows.Scan(&n.ID, &n.MarketID, &n.UserAddress, &n.Title, &n.Content, &n.LinkURL, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan note: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list notes rows: %w", err)
	}
	return out, nil
}

var (
	_ domain.ChatStore = (*ChatStore)(nil)
	_ domain.NoteStore = (*NoteStore)(nil)
)
