package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

const (
	minQuestionLen = 10
	maxChatLen     = 1000
	maxTitleLen    = 255
	maxNoteLen     = 5000
)

// CreateMarketRequest carries a new market's metadata.
type CreateMarketRequest struct {
	Question        string
	Category        string
	Duration        time.Duration
	ResolutionDelay time.Duration
	ImageURL        string
	// OracleType is chainlink (default) or uma.
	OracleType     string
	FeedID         string
	MarketAddress  string
	CreatorAddress string
}

// MarketService manages off-chain market metadata, positions and the social
// threads attached to a market.
type MarketService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	chat      domain.ChatStore
	notes     domain.NoteStore
	directory domain.DirectoryCache
	now       func() time.Time
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. directory may be nil.
func NewMarketService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	chat domain.ChatStore,
	notes domain.NoteStore,
	directory domain.DirectoryCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:   markets,
		positions: positions,
		chat:      chat,
		notes:     notes,
		directory: directory,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "markets")),
	}
}

// WithClock overrides the time source.
func (s *MarketService) WithClock(now func() time.Time) *MarketService {
	s.now = now
	return s
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func oracleMechanism(oracleType string) (domain.Mechanism, error) {
	switch strings.ToLower(strings.TrimSpace(oracleType)) {
	case "", "chainlink":
		return domain.MechanismFastPrice, nil
	case "uma":
		return domain.MechanismDelayedDispute, nil
	}
	return "", invalid("oracleType must be chainlink or uma, got %q", oracleType)
}

// CreateMarket validates req and stores a new market under the next market
// id.
func (s *MarketService) CreateMarket(ctx context.Context, req CreateMarketRequest) (domain.Market, error) {
	question := strings.TrimSpace(req.Question)
	if utf8.RuneCountInString(question) < minQuestionLen {
		return domain.Market{}, invalid("question must be at least %d characters", minQuestionLen)
	}
	if req.Duration <= 0 {
		return domain.Market{}, invalid("duration must be positive")
	}
	if req.ResolutionDelay <= 0 {
		return domain.Market{}, invalid("resolutionDelay must be positive")
	}
	mech, err := oracleMechanism(req.OracleType)
	if err != nil {
		return domain.Market{}, err
	}
	if req.MarketAddress != "" && !IsAddress(req.MarketAddress) {
		return domain.Market{}, invalid("marketAddress %q is not an address", req.MarketAddress)
	}
	creator := domain.ZeroAddress
	if req.CreatorAddress != "" {
		if !IsAddress(req.CreatorAddress) {
			return domain.Market{}, invalid("creatorAddress %q is not an address", req.CreatorAddress)
		}
		creator = strings.ToLower(req.CreatorAddress)
	}

	id, err := s.markets.NextMarketID(ctx)
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: next id: %w", err)
	}

	now := s.now()
	m := domain.Market{
		MarketID:             id,
		Address:              strings.ToLower(req.MarketAddress),
		Question:             question,
		Category:             strings.TrimSpace(req.Category),
		Creator:              creator,
		EndTime:              now.Add(req.Duration),
		ResolutionTime:       now.Add(req.Duration + req.ResolutionDelay),
		Status:               domain.MarketStatusActive,
		Mechanism:            mech,
		OracleName:           mech.DisplayName(),
		OracleResolutionTime: mech.ResolutionWindow(),
		FeedID:               strings.TrimSpace(req.FeedID),
		ImageURL:             strings.TrimSpace(req.ImageURL),
	}
	if m.Category == "" {
		m.Category = defaultCategory
	}

	created, err := s.markets.Create(ctx, m)
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: create %d: %w", id, err)
	}
	s.invalidateDirectory(ctx)

	s.logger.InfoContext(ctx, "markets: created market",
		slog.Int64("market_id", created.MarketID),
		slog.String("mechanism", string(created.Mechanism)),
	)
	return created, nil
}

// GetMarket returns one market.
func (s *MarketService) GetMarket(ctx context.Context, marketID int64) (domain.Market, error) {
	m, err := s.markets.GetByMarketID(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("markets: get %d: %w", marketID, err)
	}
	return m, nil
}

// ListMarkets returns markets filtered by category and ordered by f.Sort.
func (s *MarketService) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	switch f.Sort {
	case "", domain.MarketSortNewest, domain.MarketSortTrending, domain.MarketSortLiquidity, domain.MarketSortCategory:
	default:
		return nil, invalid("unknown sortBy %q", f.Sort)
	}
	ms, err := s.markets.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("markets: list: %w", err)
	}
	return ms, nil
}

// MarketPositions returns the positions recorded on a market.
func (s *MarketService) MarketPositions(ctx context.Context, marketID int64) ([]domain.Position, error) {
	ps, err := s.positions.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("markets: positions of %d: %w", marketID, err)
	}
	return ps, nil
}

// RecordPosition adds a stake to the off-chain copy of a market's positions.
func (s *MarketService) RecordPosition(ctx context.Context, pos domain.Position) error {
	if !IsAddress(pos.UserAddress) {
		return invalid("userAddress %q is not an address", pos.UserAddress)
	}
	if pos.Side != domain.SideYes && pos.Side != domain.SideNo {
		return invalid("side must be yes or no")
	}
	if !(pos.Amount > 0) {
		return invalid("amount must be positive")
	}
	m, err := s.markets.GetByMarketID(ctx, pos.MarketID)
	if err != nil {
		return fmt.Errorf("markets: position on %d: %w", pos.MarketID, err)
	}
	if !m.Active() {
		return fmt.Errorf("markets: %w: market %d is %s", domain.ErrInvalidState, m.MarketID, m.Status)
	}
	if err := s.positions.Add(ctx, pos); err != nil {
		return fmt.Errorf("markets: add position on %d: %w", pos.MarketID, err)
	}
	s.invalidateDirectory(ctx)
	return nil
}

// UserPositions returns every position of address with its market state.
func (s *MarketService) UserPositions(ctx context.Context, address string) ([]domain.UserPosition, error) {
	if !IsAddress(address) {
		return nil, invalid("invalid address %q", address)
	}
	ps, err := s.positions.ListByUser(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("markets: positions of %s: %w", address, err)
	}
	return ps, nil
}

// Chat returns a market's discussion thread, oldest first.
func (s *MarketService) Chat(ctx context.Context, marketID int64) ([]domain.ChatMessage, error) {
	msgs, err := s.chat.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("markets: chat of %d: %w", marketID, err)
	}
	return msgs, nil
}

// PostChat appends a message to a market's discussion thread.
func (s *MarketService) PostChat(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	if !IsAddress(msg.UserAddress) {
		return domain.ChatMessage{}, invalid("userAddress %q is not an address", msg.UserAddress)
	}
	if n := utf8.RuneCountInString(msg.Message); n < 1 || n > maxChatLen {
		return domain.ChatMessage{}, invalid("message must be 1..%d characters", maxChatLen)
	}
	if err := s.requireMarket(ctx, msg.MarketID); err != nil {
		return domain.ChatMessage{}, err
	}
	out, err := s.chat.Create(ctx, msg)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("markets: post chat on %d: %w", msg.MarketID, err)
	}
	return out, nil
}

// Notes returns a market's info notes, newest first.
func (s *MarketService) Notes(ctx context.Context, marketID int64) ([]domain.InfoNote, error) {
	notes, err := s.notes.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("markets: notes of %d: %w", marketID, err)
	}
	return notes, nil
}

// PostNote attaches an info note to a market. LinkURL is optional but must
// be an absolute http(s) URL when set.
func (s *MarketService) PostNote(ctx context.Context, note domain.InfoNote) (domain.InfoNote, error) {
	if !IsAddress(note.UserAddress) {
		return domain.InfoNote{}, invalid("userAddress %q is not an address", note.UserAddress)
	}
	if n := utf8.RuneCountInString(note.Title); n < 1 || n > maxTitleLen {
		return domain.InfoNote{}, invalid("title must be 1..%d characters", maxTitleLen)
	}
	if n := utf8.RuneCountInString(note.Content); n < 1 || n > maxNoteLen {
		return domain.InfoNote{}, invalid("content must be 1..%d characters", maxNoteLen)
	}
	if note.LinkURL != "" {
		u, err := url.Parse(note.LinkURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return domain.InfoNote{}, invalid("linkUrl %q is not a URL", note.LinkURL)
		}
	}
	if err := s.requireMarket(ctx, note.MarketID); err != nil {
		return domain.InfoNote{}, err
	}
	out, err := s.notes.Create(ctx, note)
	if err != nil {
		return domain.InfoNote{}, fmt.Errorf("markets: post note on %d: %w", note.MarketID, err)
	}
	return out, nil
}

func (s *MarketService) requireMarket(ctx context.Context, marketID int64) error {
	if _, err := s.markets.GetByMarketID(ctx, marketID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("markets: market %d: %w", marketID, domain.ErrNotFound)
		}
		return fmt.Errorf("markets: get %d: %w", marketID, err)
	}
	return nil
}

func (s *MarketService) invalidateDirectory(ctx context.Context) {
	if s.directory == nil {
		return
	}
	if err := s.directory.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "markets: directory invalidate failed", slog.String("error", err.Error()))
	}
}
