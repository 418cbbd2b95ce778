package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/service"
)

type memSocial struct {
	positions []domain.Position
	chat      []domain.ChatMessage
	notes     []domain.InfoNote
}

func (m *memSocial) Add(_ context.Context, p domain.Position) error {
	m.positions = append(m.positions, p)
	return nil
}

func (m *memSocial) ListByMarket(_ context.Context, id int64) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range m.positions {
		if p.MarketID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memSocial) ListByUser(_ context.Context, addr string) ([]domain.UserPosition, error) {
	var out []domain.UserPosition
	for _, p := range m.positions {
		if strings.EqualFold(p.UserAddress, addr) {
			out = append(out, domain.UserPosition{Position: p})
		}
	}
	return out, nil
}

type memChat struct{ s *memSocial }

func (c memChat) Create(_ context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg.ID = int64(len(c.s.chat) + 1)
	c.s.chat = append(c.s.chat, msg)
	return msg, nil
}

func (c memChat) ListByMarket(context.Context, int64) ([]domain.ChatMessage, error) {
	return c.s.chat, nil
}

type memNotes struct{ s *memSocial }

func (n memNotes) Create(_ context.Context, note domain.InfoNote) (domain.InfoNote, error) {
	note.ID = int64(len(n.s.notes) + 1)
	n.s.notes = append(n.s.notes, note)
	return note, nil
}

func (n memNotes) ListByMarket(context.Context, int64) ([]domain.InfoNote, error) {
	return n.s.notes, nil
}

var marketFixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMarketService(markets ...domain.Market) (*service.MarketService, *memStore, *memSocial, *memDirCache) {
	store := newMemStore(markets...)
	social := &memSocial{}
	cache := &memDirCache{}
	svc := service.NewMarketService(store, social, memChat{social}, memNotes{social}, cache, discardLogger()).
		WithClock(func() time.Time { return marketFixedNow })
	return svc, store, social, cache
}

func TestMarketService_CreateMarket(t *testing.T) {
	svc, _, _, cache := newMarketService(domain.Market{MarketID: 4, Status: domain.MarketStatusActive})

	m, err := svc.CreateMarket(context.Background(), service.CreateMarketRequest{
		Question:        "Will BTC close above 100k?",
		Category:        "Crypto",
		Duration:        time.Hour,
		ResolutionDelay: 2 * time.Hour,
		OracleType:      "uma",
		MarketAddress:   "0x00000000000000000000000000000000000000AB",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), m.MarketID)
	assert.Equal(t, domain.ZeroAddress, m.Creator)
	assert.Equal(t, "0x00000000000000000000000000000000000000ab", m.Address)
	assert.Equal(t, domain.MechanismDelayedDispute, m.Mechanism)
	assert.Equal(t, "UMA", m.OracleName)
	assert.Equal(t, "24-48 hr", m.OracleResolutionTime)
	assert.Equal(t, marketFixedNow.Add(time.Hour), m.EndTime)
	assert.Equal(t, marketFixedNow.Add(3*time.Hour), m.ResolutionTime)
	assert.Equal(t, domain.MarketStatusActive, m.Status)
	assert.Equal(t, 1, cache.invalidated)
}

func TestMarketService_CreateMarketValidation(t *testing.T) {
	valid := service.CreateMarketRequest{
		Question:        "Will ETH hit 10k?",
		Duration:        time.Hour,
		ResolutionDelay: time.Hour,
	}
	cases := map[string]func(r *service.CreateMarketRequest){
		"short question": func(r *service.CreateMarketRequest) { r.Question = "too short" },
		"zero duration":  func(r *service.CreateMarketRequest) { r.Duration = 0 },
		"negative delay": func(r *service.CreateMarketRequest) { r.ResolutionDelay = -time.Second },
		"unknown oracle": func(r *service.CreateMarketRequest) { r.OracleType = "pyth" },
		"bad address":    func(r *service.CreateMarketRequest) { r.MarketAddress = "0x1234" },
		"bad creator":    func(r *service.CreateMarketRequest) { r.CreatorAddress = "bob" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _, _, _ := newMarketService()
			req := valid
			mutate(&req)
			_, err := svc.CreateMarket(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	svc, _, _, _ := newMarketService()
	m, err := svc.CreateMarket(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, domain.MechanismFastPrice, m.Mechanism)
	assert.Equal(t, "Chainlink", m.OracleName)
	assert.Equal(t, "Other", m.Category)
}

func TestMarketService_RecordPosition(t *testing.T) {
	svc, _, social, _ := newMarketService(
		domain.Market{MarketID: 1, Status: domain.MarketStatusActive},
		domain.Market{MarketID: 2, Status: domain.MarketStatusResolved},
	)
	ctx := context.Background()

	require.NoError(t, svc.RecordPosition(ctx, domain.Position{MarketID: 1, UserAddress: alice, Side: domain.SideYes, Amount: 2}))
	assert.Len(t, social.positions, 1)

	err := svc.RecordPosition(ctx, domain.Position{MarketID: 2, UserAddress: alice, Side: domain.SideNo, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	err = svc.RecordPosition(ctx, domain.Position{MarketID: 1, UserAddress: alice, Side: "maybe", Amount: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = svc.RecordPosition(ctx, domain.Position{MarketID: 9, UserAddress: alice, Side: domain.SideYes, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ups, err := svc.UserPositions(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, ups, 1)
}

func TestMarketService_Chat(t *testing.T) {
	svc, _, _, _ := newMarketService(domain.Market{MarketID: 1})
	ctx := context.Background()

	_, err := svc.PostChat(ctx, domain.ChatMessage{MarketID: 1, UserAddress: bob, Message: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.PostChat(ctx, domain.ChatMessage{MarketID: 1, UserAddress: bob, Message: strings.Repeat("x", 1001)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.PostChat(ctx, domain.ChatMessage{MarketID: 1, UserAddress: "bob", Message: "hi"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.PostChat(ctx, domain.ChatMessage{MarketID: 3, UserAddress: bob, Message: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	msg, err := svc.PostChat(ctx, domain.ChatMessage{MarketID: 1, UserAddress: bob, Message: strings.Repeat("x", 1000)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)

	msgs, err := svc.Chat(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMarketService_Notes(t *testing.T) {
	svc, _, _, _ := newMarketService(domain.Market{MarketID: 1})
	ctx := context.Background()

	base := domain.InfoNote{MarketID: 1, UserAddress: carol, Title: "Source", Content: "CoinGecko close"}

	bad := base
	bad.Title = strings.Repeat("t", 256)
	_, err := svc.PostNote(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	bad = base
	bad.LinkURL = "not a url"
	_, err = svc.PostNote(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	ok := base
	ok.LinkURL = "https://www.coingecko.com/en/coins/bitcoin"
	note, err := svc.PostNote(ctx, ok)
	require.NoError(t, err)
	assert.Equal(t, ok.LinkURL, note.LinkURL)

	_, err = svc.PostNote(ctx, base)
	require.NoError(t, err)

	notes, err := svc.Notes(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestMarketService_ListMarketsRejectsUnknownSort(t *testing.T) {
	svc, _, _, _ := newMarketService()
	_, err := svc.ListMarkets(context.Background(), domain.MarketFilter{Sort: "random"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
