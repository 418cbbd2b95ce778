package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/server/handler"
	"github.com/prophezy/oracle-resolver/internal/service"
)

type fakeMarkets struct {
	created  service.CreateMarketRequest
	filter   domain.MarketFilter
	position domain.Position
	err      error
}

func (f *fakeMarkets) CreateMarket(_ context.Context, req service.CreateMarketRequest) (domain.Market, error) {
	f.created = req
	if f.err != nil {
		return domain.Market{}, f.err
	}
	return domain.Market{MarketID: 11, Question: req.Question}, nil
}

func (f *fakeMarkets) GetMarket(_ context.Context, id int64) (domain.Market, error) {
	if id != 11 {
		return domain.Market{}, domain.ErrNotFound
	}
	return domain.Market{MarketID: 11}, nil
}

func (f *fakeMarkets) ListMarkets(_ context.Context, flt domain.MarketFilter) ([]domain.Market, error) {
	f.filter = flt
	return nil, nil
}

func (f *fakeMarkets) MarketPositions(context.Context, int64) ([]domain.Position, error) {
	return nil, nil
}

func (f *fakeMarkets) RecordPosition(_ context.Context, pos domain.Position) error {
	f.position = pos
	return f.err
}

func (f *fakeMarkets) Chat(context.Context, int64) ([]domain.ChatMessage, error) { return nil, nil }

func (f *fakeMarkets) PostChat(_ context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	return msg, f.err
}

func (f *fakeMarkets) Notes(context.Context, int64) ([]domain.InfoNote, error) { return nil, nil }

func (f *fakeMarkets) PostNote(_ context.Context, n domain.InfoNote) (domain.InfoNote, error) {
	return n, f.err
}

func marketMux(f *fakeMarkets) *http.ServeMux {
	h := handler.NewMarketHandler(f, discardLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets", h.ListMarkets)
	mux.HandleFunc("POST /api/markets", h.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/positions", h.RecordPosition)
	mux.HandleFunc("GET /api/markets/{id}/chat", h.ListChat)
	mux.HandleFunc("POST /api/markets/{id}/chat", h.PostChat)
	return mux
}

func TestMarketHandler_Create(t *testing.T) {
	f := &fakeMarkets{}
	rec, body := do(t, marketMux(f), http.MethodPost, "/api/markets",
		`{"question":"Will SOL flip ETH?","category":"Crypto","duration":3600,"resolutionDelay":86400,"oracleType":"uma"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 11.0, body["market_id"])
	assert.Equal(t, time.Hour, f.created.Duration)
	assert.Equal(t, 24*time.Hour, f.created.ResolutionDelay)
	assert.Equal(t, "uma", f.created.OracleType)
}

func TestMarketHandler_CreateInvalid(t *testing.T) {
	f := &fakeMarkets{err: domain.ErrInvalidInput}
	rec, body := do(t, marketMux(f), http.MethodPost, "/api/markets", `{"question":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.KindInvalidInput, body["kind"])
}

func TestMarketHandler_GetAndList(t *testing.T) {
	f := &fakeMarkets{}
	mux := marketMux(f)

	rec, _ := do(t, mux, http.MethodGet, "/api/markets/12", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, mux, http.MethodGet, "/api/markets/11", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, mux, http.MethodGet, "/api/markets?category=Sports&sortBy=Trending", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
	assert.Equal(t, domain.MarketFilter{Category: "Sports", Sort: domain.MarketSortTrending, Limit: 100}, f.filter)

	rec, _ = do(t, mux, http.MethodGet, "/api/markets/11/chat", "")
	assert.Equal(t, "[]", rec.Body.String())
}

func TestMarketHandler_RecordPosition(t *testing.T) {
	f := &fakeMarkets{}
	rec, _ := do(t, marketMux(f), http.MethodPost, "/api/markets/11/positions",
		`{"userAddress":"0x0000000000000000000000000000000000000001","side":"YES","amount":1.5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.Position{
		MarketID: 11, UserAddress: "0x0000000000000000000000000000000000000001", Side: domain.SideYes, Amount: 1.5,
	}, f.position)
}

func TestMarketHandler_PostChatStateError(t *testing.T) {
	f := &fakeMarkets{err: domain.ErrNotFound}
	rec, body := do(t, marketMux(f), http.MethodPost, "/api/markets/11/chat", `{"userAddress":"0x1","message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.KindNotFound, body["kind"])
}
