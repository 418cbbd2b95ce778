package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, req service.CreateMarketRequest) (domain.Market, error)
	GetMarket(ctx context.Context, marketID int64) (domain.Market, error)
	ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error)
	MarketPositions(ctx context.Context, marketID int64) ([]domain.Position, error)
	RecordPosition(ctx context.Context, pos domain.Position) error
	Chat(ctx context.Context, marketID int64) ([]domain.ChatMessage, error)
	PostChat(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
	Notes(ctx context.Context, marketID int64) ([]domain.InfoNote, error)
	PostNote(ctx context.Context, note domain.InfoNote) (domain.InfoNote, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logHandler(logger, "markets"),
	}
}

// ListMarkets returns markets filtered by category.
// GET /api/markets?category=Crypto&sortBy=trending
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	markets, err := h.markets.ListMarkets(r.Context(), domain.MarketFilter{
		Category: q.Get("category"),
		Sort:     domain.MarketSort(strings.ToLower(q.Get("sortBy"))),
		Limit:    queryLimit(r, 100, 500),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// GetMarket returns a single market by its market id.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

type createMarketBody struct {
	Question        string  `json:"question"`
	Category        string  `json:"category"`
	Duration        float64 `json:"duration"`
	ResolutionDelay float64 `json:"resolutionDelay"`
	ImageURL        string  `json:"imageUrl"`
	OracleType      string  `json:"oracleType"`
	DataFeedID      string  `json:"dataFeedId"`
	MarketAddress   string  `json:"marketAddress"`
	CreatorAddress  string  `json:"creatorAddress"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// CreateMarket stores a new market. Durations are in seconds.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var body createMarketBody
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}
	m, err := h.markets.CreateMarket(r.Context(), service.CreateMarketRequest{
		Question:        body.Question,
		Category:        body.Category,
		Duration:        seconds(body.Duration),
		ResolutionDelay: seconds(body.ResolutionDelay),
		ImageURL:        body.ImageURL,
		OracleType:      body.OracleType,
		FeedID:          body.DataFeedID,
		MarketAddress:   body.MarketAddress,
		CreatorAddress:  body.CreatorAddress,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListPositions returns the positions on a market.
// GET /api/markets/{id}/positions
func (h *MarketHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	ps, err := h.markets.MarketPositions(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions", err)
		return
	}
	if ps == nil {
		ps = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, ps)
}

type positionBody struct {
	UserAddress string  `json:"userAddress"`
	Side        string  `json:"side"`
	Amount      float64 `json:"amount"`
}

// RecordPosition records a stake placed on the market.
// POST /api/markets/{id}/positions
func (h *MarketHandler) RecordPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var body positionBody
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}
	pos := domain.Position{
		MarketID:    id,
		UserAddress: body.UserAddress,
		Side:        domain.Side(strings.ToLower(body.Side)),
		Amount:      body.Amount,
	}
	if err := h.markets.RecordPosition(r.Context(), pos); err != nil {
		writeServiceError(w, r, h.logger, "record position", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

// ListChat returns the market's chat, oldest first.
// GET /api/markets/{id}/chat
func (h *MarketHandler) ListChat(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	msgs, err := h.markets.Chat(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "list chat", err)
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type chatBody struct {
	UserAddress string `json:"userAddress"`
	Message     string `json:"message"`
}

// PostChat appends a chat message.
// POST /api/markets/{id}/chat
func (h *MarketHandler) PostChat(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var body chatBody
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}
	msg, err := h.markets.PostChat(r.Context(), domain.ChatMessage{
		MarketID:    id,
		UserAddress: body.UserAddress,
		Message:     body.Message,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "post chat", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// ListNotes returns the market's info notes, newest first.
// GET /api/markets/{id}/notes
func (h *MarketHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	notes, err := h.markets.Notes(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "list notes", err)
		return
	}
	if notes == nil {
		notes = []domain.InfoNote{}
	}
	writeJSON(w, http.StatusOK, notes)
}

type noteBody struct {
	UserAddress string `json:"userAddress"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	LinkURL     string `json:"linkUrl"`
}

// PostNote attaches an info note.
// POST /api/markets/{id}/notes
func (h *MarketHandler) PostNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var body noteBody
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}
	note, err := h.markets.PostNote(r.Context(), domain.InfoNote{
		MarketID:    id,
		UserAddress: body.UserAddress,
		Title:       body.Title,
		Content:     body.Content,
		LinkURL:     body.LinkURL,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "post note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}
