package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/service"
)

// UserPositions lists an address's positions.
type UserPositions interface {
	UserPositions(ctx context.Context, address string) ([]domain.UserPosition, error)
}

// UserStatsService builds per-user stats and the leaderboard.
type UserStatsService interface {
	UserStats(ctx context.Context, address string) (domain.UserStats, error)
	Leaderboard(ctx context.Context, sortBy domain.LeaderboardSort, limit int) ([]domain.LeaderboardEntry, error)
}

// UserHandler serves per-user endpoints and the leaderboard.
type UserHandler struct {
	positions UserPositions
	stats     UserStatsService
	logger    *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(positions UserPositions, stats UserStatsService, logger *slog.Logger) *UserHandler {
	return &UserHandler{positions: positions, stats: stats, logger: logHandler(logger, "users")}
}

// Positions returns the address's positions, newest first.
// GET /api/users/{address}/positions
func (h *UserHandler) Positions(w http.ResponseWriter, r *http.Request) {
	ps, err := h.positions.UserPositions(r.Context(), pathParam(r, "address"))
	if err != nil {
		writeServiceError(w, r, h.logger, "user positions", err)
		return
	}
	if ps == nil {
		ps = []domain.UserPosition{}
	}
	writeJSON(w, http.StatusOK, ps)
}

// Stats returns the address's betting summary.
// GET /api/users/{address}/stats
func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats.UserStats(r.Context(), pathParam(r, "address"))
	if err != nil {
		writeServiceError(w, r, h.logger, "user stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Leaderboard ranks users.
// GET /api/leaderboard?sortBy=volume&limit=100
func (h *UserHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	sortBy, err := service.ParseLeaderboardSort(r.URL.Query().Get("sortBy"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	entries, err := h.stats.Leaderboard(r.Context(), sortBy, queryLimit(r, 100, 1000))
	if err != nil {
		writeServiceError(w, r, h.logger, "leaderboard", err)
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
