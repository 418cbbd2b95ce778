package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// DirectoryLister returns the merged market directory.
type DirectoryLister interface {
	List(ctx context.Context) ([]domain.MarketView, error)
}

// DirectoryHandler serves the merged ledger and metadata view.
type DirectoryHandler struct {
	dir    DirectoryLister
	logger *slog.Logger
}

// NewDirectoryHandler creates a DirectoryHandler.
func NewDirectoryHandler(dir DirectoryLister, logger *slog.Logger) *DirectoryHandler {
	return &DirectoryHandler{dir: dir, logger: logHandler(logger, "directory")}
}

// List returns every market, optionally narrowed by ?state= and ?category=.
// GET /api/directory
func (h *DirectoryHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.dir.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list directory", err)
		return
	}

	state := r.URL.Query().Get("state")
	category := r.URL.Query().Get("category")
	out := make([]domain.MarketView, 0, len(views))
	for _, v := range views {
		if state != "" && !strings.EqualFold(string(v.State), state) {
			continue
		}
		if category != "" && !strings.EqualFold(category, "all") && !strings.EqualFold(v.Category, category) {
			continue
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}
