// Package websearch serves GET /web-search.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	search "github.com/RideMatch1/neuraxon-viz/internal/adapter/websearch"
	"github.com/RideMatch1/neuraxon-viz/internal/middleware"
)

type Searcher interface {
	Search(ctx context.Context, client, query string, maxResults int) (*search.Response, error)
}

type Handler struct {
	searcher Searcher
}

func NewHandler(s Searcher) *Handler {
	return &Handler{searcher: s}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	maxResults := search.DefaultMaxResults
	if v := q.Get("max_results"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxResults = n
		}
	}

	resp, err := h.searcher.Search(ctx, middleware.GetClientIP(ctx), q.Get("q"), maxResults)
	if err != nil {
		var limitErr *search.LimitError
		switch {
		case errors.As(err, &limitErr):
			h.writeError(ctx, w, limitErr.Error(), http.StatusTooManyRequests)
		case errors.Is(err, search.ErrEmptyQuery):
			h.writeError(ctx, w, "Empty query", http.StatusBadRequest)
		default:
			slog.ErrorContext(ctx, "web search failed", "error", err)
			h.writeError(ctx, w, "Web search unavailable", http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": message, "results": []search.Result{}}); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
