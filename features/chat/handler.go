// Package chat serves the question answering endpoint.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/RideMatch1/neuraxon-viz/internal/index"
	"github.com/RideMatch1/neuraxon-viz/internal/middleware"
	"github.com/RideMatch1/neuraxon-viz/internal/responder"
	"github.com/RideMatch1/neuraxon-viz/internal/security"
	"github.com/RideMatch1/neuraxon-viz/internal/sources"
	"github.com/RideMatch1/neuraxon-viz/internal/usage"
)

const (
	maxBodyBytes = 64 << 10

	MsgAccessDenied   = "Access denied"
	MsgInvalidRequest = "Invalid request"
	MsgQuestionNeeded = "Question required"
	MsgInvalidInput   = "Invalid input"
	MsgNotIndexed     = "Chatbot database not initialized. Please run: neuraxon index"
	MsgUnavailable    = "Service temporarily unavailable. Please try again."
	MsgGeneration     = "Error generating response"
)

type Answerer interface {
	Answer(ctx context.Context, question string, history []responder.Message, clientID string) (*responder.Answer, error)
	Model() string
}

type Gate interface {
	CheckRate(client string) error
	CheckCost(client string, cost float64) error
}

type UsageRecorder interface {
	Record(ctx context.Context, e usage.Event) error
}

type Handler struct {
	answerer Answerer
	gate     Gate
	usage    UsageRecorder
}

// NewHandler wires the chat endpoint. u may be nil when no ledger is
// configured.
func NewHandler(a Answerer, g Gate, u UsageRecorder) *Handler {
	return &Handler{answerer: a, gate: g, usage: u}
}

type Request struct {
	Question string              `json:"question"`
	History  []responder.Message `json:"history"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := middleware.GetClientIP(ctx)

	if err := h.gate.CheckRate(client); err != nil {
		h.writeGateError(ctx, w, err)
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(ctx, w, MsgInvalidRequest, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		h.writeError(ctx, w, MsgQuestionNeeded, http.StatusBadRequest)
		return
	}

	ans, err := h.answerer.Answer(ctx, req.Question, req.History, client)
	if err != nil {
		h.writeAnswerError(ctx, w, err)
		return
	}

	if h.usage != nil {
		event := usage.Event{
			ClientID:      client,
			Model:         h.answerer.Model(),
			InputTokens:   ans.Tokens.Input,
			OutputTokens:  ans.Tokens.Output,
			Cost:          ans.Cost,
			CorrelationID: middleware.GetCorrelationID(ctx),
		}
		if err := h.usage.Record(ctx, event); err != nil {
			slog.ErrorContext(ctx, "failed to record usage", "error", err)
		}
	}

	if err := h.gate.CheckCost(client, ans.Cost); err != nil {
		slog.WarnContext(ctx, "cost limit reached", "client", client, "cost", ans.Cost, "error", err)
		h.writeGateError(ctx, w, err)
		return
	}

	if ans.Sources == nil {
		ans.Sources = []sources.Source{}
	}
	h.writeJSON(ctx, w, http.StatusOK, ans)
}

func (h *Handler) writeGateError(ctx context.Context, w http.ResponseWriter, err error) {
	var limitErr *security.LimitError
	if !errors.As(err, &limitErr) {
		slog.ErrorContext(ctx, "security check failed", "error", err)
		h.writeError(ctx, w, MsgGeneration, http.StatusInternalServerError)
		return
	}
	if limitErr.Kind == security.KindBlocked {
		h.writeError(ctx, w, MsgAccessDenied, http.StatusForbidden)
		return
	}
	h.writeError(ctx, w, limitErr.Message, http.StatusTooManyRequests)
}

func (h *Handler) writeAnswerError(ctx context.Context, w http.ResponseWriter, err error) {
	var limitErr *security.LimitError
	switch {
	case errors.Is(err, responder.ErrInvalidInput):
		h.writeError(ctx, w, MsgInvalidInput, http.StatusBadRequest)
	case errors.As(err, &limitErr):
		h.writeError(ctx, w, limitErr.Message, http.StatusBadRequest)
	case errors.Is(err, index.ErrNotIndexed):
		slog.WarnContext(ctx, "chat requested before the index was built")
		h.writeError(ctx, w, MsgNotIndexed, http.StatusServiceUnavailable)
	case errors.Is(err, responder.ErrUnavailable):
		slog.ErrorContext(ctx, "chat timed out", "error", err)
		h.writeError(ctx, w, MsgUnavailable, http.StatusServiceUnavailable)
	default:
		slog.ErrorContext(ctx, "chat failed", "error", err)
		h.writeError(ctx, w, MsgGeneration, http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]string{"error": message})
}
