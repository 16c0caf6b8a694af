// Package responder turns a question into a grounded answer: it retrieves
// code excerpts, builds a bounded prompt and calls the chat model.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RideMatch1/neuraxon-viz/internal/chunk"
	"github.com/RideMatch1/neuraxon-viz/internal/retrieval"
	"github.com/RideMatch1/neuraxon-viz/internal/sources"
	"github.com/RideMatch1/neuraxon-viz/internal/text"
	"github.com/RideMatch1/neuraxon-viz/internal/tokens"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrGeneration   = errors.New("error generating response")
	ErrUnavailable  = errors.New("service temporarily unavailable")
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

type Completion struct {
	Content string
	Usage   Usage
}

// Completer is a chat model.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (*Completion, error)
	Model() string
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, topN int) ([]retrieval.Result, error)
}

// Guard cleans text on the way in and out and enforces the token cap.
type Guard interface {
	SanitizeInput(s string) string
	SanitizeOutput(s string) string
	CheckTokens(n int) error
}

type SourceSanitizer interface {
	Sanitize(metas []chunk.Metadata) []sources.Source
}

type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost returns the dollar cost of a completion.
func (p Pricing) Cost(u Usage) float64 {
	return float64(u.Input)/1e6*p.InputPerMillion + float64(u.Output)/1e6*p.OutputPerMillion
}

type Options struct {
	TopK                 int
	ContextCharsPerChunk int
	MaxContextTokens     int
	MaxHistoryTokens     int
	MaxPromptTokens      int
	FallbackContextChars int
	Timeout              time.Duration
	Pricing              Pricing
}

func DefaultOptions() Options {
	return Options{
		TopK:                 3,
		ContextCharsPerChunk: 300,
		MaxContextTokens:     2000,
		MaxHistoryTokens:     100,
		MaxPromptTokens:      4000,
		FallbackContextChars: 1000,
		Timeout:              30 * time.Second,
		Pricing:              Pricing{InputPerMillion: 0.15, OutputPerMillion: 0.60},
	}
}

type Answer struct {
	Answer  string           `json:"answer"`
	Sources []sources.Source `json:"sources"`
	Tokens  Usage            `json:"tokens"`
	Cost    float64          `json:"-"`
}

type Responder struct {
	completer Completer
	retriever Retriever
	guard     Guard
	sources   SourceSanitizer
	counter   tokens.Counter
	opts      Options
}

func New(c Completer, r Retriever, g Guard, s SourceSanitizer, counter tokens.Counter, opts Options) *Responder {
	return &Responder{completer: c, retriever: r, guard: g, sources: s, counter: counter, opts: opts}
}

// Answer answers question for clientID using only the last history turn.
// Cost caps are the caller's concern; the returned Answer carries the cost.
func (r *Responder) Answer(ctx context.Context, question string, history []Message, clientID string) (*Answer, error) {
	question = r.guard.SanitizeInput(question)
	if question == "" {
		return nil, ErrInvalidInput
	}
	if err := r.guard.CheckTokens(r.counter.Count(question)); err != nil {
		return nil, err
	}

	results, err := r.retriever.Retrieve(ctx, question, r.opts.TopK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	messages := r.buildMessages(question, r.buildContext(results), history)

	cctx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	completion, err := r.completer.Complete(cctx, messages)
	if err != nil {
		slog.ErrorContext(ctx, "completion failed", "model", r.completer.Model(), "client", clientID, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	metas := make([]chunk.Metadata, len(results))
	for i, res := range results {
		metas[i] = res.Metadata
	}

	cost := r.opts.Pricing.Cost(completion.Usage)
	slog.InfoContext(ctx, "answer generated", "client", clientID, "tokens", completion.Usage.Total, "cost", cost)

	return &Answer{
		Answer:  r.guard.SanitizeOutput(completion.Content),
		Sources: r.sources.Sanitize(metas),
		Tokens:  completion.Usage,
		Cost:    cost,
	}, nil
}

func (r *Responder) Model() string {
	return r.completer.Model()
}

func (r *Responder) buildContext(results []retrieval.Result) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		file := res.Metadata.File
		if file == "" {
			file = "unknown"
		}
		parts = append(parts, fmt.Sprintf("File: %s\n%s\n---", file, text.Ellipsize(res.Text, r.opts.ContextCharsPerChunk)))
	}
	ctx := strings.Join(parts, "\n")

	if n := r.counter.Count(ctx); n > r.opts.MaxContextTokens {
		ctx = text.Truncate(ctx, text.Len(ctx)*r.opts.MaxContextTokens/n)
	}
	return ctx
}

func (r *Responder) buildMessages(question, context string, history []Message) []Message {
	messages := []Message{{Role: RoleSystem, Content: SystemPrompt}}

	if len(history) > 0 {
		last := history[len(history)-1]
		role := last.Role
		if role != RoleUser && role != RoleAssistant {
			role = RoleUser
		}
		content := last.Content
		if r.counter.Count(content) > r.opts.MaxHistoryTokens {
			content = text.Truncate(content, r.opts.MaxHistoryTokens) + "..."
		}
		messages = append(messages, Message{Role: role, Content: content})
	}

	user := userMessage(context, question)
	total := r.counter.Count(user)
	for _, m := range messages {
		total += r.counter.Count(m.Content)
	}
	if total > r.opts.MaxPromptTokens {
		user = userMessage(text.Truncate(context, r.opts.FallbackContextChars)+"...", question)
	}

	return append(messages, Message{Role: RoleUser, Content: user})
}
