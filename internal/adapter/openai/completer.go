package openai

import (
	"context"
	"errors"
	"log/slog"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/RideMatch1/neuraxon-viz/internal/observability"
	"github.com/RideMatch1/neuraxon-viz/internal/responder"
)

type CompleterConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

type Completer struct {
	client *goopenai.Client
	cfg    CompleterConfig
}

func NewCompleter(cfg Config, cc CompleterConfig) (*Completer, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if cc.Model == "" {
		cc.Model = DefaultChatModel
	}
	return &Completer{client: client, cfg: cc}, nil
}

func (c *Completer) Model() string { return c.cfg.Model }

func (c *Completer) Complete(ctx context.Context, messages []responder.Message) (*responder.Completion, error) {
	ctx, span := observability.StartCompletionSpan(ctx, Provider, c.cfg.Model)
	defer span.End()

	msgs := make([]goopenai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		err = classify(err)
		observability.RecordError(span, err)
		slog.ErrorContext(ctx, "chat completion failed", "model", c.cfg.Model, "error", err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		err := errors.New("no completion choices returned")
		observability.RecordError(span, err)
		return nil, err
	}
	observability.RecordTokens(span, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return &responder.Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: responder.Usage{
			Input:  resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
			Total:  resp.Usage.TotalTokens,
		},
	}, nil
}
