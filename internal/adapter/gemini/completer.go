package gemini

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/RideMatch1/neuraxon-viz/internal/observability"
	"github.com/RideMatch1/neuraxon-viz/internal/responder"
)

type Completer struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func NewCompleter(ctx context.Context, apiKey, model string, temperature float32, maxTokens int, opts ...option.ClientOption) (*Completer, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, append(opts, option.WithAPIKey(apiKey))...)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultChatModel
	}
	return &Completer{client: client, model: model, temperature: temperature, maxTokens: int32(maxTokens)}, nil // #nosec G115 -- small config value
}

func (c *Completer) Model() string { return c.model }

func (c *Completer) Close() error { return c.client.Close() }

// Complete sends the system message as the system instruction, earlier
// turns as chat history and the final message as the prompt.
func (c *Completer) Complete(ctx context.Context, messages []responder.Message) (*responder.Completion, error) {
	ctx, span := observability.StartCompletionSpan(ctx, Provider, c.model)
	defer span.End()

	if len(messages) == 0 {
		return nil, errors.New("no messages")
	}

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(c.temperature)
	if c.maxTokens > 0 {
		model.SetMaxOutputTokens(c.maxTokens)
	}

	chat := model.StartChat()
	for _, m := range messages[:len(messages)-1] {
		switch m.Role {
		case responder.RoleSystem:
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
		case responder.RoleAssistant:
			chat.History = append(chat.History, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			chat.History = append(chat.History, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}

	resp, err := chat.SendMessage(ctx, genai.Text(messages[len(messages)-1].Content))
	if err != nil {
		err = classify(err)
		observability.RecordError(span, err)
		slog.ErrorContext(ctx, "chat completion failed", "model", c.model, "error", err)
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		err := errors.New("no completion candidates returned")
		observability.RecordError(span, err)
		return nil, err
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}

	var usage responder.Usage
	if u := resp.UsageMetadata; u != nil {
		usage = responder.Usage{
			Input:  int(u.PromptTokenCount),
			Output: int(u.CandidatesTokenCount),
			Total:  int(u.TotalTokenCount),
		}
	}
	observability.RecordTokens(span, usage.Input, usage.Output)

	return &responder.Completion{Content: sb.String(), Usage: usage}, nil
}
