// Package tokens estimates model token counts for prompt budgeting.
package tokens

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

type Counter interface {
	Count(text string) int
}

var loaderOnce sync.Once

// Tiktoken counts tokens with the BPE ranks bundled by the offline loader, so
// no download happens at runtime.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func NewTiktoken(model string) (*Tiktoken, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("o200k_base")
		if err != nil {
			return nil, err
		}
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Heuristic approximates four characters per token.
type Heuristic struct{}

func (Heuristic) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// New returns a tiktoken counter for model, or the heuristic when the
// encoding cannot be loaded.
func New(model string) Counter {
	tk, err := NewTiktoken(model)
	if err != nil {
		slog.Warn("tiktoken unavailable, using heuristic token counts", "model", model, "error", err)
		return Heuristic{}
	}
	return tk
}
