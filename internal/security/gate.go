// Package security guards the chat endpoint: request rate, cost and token
// limits, abuse blocking, and input/output text cleanup.
package security

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/RideMatch1/neuraxon-viz/internal/ratelimit"
	"github.com/RideMatch1/neuraxon-viz/internal/text"
)

type Kind int

const (
	KindBlocked Kind = iota
	KindRate
	KindCost
	KindTokens
)

// LimitError is returned when a request is refused. Message is safe to show
// to the client.
type LimitError struct {
	Kind    Kind
	Message string
}

func (e *LimitError) Error() string { return e.Message }

const MsgBlocked = "IP address blocked due to abuse"

type Limits struct {
	PerMinute           int
	PerHour             int
	PerDay              int
	MaxCostPerDay       float64
	MaxCostPerMonth     float64
	MaxCostPerRequest   float64
	MaxTokensPerRequest int
	MaxInputChars       int
}

func DefaultLimits() Limits {
	return Limits{
		PerMinute:           5,
		PerHour:             20,
		PerDay:              100,
		MaxCostPerDay:       0.10,
		MaxCostPerMonth:     2.0,
		MaxCostPerRequest:   0.01,
		MaxTokensPerRequest: 3000,
		MaxInputChars:       500,
	}
}

type Gate struct {
	state  *State
	limits Limits
	now    func() time.Time
}

func NewGate(state *State, limits Limits) *Gate {
	return &Gate{state: state, limits: limits, now: time.Now}
}

// SetClock replaces the time source of the gate and its request history.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
	g.state.requests.SetClock(now)
}

func (g *Gate) Limits() Limits { return g.limits }

func (g *Gate) IsBlocked(client string) bool {
	return g.state.isBlocked(client)
}

// Block refuses every later request from client for the life of the process.
func (g *Gate) Block(client string) {
	g.state.block(client, g.now())
}

// CheckRate records a request from client or refuses it.
func (g *Gate) CheckRate(client string) error {
	if g.IsBlocked(client) {
		return &LimitError{Kind: KindBlocked, Message: MsgBlocked}
	}
	if err := g.state.requests.Allow(client); err != nil {
		var exceeded *ratelimit.ExceededError
		if errors.As(err, &exceeded) {
			return &LimitError{
				Kind:    KindRate,
				Message: fmt.Sprintf("Rate limit exceeded: %d questions per %s", exceeded.Window.Limit, exceeded.Window.Unit),
			}
		}
		return err
	}
	return nil
}

// CheckCost adds cost to the client's totals. Exceeding the daily or
// monthly cap, or a single request above the per-request cap, blocks the
// client.
func (g *Gate) CheckCost(client string, cost float64) error {
	day, month := g.state.addCost(client, cost, g.now())

	var msg string
	switch {
	case day > g.limits.MaxCostPerDay:
		msg = "Daily cost limit exceeded"
	case g.limits.MaxCostPerMonth > 0 && month > g.limits.MaxCostPerMonth:
		msg = "Monthly cost limit exceeded"
	case cost > g.limits.MaxCostPerRequest:
		msg = "Request cost too high"
	default:
		return nil
	}
	g.Block(client)
	return &LimitError{Kind: KindCost, Message: msg}
}

func (g *Gate) CheckTokens(tokens int) error {
	if tokens > g.limits.MaxTokensPerRequest {
		return &LimitError{
			Kind:    KindTokens,
			Message: fmt.Sprintf("Token limit exceeded: %d > %d", tokens, g.limits.MaxTokensPerRequest),
		}
	}
	return nil
}

func (g *Gate) Stats() Stats {
	return g.state.stats(g.now())
}

var injectionPatterns = compileAll(
	`\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|EXEC|EXECUTE)\b`,
	`\b(rm\s+-rf|cat\s+/etc|wget|curl\s+http)`,
	`\.\./|\.\.\\\\`,
	"\\$\\{[^}]+\\}|`[^`]+`",
	`(ignore|forget|system|assistant|user|previous|above|below)`,
	`(repeat|echo|copy|duplicate)`,
	`(token|cost|limit|budget|spend)`,
	`you are now|act as|pretend to be|roleplay`,
	`ignore all|forget everything|disregard`,
	`system:|assistant:|user:`,
	`\[INST\]|\[/INST\]|<\|im_start\|>|<\|im_end\|>`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// SanitizeInput truncates the question and returns "" when it looks like an
// injection attempt. Accepted text is trimmed and HTML-escaped.
func (g *Gate) SanitizeInput(s string) string {
	if s == "" {
		return ""
	}
	if g.limits.MaxInputChars > 0 {
		s = text.Truncate(s, g.limits.MaxInputChars)
	}
	for _, re := range injectionPatterns {
		if re.MatchString(s) {
			return ""
		}
	}
	return html.EscapeString(strings.TrimSpace(s))
}

var (
	artifactPatterns = compileAll(
		`^let me\s+`,
		`^here's\s+`,
		`^note that\s+`,
		`\bi'll\s+`,
		`\bi can\s+`,
	)
	runOfBlanks   = regexp.MustCompile(`[ \t]+`)
	runOfNewlines = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// SanitizeOutput strips filler phrases from a model answer and makes sure it
// ends on a complete sentence.
func (g *Gate) SanitizeOutput(s string) string {
	for _, re := range artifactPatterns {
		s = re.ReplaceAllString(s, "")
	}
	s = strings.TrimSpace(s)

	if s != "" && !strings.ContainsAny(s[len(s)-1:], ".!?") {
		r := []rune(s)
		last := -1
		for i, c := range r {
			if c == '.' || c == '!' || c == '?' {
				last = i
			}
		}
		if float64(last) > float64(len(r))*0.8 {
			s = string(r[:last+1])
		} else {
			s += "."
		}
	}

	s = runOfBlanks.ReplaceAllString(s, " ")
	s = runOfNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
