// Package adapter holds what the provider adapters share: error
// classification and retry timing.
package adapter

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

var (
	// ErrTransient marks failures worth retrying: rate limits, 5xx, timeouts.
	ErrTransient = errors.New("transient provider failure")
	// ErrContextLength marks inputs the model rejected as too long.
	ErrContextLength = errors.New("maximum context length exceeded")
)

// IsContextLength also matches unwrapped provider messages.
func IsContextLength(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrContextLength) || strings.Contains(err.Error(), "maximum context length")
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// TransientStatus reports whether an HTTP status is worth retrying.
func TransientStatus(code int) bool {
	return code == 429 || code >= 500
}

// Backoff doubles base per attempt, caps at 30s and adds up to ±25% jitter.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := base * time.Duration(1<<uint(attempt)) // #nosec G115 -- attempt is clamped
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4 // #nosec G404 -- jitter needs no crypto
	return backoff + jitter
}
