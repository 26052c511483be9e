package llm

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// quotaThreshold is the remaining-token floor below which calls wait for the
// provider window to reset before sending another request.
const quotaThreshold = 4000

// quotaTransport captures OpenAI rate-limit headers from responses. The
// values feed waitIfLow, which pauses callers before the provider starts
// rejecting requests outright.
type quotaTransport struct {
	base http.RoundTripper

	mu              sync.Mutex
	seen            bool
	remainingTokens int
	resetAfter      time.Duration
	processingMs    int64
}

func newQuotaTransport(base http.RoundTripper) *quotaTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &quotaTransport{base: base}
}

func (t *quotaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil && resp != nil {
		t.capture(resp.Header)
	}
	return resp, err
}

func (t *quotaTransport) capture(h http.Header) {
	remaining := h.Get("x-ratelimit-remaining-tokens")
	if remaining == "" {
		return
	}
	n, err := strconv.Atoi(remaining)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = true
	t.remainingTokens = n
	t.resetAfter = 0
	// Reset headers arrive as Go-parseable durations ("5m33s", "599ms").
	if reset := h.Get("x-ratelimit-reset-tokens"); reset != "" {
		if d, err := time.ParseDuration(reset); err == nil {
			t.resetAfter = d
		}
	}
	if ms := h.Get("openai-processing-ms"); ms != "" {
		if v, err := strconv.ParseInt(ms, 10, 64); err == nil {
			t.processingMs = v
		}
	}
}

// waitIfLow blocks until the token window resets when the last response
// reported fewer than quotaThreshold remaining tokens. An unparseable or
// absent reset duration means no wait.
func (t *quotaTransport) waitIfLow(ctx context.Context, logger *slog.Logger) error {
	t.mu.Lock()
	seen, remaining, reset := t.seen, t.remainingTokens, t.resetAfter
	t.mu.Unlock()

	if !seen || remaining >= quotaThreshold || reset <= 0 {
		return nil
	}

	logger.Info("token quota low, waiting for reset",
		"remaining_tokens", remaining,
		"wait", reset)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(reset):
	}

	// The window has passed; do not wait again until a fresh reading.
	t.mu.Lock()
	t.seen = false
	t.mu.Unlock()
	return nil
}

// lastProcessingMs returns the provider-reported processing time of the most
// recent response.
func (t *quotaTransport) lastProcessingMs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processingMs
}
