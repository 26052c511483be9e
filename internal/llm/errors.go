package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFatalAPI marks provider errors that no amount of retrying can fix,
// such as bad credentials or a disabled billing account. Rate limits are
// deliberately not fatal; the retry and quota layers handle those.
var ErrFatalAPI = errors.New("fatal API error")

var fatalPatterns = []string{
	"invalid api key",
	"incorrect api key",
	"authentication failed",
	"unauthorized",
	"billing",
	"credit balance",
	"account deactivated",
	"http 401",
	"http 403",
}

// isFatalAPIError reports whether err indicates a non-retryable provider
// failure.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// wrapFatalError wraps fatal provider errors with ErrFatalAPI so callers can
// match them with errors.Is. Non-fatal errors pass through unchanged.
func wrapFatalError(err error) error {
	if err == nil {
		return nil
	}
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	}
	return err
}
