package dispatcher

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/local/flashdeck/internal/ai"
)

// Substrings of errors that lost their type on the way through a client.
var (
	transientMarkers = []string{"connection refused", "connection reset", "timeout", "network", "eof"}
	fatalMarkers     = []string{"invalid request", "validation failed", "bad request", "malformed"}
)

func containsAny(err error, markers []string) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// isTransientError reports whether the next model in the chain should be
// tried after err.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	// a refusal from one model is worth retrying on another
	if ai.IsContentRefused(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == 429 || (he.StatusCode >= 500 && he.StatusCode < 600)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return containsAny(err, transientMarkers)
}

// isFatalError reports whether err ends the chain: the request itself is bad.
func isFatalError(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 400 && he.StatusCode < 500 && he.StatusCode != 429
	}
	return containsAny(err, fatalMarkers)
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// classify labels err for metrics.
func classify(err error) string {
	switch {
	case err == nil:
		return "success"
	case isTimeoutError(err):
		return "timeout"
	case ai.IsRateLimited(err):
		return "rate_limited"
	case isTransientError(err):
		return "transient"
	case isFatalError(err):
		return "fatal"
	default:
		return "unknown"
	}
}
