package dispatcher

import (
	"errors"
	"fmt"

	"github.com/local/flashdeck/internal/ai"
)

// RateLimitError represents a rate limit or timeout error
type RateLimitError struct {
	Provider string
	Model    string
	Reason   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit: %s/%s - %s", e.Provider, e.Model, e.Reason)
}

// HTTPError represents an HTTP status error from AI provider
type HTTPError struct {
	StatusCode int
	Body       string
	Provider   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Provider, e.Body)
}

// ValidationError represents a fatal validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ErrExhausted is returned when every provider/model attempt failed or was skipped.
var ErrExhausted = errors.New("all providers exhausted")

// normalizeError maps client errors onto the dispatcher error types.
func normalizeError(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	if ai.IsRateLimited(err) {
		return &RateLimitError{Provider: provider, Model: model, Reason: "429"}
	}
	if errors.Is(err, ai.ErrMissingAPIKey) {
		return &ValidationError{Message: fmt.Sprintf("%s: %v", provider, err)}
	}
	var se *ai.StatusError
	if errors.As(err, &se) {
		return &HTTPError{StatusCode: se.StatusCode, Body: se.Body, Provider: provider}
	}
	return err
}
