package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Role of a message in a chat request.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the few-shot conversation. ImageBase64 is optional.
type Message struct {
	Role        Role
	Text        string
	ImageBase64 string // Base64 encoded image, no data URL prefix
	ImageMIME   string // Image MIME type (image/jpeg)
}

// HasImage reports whether the message carries an image.
func (m Message) HasImage() bool { return m.ImageBase64 != "" }

// DataURL returns the image as a data URL.
func (m Message) DataURL() string {
	mime := m.ImageMIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, m.ImageBase64)
}

// Request is a single card-generation call: the system prompt, the ordered
// exemplar messages and, last, the page being processed.
type Request struct {
	JobID        string
	PageID       int
	Model        string
	Timeout      time.Duration
	MaxTokens    int
	SystemPrompt string
	Messages     []Message
}

type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Client interface for providers like OpenAI, Anthropic.
type Client interface {
	Name() string
	Do(ctx context.Context, req Request) (Response, error)
}

var (
	ErrRateLimited    = errors.New("rate_limited")
	ErrContentRefused = errors.New("content_refused")
	ErrMissingAPIKey  = errors.New("missing api key")
)

// StatusError is returned for non-2xx provider responses other than 429.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func IsRateLimited(err error) bool    { return errors.Is(err, ErrRateLimited) }
func IsContentRefused(err error) bool { return errors.Is(err, ErrContentRefused) }

const defaultMaxTokens = 1000
