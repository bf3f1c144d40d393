// Package statuscheck reports the readiness of the services a deck job
// depends on.
package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// Pinger is anything with a connectivity check: the queue, the job store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BucketChecker is satisfied by storage.S3Client.
type BucketChecker interface {
	HeadBucket(ctx context.Context) error
}

// Converter is satisfied by converter.LibreOffice.
type Converter interface {
	Available() error
}

// Provider describes one model provider to check.
type Provider struct {
	APIKey  string
	BaseURL string
}

type Options struct {
	Queue      Pinger
	Store      Pinger
	Bucket     BucketChecker
	Converter  Converter
	OCRBinary  string
	OpenAI     Provider
	Anthropic  Provider
	HTTPClient *http.Client
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type Summary struct {
	Queue       Status `json:"queue"`
	Store       Status `json:"store"`
	S3          Status `json:"s3"`
	LibreOffice Status `json:"libreoffice"`
	Tesseract   Status `json:"tesseract"`
	OpenAI      Status `json:"openai"`
	Anthropic   Status `json:"anthropic"`
}

// Ready reports whether jobs can be accepted and run: queue and store must
// be up and at least one provider must answer.
func (s Summary) Ready() bool {
	return s.Queue.OK && s.Store.OK && (s.OpenAI.OK || s.Anthropic.OK)
}

type Checker struct {
	opts Options
}

func New(opts Options) *Checker {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.OCRBinary == "" {
		opts.OCRBinary = "tesseract"
	}
	opts.OpenAI.APIKey = strings.TrimSpace(opts.OpenAI.APIKey)
	opts.Anthropic.APIKey = strings.TrimSpace(opts.Anthropic.APIKey)
	if opts.OpenAI.BaseURL == "" {
		opts.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Anthropic.BaseURL == "" {
		opts.Anthropic.BaseURL = "https://api.anthropic.com/v1"
	}
	return &Checker{opts: opts}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Queue:       ping(ctx, c.opts.Queue),
		Store:       ping(ctx, c.opts.Store),
		S3:          c.checkS3(ctx),
		LibreOffice: c.checkLibreOffice(),
		Tesseract:   c.checkBinary(c.opts.OCRBinary),
		OpenAI: c.checkProvider(ctx, c.opts.OpenAI, "/models?limit=1", map[string]string{
			"Authorization": "Bearer " + c.opts.OpenAI.APIKey,
		}),
		Anthropic: c.checkProvider(ctx, c.opts.Anthropic, "/models", map[string]string{
			"x-api-key":         c.opts.Anthropic.APIKey,
			"anthropic-version": "2023-06-01",
		}),
	}
}

func ping(ctx context.Context, p Pinger) Status {
	if p == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.opts.Bucket == nil {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.opts.Bucket.HeadBucket(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkLibreOffice() Status {
	if c.opts.Converter == nil {
		return Status{OK: false, Message: "Converter not configured"}
	}
	if err := c.opts.Converter.Available(); err != nil {
		return Status{OK: false, Message: "Binary not found"}
	}
	return Status{OK: true, Message: "Available"}
}

func (c *Checker) checkBinary(name string) Status {
	if _, err := exec.LookPath(name); err != nil {
		return Status{OK: false, Message: "Binary not found"}
	}
	return Status{OK: true, Message: "Available"}
}

func (c *Checker) checkProvider(ctx context.Context, p Provider, path string, headers map[string]string) Status {
	if p.APIKey == "" {
		return Status{OK: false, Message: "API key missing"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.BaseURL, "/")+path, nil)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
