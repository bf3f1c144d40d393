package analyzer

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultTextRatioThreshold routes a page to the vision model when less than
	// this share of its content is text. Shallow mode measures text as
	// characters*100 against the full page while deep mode measures OCR boxes
	// against text+graphics, so the same number is stricter in deep mode.
	DefaultTextRatioThreshold = 0.8

	// ComplexityOverride forces the vision model when the complexity score is
	// strictly greater than this value.
	ComplexityOverride = 0.9

	// ShallowCharArea is the pixel area credited to each character in shallow mode.
	ShallowCharArea = 100

	// FallbackTextShare is the share of the page assumed to be text when glyph
	// extraction fails.
	FallbackTextShare = 0.2
)

var (
	// ErrInvalidConfig is wrapped by configuration errors returned from Analyze.
	ErrInvalidConfig = errors.New("invalid analysis config")
	// ErrNoPages is returned when Analyze receives an empty page set.
	ErrNoPages = errors.New("no pages to analyze")
)

// Config controls one analysis run. It is never modified by the analyzer.
type Config struct {
	TextRatioThreshold float64 `json:"text_ratio_threshold"`
	DeepAnalysis       bool    `json:"deep_analysis"`
	// Concurrency bounds the number of pages analyzed at once; 0 or 1 is sequential.
	Concurrency int `json:"concurrency"`
}

// DefaultConfig returns a shallow, sequential configuration.
func DefaultConfig() Config {
	return Config{TextRatioThreshold: DefaultTextRatioThreshold}
}

// Mode names the analysis mode for logs and metrics.
func (c Config) Mode() string {
	if c.DeepAnalysis {
		return "deep"
	}
	return "shallow"
}

// ConfigError describes a rejected configuration or input.
type ConfigError struct {
	Field  string
	Reason string
	err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.err }

// Validate checks the configuration values.
func (c Config) Validate() error {
	t := c.TextRatioThreshold
	if math.IsNaN(t) || t < 0 || t > 1 {
		return &ConfigError{
			Field:  "text_ratio_threshold",
			Reason: fmt.Sprintf("must be within [0, 1], got %v", t),
			err:    ErrInvalidConfig,
		}
	}
	if c.Concurrency < 0 {
		return &ConfigError{
			Field:  "concurrency",
			Reason: fmt.Sprintf("must not be negative, got %d", c.Concurrency),
			err:    ErrInvalidConfig,
		}
	}
	return nil
}
