// Package ocr wraps an OCR engine behind result values: engine failures are
// captured in the result instead of aborting the caller.
package ocr

import (
	"context"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	mpkg "github.com/local/flashdeck/internal/metrics"
	"github.com/local/flashdeck/internal/page"
)

// MinConfidence is the confidence a glyph must exceed to count towards the
// measured text area.
const MinConfidence = 60

// Glyph is one recognized word with its bounding box and confidence (0-100).
type Glyph struct {
	Box        image.Rectangle
	Confidence int
	Text       string
}

// Area returns the bounding box area in pixels.
func (g Glyph) Area() float64 {
	return float64(g.Box.Dx()) * float64(g.Box.Dy())
}

// Trusted reports whether the glyph is confident enough for area measurement.
func (g Glyph) Trusted() bool { return g.Confidence > MinConfidence }

// Engine is the OCR backend.
type Engine interface {
	Text(ctx context.Context, img image.Image) (string, error)
	Glyphs(ctx context.Context, img image.Image) ([]Glyph, error)
}

// TextResult is the outcome of string extraction. On failure Text is empty.
type TextResult struct {
	Text string
	Err  error
}

// GlyphResult is the outcome of glyph extraction.
type GlyphResult struct {
	Glyphs []Glyph
	Err    error
}

// OK reports whether the engine produced glyphs without error.
func (r GlyphResult) OK() bool { return r.Err == nil }

// Extractor runs the engine on grayscale-normalized page images.
type Extractor struct {
	engine Engine
}

// NewExtractor wraps engine.
func NewExtractor(engine Engine) *Extractor {
	return &Extractor{engine: engine}
}

// Text extracts the raw page string. Engine errors degrade to an empty string.
func (e *Extractor) Text(ctx context.Context, p page.Page) TextResult {
	start := time.Now()
	text, err := e.engine.Text(ctx, normalize(p.Image))
	if err != nil {
		mpkg.IncOCRFallback("text")
		log.Warn().Err(err).Int("page", p.Index).Msg("ocr text extraction failed; using empty text")
		return TextResult{Err: err}
	}
	log.Debug().
		Int("page", p.Index).
		Int("chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("ocr text extracted")
	return TextResult{Text: text}
}

// Glyphs extracts word boxes. The caller decides the fallback when Err is set.
func (e *Extractor) Glyphs(ctx context.Context, p page.Page) GlyphResult {
	glyphs, err := e.engine.Glyphs(ctx, normalize(p.Image))
	if err != nil {
		mpkg.IncOCRFallback("glyphs")
		log.Warn().Err(err).Int("page", p.Index).Msg("ocr glyph extraction failed")
		return GlyphResult{Err: err}
	}
	return GlyphResult{Glyphs: glyphs}
}

// normalize converts the page to grayscale before recognition.
func normalize(img image.Image) image.Image {
	if _, ok := img.(*image.Gray); ok {
		return img
	}
	return imaging.Grayscale(img)
}
