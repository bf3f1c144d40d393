package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Tesseract is an Engine backed by libtesseract through gosseract. A fresh
// client is created per call since gosseract clients are not goroutine safe.
type Tesseract struct {
	languages []string
}

// NewTesseract creates an engine for the given languages ("eng" by default).
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{languages: languages}
}

func (t *Tesseract) client(img image.Image) (*gosseract.Client, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	c := gosseract.NewClient()
	if err := c.SetLanguage(t.languages...); err != nil {
		c.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		c.Close()
		return nil, fmt.Errorf("set image: %w", err)
	}
	return c, nil
}

// Text returns the recognized page text.
func (t *Tesseract) Text(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c, err := t.client(img)
	if err != nil {
		return "", err
	}
	defer c.Close()

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract text: %w", err)
	}
	return text, nil
}

// Glyphs returns word-level boxes with confidence.
func (t *Tesseract) Glyphs(ctx context.Context, img image.Image) ([]Glyph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := t.client(img)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract boxes: %w", err)
	}
	glyphs := make([]Glyph, 0, len(boxes))
	for _, b := range boxes {
		glyphs = append(glyphs, Glyph{
			Box:        b.Box,
			Confidence: int(math.Round(b.Confidence)),
			Text:       b.Word,
		})
	}
	return glyphs, nil
}
