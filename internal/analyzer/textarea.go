package analyzer

import (
	"github.com/local/flashdeck/internal/ocr"
	"github.com/local/flashdeck/internal/page"
)

// estimateTextArea sums the boxes of trusted glyphs. When glyph extraction
// failed the page is assumed to be FallbackTextShare text.
func estimateTextArea(res ocr.GlyphResult, p page.Page) float64 {
	if !res.OK() {
		return p.Area() * FallbackTextShare
	}
	area := 0.0
	for _, g := range res.Glyphs {
		if g.Trusted() {
			area += g.Area()
		}
	}
	return area
}
