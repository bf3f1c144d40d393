package imagerender

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/flashdeck/internal/page"
)

const (
	DefaultDPI         = 150
	DefaultJPEGQuality = 85
	JPEGMIME           = "image/jpeg"
)

// ErrPageOutOfRange is returned for a selection naming a page the document
// does not have.
var ErrPageOutOfRange = errors.New("page out of range")

// PageCount returns the number of pages of a PDF without rendering it.
func PageCount(pdfPath string) (int, error) {
	n, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// CheckSelection rejects 0-based indexes outside a document of total pages.
func CheckSelection(indexes []int, total int) error {
	for _, idx := range indexes {
		if idx < 0 || idx >= total {
			return fmt.Errorf("%w: page %d (document has %d pages)", ErrPageOutOfRange, idx, total)
		}
	}
	return nil
}

// Renderer rasterizes PDF pages.
type Renderer struct {
	DPI float64
}

func NewRenderer(dpi float64) *Renderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Renderer{DPI: dpi}
}

// PageCount validates pdfPath and counts its pages.
func (r *Renderer) PageCount(pdfPath string) (int, error) { return PageCount(pdfPath) }

// RenderFile renders the listed 0-based page indexes of pdfPath, or every
// page when indexes is empty. Out-of-range indexes are an error.
func (r *Renderer) RenderFile(ctx context.Context, pdfPath string, indexes []int) ([]page.Page, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if len(indexes) == 0 {
		indexes = make([]int, total)
		for i := range indexes {
			indexes[i] = i
		}
	}

	if err := CheckSelection(indexes, total); err != nil {
		return nil, err
	}

	start := time.Now()
	pages := make([]page.Page, 0, len(indexes))
	for _, idx := range indexes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(idx, r.DPI)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", idx, err)
		}
		pages = append(pages, page.New(idx, img))
		log.Debug().
			Int("page", idx).
			Int("width", img.Bounds().Dx()).
			Int("height", img.Bounds().Dy()).
			Float64("dpi", r.DPI).
			Msg("rendered page")
	}

	log.Info().
		Str("pdf", pdfPath).
		Int("pages", len(pages)).
		Int("total_pages", total).
		Dur("duration", time.Since(start)).
		Msg("rendered document")
	return pages, nil
}

// EncodeJPEG encodes img as JPEG bytes.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePage returns the page image as base64 JPEG plus its MIME type, the
// form vision requests carry.
func EncodePage(p page.Page) (string, string, error) {
	b, err := EncodeJPEG(p.Image, DefaultJPEGQuality)
	if err != nil {
		return "", "", fmt.Errorf("page %d: %w", p.Index, err)
	}
	return EncodeToBase64(b), JPEGMIME, nil
}

// EncodeToBase64 converts binary data to base64 string
func EncodeToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// LoadImage opens a single image file as page 0.
func LoadImage(path string) (page.Page, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return page.Page{}, fmt.Errorf("failed to open image: %w", err)
	}
	return page.New(0, img), nil
}
