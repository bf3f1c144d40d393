package page

import (
	"fmt"
	"image"
)

// Page is one rendered document page, the unit of analysis.
type Page struct {
	Index  int // 0-based, stable ordering
	Width  int
	Height int
	Image  image.Image
}

// New wraps a rendered image as a page, taking the dimensions from its bounds.
func New(index int, img image.Image) Page {
	p := Page{Index: index, Image: img}
	if img != nil {
		b := img.Bounds()
		p.Width = b.Dx()
		p.Height = b.Dy()
	}
	return p
}

// Area returns width*height in pixels.
func (p Page) Area() float64 {
	return float64(p.Width) * float64(p.Height)
}

// Validate reports pages that cannot be analyzed.
func (p Page) Validate() error {
	if p.Image == nil {
		return fmt.Errorf("page %d: missing image", p.Index)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("page %d: invalid dimensions %dx%d", p.Index, p.Width, p.Height)
	}
	if p.Index < 0 {
		return fmt.Errorf("page index %d is negative", p.Index)
	}
	return nil
}

// Select returns the pages whose index is listed in indexes, in page order.
// A nil or empty selection returns all pages.
func Select(pages []Page, indexes []int) []Page {
	if len(indexes) == 0 {
		return pages
	}
	want := make(map[int]struct{}, len(indexes))
	for _, i := range indexes {
		want[i] = struct{}{}
	}
	out := make([]Page, 0, len(indexes))
	for _, p := range pages {
		if _, ok := want[p.Index]; ok {
			out = append(out, p)
		}
	}
	return out
}
