package graphics

import (
	"image"

	"github.com/rs/zerolog/log"
)

const (
	// Minimum bounding box side in pixels; smaller components are treated as noise.
	MinRegionWidth  = 50
	MinRegionHeight = 50

	// Open interval of accepted width/height ratios.
	MinAspectRatio = 0.2
	MaxAspectRatio = 5.0
)

// Region is the bounding box of one graphic element on a page.
type Region struct {
	Box image.Rectangle
}

// NewRegion builds a region from x, y, width and height.
func NewRegion(x, y, w, h int) Region {
	return Region{Box: image.Rect(x, y, x+w, y+h)}
}

func (r Region) Width() int  { return r.Box.Dx() }
func (r Region) Height() int { return r.Box.Dy() }

// Area returns width*height of the bounding box.
func (r Region) Area() float64 {
	return float64(r.Box.Dx()) * float64(r.Box.Dy())
}

// Options controls region filtering.
type Options struct {
	MinWidth  int
	MinHeight int
	MinAspect float64
	MaxAspect float64
}

// DefaultOptions returns the standard size and aspect-ratio filter.
func DefaultOptions() Options {
	return Options{
		MinWidth:  MinRegionWidth,
		MinHeight: MinRegionHeight,
		MinAspect: MinAspectRatio,
		MaxAspect: MaxAspectRatio,
	}
}

// Detection carries the intermediate values of one segmentation pass.
type Detection struct {
	Threshold  uint8
	Components int // external components before filtering
	Regions    []Region
}

// Extractor finds graphic regions in page images. It is stateless and safe for
// concurrent use.
type Extractor struct {
	opts Options
}

// NewExtractor creates an extractor with the given filter options.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// Regions returns the filtered graphic regions of img.
func (e *Extractor) Regions(img image.Image) []Region {
	return e.Detect(img).Regions
}

// Detect converts img to grayscale, binarizes it with an Otsu threshold, traces
// the external components and keeps the ones that pass the size and aspect
// filters.
func (e *Extractor) Detect(img image.Image) Detection {
	gray := toGrayscale(img)
	t := otsuThreshold(gray)
	mask := binarizeInv(gray, t)

	b := gray.Bounds()
	boxes := externalComponents(mask, b.Dx(), b.Dy())

	det := Detection{Threshold: t, Components: len(boxes)}
	for _, box := range boxes {
		r := Region{Box: box.Add(b.Min)}
		if e.keep(r) {
			det.Regions = append(det.Regions, r)
		}
	}

	log.Debug().
		Int("threshold", int(t)).
		Int("components", det.Components).
		Int("regions", len(det.Regions)).
		Msg("graphics segmentation")

	return det
}

func (e *Extractor) keep(r Region) bool {
	w, h := r.Width(), r.Height()
	if w < e.opts.MinWidth || h < e.opts.MinHeight {
		return false
	}
	aspect := float64(w) / float64(h)
	return aspect > e.opts.MinAspect && aspect < e.opts.MaxAspect
}
