package graphics

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whitePage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Gray{Y: 255}}, image.Point{}, draw.Src)
	return img
}

func fill(img *image.Gray, r image.Rectangle, v uint8) {
	draw.Draw(img, r, &image.Uniform{C: color.Gray{Y: v}}, image.Point{}, draw.Src)
}

func frame(img *image.Gray, r image.Rectangle, thickness int, v uint8) {
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), v)
	fill(img, image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), v)
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), v)
	fill(img, image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), v)
}

func TestOtsuThreshold(t *testing.T) {
	t.Run("bimodal image splits between the modes", func(t *testing.T) {
		img := whitePage(100, 100)
		fill(img, image.Rect(0, 0, 100, 50), 30)
		fill(img, image.Rect(0, 50, 100, 100), 220)

		got := otsuThreshold(img)
		assert.GreaterOrEqual(t, got, uint8(30))
		assert.Less(t, got, uint8(220))
	})

	t.Run("uniform page has no foreground", func(t *testing.T) {
		img := whitePage(64, 64)
		mask := binarizeInv(img, otsuThreshold(img))
		for _, fg := range mask {
			require.False(t, fg)
		}
	})
}

func TestExtractor_Regions(t *testing.T) {
	ex := NewExtractor(DefaultOptions())

	tests := []struct {
		name  string
		draw  func(img *image.Gray)
		boxes []image.Rectangle
	}{
		{
			name:  "blank page",
			draw:  func(*image.Gray) {},
			boxes: nil,
		},
		{
			name: "single block",
			draw: func(img *image.Gray) {
				fill(img, image.Rect(100, 100, 300, 200), 0)
			},
			boxes: []image.Rectangle{image.Rect(100, 100, 300, 200)},
		},
		{
			name: "small noise is dropped",
			draw: func(img *image.Gray) {
				fill(img, image.Rect(10, 10, 50, 50), 0)
				fill(img, image.Rect(400, 300, 449, 400), 0)
			},
			boxes: nil,
		},
		{
			name: "extreme aspect ratios are dropped",
			draw: func(img *image.Gray) {
				fill(img, image.Rect(50, 50, 650, 110), 0)  // 600x60, ratio 10
				fill(img, image.Rect(700, 50, 760, 400), 0) // 60x350, ratio 0.17
			},
			boxes: nil,
		},
		{
			name: "ratio of exactly five is outside the open interval",
			draw: func(img *image.Gray) {
				fill(img, image.Rect(100, 100, 350, 150), 0) // 250x50
			},
			boxes: nil,
		},
		{
			name: "shapes nested in a frame are not reported",
			draw: func(img *image.Gray) {
				frame(img, image.Rect(100, 100, 400, 400), 5, 0)
				fill(img, image.Rect(200, 200, 300, 300), 0)
			},
			boxes: []image.Rectangle{image.Rect(100, 100, 400, 400)},
		},
		{
			name: "separate blocks are each reported",
			draw: func(img *image.Gray) {
				fill(img, image.Rect(50, 50, 250, 150), 0)
				fill(img, image.Rect(400, 300, 600, 400), 0)
			},
			boxes: []image.Rectangle{image.Rect(50, 50, 250, 150), image.Rect(400, 300, 600, 400)},
		},
		{
			name: "diagonal touch joins one component",
			draw: func(img *image.Gray) {
				fill(img, image.Rect(100, 100, 200, 200), 0)
				fill(img, image.Rect(200, 200, 300, 300), 0)
			},
			boxes: []image.Rectangle{image.Rect(100, 100, 300, 300)},
		},
		{
			name: "block touching the page border",
			draw: func(img *image.Gray) {
				fill(img, image.Rect(0, 0, 120, 80), 0)
			},
			boxes: []image.Rectangle{image.Rect(0, 0, 120, 80)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := whitePage(800, 600)
			tt.draw(img)

			regions := ex.Regions(img)
			got := make([]image.Rectangle, 0, len(regions))
			for _, r := range regions {
				got = append(got, r.Box)
			}
			assert.ElementsMatch(t, tt.boxes, got)
		})
	}
}

func TestExtractor_OffsetBounds(t *testing.T) {
	img := image.NewGray(image.Rect(10, 20, 410, 320))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Gray{Y: 255}}, image.Point{}, draw.Src)
	fill(img, image.Rect(110, 120, 210, 220), 0)

	regions := NewExtractor(DefaultOptions()).Regions(img)

	require.Len(t, regions, 1)
	assert.Equal(t, image.Rect(110, 120, 210, 220), regions[0].Box)
}

func TestExtractor_ColorInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(50, 50, 250, 200), &image.Uniform{C: color.RGBA{R: 200, A: 255}}, image.Point{}, draw.Src)

	det := NewExtractor(DefaultOptions()).Detect(img)

	require.Len(t, det.Regions, 1)
	assert.Equal(t, 1, det.Components)
	assert.Equal(t, 200, det.Regions[0].Width())
	assert.Equal(t, 150, det.Regions[0].Height())
}

func TestRegion_Area(t *testing.T) {
	r := NewRegion(5, 5, 200, 100)
	assert.InDelta(t, 20000.0, r.Area(), 1e-9)
}
