package graphics

import (
	"image"
	"image/draw"
)

// toGrayscale converts an image to 8-bit grayscale.
func toGrayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// otsuThreshold picks the global threshold that maximizes the between-class
// variance of the intensity histogram.
func otsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[img.GrayAt(x, y).Y]++
		}
	}

	total := float64(b.Dx() * b.Dy())
	if total == 0 {
		return 0
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var (
		sumB, wB  float64
		best      float64
		threshold int
	)
	for i := 0; i < 256; i++ {
		wB += float64(hist[i])
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * float64(hist[i])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = i
		}
	}
	return uint8(threshold)
}

// binarizeInv marks pixels at or below t as foreground (dark content on a
// light page). The mask is indexed y*width+x relative to the image origin.
func binarizeInv(img *image.Gray, t uint8) []bool {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mask[y*w+x] = img.GrayAt(b.Min.X+x, b.Min.Y+y).Y <= t
		}
	}
	return mask
}
