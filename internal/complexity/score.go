// Package complexity turns OCR text and graphic regions into a bounded layout
// complexity score used by the page router.
package complexity

import (
	"math"
	"strings"
	"unicode"

	"github.com/local/flashdeck/internal/graphics"
)

// Caps for each named contribution. The total is clamped to MaxScore.
const (
	SpecialCharCap  = 0.4
	WordVarianceCap = 0.3
	NewlineCap      = 0.3
	RegionCountCap  = 0.3
	SizeVarianceCap = 0.3

	MaxScore = 1.0
)

// Breakdown lists the capped contribution of every signal.
type Breakdown struct {
	SpecialChars       float64 `json:"special_chars"`
	WordLengthVariance float64 `json:"word_length_variance"`
	Newlines           float64 `json:"newlines"`
	RegionCount        float64 `json:"region_count"`
	SizeVariance       float64 `json:"size_variance"`
	Total              float64 `json:"total"`
}

// Score returns the complexity of a page in [0, 1].
func Score(text string, regions []graphics.Region) float64 {
	return Explain(text, regions).Total
}

// Explain computes the score together with its components.
func Explain(text string, regions []graphics.Region) Breakdown {
	var b Breakdown

	if text != "" {
		b.SpecialChars = SpecialCharContribution(specialCharRatio(text))
		b.WordLengthVariance = WordVarianceContribution(wordLengthVariance(text))
		b.Newlines = NewlineContribution(strings.Count(text, "\n"))
	}

	if len(regions) > 0 {
		areas := make([]float64, len(regions))
		for i, r := range regions {
			areas[i] = r.Area()
		}
		b.RegionCount = RegionCountContribution(len(regions))
		b.SizeVariance = SizeVarianceContribution(variance(areas), mean(areas))
	}

	sum := b.SpecialChars + b.WordLengthVariance + b.Newlines + b.RegionCount + b.SizeVariance
	b.Total = math.Max(0, math.Min(MaxScore, sum))
	return b
}

// SpecialCharContribution maps the share of non-alphanumeric characters.
func SpecialCharContribution(ratio float64) float64 {
	return capped(ratio, SpecialCharCap)
}

// WordVarianceContribution maps the population variance of word lengths.
func WordVarianceContribution(v float64) float64 {
	return capped(v/10, WordVarianceCap)
}

// NewlineContribution maps the number of line breaks.
func NewlineContribution(n int) float64 {
	return capped(float64(n)/50, NewlineCap)
}

// RegionCountContribution maps the number of graphic regions.
func RegionCountContribution(n int) float64 {
	return capped(float64(n)/10, RegionCountCap)
}

// SizeVarianceContribution maps the variance of region areas normalized by the
// mean area. The +1 keeps the ratio defined when every area is zero.
func SizeVarianceContribution(v, meanArea float64) float64 {
	return capped(v/(meanArea+1)*0.1, SizeVarianceCap)
}

func capped(v, limit float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return math.Min(v, limit)
}

func specialCharRatio(text string) float64 {
	var total, special int
	for _, r := range text {
		total++
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			special++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(special) / float64(total)
}

func wordLengthVariance(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	lengths := make([]float64, len(words))
	for i, w := range words {
		lengths[i] = float64(len([]rune(w)))
	}
	return variance(lengths)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// variance is the population variance.
func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var s float64
	for _, x := range xs {
		d := x - m
		s += d * d
	}
	return s / float64(len(xs))
}
