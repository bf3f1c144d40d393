package complexity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/local/flashdeck/internal/graphics"
)

func uniformRegions(n int) []graphics.Region {
	regions := make([]graphics.Region, n)
	for i := range regions {
		regions[i] = graphics.NewRegion(i*10, 0, 200, 100)
	}
	return regions
}

func TestScore_Empty(t *testing.T) {
	assert.Zero(t, Score("", nil))
	assert.Equal(t, Breakdown{}, Explain("", nil))
}

func TestExplain_TextComponents(t *testing.T) {
	// "ab cd": 1 special of 5 chars, equal word lengths, no newlines.
	b := Explain("ab cd", nil)
	assert.InDelta(t, 0.2, b.SpecialChars, 1e-9)
	assert.Zero(t, b.WordLengthVariance)
	assert.Zero(t, b.Newlines)
	assert.InDelta(t, 0.2, b.Total, 1e-9)

	// Word lengths 1 and 5: population variance 4, 4/10 exceeds the cap.
	b = Explain("a bcdef", nil)
	assert.InDelta(t, WordVarianceCap, b.WordLengthVariance, 1e-9)

	// 10 newlines -> 0.2
	b = Explain(strings.Repeat("word\n", 10), nil)
	assert.InDelta(t, 0.2, b.Newlines, 1e-9)
}

func TestExplain_NumericRunesAreNotSpecial(t *testing.T) {
	// superscripts, fractions and roman numerals are numbers, not symbols
	assert.Zero(t, Explain("x²½Ⅻ", nil).SpecialChars)
	assert.InDelta(t, 0.25, Explain("x²+½", nil).SpecialChars, 1e-9)
}

func TestExplain_GraphicsComponents(t *testing.T) {
	t.Run("equal sizes have no size variance", func(t *testing.T) {
		b := Explain("", uniformRegions(5))
		assert.InDelta(t, 0.3, b.RegionCount, 1e-9)
		assert.Zero(t, b.SizeVariance)
		assert.InDelta(t, 0.3, b.Total, 1e-9)
	})

	t.Run("two regions", func(t *testing.T) {
		regions := []graphics.Region{
			graphics.NewRegion(0, 0, 10, 10), // 100
			graphics.NewRegion(0, 0, 10, 30), // 300
		}
		// variance 10000, mean 200 -> 10000/201*0.1 = 4.97 -> capped
		b := Explain("", regions)
		assert.InDelta(t, 0.2, b.RegionCount, 1e-9)
		assert.InDelta(t, SizeVarianceCap, b.SizeVariance, 1e-9)
	})

	t.Run("zero-area regions stay defined", func(t *testing.T) {
		regions := []graphics.Region{graphics.NewRegion(0, 0, 0, 0), graphics.NewRegion(5, 5, 0, 0)}
		b := Explain("", regions)
		assert.Zero(t, b.SizeVariance)
		assert.InDelta(t, 0.2, b.RegionCount, 1e-9)
	})
}

func TestScore_ClampedToOne(t *testing.T) {
	text := strings.Repeat("$ x !!!!!!!!!!!!!! \n", 80)
	regions := append(uniformRegions(8), graphics.NewRegion(0, 0, 1000, 1000))

	b := Explain(text, regions)
	assert.Greater(t, b.SpecialChars+b.WordLengthVariance+b.Newlines+b.RegionCount+b.SizeVariance, 1.0)
	assert.InDelta(t, 1.0, b.Total, 1e-9)
}

func TestScore_Bounded(t *testing.T) {
	inputs := []string{"", " ", "\n\n\n", "plain words only", "∑ x² ≥ ∫ f(x) dx", strings.Repeat("#", 5000)}
	for _, text := range inputs {
		for n := 0; n < 15; n++ {
			s := Score(text, uniformRegions(n))
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	}
}

func TestContributions_Monotonic(t *testing.T) {
	prev := -1.0
	for i := 0; i <= 100; i++ {
		v := SpecialCharContribution(float64(i) / 100)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}

	prev = -1.0
	for i := 0; i <= 60; i++ {
		v := WordVarianceContribution(float64(i) / 10)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}

	prev = -1.0
	for n := 0; n <= 40; n++ {
		v := NewlineContribution(n)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}

	prev = -1.0
	for n := 0; n <= 10; n++ {
		v := RegionCountContribution(n)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}

	prev = -1.0
	for i := 0; i <= 50; i++ {
		v := SizeVarianceContribution(float64(i)*10, 100)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func TestScore_MonotonicInRegionCount(t *testing.T) {
	prev := -1.0
	for n := 0; n <= 6; n++ {
		s := Score("same text", uniformRegions(n))
		assert.GreaterOrEqual(t, s, prev)
		prev = s
	}
}

func TestScore_MonotonicInNewlines(t *testing.T) {
	// Keep the special-character ratio fixed by swapping spaces for newlines.
	base := strings.Repeat("ab ", 20)
	prev := -1.0
	for n := 0; n <= 20; n++ {
		text := strings.Replace(base, " ", "\n", n)
		s := Score(text, nil)
		assert.GreaterOrEqual(t, s, prev)
		prev = s
	}
}
