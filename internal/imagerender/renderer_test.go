package imagerender

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/flashdeck/internal/page"
)

func TestEncodePage_RoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for x := 0; x < 64; x++ {
		img.Set(x, 10, color.RGBA{R: 200, A: 255})
	}

	b64, mime, err := EncodePage(page.New(2, img))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)

	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestEncodeJPEG_QualityClamp(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	b, err := EncodeJPEG(img, 500)
	require.NoError(t, err)
	assert.NotEmpty(t, b)
}

func TestNewRenderer_DefaultDPI(t *testing.T) {
	assert.Equal(t, float64(DefaultDPI), NewRenderer(0).DPI)
	assert.Equal(t, 72.0, NewRenderer(72).DPI)
}

func TestPageCount_MissingFile(t *testing.T) {
	_, err := PageCount("does-not-exist.pdf")
	assert.Error(t, err)
}

func TestCheckSelection(t *testing.T) {
	assert.NoError(t, CheckSelection(nil, 3))
	assert.NoError(t, CheckSelection([]int{0, 2}, 3))

	err := CheckSelection([]int{1, 3}, 3)
	assert.ErrorIs(t, err, ErrPageOutOfRange)
	assert.ErrorContains(t, err, "page 3 (document has 3 pages)")
	assert.ErrorIs(t, CheckSelection([]int{-1}, 3), ErrPageOutOfRange)
}

func TestLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slide.jpg")
	b, err := EncodeJPEG(image.NewGray(image.Rect(0, 0, 30, 20)), 90)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	p, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Index)
	assert.Equal(t, 30, p.Width)
	assert.Equal(t, 20, p.Height)

	_, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
