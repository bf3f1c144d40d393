package filetype

import (
	"archive/zip"
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func zipBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("content.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("slides"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDetectBytes(t *testing.T) {
	d := New()
	tests := []struct {
		name       string
		data       []byte
		file       string
		kind       Kind
		conversion bool
	}{
		{"pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n"), "deck.pdf", KindPDF, false},
		{"png", pngBytes(t), "slide.png", KindImage, false},
		{"zip named pptx", zipBytes(t), "deck.pptx", KindPresentation, true},
		{"zip named odp", zipBytes(t), "deck.odp", KindPresentation, true},
		{"plain zip", zipBytes(t), "archive.zip", KindUnsupported, false},
		{"text", []byte("just some notes\n"), "notes.txt", KindUnsupported, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info := d.detectBytes(tc.data, tc.file)
			assert.Equal(t, tc.kind, info.Kind, info.MIMEType)
			assert.Equal(t, tc.conversion, info.NeedsConversion())
			assert.Equal(t, tc.kind != KindUnsupported, info.Supported())
		})
	}
}

func TestDetect_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slide.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t), 0o600))

	info, err := New().Detect(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.MIMEType)

	_, err = New().Detect(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
