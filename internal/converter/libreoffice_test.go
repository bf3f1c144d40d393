package converter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/out", "lecture 3.pdf"), expectedOutputPath("/in/lecture 3.pptx", "/out"))
}

func TestValidateInput(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.pptx")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	assert.ErrorContains(t, validateInput(filepath.Join(dir, "missing.pptx")), "file not found")
	assert.ErrorContains(t, validateInput(dir), "directory")
	assert.ErrorContains(t, validateInput(empty), "empty")
}

func TestConvertToPDF_MissingBinary(t *testing.T) {
	input := filepath.Join(t.TempDir(), "deck.pptx")
	require.NoError(t, os.WriteFile(input, []byte("PK"), 0o600))

	l := NewLibreOffice("definitely-not-libreoffice-binary", 1, 0)
	_, err := l.ConvertToPDF(context.Background(), Job{InputPath: input})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestConvertToPDF_Cancelled(t *testing.T) {
	l := NewLibreOffice("", 1, 0)
	l.semaphore <- struct{}{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.ConvertToPDF(ctx, Job{InputPath: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
