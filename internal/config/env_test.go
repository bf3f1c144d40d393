package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("TEXT_RATIO_THRESHOLD", "")
	t.Setenv("CSV_DELIMITER", "")
	t.Setenv("OPENAI_TIMEOUT", "")
	t.Setenv("LIBREOFFICE_BIN", "")
	t.Setenv("DATABASE_PATH", "")

	cfg := FromEnv()
	assert.Equal(t, "soffice", cfg.Analysis.ConverterBinary)
	assert.Equal(t, 2*time.Minute, cfg.Analysis.ConvertTimeout)
	assert.Equal(t, "data/flashdeck.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 0.8, cfg.Analysis.TextRatioThreshold)
	assert.False(t, cfg.Analysis.Deep)
	assert.Equal(t, 150.0, cfg.Analysis.DPI)
	assert.Equal(t, ';', cfg.Worker.CSVDelimiter)
	assert.Equal(t, cfg.Worker.RequestTimeout, cfg.Worker.Timeout("openai"))
	assert.Equal(t, "openai", cfg.Providers.PrimaryEngine)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("TEXT_RATIO_THRESHOLD", "0.65")
	t.Setenv("DEEP_ANALYSIS", "yes")
	t.Setenv("OCR_LANGUAGES", "eng+deu")
	t.Setenv("CSV_DELIMITER", `\t`)
	t.Setenv("ANTHROPIC_TIMEOUT", "15s")
	t.Setenv("OPENAI_API_KEY", "sk-123")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg := FromEnv()
	assert.Equal(t, 0.65, cfg.Analysis.TextRatioThreshold)
	assert.True(t, cfg.Analysis.Deep)
	assert.Equal(t, []string{"eng", "deu"}, cfg.Analysis.OCRLanguages)
	assert.Equal(t, '\t', cfg.Worker.CSVDelimiter)
	assert.Equal(t, 15*time.Second, cfg.Worker.Timeout("anthropic"))
	assert.Equal(t, "sk-123", cfg.Providers.Models("openai").APIKey)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Empty(t, cfg.Providers.Models("mistral").Primary)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("S3_BUCKET=decks\nRESULT_DIR=/var/out\n"), 0o600))
	t.Setenv("RESULT_DIR", "/from/env")
	t.Cleanup(func() { os.Unsetenv("S3_BUCKET") })

	cfg := Load(path)
	assert.Equal(t, "decks", cfg.Storage.S3Bucket)
	assert.Equal(t, "/from/env", cfg.Storage.ResultDir)
}

func TestParseRune(t *testing.T) {
	assert.Equal(t, ',', parseRune(",", ';'))
	assert.Equal(t, ';', parseRune("", ';'))
	assert.Equal(t, ';', parseRune("ab", ';'))
}
