package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/flashdeck/internal/analyzer"
	"github.com/local/flashdeck/internal/cards"
	cfgpkg "github.com/local/flashdeck/internal/config"
	"github.com/local/flashdeck/internal/storage"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "cli.log"))
	t.Setenv("LOG_PRETTY", "false")
	t.Setenv("SEND_LOGS_TO_AXIOM", "0")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "analyze", "cards"})
}

func TestDeckCommands_ArgumentErrors(t *testing.T) {
	_, err := runCLI(t, "analyze")
	assert.ErrorContains(t, err, "accepts 1 arg(s)")

	_, err = runCLI(t, "cards", "--threshold", "1.5", "deck.pdf")
	assert.ErrorContains(t, err, "--threshold must be in [0, 1]")

	_, err = runCLI(t, "analyze", "--pages", "3-1", "deck.pdf")
	assert.ErrorContains(t, err, "invalid page range")

	_, err = runCLI(t, "serve", "extra")
	assert.Error(t, err)
}

func TestCards_RequiresProvider(t *testing.T) {
	_, err := runCLI(t, "cards", "deck.pdf")
	assert.ErrorIs(t, err, errNoProviders)
}

func TestDeckFlags_Resolve(t *testing.T) {
	var f deckFlags
	cmd := &cobra.Command{Use: "x"}
	f.register(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--threshold", "0", "--pages", "2,0"}))

	base := analyzer.Config{TextRatioThreshold: 0.8, DeepAnalysis: true}
	cfg, pages, err := f.resolve(cmd, base)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.TextRatioThreshold)
	assert.True(t, cfg.DeepAnalysis)
	assert.Equal(t, []int{0, 2}, pages)
}

func TestDeckStem(t *testing.T) {
	tests := map[string]string{
		"Cell Biology.pdf":                       "Cell Biology",
		"/tmp/decks/week1.pptx":                  "week1",
		"https://example.com/a/lecture.pdf?x=1":  "lecture",
		"s3://bucket/prefix/slides.key#original": "slides",
	}
	for in, want := range tests {
		assert.Equal(t, want, deckStem(in), in)
	}
}

func TestS3Options(t *testing.T) {
	got := s3Options(cfgpkg.StorageConfig{
		S3Bucket:          "decks",
		S3Prefix:          "flashdeck",
		S3Region:          "eu-central-1",
		S3Endpoint:        "http://minio:9000",
		S3AccessKeyID:     "minio",
		S3SecretAccessKey: "secret",
	})
	assert.Equal(t, storage.S3Options{
		Bucket:          "decks",
		Prefix:          "flashdeck",
		Region:          "eu-central-1",
		Endpoint:        "http://minio:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "secret",
	}, got)
}

func TestWriteCards(t *testing.T) {
	cs := []cards.Card{{Number: 1, Question: "Q", Answer: "A"}}

	var stdout bytes.Buffer
	require.NoError(t, writeCards(&stdout, "-", cs, '\t'))
	assert.Equal(t, "Question\tAnswer\nQ\tA\n", stdout.String())

	path := filepath.Join(t.TempDir(), "cards.csv")
	stdout.Reset()
	require.NoError(t, writeCards(&stdout, path, cs, ','))
	assert.Empty(t, stdout.String())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Question,Answer\nQ,A\n", string(b))

	err = writeCards(&stdout, filepath.Join(t.TempDir(), "missing", "cards.csv"), cs, ',')
	assert.ErrorContains(t, err, "create output")
}
