package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		in          string
		bucket, key string
		wantErr     bool
	}{
		{in: "s3://decks/2026/lecture.pdf", bucket: "decks", key: "2026/lecture.pdf"},
		{in: "s3://decks/", wantErr: true},
		{in: "s3://decks", wantErr: true},
		{in: "s3:///key", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			b, k, err := ParseS3URL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, b)
			assert.Equal(t, tt.key, k)
		})
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "exports/j1/cards.csv", objectKey("exports", "j1", "cards.csv"))
	assert.Equal(t, "j1/cards.csv", objectKey("", "j1", "cards.csv"))
}

func TestNextVersion(t *testing.T) {
	keys := []string{"p/j1/cards_v1.csv", "p/j1/cards_v3.csv", "p/j1/cards_vx.csv", "p/j1/other.csv"}
	assert.Equal(t, 4, nextVersion("p/j1/cards", keys))
	assert.Equal(t, 1, nextVersion("p/j1/cards", nil))
}

func TestFetch_LocalPaths(t *testing.T) {
	p, cleanup, err := Fetch(context.Background(), "/tmp/deck.pdf#page=2", "", S3Options{})
	require.NoError(t, err)
	cleanup()
	assert.Equal(t, "/tmp/deck.pdf", p)

	p, cleanup, err = Fetch(context.Background(), "file:///data/deck.pptx", "", S3Options{})
	require.NoError(t, err)
	cleanup()
	assert.Equal(t, "/data/deck.pptx", p)
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	p, cleanup, err := Fetch(context.Background(), srv.URL+"/lecture.pdf?sig=abc", dir, S3Options{})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(p))
	assert.True(t, strings.HasSuffix(p, "lecture.pdf"))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(b))

	cleanup()
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))

	_, _, err = Fetch(context.Background(), srv.URL+"/missing.pdf", dir, S3Options{})
	assert.ErrorContains(t, err, "http 404")
}

func TestFetch_InvalidS3(t *testing.T) {
	_, cleanup, err := Fetch(context.Background(), "s3://bucket-only", "", S3Options{})
	assert.Error(t, err)
	assert.NotNil(t, cleanup)
}

func TestNewS3Client_Endpoint(t *testing.T) {
	_, err := NewS3Client(context.Background(), S3Options{})
	assert.Error(t, err)

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
		if strings.HasPrefix(r.URL.Path, "/decks") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewS3Client(context.Background(), S3Options{
		Bucket:          "decks",
		Prefix:          "/exports/",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "minio",
		SecretAccessKey: "minio-secret",
	})
	require.NoError(t, err)
	require.NoError(t, c.HeadBucket(context.Background()))
	assert.Equal(t, "/decks", gotPath)
	assert.Contains(t, gotAuth, "Credential=minio/")
	assert.Equal(t, "exports/j1/cards", c.Key("j1", "cards"))

	other, err := NewS3Client(context.Background(), S3Options{Bucket: "missing", Region: "us-east-1", Endpoint: srv.URL, AccessKeyID: "a", SecretAccessKey: "b"})
	require.NoError(t, err)
	assert.Error(t, other.HeadBucket(context.Background()))
}

func TestFetch_S3UsesConfiguredEndpoint(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
		if r.URL.Path != "/decks/uploads/j1/deck.bin" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("x-amz-meta-name", "Cell Biology.pdf")
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	opts := S3Options{
		Bucket:          "ignored",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "minio",
		SecretAccessKey: "minio-secret",
	}
	dir := t.TempDir()
	p, cleanup, err := Fetch(context.Background(), "s3://decks/uploads/j1/deck.bin", dir, opts)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "/decks/uploads/j1/deck.bin", gotPath)
	assert.Contains(t, gotAuth, "Credential=minio/")
	assert.Equal(t, dir, filepath.Dir(p))
	assert.True(t, strings.HasSuffix(p, "-Cell Biology.pdf"), p)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(b))
}

func TestCopyObjectWithMetadata(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><CopyObjectResult><ETag>"abc"</ETag></CopyObjectResult>`))
	}))
	defer srv.Close()

	c, err := NewS3Client(context.Background(), S3Options{
		Bucket: "decks", Region: "us-east-1", Endpoint: srv.URL, AccessKeyID: "a", SecretAccessKey: "b",
	})
	require.NoError(t, err)

	assert.Error(t, c.CopyObjectWithMetadata(context.Background(), "", "x", "text/csv", nil))

	err = c.CopyObjectWithMetadata(context.Background(), "exports/j1/cards_v2.csv", "exports/j1/cards_latest.csv",
		"text/csv", map[string]string{"job-id": "j1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/decks/exports/j1/cards_latest.csv", got.URL.Path)
	assert.Equal(t, "decks/exports/j1/cards_v2.csv", got.Header.Get("X-Amz-Copy-Source"))
	assert.Equal(t, "REPLACE", got.Header.Get("X-Amz-Metadata-Directive"))
	assert.Equal(t, "j1", got.Header.Get("X-Amz-Meta-Job-Id"))
	assert.Equal(t, "text/csv", got.Header.Get("Content-Type"))
}
