package statuscheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeBucket struct{ err error }

func (f fakeBucket) HeadBucket(context.Context) error { return f.err }

type fakeConverter struct{ err error }

func (f fakeConverter) Available() error { return f.err }

func TestSummary(t *testing.T) {
	var gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/openai/models"):
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/anthropic/models"):
			gotKey = r.Header.Get("x-api-key")
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(Options{
		Queue:     pingFunc(func(context.Context) error { return nil }),
		Store:     pingFunc(func(context.Context) error { return errors.New("database is locked") }),
		Bucket:    fakeBucket{},
		Converter: fakeConverter{err: errors.New("soffice: not found")},
		OCRBinary: "definitely-not-a-binary-xyz",
		OpenAI:    Provider{APIKey: " sk-test ", BaseURL: srv.URL + "/openai/"},
		Anthropic: Provider{APIKey: "ak-test", BaseURL: srv.URL + "/anthropic"},
	})
	s := c.Summary(context.Background())

	assert.Equal(t, Status{OK: true, Message: "Connected"}, s.Queue)
	assert.Equal(t, Status{OK: false, Message: "database is locked"}, s.Store)
	assert.True(t, s.S3.OK)
	assert.Equal(t, Status{OK: false, Message: "Binary not found"}, s.LibreOffice)
	assert.False(t, s.Tesseract.OK)
	assert.True(t, s.OpenAI.OK)
	assert.Equal(t, "HTTP 401", s.Anthropic.Message)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "ak-test", gotKey)
	assert.False(t, s.Ready())
}

func TestSummary_Unconfigured(t *testing.T) {
	s := New(Options{}).Summary(context.Background())
	assert.Equal(t, "client unavailable", s.Queue.Message)
	assert.Equal(t, "Bucket not configured", s.S3.Message)
	assert.Equal(t, "Converter not configured", s.LibreOffice.Message)
	assert.Equal(t, "API key missing", s.OpenAI.Message)
	assert.Equal(t, "API key missing", s.Anthropic.Message)
	assert.False(t, s.Ready())
}

func TestReady(t *testing.T) {
	up := Status{OK: true}
	require.True(t, Summary{Queue: up, Store: up, Anthropic: up}.Ready())
	require.False(t, Summary{Queue: up, Anthropic: up}.Ready())
}

func TestTrimError(t *testing.T) {
	assert.Equal(t, "timeout", trimError(context.DeadlineExceeded))
	assert.Len(t, trimError(errors.New(strings.Repeat("x", 300))), 120)
	assert.Empty(t, trimError(nil))
}
