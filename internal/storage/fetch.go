package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Fetch resolves ref to a local file. Supported forms:
//   - file://path or a plain filesystem path
//   - http(s):// URLs, downloaded into dir
//   - s3://bucket/key, downloaded into dir with s3opts (its Bucket is
//     taken from the reference)
//
// The returned cleanup removes any downloaded copy and is never nil.
func Fetch(ctx context.Context, ref, dir string, s3opts S3Options) (string, func(), error) {
	noop := func() {}
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}

	var (
		name string
		data io.ReadCloser
	)
	switch {
	case strings.HasPrefix(ref, "s3://"):
		bucket, key, err := ParseS3URL(ref)
		if err != nil {
			return "", noop, err
		}
		s3opts.Bucket = bucket
		cli, err := NewS3Client(ctx, s3opts)
		if err != nil {
			return "", noop, err
		}
		b, meta, err := cli.DownloadFile(ctx, key)
		if err != nil {
			return "", noop, err
		}
		name = path.Base(key)
		if meta.OriginalName != "" {
			name = meta.OriginalName
		}
		data = io.NopCloser(bytes.NewReader(b))
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		body, err := httpGet(ctx, ref)
		if err != nil {
			return "", noop, err
		}
		name = path.Base(strings.SplitN(ref, "?", 2)[0])
		data = body
	case strings.HasPrefix(ref, "file://"):
		return strings.TrimPrefix(ref, "file://"), noop, nil
	default:
		return ref, noop, nil
	}
	defer data.Close()

	f, err := os.CreateTemp(dir, "fetch-*-"+sanitizeName(name))
	if err != nil {
		return "", noop, fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, data); err != nil {
		_ = os.Remove(f.Name())
		return "", noop, fmt.Errorf("write %s: %w", f.Name(), err)
	}
	log.Info().Str("ref", ref).Str("file", filepath.Base(f.Name())).Msg("fetched remote deck")
	local := f.Name()
	return local, func() { _ = os.Remove(local) }, nil
}

func httpGet(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("http %d fetching %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(s3url string) (string, string, error) {
	p := strings.TrimPrefix(s3url, "s3://")
	slash := strings.Index(p, "/")
	if slash <= 0 || slash == len(p)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", s3url)
	}
	return p[:slash], p[slash+1:], nil
}

// sanitizeName keeps the extension visible to type detection and strips
// path separators and the pattern character of os.CreateTemp.
func sanitizeName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_", "*", "_").Replace(name)
	if name == "" || name == "." {
		return "download"
	}
	return name
}
