package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/local/flashdeck/internal/cards"
)

// Uploader stores exports remotely. *storage.S3Client implements it.
type Uploader interface {
	Key(jobID, name string) string
	UploadVersioned(ctx context.Context, baseKey, ext string, data []byte, contentType string, meta map[string]string) (string, error)
	CopyObjectWithMetadata(ctx context.Context, srcKey, dstKey, contentType string, meta map[string]string) error
	Bucket() string
}

// Exporter writes the card CSV of a job locally and, when configured, to S3.
type Exporter struct {
	ResultDir string
	Delimiter rune
	Remote    Uploader
}

// Export is where a job's CSV ended up.
type Export struct {
	LocalPath string
	RemoteURL string
	// LatestURL points at the stable cards_latest.csv copy of RemoteURL.
	LatestURL string
}

// CSV renders cs with the configured delimiter.
func (e *Exporter) CSV(cs []cards.Card) ([]byte, error) {
	var buf bytes.Buffer
	if err := cards.WriteCSV(&buf, cs, e.Delimiter); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the CSV for jobID. A failed remote upload is logged and leaves
// RemoteURL empty; the local copy is authoritative. Each upload is also
// copied to cards_latest.csv so readers have a key that does not move.
func (e *Exporter) Save(ctx context.Context, jobID, chapter string, cs []cards.Card) (Export, error) {
	data, err := e.CSV(cs)
	if err != nil {
		return Export{}, err
	}

	var out Export
	if e.ResultDir != "" {
		if err := os.MkdirAll(e.ResultDir, 0o755); err != nil {
			return Export{}, fmt.Errorf("create result dir: %w", err)
		}
		p := filepath.Join(e.ResultDir, fmt.Sprintf("%s_cards.csv", jobID))
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return Export{}, fmt.Errorf("write %s: %w", p, err)
		}
		out.LocalPath = p
	}

	if e.Remote != nil {
		meta := map[string]string{"job-id": jobID, "chapter": chapter, "cards": fmt.Sprint(len(cs))}
		key, err := e.Remote.UploadVersioned(ctx, e.Remote.Key(jobID, "cards"), ".csv", data, "text/csv", meta)
		if err != nil {
			log.Error().Err(err).Str("job_id", jobID).Msg("remote export failed; keeping local copy")
		} else {
			out.RemoteURL = fmt.Sprintf("s3://%s/%s", e.Remote.Bucket(), key)
			meta["source-key"] = key
			latest := e.Remote.Key(jobID, "cards_latest.csv")
			if err := e.Remote.CopyObjectWithMetadata(ctx, key, latest, "text/csv", meta); err != nil {
				log.Warn().Err(err).Str("job_id", jobID).Str("key", key).Msg("latest export copy failed")
			} else {
				out.LatestURL = fmt.Sprintf("s3://%s/%s", e.Remote.Bucket(), latest)
			}
		}
	}
	return out, nil
}
