// Package store persists job status, page analyses and cards.
package store

import (
	"context"
	"time"

	"github.com/local/flashdeck/internal/analyzer"
	"github.com/local/flashdeck/internal/cards"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

type Status struct {
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message"`
	Start    *time.Time             `json:"start_time,omitempty"`
	End      *time.Time             `json:"end_time,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Terminal reports whether the job will not change state again.
func (s Status) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// JobStore is implemented by RedisStore and SQLiteStore.
type JobStore interface {
	SetStatus(ctx context.Context, jobID string, st Status) error
	GetStatus(ctx context.Context, jobID string) (Status, bool, error)
	SaveAnalysis(ctx context.Context, jobID string, results analyzer.Results) error
	GetAnalysis(ctx context.Context, jobID string) (analyzer.Results, error)
	SaveCards(ctx context.Context, jobID string, cs []cards.Card) error
	GetCards(ctx context.Context, jobID string) ([]cards.Card, bool, error)
	Close() error
}
