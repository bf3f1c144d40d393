package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Queue carries deck jobs from the HTTP surface to the workers.
type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	CancelJob(ctx context.Context, jobID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	AddDLQ(ctx context.Context, payload []byte, reason string) error
	Depths(ctx context.Context) (int64, int64, error)
	Close() error
}

// Job is the queued unit of work: one uploaded deck.
type Job struct {
	ID         string    `json:"job_id"`
	InputPath  string    `json:"input_path"`
	FileName   string    `json:"file_name"`
	Chapter    string    `json:"chapter"`
	Pages      []int     `json:"pages,omitempty"`
	Threshold  *float64  `json:"threshold,omitempty"`
	Deep       *bool     `json:"deep,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Encode marshals j for Enqueue.
func (j Job) Encode() ([]byte, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	return b, nil
}

// DecodeJob is the inverse of Job.Encode.
func DecodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if j.ID == "" {
		return Job{}, fmt.Errorf("decode job: missing job_id")
	}
	return j, nil
}
