package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/flashdeck/internal/analyzer"
	mpkg "github.com/local/flashdeck/internal/metrics"
	"github.com/local/flashdeck/internal/queue"
	"github.com/local/flashdeck/internal/storage"
	"github.com/local/flashdeck/internal/store"
)

// WorkerConfig tunes the job workers.
type WorkerConfig struct {
	Concurrency  int
	JobTimeout   time.Duration
	PollInterval time.Duration
	// Analysis is the default classifier config; jobs may override the
	// threshold and mode.
	Analysis analyzer.Config
	WorkDir  string
	// S3 is used for s3:// inputs; the bucket comes from the reference.
	S3 storage.S3Options
}

// Worker pulls deck jobs off the queue and runs them through the pipeline.
type Worker struct {
	cfg      WorkerConfig
	q        queue.Queue
	store    store.JobStore
	pipeline *Pipeline
	exporter *Exporter

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewWorker(cfg WorkerConfig, q queue.Queue, st store.JobStore, p *Pipeline, e *Exporter) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Worker{cfg: cfg, q: q, store: st, pipeline: p, exporter: e, stop: make(chan struct{})}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

// Stop signals the loops and waits for in-flight jobs or ctx.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("worker-%d", id)
	log.Info().Int("worker", id).Msg("deck worker started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.stop
		cancel()
	}()

	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("deck worker stopped")
			return
		default:
		}

		msgID, data, err := w.q.Dequeue(ctx, consumer, w.cfg.PollInterval)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				log.Info().Int("worker", id).Msg("deck worker stopped")
				return
			}
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if msgID == "" {
			continue
		}

		job, err := queue.DecodeJob(data)
		if err != nil {
			log.Error().Err(err).Str("msg_id", msgID).Msg("undecodable job; moved to DLQ")
			_ = w.q.AddDLQ(ctx, data, err.Error())
			_ = w.q.Ack(ctx, msgID)
			continue
		}

		if err := w.Process(ctx, job); err != nil {
			_ = w.q.AddDLQ(context.Background(), data, err.Error())
		}
		_ = w.q.Ack(context.Background(), msgID)
	}
}

// Process runs one job to a terminal status. The returned error is the
// failure also recorded in the store; cancellation is not an error.
func (w *Worker) Process(ctx context.Context, job queue.Job) error {
	logger := log.With().Str("job_id", job.ID).Logger()

	if cancelled, _ := w.q.IsCancelled(ctx, job.ID); cancelled {
		logger.Warn().Msg("job cancelled before processing; skipping")
		mpkg.IncJob(store.StatusCancelled)
		return nil
	}

	jobCtx := ctx
	var cancelJob context.CancelFunc
	if w.cfg.JobTimeout > 0 {
		jobCtx, cancelJob = context.WithTimeout(ctx, w.cfg.JobTimeout)
	} else {
		jobCtx, cancelJob = context.WithCancel(ctx)
	}
	defer cancelJob()
	go w.watchCancel(jobCtx, job.ID, cancelJob)

	start := time.Now()
	_ = w.store.SetStatus(ctx, job.ID, store.Status{
		Status: store.StatusProcessing, Progress: 1, Message: "processing", Start: &start,
	})

	input, cleanup, err := storage.Fetch(jobCtx, job.InputPath, w.cfg.WorkDir, w.cfg.S3)
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("fetch input: %w", err))
	}
	defer cleanup()

	cfg := w.cfg.Analysis
	if job.Threshold != nil {
		cfg.TextRatioThreshold = *job.Threshold
	}
	if job.Deep != nil {
		cfg.DeepAnalysis = *job.Deep
	}

	out, err := w.pipeline.Run(jobCtx, RunRequest{
		JobID:     job.ID,
		InputPath: input,
		Chapter:   job.Chapter,
		Pages:     job.Pages,
		Analysis:  cfg,
	}, func(pct int, msg string) {
		if jobCtx.Err() != nil || w.isCancelled(ctx, job.ID) {
			return
		}
		_ = w.store.SetStatus(ctx, job.ID, store.Status{Status: store.StatusProcessing, Progress: pct, Message: msg})
	})
	if err != nil {
		if w.isCancelled(ctx, job.ID) {
			logger.Warn().Msg("job cancelled during processing")
			if out != nil {
				w.savePartial(ctx, job.ID, out)
			}
			w.markCancelled(ctx, job.ID)
			return nil
		}
		return w.fail(ctx, job, err)
	}

	if err := w.store.SaveAnalysis(ctx, job.ID, out.Analysis); err != nil {
		return w.fail(ctx, job, fmt.Errorf("save analysis: %w", err))
	}
	if err := w.store.SaveCards(ctx, job.ID, out.Cards); err != nil {
		return w.fail(ctx, job, fmt.Errorf("save cards: %w", err))
	}

	meta := map[string]interface{}{
		"file":         job.FileName,
		"chapter":      job.Chapter,
		"kind":         string(out.Kind),
		"total_pages":  len(out.Analysis),
		"vision_pages": out.Analysis.VisionCount(),
		"cards":        len(out.Cards),
	}
	if w.exporter != nil {
		exp, err := w.exporter.Save(ctx, job.ID, job.Chapter, out.Cards)
		if err != nil {
			return w.fail(ctx, job, fmt.Errorf("export: %w", err))
		}
		if exp.LocalPath != "" {
			meta["result_local_path"] = exp.LocalPath
		}
		if exp.RemoteURL != "" {
			meta["result_s3_url"] = exp.RemoteURL
		}
		if exp.LatestURL != "" {
			meta["result_s3_latest_url"] = exp.LatestURL
		}
	}

	if w.isCancelled(ctx, job.ID) {
		logger.Warn().Msg("job cancelled after processing; results kept")
		w.markCancelled(ctx, job.ID)
		return nil
	}

	end := time.Now()
	_ = w.store.SetStatus(ctx, job.ID, store.Status{
		Status:   store.StatusCompleted,
		Progress: 100,
		Message:  fmt.Sprintf("%d cards created", len(out.Cards)),
		End:      &end,
		Metadata: meta,
	})
	mpkg.IncJob(store.StatusCompleted)
	logger.Info().Int("cards", len(out.Cards)).Dur("duration", time.Since(start)).Msg("job completed")

	if w.cfg.WorkDir != "" && isJobUpload(w.cfg.WorkDir, job) {
		CleanupTemps(w.cfg.WorkDir, time.Hour)
	}
	return nil
}

func (w *Worker) fail(ctx context.Context, job queue.Job, err error) error {
	log.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
	end := time.Now()
	_ = w.store.SetStatus(ctx, job.ID, store.Status{
		Status:   store.StatusFailed,
		Progress: 100,
		Message:  err.Error(),
		End:      &end,
	})
	mpkg.IncJob(store.StatusFailed)
	return err
}

// savePartial keeps what a cancelled job produced before it stopped.
func (w *Worker) savePartial(ctx context.Context, jobID string, out *Output) {
	logger := log.With().Str("job_id", jobID).Int("cards", len(out.Cards)).Logger()
	if err := w.store.SaveAnalysis(ctx, jobID, out.Analysis); err != nil {
		logger.Error().Err(err).Msg("save partial analysis failed")
	}
	if len(out.Cards) == 0 {
		return
	}
	if err := w.store.SaveCards(ctx, jobID, out.Cards); err != nil {
		logger.Error().Err(err).Msg("save partial cards failed")
		return
	}
	logger.Info().Msg("partial cards kept")
}

func (w *Worker) markCancelled(ctx context.Context, jobID string) {
	end := time.Now()
	_ = w.store.SetStatus(ctx, jobID, store.Status{Status: store.StatusCancelled, Message: "Cancelled", End: &end})
	mpkg.IncJob(store.StatusCancelled)
}

func (w *Worker) isCancelled(ctx context.Context, jobID string) bool {
	c, err := w.q.IsCancelled(ctx, jobID)
	return err == nil && c
}

// watchCancel cancels the job context once the job is marked cancelled.
func (w *Worker) watchCancel(ctx context.Context, jobID string, cancel context.CancelFunc) {
	t := time.NewTicker(w.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if w.isCancelled(ctx, jobID) {
				cancel()
				return
			}
		}
	}
}

func isJobUpload(workDir string, job queue.Job) bool {
	rel, err := filepath.Rel(workDir, job.InputPath)
	return err == nil && strings.HasPrefix(rel, jobDirPrefix)
}
