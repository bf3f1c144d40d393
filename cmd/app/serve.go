package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/flashdeck/internal/dispatcher"
	mpkg "github.com/local/flashdeck/internal/metrics"
	"github.com/local/flashdeck/internal/orchestrator"
	"github.com/local/flashdeck/internal/queue"
	"github.com/local/flashdeck/internal/statuscheck"
	"github.com/local/flashdeck/internal/storage"
	"github.com/local/flashdeck/internal/store"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		local   bool
		noWork  bool
		address string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the deck workers",
		Long: `Run the job API and the workers that process queued decks.

By default jobs are queued on a Redis stream and job state is kept in Redis.
With --local the queue lives in-process and job state goes to SQLite, so a
single binary needs no other services.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context(), local, !noWork, address)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "use an in-process queue and a SQLite job store")
	cmd.Flags().BoolVar(&noWork, "no-worker", false, "serve the API only; another process runs the workers")
	cmd.Flags().StringVar(&address, "addr", "", "listen address (default :$PORT)")
	return cmd
}

type backends struct {
	q       queue.Queue
	st      store.JobStore
	qping   statuscheck.Pinger
	sping   statuscheck.Pinger
	breaker dispatcher.Breaker
}

func (c *cli) openBackends(local bool) (*backends, error) {
	if local {
		st, err := store.OpenSQLite(c.cfg.Storage.DatabasePath)
		if err != nil {
			return nil, err
		}
		q := queue.NewMemoryQueue(0)
		log.Info().Str("db", st.Path()).Msg("local mode: in-process queue, sqlite store")
		return &backends{q: q, st: st, qping: q, sping: st}, nil
	}

	rq, err := queue.NewRedisQueue(c.cfg.Queue.RedisURL, c.cfg.Queue.Stream, c.cfg.Queue.Group)
	if err != nil {
		return nil, fmt.Errorf("connect queue: %w", err)
	}
	rs, err := store.NewRedisStore(c.cfg.Queue.RedisURL, c.cfg.Queue.ResultTTL)
	if err != nil {
		_ = rq.Close()
		return nil, fmt.Errorf("connect store: %w", err)
	}
	return &backends{
		q:       rq,
		st:      rs,
		qping:   rq,
		sping:   rs,
		breaker: dispatcher.NewCircuitBreaker(rs.Client(), c.cfg.Worker.BreakerBaseBackoff, c.cfg.Worker.BreakerMaxBackoff),
	}, nil
}

func (b *backends) Close() {
	_ = b.q.Close()
	_ = b.st.Close()
}

func (c *cli) serve(ctx context.Context, local, runWorkers bool, address string) error {
	cfg := c.cfg
	mpkg.Init()

	b, err := c.openBackends(local)
	if err != nil {
		return err
	}
	defer b.Close()

	pipeline, err := buildPipeline(cfg, b.breaker, false)
	if err != nil {
		return err
	}

	exporter := &orchestrator.Exporter{ResultDir: cfg.Storage.ResultDir, Delimiter: cfg.Worker.CSVDelimiter}
	checks := statuscheck.Options{
		Queue:     b.qping,
		Store:     b.sping,
		OpenAI:    statuscheck.Provider{APIKey: cfg.Providers.OpenAI.APIKey, BaseURL: cfg.Providers.OpenAI.BaseURL},
		Anthropic: statuscheck.Provider{APIKey: cfg.Providers.Anthropic.APIKey, BaseURL: cfg.Providers.Anthropic.BaseURL},
	}
	if conv, ok := pipeline.Converter.(statuscheck.Converter); ok {
		checks.Converter = conv
	}
	if cfg.Storage.S3Bucket != "" {
		s3c, err := storage.NewS3Client(ctx, s3Options(cfg.Storage))
		if err != nil {
			log.Warn().Err(err).Msg("S3 export disabled")
		} else {
			exporter.Remote = s3c
			checks.Bucket = s3c
		}
	}

	var worker *orchestrator.Worker
	if runWorkers {
		worker = orchestrator.NewWorker(orchestrator.WorkerConfig{
			Concurrency:  cfg.Worker.Concurrency,
			JobTimeout:   cfg.Worker.JobTimeout,
			PollInterval: cfg.Queue.PollInterval,
			Analysis:     analysisConfig(cfg.Analysis),
			WorkDir:      cfg.Storage.WorkDir,
			S3:           s3Options(cfg.Storage),
		}, b.q, b.st, pipeline, exporter)
		worker.Start()
	}

	orch := orchestrator.New(orchestrator.Dependencies{
		Queue:       b.q,
		Store:       b.st,
		Detector:    pipeline.Detector,
		Exporter:    exporter,
		WorkDir:     cfg.Storage.WorkDir,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		Checker:     statuscheck.New(checks),
	})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)

	if address == "" {
		address = ":" + cfg.Server.Port
	}
	srv := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", address).Bool("workers", runWorkers).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if worker != nil {
		if err := worker.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("workers did not stop in time")
		}
	}
	log.Info().Msg("shutdown complete")
	return nil
}
