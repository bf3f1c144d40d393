package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/flashdeck/internal/ai"
	cfgpkg "github.com/local/flashdeck/internal/config"
	"github.com/local/flashdeck/internal/limiter"
	mpkg "github.com/local/flashdeck/internal/metrics"
)

// Options wires the dispatcher collaborators.
type Options struct {
	Providers cfgpkg.ProvidersConfig
	Worker    cfgpkg.WorkerConfig
	Breaker   Breaker
	Limiter   *limiter.Limiter
}

// Dispatcher sends one request through the provider failover chain.
type Dispatcher struct {
	clients   map[string]ai.Client
	breaker   Breaker
	limiter   *limiter.Limiter
	providers cfgpkg.ProvidersConfig
	worker    cfgpkg.WorkerConfig
}

// New builds a dispatcher over clients, keyed by Client.Name().
func New(opts Options, clients ...ai.Client) *Dispatcher {
	d := &Dispatcher{
		clients:   make(map[string]ai.Client, len(clients)),
		breaker:   opts.Breaker,
		limiter:   opts.Limiter,
		providers: opts.Providers,
		worker:    opts.Worker,
	}
	if d.breaker == nil {
		d.breaker = NewMemoryBreaker(opts.Worker.BreakerBaseBackoff, opts.Worker.BreakerMaxBackoff)
	}
	if d.limiter == nil {
		d.limiter = limiter.New(limiter.Options{
			RequestsPerSecond: opts.Worker.RequestsPerSecond,
			Burst:             opts.Worker.Burst,
			MaxInflight:       opts.Worker.MaxInflightPerModel,
		})
	}
	for _, c := range clients {
		d.clients[c.Name()] = c
	}
	return d
}

// Call is one page worth of model input.
type Call struct {
	JobID        string
	PageID       int
	Fast         bool // text route: use the cheaper model tier
	SystemPrompt string
	Messages     []ai.Message
}

// Result reports which provider/model answered.
type Result struct {
	Provider string
	Model    string
	Text     string
	Attempts int
}

type attempt struct {
	provider string
	model    string
}

// plan lists the failover chain: primary provider with the route's model,
// primary provider secondary model, secondary provider with the route's model,
// secondary provider secondary model. Empty and repeated entries are dropped.
func (d *Dispatcher) plan(fast bool) []attempt {
	tier := func(m cfgpkg.ProviderModels) string {
		if fast && m.Fast != "" {
			return m.Fast
		}
		return m.Primary
	}
	var out []attempt
	seen := map[attempt]bool{}
	add := func(provider, model string) {
		a := attempt{provider: provider, model: model}
		if model == "" || seen[a] {
			return
		}
		if _, ok := d.clients[provider]; !ok {
			return
		}
		seen[a] = true
		out = append(out, a)
	}
	for _, prov := range []string{d.providers.PrimaryEngine, d.providers.SecondaryEngine} {
		models := d.providers.Models(prov)
		add(prov, tier(models))
		add(prov, models.Secondary)
	}
	return out
}

// Dispatch runs the failover chain until a provider answers. Fatal errors
// stop the chain; transient ones open the breaker for that provider:model.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (Result, error) {
	chain := d.plan(call.Fast)
	var lastErr error
	tried := 0

	for i, a := range chain {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if d.breaker.IsCircuitOpen(ctx, a.provider, a.model) {
			log.Debug().
				Str("provider", a.provider).
				Str("model", a.model).
				Msg("circuit breaker OPEN - skipping attempt")
			continue
		}

		log.Info().
			Str("job_id", call.JobID).
			Int("page", call.PageID).
			Str("provider", a.provider).
			Str("model", a.model).
			Msgf("attempting AI processing [%d/%d]", i+1, len(chain))

		tried++
		resp, err := d.callAI(ctx, call, a)
		if err == nil {
			d.breaker.CloseCircuitBreaker(ctx, a.provider, a.model)
			mpkg.BreakerClosed(a.provider, a.model)
			return Result{Provider: a.provider, Model: a.model, Text: resp.Text, Attempts: tried}, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if isTransientError(err) {
			d.breaker.OpenCircuitBreaker(ctx, a.provider, a.model)
			mpkg.BreakerOpened(a.provider, a.model)
			log.Warn().
				Err(err).
				Str("job_id", call.JobID).
				Int("page", call.PageID).
				Str("provider", a.provider).
				Str("model", a.model).
				Msg("transient error - trying fallback")
			continue
		}
		if isFatalError(err) {
			log.Error().
				Err(err).
				Str("job_id", call.JobID).
				Int("page", call.PageID).
				Str("provider", a.provider).
				Str("model", a.model).
				Msg("fatal error - no retry")
			return Result{}, err
		}
	}

	log.Error().
		Str("job_id", call.JobID).
		Int("page", call.PageID).
		Int("attempts", tried).
		Err(lastErr).
		Msg("all AI providers/models exhausted")
	mpkg.ObserveProvider("all", "all", "exhausted", 0)

	if lastErr == nil {
		return Result{}, fmt.Errorf("job %s page %d: %w", call.JobID, call.PageID, ErrExhausted)
	}
	return Result{}, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

// callAI performs a single rate-limited attempt with the provider timeout.
func (d *Dispatcher) callAI(ctx context.Context, call Call, a attempt) (ai.Response, error) {
	timeout := d.worker.Timeout(a.provider)
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	release, err := d.limiter.Acquire(cctx, a.provider, a.model)
	if err != nil {
		if ctx.Err() != nil {
			return ai.Response{}, ctx.Err()
		}
		return ai.Response{}, &RateLimitError{Provider: a.provider, Model: a.model, Reason: "limiter wait"}
	}
	defer release()

	req := ai.Request{
		JobID:        call.JobID,
		PageID:       call.PageID,
		Model:        a.model,
		Timeout:      timeout,
		MaxTokens:    d.providers.MaxTokens,
		SystemPrompt: call.SystemPrompt,
		Messages:     call.Messages,
	}

	start := time.Now()
	resp, err := d.clients[a.provider].Do(cctx, req)
	dur := time.Since(start)

	if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		mpkg.ObserveProvider(a.provider, a.model, "timeout", dur)
		log.Warn().
			Str("job_id", call.JobID).
			Int("page", call.PageID).
			Str("provider", a.provider).
			Str("model", a.model).
			Dur("duration", dur).
			Dur("timeout", timeout).
			Msg("AI request timeout - will trigger failover")
		return ai.Response{}, &RateLimitError{Provider: a.provider, Model: a.model, Reason: "timeout"}
	}

	err = normalizeError(a.provider, a.model, err)
	result := classify(err)
	mpkg.ObserveProvider(a.provider, a.model, result, dur)

	if err != nil {
		log.Warn().
			Str("job_id", call.JobID).
			Int("page", call.PageID).
			Str("provider", a.provider).
			Str("model", a.model).
			Dur("duration", dur).
			Str("result", result).
			Err(err).
			Msg("AI provider call failed")
		return ai.Response{}, err
	}
	log.Debug().
		Str("job_id", call.JobID).
		Int("page", call.PageID).
		Str("provider", a.provider).
		Str("model", a.model).
		Dur("duration", dur).
		Int("tokens_in", resp.TokensIn).
		Int("tokens_out", resp.TokensOut).
		Msg("AI provider call success")
	return resp, nil
}
