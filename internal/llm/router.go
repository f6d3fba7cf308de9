package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// defaultAttemptTimeout bounds one provider attempt. A provider that
// hangs is abandoned and the router moves on to the next one instead of
// holding the whole item hostage.
const defaultAttemptTimeout = 90 * time.Second

// Router executes model calls against an ordered provider list with
// sequential fallback. The order is fixed at construction time, never
// reordered by latency or shuffled, so behavior is deterministic.
//
// The router performs no retries of its own: one provider gets exactly
// one attempt per call, and retries of the overall operation belong to
// the batch orchestrator.
type Router struct {
	providers []Provider
	log       zerolog.Logger

	// attemptTimeout caps each individual provider attempt.
	attemptTimeout time.Duration
}

// NewRouter builds a router over the given providers in priority order.
func NewRouter(log zerolog.Logger, providers ...Provider) *Router {
	return &Router{providers: providers, log: log, attemptTimeout: defaultAttemptTimeout}
}

// Providers returns the configured provider names in priority order.
func (r *Router) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// GenerateStructured attempts a schema-constrained call against each
// provider in order, returning the first response that both succeeds and
// passes req.Check. When every provider fails, the last provider's error
// is returned.
func (r *Router) GenerateStructured(ctx context.Context, req Request) (Response, error) {
	return r.generate(ctx, req, func(ctx context.Context, p Provider) (Response, error) {
		return p.GenerateStructured(ctx, req)
	})
}

// GenerateText attempts a free-text call with the same fallback rules.
func (r *Router) GenerateText(ctx context.Context, req Request) (Response, error) {
	return r.generate(ctx, req, func(ctx context.Context, p Provider) (Response, error) {
		return p.GenerateText(ctx, req)
	})
}

func (r *Router) generate(ctx context.Context, req Request, call func(context.Context, Provider) (Response, error)) (Response, error) {
	if len(r.providers) == 0 {
		return Response{}, ErrNoProviders
	}

	var lastErr error
	for _, p := range r.providers {
		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		resp, err := call(attemptCtx, p)
		cancel()
		if err == nil && req.Check != nil {
			err = req.Check(resp)
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err
		r.log.Warn().
			Str("provider", p.Name()).
			Err(err).
			Msg("provider attempt failed, falling back")

		// Caller cancellation ends the whole call; only per-attempt
		// deadlines fall through to the next provider.
		if ctx.Err() != nil {
			return Response{}, lastErr
		}
	}
	return Response{}, lastErr
}
