// Package structure turns raw callout text into typed dimensional
// specifications.
//
// Deterministic heuristics cover the common notation. When a SemanticClient is
// configured each token is sent to it instead, bounded by a worker pool, a rate
// limiter and a per-token timeout. A token whose semantic structuring fails is
// kept with a nil specification and never dropped.
package structure

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"balloon/internal/logger"
	"balloon/pkg/models"
)

// Method records how an outcome was produced.
type Method string

const (
	MethodHeuristic Method = "heuristic"
	MethodSemantic  Method = "semantic"
)

// Config bounds the structuring pool.
type Config struct {
	Workers       int           // concurrent semantic calls across all StructureAll callers
	Timeout       time.Duration // per token
	RatePerSecond float64       // 0 disables the limiter

	// HeuristicFirst skips the semantic call when the heuristics already
	// recognize the callout.
	HeuristicFirst bool
}

// DefaultConfig returns the pool settings used when none are configured.
func DefaultConfig() Config {
	return Config{Workers: 8, Timeout: 20 * time.Second, RatePerSecond: 5}
}

// Request is one unit of structuring work.
type Request struct {
	Text string
	Hint string // surrounding text, optional
}

// Outcome is the result for one request. Spec is nil when structuring
// failed; Err then explains why.
type Outcome struct {
	Spec   *models.DimensionalSpecification
	Method Method
	Err    error
}

// Structurer owns the structuring rules and the pool in front of the client.
type Structurer struct {
	client  SemanticClient
	config  Config
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	log     zerolog.Logger
}

// New creates a Structurer. client may be nil for heuristics only.
func New(client SemanticClient, config Config) *Structurer {
	def := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	s := &Structurer{
		client: client,
		config: config,
		sem:    semaphore.NewWeighted(int64(config.Workers)),
		log:    logger.WithComponent("structure"),
	}
	if config.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), 1)
	}
	return s
}

// Structure structures one callout.
func (s *Structurer) Structure(ctx context.Context, req Request) Outcome {
	heuristic, ok := ParseHeuristic(req.Text)
	if s.client == nil {
		return Outcome{Spec: heuristic, Method: MethodHeuristic}
	}
	if s.config.HeuristicFirst && ok {
		return Outcome{Spec: heuristic, Method: MethodHeuristic}
	}

	tctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(tctx); err != nil {
			return s.fail(req, err)
		}
	}
	raw, err := s.client.Structure(tctx, req.Text, req.Hint)
	if err != nil {
		return s.fail(req, err)
	}
	spec, err := DecodeSemantic(raw, req.Text)
	if err != nil {
		return s.fail(req, err)
	}
	return Outcome{Spec: spec, Method: MethodSemantic}
}

func (s *Structurer) fail(req Request, err error) Outcome {
	s.log.Warn().
		Err(err).
		Str("text", req.Text).
		Bool("timeout", errors.Is(err, context.DeadlineExceeded)).
		Msg("Structuring failed, keeping token unparsed")
	return Outcome{Method: MethodSemantic, Err: err}
}

// StructureAll structures every request with bounded concurrency. Concurrent
// callers share one pool of Config.Workers semantic slots. Outcomes
// are index-aligned with reqs. Per-token failures are soft; the only error
// returned is the caller's cancellation, in which case pending requests are
// abandoned and their outcomes carry the context error.
func (s *Structurer) StructureAll(ctx context.Context, reqs []Request) ([]Outcome, error) {
	out := make([]Outcome, len(reqs))
	if s.client == nil {
		for i, r := range reqs {
			out[i] = s.Structure(ctx, r)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range reqs {
		if err := s.sem.Acquire(gctx, 1); err != nil {
			for j := i; j < len(reqs); j++ {
				out[j] = Outcome{Method: MethodSemantic, Err: err}
			}
			break
		}
		g.Go(func() error {
			defer s.sem.Release(1)
			out[i] = s.Structure(gctx, r)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}
