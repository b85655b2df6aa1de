// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package generator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/codeindex/provider"
)

// Config holds configuration for a generation run.
type Config struct {
	// Parallel enables concurrent batch processing. Sequential is the
	// default and most conservative mode.
	Parallel bool

	// MaxConcurrency is the initial ceiling on in-flight batches in parallel
	// mode. The effective ceiling may adapt downward during a run.
	MaxConcurrency int

	// MaxRetries is the retry ceiling for transient provider failures.
	// A batch is attempted MaxRetries+1 times per provider tier.
	MaxRetries int

	// RetryBaseDelay is the base delay for exponential backoff.
	RetryBaseDelay time.Duration

	// RequestTimeout bounds each individual provider call. A timeout is a
	// transient failure and follows the normal retry path.
	RequestTimeout time.Duration

	// OnThrottle, if set, is called each time a run reduces its effective
	// concurrency ceiling in response to rate limiting. Parallel mode only.
	OnThrottle func(newLimit int)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Parallel:       false,
		MaxConcurrency: 4,
		MaxRetries:     3,
		RetryBaseDelay: 1 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// BatchResult holds the outcome for one input batch. Vectors and Err are
// mutually exclusive.
type BatchResult struct {
	Vectors [][]float32
	Err     error
}

// Failed reports whether the batch could not be embedded by any provider.
func (r BatchResult) Failed() bool {
	return r.Err != nil
}

// Generator orchestrates embedding calls against an ordered list of provider
// tiers, batching, retrying transient failures, and degrading gracefully.
type Generator struct {
	providers []provider.Embedder
	config    *Config
	pool      *ants.Pool
	logger    *slog.Logger
	closed    atomic.Bool
}

// Option configures a Generator.
type Option func(*Generator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// New creates a generator over an ordered list of providers. The first
// provider is the primary tier; later providers are fallbacks used per batch
// when the tier above exhausts its transient retries.
func New(providers []provider.Embedder, config *Config, opts ...Option) (*Generator, error) {
	if len(providers) == 0 {
		return nil, ErrProviderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxConcurrency < 1 {
		config.MaxConcurrency = 1
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	g := &Generator{
		providers: providers,
		config:    config,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	if config.Parallel {
		pool, err := ants.NewPool(config.MaxConcurrency)
		if err != nil {
			return nil, err
		}
		g.pool = pool
	}

	return g, nil
}

// GenerateBatches embeds every batch, preserving batch order and
// within-batch order. The returned slice has one result per input batch;
// failures are reported per batch, never silently dropped. An empty batch
// list returns immediately without contacting any provider.
func (g *Generator) GenerateBatches(ctx context.Context, batches [][]string) ([]BatchResult, error) {
	if g.closed.Load() {
		return nil, ErrGeneratorClosed
	}
	if len(batches) == 0 {
		return []BatchResult{}, nil
	}

	results := make([]BatchResult, len(batches))

	if !g.config.Parallel {
		for i, batch := range batches {
			results[i] = g.generateBatch(ctx, batch, nil)
		}
		return results, nil
	}

	// Fresh limiter per run: adaptation never carries over.
	limiter := newAdaptiveLimiter(g.config.MaxConcurrency, g.config.OnThrottle)
	var wg sync.WaitGroup

	for i := range batches {
		wg.Add(1)
		batchIdx := i
		err := g.pool.Submit(func() {
			defer wg.Done()
			if err := limiter.Acquire(ctx); err != nil {
				results[batchIdx] = BatchResult{Err: err}
				return
			}
			defer limiter.Release()
			results[batchIdx] = g.generateBatch(ctx, batches[batchIdx], limiter)
		})
		if err != nil {
			wg.Done()
			results[batchIdx] = BatchResult{Err: err}
		}
	}

	wg.Wait()

	if limit := limiter.Limit(); limit < g.config.MaxConcurrency {
		g.logger.Info("concurrency was reduced during run",
			"configured", g.config.MaxConcurrency, "effective", limit)
	}

	return results, nil
}

// generateBatch walks the provider tiers for a single batch. Transient
// retry exhaustion falls through to the next tier; a permanent failure
// fails the batch without fallback.
func (g *Generator) generateBatch(ctx context.Context, texts []string, limiter *adaptiveLimiter) BatchResult {
	if len(texts) == 0 {
		return BatchResult{Vectors: [][]float32{}}
	}

	var lastErr error
	for _, p := range g.providers {
		vectors, err := g.embedWithRetry(ctx, p, texts, limiter)
		if err == nil {
			return BatchResult{Vectors: vectors}
		}
		lastErr = err

		if ctx.Err() != nil {
			return BatchResult{Err: ctx.Err()}
		}
		if provider.IsPermanent(err) {
			g.logger.Warn("permanent failure, batch not retried",
				"provider", p.Name(), "err", err)
			return BatchResult{Err: err}
		}

		g.logger.Warn("provider exhausted retries, falling back",
			"provider", p.Name(), "err", err)
	}

	return BatchResult{Err: fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)}
}

func (g *Generator) embedWithRetry(ctx context.Context, p provider.Embedder, texts []string, limiter *adaptiveLimiter) ([][]float32, error) {
	var vectors [][]float32

	err := RetryWithBackoff(ctx, func() error {
		callCtx := ctx
		if g.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.config.RequestTimeout)
			defer cancel()
		}

		v, err := p.EmbedTexts(callCtx, texts)
		if err != nil {
			err = provider.Classify(p.Name(), err)
		} else if len(v) != len(texts) {
			err = provider.Permanent(p.Name(), fmt.Errorf("%w: expected %d, got %d",
				ErrBatchSizeMismatch, len(texts), len(v)))
		}

		if limiter != nil {
			limiter.Observe(provider.IsRateLimit(err))
		}
		if err != nil {
			return err
		}
		vectors = v
		return nil
	}, g.config.MaxRetries+1, g.config.RetryBaseDelay)

	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// Close releases the worker pool and every provider. Safe to call even if
// no generation occurred, and idempotent.
func (g *Generator) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	if g.pool != nil {
		g.pool.Release()
	}

	var firstErr error
	for _, p := range g.providers {
		if err := p.Close(); err != nil {
			g.logger.Error("error closing provider", "provider", p.Name(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
