package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/codeindex/provider"
	"github.com/poiesic/codeindex/provider/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RequestTimeout = time.Second
	return cfg
}

func TestGenerateBatchesSequential(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	gen, err := New([]provider.Embedder{embedder}, fastConfig())
	require.NoError(t, err)
	defer gen.Close()

	batches := [][]string{
		{"alpha", "beta"},
		{"gamma"},
	}

	results, err := gen.GenerateBatches(context.Background(), batches)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, result := range results {
		require.False(t, result.Failed(), "batch %d: %v", i, result.Err)
		require.Len(t, result.Vectors, len(batches[i]))
	}

	// Within-batch order: each vector must match the one the provider
	// produces for that exact text.
	control := mock.NewMockEmbedder()
	for i, batch := range batches {
		for j, text := range batch {
			want, err := control.EmbedText(context.Background(), text)
			require.NoError(t, err)
			assert.Equal(t, want, results[i].Vectors[j], "batch %d text %d", i, j)
		}
	}
}

func TestGenerateBatchesParallelPreservesOrder(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Latency = func() time.Duration {
		return time.Duration(rand.Intn(20)) * time.Millisecond
	}

	cfg := fastConfig()
	cfg.Parallel = true
	cfg.MaxConcurrency = 4

	gen, err := New([]provider.Embedder{embedder}, cfg)
	require.NoError(t, err)
	defer gen.Close()

	const batchCount = 24
	batches := make([][]string, batchCount)
	for i := range batches {
		batches[i] = []string{fmt.Sprintf("chunk-%d", i)}
	}

	results, err := gen.GenerateBatches(context.Background(), batches)
	require.NoError(t, err)
	require.Len(t, results, batchCount)

	// Completion order is random, result order must not be.
	control := mock.NewMockEmbedder()
	for i := range batches {
		require.False(t, results[i].Failed(), "batch %d: %v", i, results[i].Err)
		want, err := control.EmbedText(context.Background(), batches[i][0])
		require.NoError(t, err)
		assert.Equal(t, want, results[i].Vectors[0], "batch %d landed out of position", i)
	}
}

func TestGenerateBatchesRetriesTransientFailures(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.FailWith(
		provider.Transient("mock", errors.New("429 too many requests")),
		provider.Transient("mock", errors.New("timeout")),
	)

	gen, err := New([]provider.Embedder{embedder}, fastConfig())
	require.NoError(t, err)
	defer gen.Close()

	results, err := gen.GenerateBatches(context.Background(), [][]string{{"text"}})
	require.NoError(t, err)
	require.False(t, results[0].Failed())
	assert.Equal(t, 3, embedder.CallCount(), "two failures then success")
}

func TestGenerateBatchesRetryCeiling(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, provider.Transient("mock", errors.New("timeout"))
	}

	cfg := fastConfig()
	cfg.MaxRetries = 3

	gen, err := New([]provider.Embedder{embedder}, cfg)
	require.NoError(t, err)
	defer gen.Close()

	results, err := gen.GenerateBatches(context.Background(), [][]string{{"text"}})
	require.NoError(t, err)
	require.True(t, results[0].Failed())
	assert.ErrorIs(t, results[0].Err, ErrAllProvidersFailed)
	assert.Equal(t, cfg.MaxRetries+1, embedder.CallCount(),
		"initial attempt plus MaxRetries retries, no more")
}

func TestGenerateBatchesFallsBackToNextTier(t *testing.T) {
	primary := mock.NewMockEmbedder()
	primary.ProviderName = "primary"
	primary.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, provider.Transient("primary", errors.New("overloaded"))
	}

	fallback := mock.NewMockEmbedder()
	fallback.ProviderName = "fallback"

	cfg := fastConfig()
	gen, err := New([]provider.Embedder{primary, fallback}, cfg)
	require.NoError(t, err)
	defer gen.Close()

	results, err := gen.GenerateBatches(context.Background(), [][]string{{"text"}})
	require.NoError(t, err)
	require.False(t, results[0].Failed(), "fallback tier should have served the batch")

	assert.Equal(t, cfg.MaxRetries+1, primary.CallCount(),
		"primary exhausts its retries before falling back")
	assert.Equal(t, 1, fallback.CallCount())
}

func TestGenerateBatchesPermanentFailureSkipsFallback(t *testing.T) {
	primary := mock.NewMockEmbedder()
	primary.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, provider.Permanent("primary", errors.New("invalid api key"))
	}

	fallback := mock.NewMockEmbedder()

	gen, err := New([]provider.Embedder{primary, fallback}, fastConfig())
	require.NoError(t, err)
	defer gen.Close()

	results, err := gen.GenerateBatches(context.Background(), [][]string{{"text"}})
	require.NoError(t, err)
	require.True(t, results[0].Failed())
	assert.True(t, provider.IsPermanent(results[0].Err))

	assert.Equal(t, 1, primary.CallCount(), "permanent failure is not retried")
	assert.Zero(t, fallback.CallCount(), "permanent failure must not fall back")
}

func TestGenerateBatchesPerBatchFailureIsolation(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if texts[0] == "poison" {
			return nil, provider.Permanent("mock", errors.New("invalid input"))
		}
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{1, 0}
		}
		return vectors, nil
	}

	gen, err := New([]provider.Embedder{embedder}, fastConfig())
	require.NoError(t, err)
	defer gen.Close()

	results, err := gen.GenerateBatches(context.Background(),
		[][]string{{"ok"}, {"poison"}, {"ok too"}})
	require.NoError(t, err)

	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())
	assert.False(t, results[2].Failed(), "one poisoned batch must not fail its neighbors")
}

func TestGenerateBatchesBatchSizeMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil // always one vector, regardless of input
	}

	gen, err := New([]provider.Embedder{embedder}, fastConfig())
	require.NoError(t, err)
	defer gen.Close()

	results, err := gen.GenerateBatches(context.Background(), [][]string{{"a", "b"}})
	require.NoError(t, err)
	require.True(t, results[0].Failed())
	assert.ErrorIs(t, results[0].Err, ErrBatchSizeMismatch)
	assert.Equal(t, 1, embedder.CallCount(), "a mismatched response is permanent")
}

func TestGenerateBatchesEmptyInput(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	gen, err := New([]provider.Embedder{embedder}, fastConfig())
	require.NoError(t, err)
	defer gen.Close()

	results, err := gen.GenerateBatches(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, embedder.CallCount())
}

func TestGenerateBatchesEmptyBatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	gen, err := New([]provider.Embedder{embedder}, fastConfig())
	require.NoError(t, err)
	defer gen.Close()

	results, err := gen.GenerateBatches(context.Background(), [][]string{{}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Failed())
	assert.Empty(t, results[0].Vectors)
	assert.Zero(t, embedder.CallCount())
}

func TestNewRequiresProviders(t *testing.T) {
	_, err := New(nil, fastConfig())
	assert.ErrorIs(t, err, ErrProviderRequired)
}

func TestGeneratorClose(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	gen, err := New([]provider.Embedder{embedder}, fastConfig())
	require.NoError(t, err)

	require.NoError(t, gen.Close())
	require.NoError(t, gen.Close(), "close is idempotent")
	assert.Equal(t, 1, embedder.CloseCount())

	_, err = gen.GenerateBatches(context.Background(), [][]string{{"x"}})
	assert.ErrorIs(t, err, ErrGeneratorClosed)
}

func TestGenerateBatchesParallelAdaptsConcurrency(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.FailWith(
		provider.Transient("mock", errors.New("429 rate limit")),
		provider.Transient("mock", errors.New("429 rate limit")),
	)

	var mu sync.Mutex
	var reductions []int

	cfg := fastConfig()
	cfg.Parallel = true
	cfg.MaxConcurrency = 8
	cfg.OnThrottle = func(newLimit int) {
		mu.Lock()
		reductions = append(reductions, newLimit)
		mu.Unlock()
	}

	gen, err := New([]provider.Embedder{embedder}, cfg)
	require.NoError(t, err)
	defer gen.Close()

	batches := make([][]string, 6)
	for i := range batches {
		batches[i] = []string{fmt.Sprintf("text-%d", i)}
	}

	// The scripted rate limits are retried away; every batch still succeeds.
	results, err := gen.GenerateBatches(context.Background(), batches)
	require.NoError(t, err)
	for i, result := range results {
		assert.False(t, result.Failed(), "batch %d: %v", i, result.Err)
	}

	// Two rate-limit rejections trip the window exactly once: the ceiling is
	// halved from 8 to 4 and the cleared window absorbs no further hits.
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, reductions, "the rate-limit burst must reduce concurrency")
	assert.Equal(t, []int{4}, reductions)
}
