package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/codeindex/provider"
)

// MockEmbedder is a test double for provider.Embedder.
// It allows custom behavior injection via function fields and scripted
// failure sequences. Safe for concurrent use.
type MockEmbedder struct {
	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses scripted failures and deterministic default behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// Latency, when set, delays every call; tests use randomized per-call
	// latency to exercise out-of-order completion.
	Latency func() time.Duration

	// ProviderName reported by Name. Defaults to "mock".
	ProviderName string

	// Dim is the dimensionality of generated vectors. Defaults to 384.
	Dim int

	mu       sync.Mutex
	failures []error // consumed one per call before default behavior

	callCount  atomic.Int64
	closeCount atomic.Int64
}

var _ provider.Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// FailWith queues errors to be returned by subsequent calls, one per call,
// before the default behavior resumes.
func (m *MockEmbedder) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Name identifies the provider.
func (m *MockEmbedder) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return "mock"
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount.Add(1)

	if m.Latency != nil {
		select {
		case <-ctx.Done():
			return nil, provider.Transient(m.Name(), ctx.Err())
		case <-time.After(m.Latency()):
		}
	}

	if err := m.nextFailure(); err != nil {
		return nil, err
	}

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	dim := m.Dim
	if dim <= 0 {
		dim = 384
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = generateDeterministicVector(text, dim)
	}
	return embeddings, nil
}

// Close records the call so tests can assert disposal happened.
func (m *MockEmbedder) Close() error {
	m.closeCount.Add(1)
	return nil
}

// CallCount returns the number of EmbedTexts/EmbedText calls.
func (m *MockEmbedder) CallCount() int {
	return int(m.callCount.Load())
}

// CloseCount returns the number of Close calls.
func (m *MockEmbedder) CloseCount() int {
	return int(m.closeCount.Load())
}

// Reset clears counters, scripted failures, and injected behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	m.failures = nil
	m.mu.Unlock()
	m.callCount.Store(0)
	m.closeCount.Store(0)
	m.EmbedTextsFunc = nil
	m.Latency = nil
}

func (m *MockEmbedder) nextFailure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.failures) == 0 {
		return nil
	}
	err := m.failures[0]
	m.failures = m.failures[1:]
	return err
}

// generateDeterministicVector creates a deterministic unit-norm embedding
// vector from text. It uses FNV hash so the same text always produces the
// same vector.
func generateDeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%2000)/1000.0 - 1.0
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}

	return vector
}
