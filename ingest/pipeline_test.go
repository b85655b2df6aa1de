package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/codeindex/core"
	"github.com/poiesic/codeindex/generator"
	"github.com/poiesic/codeindex/provider"
	"github.com/poiesic/codeindex/provider/mock"
	"github.com/poiesic/codeindex/storage"
	badgerstore "github.com/poiesic/codeindex/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, embedder *mock.MockEmbedder, storeConfig *badgerstore.Config, opts ...Option) (*Pipeline, storage.EmbeddingRepository) {
	t.Helper()

	repo, backend, err := badgerstore.NewMemoryRepository(storeConfig)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})

	genConfig := generator.DefaultConfig()
	genConfig.MaxRetries = 1
	genConfig.RetryBaseDelay = 0

	gen, err := generator.New([]provider.Embedder{embedder}, genConfig)
	require.NoError(t, err)
	t.Cleanup(func() { gen.Close() })

	pipeline, err := NewPipeline(repo, gen, opts...)
	require.NoError(t, err)
	return pipeline, repo
}

func testChunks(n int) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{
			FileId:     "main.go",
			FilePath:   "cmd/main.go",
			ChunkIndex: i,
			Content:    fmt.Sprintf("chunk %d contents", i),
			Metadata:   core.ChunkMetadata{ContentType: "go", StartLine: i * 10, EndLine: i*10 + 9},
		}
	}
	return chunks
}

func TestIngestStoresChunks(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	pipeline, repo := newTestPipeline(t, embedder, nil)

	result, err := pipeline.IngestChunks(context.Background(), "proj", testChunks(5))
	require.NoError(t, err)
	assert.Equal(t, 5, result.Stored)
	assert.Zero(t, result.Skipped)
	assert.Zero(t, result.Failed)

	records, err := repo.GetProjectEmbeddings(context.Background(), "proj", nil)
	require.NoError(t, err)
	require.Len(t, records, 5)

	for _, record := range records {
		require.NotNil(t, record.Quantized, "vectors are quantized by default")
		assert.Empty(t, record.Embedding)
		assert.Equal(t, 384, record.Quantized.Dimensions)
		assert.NotEmpty(t, record.Hash)
	}
}

func TestIngestSkipsUnchangedChunks(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	pipeline, _ := newTestPipeline(t, embedder, nil)

	ctx := context.Background()
	chunks := testChunks(4)

	first, err := pipeline.IngestChunks(ctx, "proj", chunks)
	require.NoError(t, err)
	require.Equal(t, 4, first.Stored)
	callsAfterFirst := embedder.CallCount()

	// Second run with identical content: nothing re-embedded.
	second, err := pipeline.IngestChunks(ctx, "proj", chunks)
	require.NoError(t, err)
	assert.Zero(t, second.Stored)
	assert.Equal(t, 4, second.Skipped)
	assert.Equal(t, callsAfterFirst, embedder.CallCount(),
		"unchanged chunks must not reach the provider")

	// Edit one chunk: only that chunk is re-embedded.
	chunks[2].Content = "chunk 2 contents, edited"
	third, err := pipeline.IngestChunks(ctx, "proj", chunks)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Stored)
	assert.Equal(t, 3, third.Skipped)
}

func TestIngestWithoutQuantization(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	pipeline, repo := newTestPipeline(t, embedder, nil, WithQuantization(false))

	_, err := pipeline.IngestChunks(context.Background(), "proj", testChunks(2))
	require.NoError(t, err)

	records, err := repo.GetProjectEmbeddings(context.Background(), "proj", nil)
	require.NoError(t, err)
	for _, record := range records {
		assert.Nil(t, record.Quantized)
		assert.Len(t, record.Embedding, 384)
	}
}

func TestIngestRMSEFloorFallsBackToRawFloats(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	// An impossible floor forces the raw-float path for every vector.
	pipeline, repo := newTestPipeline(t, embedder, nil, WithRMSEFloor(0))

	_, err := pipeline.IngestChunks(context.Background(), "proj", testChunks(1))
	require.NoError(t, err)

	records, err := repo.GetProjectEmbeddings(context.Background(), "proj", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Quantized)
	assert.NotEmpty(t, records[0].Embedding)
}

func TestIngestStoresNormalizedVectors(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{3, 4} // magnitude 5
		}
		return vectors, nil
	}

	pipeline, repo := newTestPipeline(t, embedder, nil, WithQuantization(false))

	_, err := pipeline.IngestChunks(context.Background(), "proj", testChunks(1))
	require.NoError(t, err)

	records, err := repo.GetProjectEmbeddings(context.Background(), "proj", nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 0.6, float64(records[0].Embedding[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(records[0].Embedding[1]), 1e-6)
}

func TestIngestCountsFailedBatches(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, provider.Permanent("mock", errors.New("invalid api key"))
	}

	pipeline, _ := newTestPipeline(t, embedder, nil, WithBatchSize(2))

	result, err := pipeline.IngestChunks(context.Background(), "proj", testChunks(5))
	require.NoError(t, err, "per-batch failures are reported in the result, not as a run error")
	assert.Zero(t, result.Stored)
	assert.Equal(t, 5, result.Failed)
	assert.NotEmpty(t, result.Errors)
}

func TestIngestStopsOnQuotaExceeded(t *testing.T) {
	embedder := mock.NewMockEmbedder()

	chunks := testChunks(10)
	// Room for roughly three records, nowhere near ten.
	firstCost := int64(len(chunks[0].Content)) + storage.RecordOverheadBytes + 384 + 12
	storeConfig := &badgerstore.Config{
		QuotasEnabled:    true,
		GlobalQuotaBytes: 3 * firstCost,
	}

	pipeline, repo := newTestPipeline(t, embedder, storeConfig)

	result, err := pipeline.IngestChunks(context.Background(), "proj", chunks)
	require.ErrorIs(t, err, storage.ErrQuotaExceeded)
	assert.Greater(t, result.Stored, 0)
	assert.Less(t, result.Stored, 10)
	assert.Equal(t, 10, result.Stored+result.Failed, "every chunk is accounted for")

	// The store reflects exactly the successful writes.
	usage, err := repo.GetProjectStorageUsage(context.Background(), "proj")
	require.NoError(t, err)
	assert.Equal(t, int64(result.Stored), usage.EmbeddingCount)
}

func TestIngestBatchesRespectBatchSize(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	var batchSizes []int
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		batchSizes = append(batchSizes, len(texts))
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			v, err := mock.NewMockEmbedder().EmbedText(ctx, text)
			if err != nil {
				return nil, err
			}
			vectors[i] = v
		}
		return vectors, nil
	}

	pipeline, _ := newTestPipeline(t, embedder, nil, WithBatchSize(4))

	result, err := pipeline.IngestChunks(context.Background(), "proj", testChunks(10))
	require.NoError(t, err)
	assert.Equal(t, 10, result.Stored)
	assert.Equal(t, []int{4, 4, 2}, batchSizes)
}

func TestIngestEmptyProjectId(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	pipeline, _ := newTestPipeline(t, embedder, nil)

	_, err := pipeline.IngestChunks(context.Background(), "", testChunks(1))
	assert.ErrorIs(t, err, ErrEmptyProjectId)
}

func TestIngestNoChunks(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	pipeline, _ := newTestPipeline(t, embedder, nil)

	result, err := pipeline.IngestChunks(context.Background(), "proj", nil)
	require.NoError(t, err)
	assert.Zero(t, result.Stored)
	assert.Zero(t, embedder.CallCount())
}

func TestNewPipelineValidation(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	gen, err := generator.New([]provider.Embedder{embedder}, nil)
	require.NoError(t, err)
	defer gen.Close()

	_, err = NewPipeline(nil, gen)
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	repo, backend, err := badgerstore.NewMemoryRepository(nil)
	require.NoError(t, err)
	defer func() { repo.Close(); backend.Close() }()

	_, err = NewPipeline(repo, nil)
	assert.ErrorIs(t, err, ErrGeneratorRequired)
}
