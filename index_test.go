package codeindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/codeindex/core"
	"github.com/poiesic/codeindex/quant"
	"github.com/poiesic/codeindex/storage"
	badgerstore "github.com/poiesic/codeindex/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, storeConfig *badgerstore.Config) *Index {
	t.Helper()
	index, err := NewIndex("",
		WithInMemoryStore(),
		WithStoreConfig(storeConfig),
	)
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	return index
}

// storedRecord builds a quantized record the way the ingestion pipeline
// would, without requiring a live embedding service.
func storedRecord(projectId string, i int) *core.EmbeddingRecord {
	vector := make([]float32, 384)
	for j := range vector {
		vector[j] = float32((i*31+j)%100) / 100.0
	}
	return &core.EmbeddingRecord{
		ProjectId:  projectId,
		FileId:     fmt.Sprintf("file-%d.go", i),
		ChunkIndex: 0,
		Content:    fmt.Sprintf("contents of chunk %d", i),
		Quantized:  quant.Quantize(vector),
	}
}

func TestIndexStoreAndUsage(t *testing.T) {
	index := newTestIndex(t, nil)
	ctx := context.Background()

	require.NoError(t, index.SetProjectQuota(ctx, "proj", 1<<20))

	for i := 0; i < 50; i++ {
		require.NoError(t, index.Repository().StoreEmbedding(ctx, storedRecord("proj", i)))
	}

	usage, err := index.Usage(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, int64(50), usage.EmbeddingCount)
	assert.Equal(t, int64(1<<20), usage.QuotaBytes)
	assert.Less(t, usage.UsagePercentage, 100.0)
	assert.Greater(t, usage.UsagePercentage, 0.0)
	assert.Equal(t, usage.QuotaBytes-usage.TotalBytes, usage.RemainingBytes)
}

func TestIndexQuotaRejectionLeavesStateUntouched(t *testing.T) {
	index := newTestIndex(t, nil)
	ctx := context.Background()

	record := storedRecord("proj", 0)
	cost := storage.RecordCost(record)
	require.NoError(t, index.SetProjectQuota(ctx, "proj", cost))
	require.NoError(t, index.Repository().StoreEmbedding(ctx, record))

	before, err := index.Usage(ctx, "proj")
	require.NoError(t, err)

	err = index.Repository().StoreEmbedding(ctx, storedRecord("proj", 1))
	require.ErrorIs(t, err, storage.ErrQuotaExceeded)

	var quotaErr *storage.QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, cost, quotaErr.LimitBytes)

	after, err := index.Usage(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, before.TotalBytes, after.TotalBytes)
	assert.Equal(t, before.EmbeddingCount, after.EmbeddingCount)
}

func TestIndexSearchOverStoredRecords(t *testing.T) {
	index := newTestIndex(t, nil)
	ctx := context.Background()

	vector := make([]float32, 384)
	vector[0] = 1
	record := &core.EmbeddingRecord{
		ProjectId: "proj",
		FileId:    "target.go",
		Content:   "the chunk being searched for",
		Embedding: vector,
	}
	require.NoError(t, index.Repository().StoreEmbedding(ctx, record))

	searcher, err := index.NewSearcher()
	require.NoError(t, err)

	results, err := searcher.Search(ctx, "proj", vector, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "target.go", results[0].Record.FileId)
}

func TestIndexPipelineConstruction(t *testing.T) {
	index := newTestIndex(t, nil)

	pipeline, err := index.NewPipeline()
	require.NoError(t, err)
	assert.NotNil(t, pipeline)
}

func TestIndexGlobalQuotaConfig(t *testing.T) {
	index := newTestIndex(t, &badgerstore.Config{
		QuotasEnabled:    true,
		GlobalQuotaBytes: 42,
	})

	assert.True(t, index.Repository().IsQuotasEnabled())
	assert.Equal(t, int64(42), index.Repository().GlobalQuota())
}
