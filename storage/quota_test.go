package storage

import (
	"testing"

	"github.com/poiesic/codeindex/core"
	"github.com/stretchr/testify/assert"
)

func TestRecordCostRawVector(t *testing.T) {
	record := &core.EmbeddingRecord{
		Content:   "0123456789", // 10 bytes
		Embedding: make([]float32, 384),
	}

	want := int64(10 + RecordOverheadBytes + 4*384)
	assert.Equal(t, want, RecordCost(record))
}

func TestRecordCostQuantizedVector(t *testing.T) {
	record := &core.EmbeddingRecord{
		Content: "0123456789",
		Quantized: &core.QuantizedVector{
			Data:       make([]byte, 384),
			Dimensions: 384,
		},
	}

	want := int64(10 + RecordOverheadBytes + 384 + 12)
	assert.Equal(t, want, RecordCost(record))
}

func TestRecordCostQuantizedIsCheaper(t *testing.T) {
	raw := &core.EmbeddingRecord{Content: "x", Embedding: make([]float32, 384)}
	quantized := &core.EmbeddingRecord{
		Content:   "x",
		Quantized: &core.QuantizedVector{Data: make([]byte, 384), Dimensions: 384},
	}

	assert.Less(t, RecordCost(quantized), RecordCost(raw))
}

func TestQuotaExceededErrorIs(t *testing.T) {
	err := &QuotaExceededError{
		Scope:          QuotaScopeProject,
		ProjectId:      "proj",
		AttemptedBytes: 100,
		UsedBytes:      950,
		LimitBytes:     1000,
	}

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "proj")
}
