package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() *EmbeddingRecord {
	return &EmbeddingRecord{
		ProjectId:  "proj",
		FileId:     "main.go",
		ChunkIndex: 0,
		Content:    "package main",
		Embedding:  []float32{0.1, 0.2, 0.3},
	}
}

func TestValidateEmbeddingRecord(t *testing.T) {
	require.NoError(t, ValidateEmbeddingRecord(validRecord()))

	quantized := validRecord()
	quantized.Embedding = nil
	quantized.Quantized = &QuantizedVector{Data: []byte{1, 2, 3}, Dimensions: 3}
	require.NoError(t, ValidateEmbeddingRecord(quantized))
}

func TestValidateEmbeddingRecordRejections(t *testing.T) {
	assert.ErrorIs(t, ValidateEmbeddingRecord(nil), ErrInvalidRecord)

	r := validRecord()
	r.ProjectId = ""
	assert.ErrorIs(t, ValidateEmbeddingRecord(r), ErrEmptyProjectId)

	r = validRecord()
	r.FileId = ""
	assert.ErrorIs(t, ValidateEmbeddingRecord(r), ErrEmptyFileId)

	r = validRecord()
	r.Content = ""
	assert.ErrorIs(t, ValidateEmbeddingRecord(r), ErrEmptyContent)

	r = validRecord()
	r.ChunkIndex = -1
	assert.ErrorIs(t, ValidateEmbeddingRecord(r), ErrNegativeChunkIndex)

	r = validRecord()
	r.Embedding = nil
	assert.ErrorIs(t, ValidateEmbeddingRecord(r), ErrMissingVector)

	r = validRecord()
	r.ProjectId = "proj:other"
	assert.ErrorIs(t, ValidateEmbeddingRecord(r), ErrInvalidProjectId)
}

func TestValidateProjectId(t *testing.T) {
	require.NoError(t, ValidateProjectId("proj"))
	require.NoError(t, ValidateProjectId("org/repo-1.2_x"))

	assert.ErrorIs(t, ValidateProjectId(""), ErrEmptyProjectId)

	// ':' separates storage key components; a project id carrying one would
	// collide with another project's key space.
	assert.ErrorIs(t, ValidateProjectId("a:b"), ErrInvalidProjectId)
	assert.ErrorIs(t, ValidateProjectId(":"), ErrInvalidProjectId)
	assert.ErrorIs(t, ValidateProjectId("a:"), ErrInvalidProjectId)
}

func TestValidateQuantizedVectorConsistency(t *testing.T) {
	r := validRecord()
	r.Embedding = nil
	r.Quantized = &QuantizedVector{Data: []byte{1, 2}, Dimensions: 3}

	err := ValidateEmbeddingRecord(r)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
