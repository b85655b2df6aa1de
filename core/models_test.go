package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDFromContentIsDeterministic(t *testing.T) {
	a := IDFromContent("hello")
	b := IDFromContent("hello")
	c := IDFromContent("hello!")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotZero(t, a)
}

func TestEmbeddingIDIdentityTuple(t *testing.T) {
	base := EmbeddingID("proj", "main.go", 0)

	assert.Equal(t, base, EmbeddingID("proj", "main.go", 0),
		"same tuple yields same ID")
	assert.NotEqual(t, base, EmbeddingID("proj", "main.go", 1))
	assert.NotEqual(t, base, EmbeddingID("proj", "other.go", 0))
	assert.NotEqual(t, base, EmbeddingID("other", "main.go", 0))
}

func TestHashContent(t *testing.T) {
	h := HashContent("package main")

	assert.Len(t, h, 32, "16-byte digest hex encoded")
	assert.Equal(t, h, HashContent("package main"))
	assert.NotEqual(t, h, HashContent("package main\n"))
}

func TestRecordDimensions(t *testing.T) {
	raw := &EmbeddingRecord{Embedding: make([]float32, 384)}
	assert.Equal(t, 384, raw.Dimensions())

	quantized := &EmbeddingRecord{
		Quantized: &QuantizedVector{Data: make([]byte, 768), Dimensions: 768},
	}
	assert.Equal(t, 768, quantized.Dimensions())

	assert.Zero(t, (&EmbeddingRecord{}).Dimensions())
}
