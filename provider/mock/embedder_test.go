package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedderDeterminism(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	c, err := m.EmbedText(ctx, "world")
	require.NoError(t, err)

	assert.Equal(t, a, b, "same text yields same vector")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 384)

	var sumSq float64
	for _, v := range a {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-5, "generated vectors are unit norm")
}

func TestMockEmbedderScriptedFailures(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	scripted := errors.New("scripted failure")
	m.FailWith(scripted, scripted)

	_, err := m.EmbedTexts(ctx, []string{"a"})
	assert.ErrorIs(t, err, scripted)
	_, err = m.EmbedTexts(ctx, []string{"a"})
	assert.ErrorIs(t, err, scripted)

	// Failures exhausted: default behavior resumes.
	vectors, err := m.EmbedTexts(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)

	assert.Equal(t, 3, m.CallCount())
}

func TestMockEmbedderCustomDimensions(t *testing.T) {
	m := NewMockEmbedder()
	m.Dim = 16

	vector, err := m.EmbedText(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vector, 16)
}
