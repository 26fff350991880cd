package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBatchEmbedder records every call and returns one 2-d vector per text.
type fakeBatchEmbedder struct {
	calls     [][]string
	modes     []EmbedMode
	failOn    int // 1-based call number that fails; 0 never fails
	shortOn   int // 1-based call number that drops one vector
	failError error
}

func (f *fakeBatchEmbedder) EmbedBatch(_ context.Context, _ EmbeddingConfig, texts []string, mode EmbedMode) ([][]float32, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.modes = append(f.modes, mode)
	n := len(f.calls)
	if n == f.failOn {
		if f.failError != nil {
			return nil, f.failError
		}
		return nil, fmt.Errorf("%w: status 500", ErrEmbeddingService)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(n), float32(i)}
	}
	if n == f.shortOn {
		out = out[:len(out)-1]
	}
	return out, nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text-%d", i)
	}
	return out
}

func TestEmbedder_EmptyInput(t *testing.T) {
	fake := &fakeBatchEmbedder{}
	e := NewEmbedder(fake, EmbeddingConfig{}, EmbedderOptions{}, nil, nil)

	got, err := e.Embed(context.Background(), nil, EmbedModeDocument)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, fake.calls)
}

func TestEmbedder_BatchesInOrder(t *testing.T) {
	fake := &fakeBatchEmbedder{}
	e := NewEmbedder(fake, EmbeddingConfig{}, EmbedderOptions{BatchSize: 90}, nil, nil)

	got, err := e.Embed(context.Background(), texts(200), EmbedModeDocument)
	require.NoError(t, err)
	require.Len(t, got, 200)

	require.Len(t, fake.calls, 3)
	assert.Len(t, fake.calls[0], 90)
	assert.Len(t, fake.calls[1], 90)
	assert.Len(t, fake.calls[2], 20)
	assert.Equal(t, "text-90", fake.calls[1][0])

	// Vector i of batch b is {b, i}; positions must line up with inputs.
	assert.Equal(t, []float32{1, 0}, got[0])
	assert.Equal(t, []float32{2, 0}, got[90])
	assert.Equal(t, []float32{3, 19}, got[199])
	for _, m := range fake.modes {
		assert.Equal(t, EmbedModeDocument, m)
	}
}

func TestEmbedder_PassesQueryMode(t *testing.T) {
	fake := &fakeBatchEmbedder{}
	e := NewEmbedder(fake, EmbeddingConfig{}, EmbedderOptions{}, nil, nil)

	_, err := e.Embed(context.Background(), []string{"what grew?"}, EmbedModeQuery)
	require.NoError(t, err)
	assert.Equal(t, []EmbedMode{EmbedModeQuery}, fake.modes)
}

func TestEmbedder_RejectsUnknownMode(t *testing.T) {
	e := NewEmbedder(&fakeBatchEmbedder{}, EmbeddingConfig{}, EmbedderOptions{}, nil, nil)
	_, err := e.Embed(context.Background(), []string{"x"}, EmbedMode("passage"))
	assert.Error(t, err)
}

func TestEmbedder_TruncatesShippedTextOnly(t *testing.T) {
	fake := &fakeBatchEmbedder{}
	e := NewEmbedder(fake, EmbeddingConfig{}, EmbedderOptions{MaxInputChars: 5}, nil, nil)

	in := []string{"héllo wörld", "abc"}
	_, err := e.Embed(context.Background(), in, EmbedModeDocument)
	require.NoError(t, err)

	assert.Equal(t, []string{"héllo", "abc"}, fake.calls[0])
	assert.Equal(t, "héllo wörld", in[0], "caller's text must not be modified")
}

func TestEmbedder_SubBatchFailureAbortsAll(t *testing.T) {
	fake := &fakeBatchEmbedder{failOn: 2}
	e := NewEmbedder(fake, EmbeddingConfig{}, EmbedderOptions{BatchSize: 2}, nil, nil)

	got, err := e.Embed(context.Background(), texts(5), EmbedModeDocument)
	assert.ErrorIs(t, err, ErrEmbeddingService)
	assert.Nil(t, got, "no partial result may be returned")
	assert.Len(t, fake.calls, 2, "later batches are not sent after a failure")
}

func TestEmbedder_CountMismatchIsServiceError(t *testing.T) {
	fake := &fakeBatchEmbedder{shortOn: 1}
	e := NewEmbedder(fake, EmbeddingConfig{}, EmbedderOptions{}, nil, nil)

	got, err := e.Embed(context.Background(), texts(3), EmbedModeDocument)
	assert.ErrorIs(t, err, ErrEmbeddingService)
	assert.Nil(t, got)
}

func TestEmbedder_ContextCancelled(t *testing.T) {
	fake := &fakeBatchEmbedder{failOn: 1, failError: context.Canceled}
	e := NewEmbedder(fake, EmbeddingConfig{}, EmbedderOptions{}, nil, nil)

	_, err := e.Embed(context.Background(), texts(1), EmbedModeDocument)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
	assert.Equal(t, strings.Repeat("x", 4000), truncateRunes(strings.Repeat("x", 4100), 4000))
}
