package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVector(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Vector
		wantErr bool
	}{
		{name: "valid", raw: "[0.5,-1,2.25]", want: Vector{0.5, -1, 2.25}},
		{name: "empty string", raw: "", wantErr: true},
		{name: "null", raw: "null", wantErr: true},
		{name: "empty array", raw: "[]", wantErr: true},
		{name: "not json", raw: "{broken", wantErr: true},
		{name: "strings", raw: `["a","b"]`, wantErr: true},
		{name: "object", raw: `{"x":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVector(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedEmbedding)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChunk_SetEmbedding(t *testing.T) {
	var c Chunk
	require.NoError(t, c.SetEmbedding(Vector{1, 0.25}))
	assert.Equal(t, "[1,0.25]", c.Embedding)

	v, err := c.EmbeddingVector()
	require.NoError(t, err)
	assert.Equal(t, Vector{1, 0.25}, v)

	assert.ErrorIs(t, c.SetEmbedding(nil), ErrMalformedEmbedding)
}
