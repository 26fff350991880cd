package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrEmbeddingService marks failures of the external embedding call:
// transport errors, non-2xx statuses and malformed or misaligned responses.
var ErrEmbeddingService = errors.New("embedding service error")

// EmbedMode tells the embedding service whether it is encoding stored
// passages or a search query.
type EmbedMode string

const (
	EmbedModeDocument EmbedMode = "document"
	EmbedModeQuery    EmbedMode = "query"
)

func (m EmbedMode) Valid() bool {
	return m == EmbedModeDocument || m == EmbedModeQuery
}

const (
	ProviderOpenAI = "openai"
	ProviderCohere = "cohere"
)

// EmbeddingConfig holds API settings for the embedding service.
type EmbeddingConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	// ModeParam is the request field that carries the mode on
	// OpenAI-compatible endpoints. Empty means the endpoint does not take one.
	ModeParam string
}

// EmbedBatch sends one request for all texts and returns vectors aligned
// with the input order.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, cfg EmbeddingConfig, texts []string, mode EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown embed mode %q", mode)
	}

	switch cfg.Provider {
	case ProviderCohere:
		return c.embedCohere(ctx, cfg, texts, mode)
	case ProviderOpenAI, "":
		return c.embedOpenAI(ctx, cfg, texts, mode)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func (c *OpenAICompatibleClient) embedOpenAI(ctx context.Context, cfg EmbeddingConfig, texts []string, mode EmbedMode) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"input": texts,
	}
	if cfg.ModeParam != "" {
		reqBody[cfg.ModeParam] = string(mode)
	}

	raw, err := c.postJSON(ctx, cfg.BaseURL, "/embeddings", cfg.APIKey, reqBody)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse embedding json failed: %v", ErrEmbeddingService, err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingService, len(parsed.Data), len(texts))
	}

	result := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) || result[d.Index] != nil {
			return nil, fmt.Errorf("%w: unexpected embedding index %d", ErrEmbeddingService, d.Index)
		}
		result[d.Index] = d.Embedding
	}
	return result, nil
}

// cohereInputType maps a mode onto Cohere's input_type values.
func cohereInputType(mode EmbedMode) string {
	if mode == EmbedModeQuery {
		return "search_query"
	}
	return "search_document"
}

func (c *OpenAICompatibleClient) embedCohere(ctx context.Context, cfg EmbeddingConfig, texts []string, mode EmbedMode) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model":           cfg.Model,
		"input_type":      cohereInputType(mode),
		"embedding_types": []string{"float"},
		"texts":           texts,
	}

	raw, err := c.postJSON(ctx, cfg.BaseURL, "/embed", cfg.APIKey, reqBody)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Embeddings struct {
			Float [][]float32 `json:"float"`
		} `json:"embeddings"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse embedding json failed: %v", ErrEmbeddingService, err)
	}
	if len(parsed.Embeddings.Float) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingService, len(parsed.Embeddings.Float), len(texts))
	}
	return parsed.Embeddings.Float, nil
}

func (c *OpenAICompatibleClient) postJSON(ctx context.Context, baseURL, path, apiKey string, body interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding request failed: %w", ErrEmbeddingService, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read embedding response failed: %w", ErrEmbeddingService, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: embedding response status %d: %s", ErrEmbeddingService, resp.StatusCode, truncateBody(raw))
	}
	return raw, nil
}

// truncateBody keeps provider error bodies readable in logs.
func truncateBody(raw []byte) string {
	const limit = 512
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
