// Package openai adapts OpenAI-compatible APIs to the domain embedder and chat model.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/metrics"
)

// Embedder is an embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	provider   string
	logger     *zap.Logger
}

// Config holds provider settings shared by the embedder and the chat model.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int // embeddings only
	Provider   string
	Logger     *zap.Logger
}

func newClient(cfg *Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	return &Embedder{
		client:     newClient(cfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		provider:   cfg.Provider,
		logger:     cfg.Logger,
	}
}

// Embed implements domain.Embedder. Returns the vector and usage with transport-level metrics.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), "api_error").Inc()
		return domain.EmbeddingResult{}, parseAPIError("embedding", err, domain.ErrEmbeddingProviderError)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), "empty_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	// Record success metrics
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, string(e.model)).Observe(duration.Seconds())

	totalTokens := resp.Usage.TotalTokens
	promptTokens := resp.Usage.PromptTokens
	if totalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "prompt").Add(float64(promptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "total").Add(float64(totalTokens))
	}

	return domain.EmbeddingResult{
		Embedding:    resp.Data[0].Embedding,
		PromptTokens: promptTokens,
		TotalTokens:  totalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response and wraps
// it with the given sentinel for HTTP mapping.
func parseAPIError(kind string, err error, wrap error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w", kind, reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w", kind, apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("%s request failed: %w: %w", kind, wrap, err)
}

// extractDetail pulls "detail" (Nebius-style) or "error.message" from a JSON error body.
func extractDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	res := gjson.GetManyBytes(body, "detail", "error.message")
	for _, r := range res {
		if s := r.String(); s != "" {
			return s
		}
	}
	return ""
}
