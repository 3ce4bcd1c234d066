package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/metrics"
)

const provider = "bedrock"

// Embedder calls Amazon Titan text embedding models.
type Embedder struct {
	rt         runtimeAPI
	model      string
	dimensions int
}

// NewEmbedder creates a Titan embedder. dimensions 0 keeps the model default.
func NewEmbedder(rt runtimeAPI, model string, dimensions int) *Embedder {
	return &Embedder{rt: rt, model: model, dimensions: dimensions}
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	body, err := json.Marshal(titanRequest{InputText: text, Dimensions: e.dimensions})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("encode titan request: %w", err)
	}

	start := time.Now()
	out, err := e.rt.Invoke(ctx, e.model, body)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.model, "api_error").Inc()
		return domain.EmbeddingResult{}, parseAPIError("embedding", err, domain.ErrEmbeddingProviderError)
	}

	values := gjson.GetBytes(out, "embedding").Array()
	if len(values) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.model, "empty_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.Float())
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(provider, e.model).Observe(duration.Seconds())

	tokens := int(gjson.GetBytes(out, "inputTextTokenCount").Int())
	if tokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(provider, e.model, "prompt").Add(float64(tokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(provider, e.model, "total").Add(float64(tokens))
	}

	return domain.EmbeddingResult{Embedding: vec, PromptTokens: tokens, TotalTokens: tokens}, nil
}

// HealthCheck verifies that AWS credentials resolve.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	return e.rt.CheckCredentials(ctx)
}
