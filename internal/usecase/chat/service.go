// Package chat assembles prompts and drives the chat model in sync and streaming modes.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/logger"
	"github.com/kailas-cloud/ragchat/internal/metrics"
)

const (
	modeSync   = "sync"
	modeStream = "stream"
)

// Service is the chat orchestrator.
type Service struct {
	model     domain.ChatModel
	retriever Retriever
	logger    *zap.Logger

	provider  string
	modelName string
}

// New creates a chat service.
func New(model domain.ChatModel, retriever Retriever, logger *zap.Logger) *Service {
	return &Service{
		model:     model,
		retriever: retriever,
		logger:    logger,
		provider:  "unknown",
		modelName: "unknown",
	}
}

// WithLabels sets the provider and model names used in metrics and logs.
func (s *Service) WithLabels(provider, model string) *Service {
	s.provider = provider
	s.modelName = model
	return s
}

// BuildMessages returns the recent history followed by the current user turn,
// augmented with retrieved context when req.UseRAG is set.
func (s *Service) BuildMessages(ctx context.Context, req domain.ChatRequest) ([]domain.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	content := req.Message
	if req.UseRAG {
		hits, err := s.retriever.Retrieve(ctx, req.Message, req.TopK)
		if err != nil {
			return nil, fmt.Errorf("retrieve context: %w", err)
		}
		content = augmentQuestion(req.Message, hits)
		logger.FromContextOr(ctx, s.logger).Debug("Retrieved context",
			zap.Int("top_k", req.TopK),
			zap.Int("hits", len(hits)),
		)
	}

	msgs := req.RecentHistory()
	return append(msgs, domain.Message{Role: domain.RoleUser, Content: content}), nil
}

// BuildModelRequest assembles the full upstream request for req.
func (s *Service) BuildModelRequest(ctx context.Context, req domain.ChatRequest) (domain.ModelRequest, error) {
	msgs, err := s.BuildMessages(ctx, req)
	if err != nil {
		return domain.ModelRequest{}, err
	}
	return domain.ModelRequest{
		System:      req.SystemPrompt,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, nil
}

// Complete returns the full answer in one call.
func (s *Service) Complete(ctx context.Context, req domain.ChatRequest) (string, error) {
	mreq, err := s.BuildModelRequest(ctx, req)
	if err != nil {
		return "", err
	}

	start := time.Now()
	text, err := s.model.Complete(ctx, mreq)
	s.observe(modeSync, start, err)
	if err != nil {
		return "", fmt.Errorf("complete: %w", upstreamErr(err))
	}
	return text, nil
}

// Stream opens the upstream stream and returns its events. Open failures are
// returned directly. The sequence yields token events, at most one error event,
// and always ends with a done event unless the consumer stops early.
func (s *Service) Stream(ctx context.Context, req domain.ChatRequest) (iter.Seq[domain.StreamEvent], error) {
	mreq, err := s.BuildModelRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	upstream, err := s.model.Stream(ctx, mreq)
	if err != nil {
		s.observe(modeStream, start, err)
		return nil, fmt.Errorf("open stream: %w", upstreamErr(err))
	}

	log := logger.FromContextOr(ctx, s.logger)

	return func(yield func(domain.StreamEvent) bool) {
		var streamErr error
		defer func() { s.observe(modeStream, start, streamErr) }()

		for tok, err := range upstream {
			if err != nil {
				if errors.Is(err, domain.ErrMalformedChunk) {
					metrics.ChatStreamSkippedTotal.WithLabelValues(s.provider, s.modelName).Inc()
					log.Debug("Skipping malformed stream chunk", zap.Error(err))
					continue
				}
				streamErr = err
				log.Warn("Chat stream failed", zap.Error(err))
				if !yield(domain.StreamEvent{Err: err.Error()}) {
					return
				}
				break
			}
			if tok == "" {
				continue
			}
			metrics.ChatStreamDeltasTotal.WithLabelValues(s.provider, s.modelName).Inc()
			if !yield(domain.StreamEvent{Token: tok}) {
				streamErr = context.Canceled
				return
			}
		}

		yield(domain.StreamEvent{Done: true})
	}, nil
}

func (s *Service) observe(mode string, start time.Time, err error) {
	status := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		status = "cancelled"
	case err != nil:
		status = "error"
	}
	metrics.ChatRequestsTotal.WithLabelValues(s.provider, s.modelName, mode, status).Inc()
	metrics.ChatRequestDuration.WithLabelValues(s.provider, s.modelName, mode).Observe(time.Since(start).Seconds())
}

func upstreamErr(err error) error {
	if errors.Is(err, domain.ErrChatProviderError) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrChatProviderError, err)
}
