package chi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/logger"
)

type errorCode string

const (
	codeInvalidArgument        errorCode = "invalid_argument"
	codeEmbeddingProviderError errorCode = "embedding_provider_error"
	codeUpstreamError          errorCode = "upstream_error"
	codeVectorStoreError       errorCode = "vector_store_error"
	codeUnauthorized           errorCode = "unauthorized"
	codeInternalError          errorCode = "internal_error"
)

type errorResponse struct {
	Code           errorCode `json:"code"`
	Message        string    `json:"message"`
	IngestedChunks *int      `json:"ingested_chunks,omitempty"`
}

// errorHandler maps a matching error to a status and code.
type errorHandler struct {
	sentinel error
	status   int
	code     errorCode
	// expose reports whether err's own text is safe to return to the client.
	expose bool
}

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		{sentinel: domain.ErrInvalidArgument, status: http.StatusBadRequest, code: codeInvalidArgument, expose: true},
		{sentinel: domain.ErrEmbeddingProviderError, status: http.StatusBadGateway, code: codeEmbeddingProviderError},
		{sentinel: domain.ErrChatProviderError, status: http.StatusInternalServerError, code: codeUpstreamError},
		{sentinel: domain.ErrVectorStore, status: http.StatusInternalServerError, code: codeVectorStoreError},
	}
}

// classify returns the HTTP status, code and client message for err.
func (s *Server) classify(err error) (int, errorCode, string) {
	for _, h := range s.errorHandlers {
		if !errors.Is(err, h.sentinel) {
			continue
		}
		if h.expose {
			return h.status, h.code, err.Error()
		}
		return h.status, h.code, h.sentinel.Error()
	}
	return http.StatusInternalServerError, codeInternalError, "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), s.logger)
	status, code, msg := s.classify(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("code", string(code)), zap.Error(err))
	} else {
		log.Warn("Request rejected", zap.String("code", string(code)), zap.Error(err))
	}

	resp := errorResponse{Code: code, Message: msg}
	var partial *domain.PartialIngestError
	if errors.As(err, &partial) {
		n := partial.Ingested
		resp.IngestedChunks = &n
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
