// Package chi exposes the chat, ingestion, health and debug endpoints over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/logger"
	healthuc "github.com/kailas-cloud/ragchat/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragchat/internal/usecase/ingest"
)

// augmentMaxTokens is the budget reported by /debug/augment.
const augmentMaxTokens = 256

// Ingester indexes a knowledge folder.
type Ingester interface {
	IngestFolder(ctx context.Context, root string) (ingestuc.Result, error)
}

// ChatService answers chat requests.
type ChatService interface {
	BuildMessages(ctx context.Context, req domain.ChatRequest) ([]domain.Message, error)
	Complete(ctx context.Context, req domain.ChatRequest) (string, error)
	Stream(ctx context.Context, req domain.ChatRequest) (iter.Seq[domain.StreamEvent], error)
}

// Retriever returns the chunks closest to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.Hit, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Options holds per-route defaults.
type Options struct {
	KnowledgeDir string
	DebugTopK    int
	AugmentTopK  int
	PreviewChars int
}

func (o *Options) applyDefaults() {
	if o.KnowledgeDir == "" {
		o.KnowledgeDir = "./knowledge"
	}
	if o.DebugTopK <= 0 {
		o.DebugTopK = 4
	}
	if o.AugmentTopK <= 0 {
		o.AugmentTopK = 3
	}
	if o.PreviewChars <= 0 {
		o.PreviewChars = 300
	}
}

// Server holds the HTTP handlers.
type Server struct {
	ingest    Ingester
	chat      ChatService
	retriever Retriever
	health    HealthChecker
	opts      Options
	logger    *zap.Logger

	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingest Ingester,
	chat ChatService,
	retriever Retriever,
	health HealthChecker,
	opts Options,
	logger *zap.Logger,
) *Server {
	opts.applyDefaults()
	return &Server{
		ingest:        ingest,
		chat:          chat,
		retriever:     retriever,
		health:        health,
		opts:          opts,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Register mounts every route on r.
func (s *Server) Register(r chi.Router) {
	r.Post("/ingest", s.Ingest)
	r.Post("/chat", s.Chat)
	r.Post("/chat/stream", s.ChatStream)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/debug", func(r chi.Router) {
		r.Get("/retrieve", s.DebugRetrieve)
		r.Get("/augment", s.DebugAugment)
	})
}

type ingestResponse struct {
	IngestedChunks int    `json:"ingested_chunks"`
	RunID          string `json:"run_id"`
}

// Ingest handles POST /ingest.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	res, err := s.ingest.IngestFolder(r.Context(), s.opts.KnowledgeDir)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{IngestedChunks: res.Ingested, RunID: res.RunID})
}

type historyItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the wire form of domain.ChatRequest; nil fields keep their defaults.
type chatRequest struct {
	Message      string        `json:"message"`
	SystemPrompt *string       `json:"system_prompt"`
	Temperature  *float64      `json:"temperature"`
	MaxTokens    *int          `json:"max_tokens"`
	UseRAG       *bool         `json:"use_rag"`
	TopK         *int          `json:"top_k"`
	History      []historyItem `json:"history"`
}

func (c chatRequest) toDomain() (domain.ChatRequest, error) {
	req := domain.NewChatRequest(c.Message)
	if c.SystemPrompt != nil {
		req.SystemPrompt = *c.SystemPrompt
	}
	if c.Temperature != nil {
		req.Temperature = *c.Temperature
	}
	if c.MaxTokens != nil {
		req.MaxTokens = *c.MaxTokens
	}
	if c.UseRAG != nil {
		req.UseRAG = *c.UseRAG
	}
	if c.TopK != nil {
		if *c.TopK < 1 {
			return domain.ChatRequest{}, fmt.Errorf("%w: top_k must be at least 1, got %d",
				domain.ErrInvalidArgument, *c.TopK)
		}
		req.TopK = *c.TopK
	}
	for _, h := range c.History {
		req.History = append(req.History, domain.Message{Role: domain.Role(h.Role), Content: h.Content})
	}
	return req, req.Validate()
}

func decodeChatRequest(r *http.Request) (domain.ChatRequest, error) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ChatRequest{}, fmt.Errorf("%w: request body is empty", domain.ErrInvalidArgument)
		}
		return domain.ChatRequest{}, fmt.Errorf("%w: invalid request body: %w", domain.ErrInvalidArgument, err)
	}
	return body.toDomain()
}

type chatResponse struct {
	Text string `json:"text"`
}

// Chat handles POST /chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	text, err := s.chat.Complete(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Text: text})
}

// ChatStream handles POST /chat/stream. Failures before the first byte are
// answered with a JSON error; later ones travel as an error event.
func (s *Server) ChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	events, err := s.chat.Stream(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	// The server-wide write timeout would cut long answers short.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := logger.FromContextOr(r.Context(), s.logger)
	for ev := range events {
		if err := writeEvent(w, ev); err != nil {
			log.Debug("Stream client gone", zap.Error(err))
			return
		}
		if err := rc.Flush(); err != nil {
			log.Debug("Stream flush failed", zap.Error(err))
			return
		}
	}
}

func writeEvent(w io.Writer, ev domain.StreamEvent) error {
	var payload any
	switch {
	case ev.Done:
		payload = map[string]string{"event": "done"}
	case ev.Err != "":
		payload = map[string]string{"error": ev.Err}
	default:
		payload = map[string]string{"token": ev.Token}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Chunks *int              `json:"chunks,omitempty"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	resp := healthResponse{Status: string(report.Status), Checks: checks}
	if report.Chunks >= 0 {
		n := report.Chunks
		resp.Chunks = &n
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type retrieveItem struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Distance float64 `json:"distance"`
	Preview  string  `json:"preview"`
}

type retrieveResponse struct {
	Query   string         `json:"query"`
	K       int            `json:"k"`
	Results []retrieveItem `json:"results"`
}

// DebugRetrieve handles GET /debug/retrieve?q=&k=.
func (s *Server) DebugRetrieve(w http.ResponseWriter, r *http.Request) {
	q, k, err := bindDebugQuery(r, s.opts.DebugTopK)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	hits, err := s.retriever.Retrieve(r.Context(), q, k)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]retrieveItem, len(hits))
	for i, h := range hits {
		items[i] = retrieveItem{
			ID:       h.ID,
			Source:   h.Metadata.Source,
			Distance: h.Distance,
			Preview:  preview(h.Text, s.opts.PreviewChars),
		}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Query: q, K: k, Results: items})
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type augmentMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type augmentResponse struct {
	Messages []augmentMessage `json:"messages"`
}

// DebugAugment handles GET /debug/augment?q=&k=. It shows the exact messages
// a chat turn with RAG enabled would send upstream.
func (s *Server) DebugAugment(w http.ResponseWriter, r *http.Request) {
	q, k, err := bindDebugQuery(r, s.opts.AugmentTopK)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	req := domain.NewChatRequest(q)
	req.TopK = k
	req.MaxTokens = augmentMaxTokens

	msgs, err := s.chat.BuildMessages(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	out := make([]augmentMessage, len(msgs))
	for i, m := range msgs {
		out[i] = augmentMessage{
			Role:    string(m.Role),
			Content: []contentBlock{{Type: "text", Text: m.Content}},
		}
	}
	writeJSON(w, http.StatusOK, augmentResponse{Messages: out})
}

// bindDebugQuery reads the required q and the optional k parameters.
func bindDebugQuery(r *http.Request, defaultK int) (string, int, error) {
	params := r.URL.Query()

	var q string
	if err := runtime.BindQueryParameter("form", true, true, "q", params, &q); err != nil {
		return "", 0, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}

	var k *int
	if err := runtime.BindQueryParameter("form", true, false, "k", params, &k); err != nil {
		return "", 0, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	if k == nil {
		return q, defaultK, nil
	}
	return q, *k, nil
}

// preview keeps the first n characters of text and marks the cut with "...".
func preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
