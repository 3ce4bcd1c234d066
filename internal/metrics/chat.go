package metrics

import "github.com/prometheus/client_golang/prometheus"

// Chat model and ingestion Prometheus metrics.
var (
	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "chat_requests_total",
			Help:      "Total number of chat model requests",
		},
		[]string{"provider", "model", "mode", "status"}, // mode: sync | stream
	)

	ChatRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragchat",
			Name:      "chat_request_duration_seconds",
			Help:      "Chat model request duration in seconds (time to full answer or stream end)",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"provider", "model", "mode"},
	)

	ChatStreamDeltasTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "chat_stream_deltas_total",
			Help:      "Text deltas forwarded to streaming clients",
		},
		[]string{"provider", "model"},
	)

	ChatStreamSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "chat_stream_skipped_chunks_total",
			Help:      "Stream chunks skipped because they could not be parsed",
		},
		[]string{"provider", "model"},
	)

	IngestedChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "ingested_chunks_total",
			Help:      "Chunks written to the vector store",
		},
	)
)

var chatMetricsRegistered bool

// RegisterChatMetrics registers chat and ingestion metrics. Must be called once from main.
func RegisterChatMetrics() {
	if chatMetricsRegistered {
		return
	}
	prometheus.MustRegister(ChatRequestsTotal)
	prometheus.MustRegister(ChatRequestDuration)
	prometheus.MustRegister(ChatStreamDeltasTotal)
	prometheus.MustRegister(ChatStreamSkippedTotal)
	prometheus.MustRegister(IngestedChunksTotal)
	chatMetricsRegistered = true
}
