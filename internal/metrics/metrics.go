package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_compressor_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_compressor_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Compression metrics
	CompressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_compressor_compressions_total",
			Help: "Total number of image compressions",
		},
		[]string{"mode", "status"}, // status: success, error, cancelled
	)

	CompressionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_compressor_compression_duration_seconds",
			Help:    "Compression duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"mode"},
	)

	CompressionBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_compressor_bytes",
			Help:    "Compression input/output bytes",
			Buckets: []float64{1024, 10240, 102400, 512000, 1048576, 5242880, 10485760},
		},
		[]string{"direction"}, // input, output
	)

	EncodeAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_compressor_encode_attempts",
			Help:    "Encode attempts per compressed image",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 12, 14, 16},
		},
	)

	FallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_compressor_fallbacks_total",
			Help: "Total number of target-size searches that used the fallback encode",
		},
	)

	// Batch metrics
	BatchesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_compressor_batches_active",
			Help: "Current number of running batches",
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_compressor_websocket_clients",
			Help: "Current number of connected progress listeners",
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, duration float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordCompression records a successful compression
func RecordCompression(mode string, duration float64, inputBytes, outputBytes, attempts int, fellBack bool) {
	CompressionsTotal.WithLabelValues(mode, "success").Inc()
	CompressionDuration.WithLabelValues(mode).Observe(duration)
	CompressionBytes.WithLabelValues("input").Observe(float64(inputBytes))
	CompressionBytes.WithLabelValues("output").Observe(float64(outputBytes))
	EncodeAttempts.Observe(float64(attempts))
	if fellBack {
		FallbacksTotal.Inc()
	}
}

// RecordCompressionFailure records a compression that produced no output
func RecordCompressionFailure(mode, status string) {
	CompressionsTotal.WithLabelValues(mode, status).Inc()
}

// BatchStarted marks a batch as running
func BatchStarted() {
	BatchesActive.Inc()
}

// BatchFinished marks a batch as done
func BatchFinished() {
	BatchesActive.Dec()
}

// UpdateWebSocketClients sets the listener gauge
func UpdateWebSocketClients(count int) {
	WebSocketClients.Set(float64(count))
}
