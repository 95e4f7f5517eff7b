package monitor

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector saga and system metrics collector
type MetricsCollector struct {
	// Saga metrics
	checkoutRequestTotal  *prometheus.CounterVec
	stockReservationTotal *prometheus.CounterVec
	paymentCaptureTotal   *prometheus.CounterVec
	refundTotal           prometheus.Counter
	compensationTotal     *prometheus.CounterVec
	duplicateEventTotal   *prometheus.CounterVec
	sagaStageDuration     *prometheus.HistogramVec

	// HTTP metrics
	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Event bus metrics
	eventPublishTotal *prometheus.CounterVec
	eventConsumeTotal *prometheus.CounterVec

	// System metrics
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
}

// NewMetricsCollector creates a metrics collector
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{}
	mc.initMetrics()
	return mc
}

func (mc *MetricsCollector) initMetrics() {
	mc.checkoutRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_request_total",
			Help: "Total number of checkout requests",
		},
		[]string{"status"},
	)

	mc.stockReservationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_reservation_total",
			Help: "Total number of stock reservation attempts",
		},
		[]string{"result"},
	)

	mc.paymentCaptureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_capture_total",
			Help: "Total number of payment capture attempts",
		},
		[]string{"result"},
	)

	mc.refundTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refund_total",
			Help: "Total number of successful refunds",
		},
	)

	mc.compensationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compensation_total",
			Help: "Total number of compensation actions",
		},
		[]string{"stage"},
	)

	mc.duplicateEventTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicate_event_total",
			Help: "Total number of duplicate events absorbed",
		},
		[]string{"group"},
	)

	mc.sagaStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saga_stage_duration_seconds",
			Help:    "Duration of saga stage handlers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	mc.httpRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	mc.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	mc.eventPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_publish_total",
			Help: "Total number of published saga events",
		},
		[]string{"event_type", "status"},
	)

	mc.eventConsumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_consume_total",
			Help: "Total number of consumed saga events",
		},
		[]string{"group", "event_type", "status"},
	)

	mc.memoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)

	mc.goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "goroutine_count",
			Help: "Number of goroutines",
		},
	)
}

// RecordCheckoutRequest records a checkout request
func (mc *MetricsCollector) RecordCheckoutRequest(status string) {
	mc.checkoutRequestTotal.WithLabelValues(status).Inc()
}

// RecordStockReservation records a reservation attempt
func (mc *MetricsCollector) RecordStockReservation(result string) {
	mc.stockReservationTotal.WithLabelValues(result).Inc()
}

// RecordPaymentCapture records a capture attempt
func (mc *MetricsCollector) RecordPaymentCapture(result string) {
	mc.paymentCaptureTotal.WithLabelValues(result).Inc()
}

// RecordRefund records a successful refund
func (mc *MetricsCollector) RecordRefund() {
	mc.refundTotal.Inc()
}

// RecordCompensation records a compensation action by stage
func (mc *MetricsCollector) RecordCompensation(stage string) {
	mc.compensationTotal.WithLabelValues(stage).Inc()
}

// RecordDuplicateEvent records an absorbed duplicate delivery
func (mc *MetricsCollector) RecordDuplicateEvent(group string) {
	mc.duplicateEventTotal.WithLabelValues(group).Inc()
}

// RecordSagaStageDuration records handler latency by stage
func (mc *MetricsCollector) RecordSagaStageDuration(stage string, duration time.Duration) {
	mc.sagaStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (mc *MetricsCollector) RecordHTTPRequest(method, path, status string) {
	mc.httpRequestTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records HTTP request latency
func (mc *MetricsCollector) RecordHTTPDuration(method, path string, duration time.Duration) {
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEventPublish records a publish outcome
func (mc *MetricsCollector) RecordEventPublish(eventType, status string) {
	mc.eventPublishTotal.WithLabelValues(eventType, status).Inc()
}

// RecordEventConsume records a consume outcome
func (mc *MetricsCollector) RecordEventConsume(group, eventType, status string) {
	mc.eventConsumeTotal.WithLabelValues(group, eventType, status).Inc()
}

// UpdateSystemMetrics refreshes runtime gauges
func (mc *MetricsCollector) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.memoryUsage.Set(float64(m.Alloc))
	mc.goroutineCount.Set(float64(runtime.NumGoroutine()))
}

// StartSystemMetricsCollection refreshes runtime gauges periodically
func (mc *MetricsCollector) StartSystemMetricsCollection(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateSystemMetrics()
		}
	}
}
