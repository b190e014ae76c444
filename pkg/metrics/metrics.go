package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 处理周期延迟（毫秒）
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_cycle_duration_ms",
			Help:    "Delivery queue processing cycle duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
	)

	// Push gateway 调用延迟（毫秒）
	GatewayCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_latency_ms",
			Help:    "Push gateway call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"status"},
	)

	// 投递结果计数
	DeliveryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_count",
			Help: "Total number of delivery attempts reconciled",
		},
		[]string{"outcome"}, // outcome: sent, retried, failed
	)

	// 队列深度
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delivery_queue_depth",
			Help: "Number of delivery queue items by status",
		},
		[]string{"status"},
	)

	// 通知提交计数
	NotificationSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_submitted_count",
			Help: "Total number of notifications accepted by the API",
		},
		[]string{"type"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// RecordCycleDuration 记录处理周期耗时
func RecordCycleDuration(duration time.Duration) {
	CycleDuration.Observe(float64(duration.Milliseconds()))
}

// RecordGatewayCallLatency 记录 gateway 调用延迟
func RecordGatewayCallLatency(status string, duration time.Duration) {
	GatewayCallLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

// IncrementDelivery 增加投递结果计数
func IncrementDelivery(outcome string) {
	DeliveryCount.WithLabelValues(outcome).Inc()
}

// SetQueueDepth 更新队列深度
func SetQueueDepth(status string, depth float64) {
	QueueDepth.WithLabelValues(status).Set(depth)
}

// IncrementNotificationSubmitted 增加通知提交计数
func IncrementNotificationSubmitted(notificationType string) {
	NotificationSubmitted.WithLabelValues(notificationType).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
