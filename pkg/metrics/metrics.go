package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"sql"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// 邮件处理计数
	EmailProcessedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_processed_count",
			Help: "Total number of detected emails run through the forwarding pipeline",
		},
		[]string{"status"}, // status: success, failed, skipped
	)

	// 规则命中计数
	RulesMatchedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forwarding_rules_matched_count",
			Help: "Total number of (email, rule) pairs matched",
		},
	)

	// 站内通知创建计数
	NotificationsCreatedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_count",
			Help: "Total number of notification rows created",
		},
		[]string{"type"},
	)

	// 批处理耗时（秒）
	ForwardingBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forwarding_batch_duration_seconds",
			Help:    "Duration of one forwarding batch in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(sql string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
	DBQueryDuration.WithLabelValues("slow", "unknown").Observe(duration.Seconds())
}

// IncrementEmailProcessed 增加邮件处理计数
func IncrementEmailProcessed(status string) {
	EmailProcessedCount.WithLabelValues(status).Inc()
}

// AddRulesMatched 增加规则命中数
func AddRulesMatched(n int) {
	RulesMatchedCount.Add(float64(n))
}

// AddNotificationsCreated 增加通知创建数
func AddNotificationsCreated(notificationType string, n int) {
	NotificationsCreatedCount.WithLabelValues(notificationType).Add(float64(n))
}

// RecordForwardingBatch 记录批处理耗时
func RecordForwardingBatch(duration time.Duration) {
	ForwardingBatchDuration.Observe(duration.Seconds())
}
