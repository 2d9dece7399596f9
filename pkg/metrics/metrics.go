// Package metrics 提供 Prometheus helper，包含 HTTP 与业务指标
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 当前未平仓头寸数
	PositionsOpen prometheus.Gauge
	// 开仓计数
	PositionsOpenedTotal prometheus.Counter
	// 平仓计数（含部分平仓）
	PositionsClosedTotal prometheus.Counter
	// 报表生成计数
	ReportsGeneratedTotal prometheus.Counter
	// 乐观锁冲突计数
	ConcurrentConflictsTotal prometheus.Counter

	registry *prometheus.Registry
}

// New 创建指标实例并注册到独立 registry
func New(serviceName string) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optionsledger",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "optionsledger",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PositionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "optionsledger",
			Subsystem: serviceName,
			Name:      "positions_open",
			Help:      "Number of currently open or partially closed positions",
		}),
		PositionsOpenedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optionsledger",
			Subsystem: serviceName,
			Name:      "positions_opened_total",
			Help:      "Total positions opened",
		}),
		PositionsClosedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optionsledger",
			Subsystem: serviceName,
			Name:      "positions_closed_total",
			Help:      "Total close operations, including partial closes",
		}),
		ReportsGeneratedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optionsledger",
			Subsystem: serviceName,
			Name:      "reports_generated_total",
			Help:      "Total performance reports generated",
		}),
		ConcurrentConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optionsledger",
			Subsystem: serviceName,
			Name:      "concurrent_conflicts_total",
			Help:      "Optimistic lock conflicts observed on lifecycle writes",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PositionsOpen,
		m.PositionsOpenedTotal,
		m.PositionsClosedTotal,
		m.ReportsGeneratedTotal,
		m.ConcurrentConflictsTotal,
	)
	return m
}

// Middleware 返回记录 HTTP 请求计数与耗时的 gin 中间件
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 /metrics 的 gin 处理函数
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
