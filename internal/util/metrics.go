package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_runs_total",
		Help: "Total number of alert task runs by task and outcome",
	}, []string{"task", "outcome"})

	AlertRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alert_run_duration_seconds",
		Help:    "Duration of alert task runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	AlertEmailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_emails_sent_total",
		Help: "Total number of alert emails sent",
	}, []string{"type"})

	AlertEmailsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_emails_failed_total",
		Help: "Total number of alert emails that failed to send",
	}, []string{"type"})

	LowStockProductsNotifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "low_stock_products_notified_total",
		Help: "Total number of product entries included in sent low-stock alerts",
	})

	AlertTaskPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_task_panics_total",
		Help: "Total number of recovered panics in scheduled alert tasks",
	}, []string{"task"})

	AlertEngineRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alert_engine_running",
		Help: "1 when the alert engine has scheduled tasks, 0 when idle",
	})

	StockUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_updates_total",
		Help: "Total number of product stock updates",
	})

	StatsCacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_cache_requests_total",
		Help: "Dashboard stats cache lookups by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
