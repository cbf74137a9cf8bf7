package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Auto-save
	AutosaveSessions  prometheus.Gauge
	AutosaveEdits     prometheus.Counter
	AutosaveFlushes   *prometheus.CounterVec
	AutosaveFlushTime prometheus.Histogram

	// Verification mail
	MailsTotal *prometheus.CounterVec

	// Sweeper
	SweptCodes prometheus.Counter
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scribe",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "scribe",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "scribe",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "scribe",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scribe",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		AutosaveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "scribe",
				Subsystem: "autosave",
				Name:      "open_sessions",
				Help:      "Editing sessions currently held by this process.",
			},
		),
		AutosaveEdits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scribe",
				Subsystem: "autosave",
				Name:      "edits_total",
				Help:      "Buffered edits received (before debounce).",
			},
		),
		AutosaveFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scribe",
				Subsystem: "autosave",
				Name:      "flushes_total",
				Help:      "Persisted auto-save writes by trigger and result.",
			},
			[]string{"trigger", "result"}, // trigger=debounce|retry|close|idle|shutdown
		),
		AutosaveFlushTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "scribe",
				Subsystem: "autosave",
				Name:      "flush_duration_seconds",
				Help:      "Latency of auto-save writes.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
		MailsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scribe",
				Subsystem: "mail",
				Name:      "sent_total",
				Help:      "Verification mails by result.",
			},
			[]string{"result"},
		),
		SweptCodes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scribe",
				Subsystem: "sweeper",
				Name:      "codes_deleted_total",
				Help:      "Verification codes removed by the sweeper.",
			},
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.AutosaveSessions, p.AutosaveEdits, p.AutosaveFlushes, p.AutosaveFlushTime,
		p.MailsTotal, p.SweptCodes,
	)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}
