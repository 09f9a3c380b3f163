package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/examreg/core/export"
	"github.com/trezcool/examreg/core/ingest"
)

const namespace = "examreg"

// Prometheus collects ingest, export and HTTP metrics on its own registry.
type Prometheus struct {
	reg *prometheus.Registry

	rowsCreated  *prometheus.CounterVec
	rowsRejected *prometheus.CounterVec
	chunkFailed  *prometheus.CounterVec
	rowsExported *prometheus.CounterVec
	httpRequests *prometheus.HistogramVec
}

var (
	_ ingest.Metrics = (*Prometheus)(nil)
	_ export.Metrics = (*Prometheus)(nil)
)

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		reg: prometheus.NewRegistry(),
		rowsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rows_created_total",
			Help:      "Rows inserted by uploads, per pipeline.",
		}, []string{"pipeline"}),
		rowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rows_rejected_total",
			Help:      "Rows rejected by uploads, per pipeline and reason.",
		}, []string{"pipeline", "reason"}),
		chunkFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_failed_total",
			Help:      "Insert chunks that failed and were skipped.",
		}, []string{"pipeline"}),
		rowsExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_rows_total",
			Help:      "Rows written by exports, per table.",
		}, []string{"table"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, per route and status.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 30, 120},
		}, []string{"method", "route", "status"}),
	}
	p.reg.MustRegister(
		p.rowsCreated, p.rowsRejected, p.chunkFailed, p.rowsExported, p.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) RowsCreated(pipeline string, n int) {
	p.rowsCreated.WithLabelValues(pipeline).Add(float64(n))
}

func (p *Prometheus) RowsRejected(pipeline string, reason ingest.Reason, n int) {
	p.rowsRejected.WithLabelValues(pipeline, string(reason)).Add(float64(n))
}

func (p *Prometheus) ChunkFailed(pipeline string) {
	p.chunkFailed.WithLabelValues(pipeline).Inc()
}

func (p *Prometheus) RowsExported(table string, n int) {
	p.rowsExported.WithLabelValues(table).Add(float64(n))
}

func (p *Prometheus) ObserveRequest(method, route string, status int, took time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(took.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.reg
}
