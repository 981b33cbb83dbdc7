package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the API, services and workers report to.
type Recorder interface {
	RecordHTTPRequest(method string, route string, status int, duration time.Duration)
	RecordUploadRequested(fileType string)
	RecordAssetsDeleted(reason string, count int)
	RecordBlobDeleteFailure()
	RecordSessionSaves(count int)
	RecordWSConnection(delta int)
}

type Collector struct {
	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
	uploadsRequested   *prometheus.CounterVec
	assetsDeleted      *prometheus.CounterVec
	blobDeleteFailures prometheus.Counter
	sessionSaves       prometheus.Counter
	wsConnections      prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easel_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "easel_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		uploadsRequested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easel_asset_uploads_requested_total",
			Help: "Presigned upload URLs issued, by MIME type.",
		}, []string{"file_type"}),
		assetsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "easel_assets_deleted_total",
			Help: "Asset rows deleted, by reason.",
		}, []string{"reason"}),
		blobDeleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "easel_blob_delete_failures_total",
			Help: "Object storage deletes that failed.",
		}),
		sessionSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "easel_session_saves_total",
			Help: "Debounced session data writes flushed to the database.",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "easel_ws_connections",
			Help: "Open websocket connections.",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.uploadsRequested,
		c.assetsDeleted,
		c.blobDeleteFailures,
		c.sessionSaves,
		c.wsConnections,
	)

	return c
}

func (c *Collector) RecordHTTPRequest(method string, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (c *Collector) RecordUploadRequested(fileType string) {
	c.uploadsRequested.WithLabelValues(fileType).Inc()
}

func (c *Collector) RecordAssetsDeleted(reason string, count int) {
	c.assetsDeleted.WithLabelValues(reason).Add(float64(count))
}

func (c *Collector) RecordBlobDeleteFailure() {
	c.blobDeleteFailures.Inc()
}

func (c *Collector) RecordSessionSaves(count int) {
	c.sessionSaves.Add(float64(count))
}

func (c *Collector) RecordWSConnection(delta int) {
	c.wsConnections.Add(float64(delta))
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything. Used in tests and when metrics are disabled.
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordUploadRequested(string)                         {}
func (Nop) RecordAssetsDeleted(string, int)                      {}
func (Nop) RecordBlobDeleteFailure()                             {}
func (Nop) RecordSessionSaves(int)                               {}
func (Nop) RecordWSConnection(int)                               {}
