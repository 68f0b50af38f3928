package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the service's Prometheus metrics
type Registry struct {
	registry *prometheus.Registry

	UploadsTotal        *prometheus.CounterVec
	UploadRejectedTotal *prometheus.CounterVec
	UploadBytesTotal    *prometheus.CounterVec

	DownloadsTotal        *prometheus.CounterVec
	DownloadRejectedTotal *prometheus.CounterVec

	SignInsTotal   prometheus.Counter
	UpgradesTotal  prometheus.Counter
	PurgedTotal    prometheus.Counter
	HTTPDuration   *prometheus.HistogramVec
}

// NewRegistry creates the metric set on a dedicated registry
func NewRegistry(dataDir string) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candyshare_uploads_total",
			Help: "Presigned upload URLs issued, by tier",
		}, []string{"tier"}),
		UploadRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candyshare_upload_rejected_total",
			Help: "Upload requests rejected, by reason",
		}, []string{"reason"}),
		UploadBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candyshare_upload_bytes_total",
			Help: "Declared bytes of accepted uploads, by tier",
		}, []string{"tier"}),
		DownloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candyshare_downloads_total",
			Help: "Presigned download URLs issued, by tier",
		}, []string{"tier"}),
		DownloadRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candyshare_download_rejected_total",
			Help: "Download requests rejected, by reason",
		}, []string{"reason"}),
		SignInsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candyshare_signins_total",
			Help: "Completed OAuth sign-ins",
		}),
		UpgradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candyshare_pro_upgrades_total",
			Help: "Verified pro upgrades",
		}),
		PurgedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candyshare_files_purged_total",
			Help: "Expired files purged by the lifecycle worker",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "candyshare_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		r.UploadsTotal,
		r.UploadRejectedTotal,
		r.UploadBytesTotal,
		r.DownloadsTotal,
		r.DownloadRejectedTotal,
		r.SignInsTotal,
		r.UpgradesTotal,
		r.PurgedTotal,
		r.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newSystemCollector(dataDir),
	)

	return r
}

// Handler exposes the registry over HTTP
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
