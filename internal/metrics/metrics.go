package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uupfetch",
			Name:      "api_requests_total",
			Help:      "Metadata API attempts by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	APIRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uupfetch",
			Name:      "api_retries_total",
			Help:      "Metadata API retries by endpoint and reason.",
		},
		[]string{"endpoint", "reason"},
	)

	BytesDownloaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "uupfetch",
			Name:      "downloaded_bytes_total",
			Help:      "Bytes appended to partial files.",
		},
	)

	FilesFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uupfetch",
			Name:      "files_finished_total",
			Help:      "Finished file transfers by result.",
		},
		[]string{"result"},
	)

	ActiveTransfers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uupfetch",
			Name:      "active_transfers",
			Help:      "Number of file transfers currently streaming.",
		},
	)
)

// File results
const (
	ResultOK       = "ok"
	ResultMismatch = "mismatch"
	ResultFailed   = "failed"
)

// Register registers the uupfetch collectors into reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, APIRetries, BytesDownloaded, FilesFinished, ActiveTransfers)
}

// WriteTextfile registers the collectors into a fresh registry and writes
// them in the node-exporter textfile format.
func WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	Register(reg)
	return prometheus.WriteToTextfile(path, reg)
}
