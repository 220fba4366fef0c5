package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "compare_aspaths"

// Metrics holds the collectors for one run. They live on a private registry
// so a run can be dumped to a node_exporter textfile without the Go runtime
// collectors of the default registry.
type Metrics struct {
	Registry *prometheus.Registry

	BuildInfo       *prometheus.GaugeVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SnapshotSources *prometheus.GaugeVec
	ChangedSources  prometheus.Gauge
	LastRunSuccess  prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		BuildInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information of compare-aspaths",
		}, []string{"version", "commit", "date"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ripestat_requests_total",
			Help:      "RIPEstat data calls by response code",
		}, []string{"data_call", "code"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ripestat_request_duration_seconds",
			Help:      "Duration of RIPEstat data calls",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 8),
		}, []string{"data_call"}),
		SnapshotSources: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_sources",
			Help:      "Number of sources seen in each snapshot",
		}, []string{"snapshot"}),
		ChangedSources: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "changed_sources",
			Help:      "Number of sources whose AS path changed",
		}),
		LastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run completed, 0 otherwise",
		}),
	}
}

// WriteTextfile writes all collected metrics to path in the text exposition
// format. The file is written to a temporary name and renamed into place.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
