package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/yetii/yetii/core/application/report"
)

// RunCollectors are the gauges pushed at the end of a run.
type RunCollectors struct {
	registry *prometheus.Registry
	queries  *prometheus.GaugeVec
	rows     prometheus.Gauge
	duration prometheus.Gauge
	status   *prometheus.GaugeVec
}

// NewRunCollectors registers the run summary gauges on a private registry.
func NewRunCollectors() *RunCollectors {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &RunCollectors{
		registry: reg,
		queries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "yetii_run_queries",
				Help: "Number of queries of the last run by outcome",
			},
			[]string{"status"},
		),
		rows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "yetii_run_rows",
			Help: "Rows affected or returned by the succeeded queries of the last run",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "yetii_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		status: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "yetii_run_status",
				Help: "1 for the overall status of the last run, 0 otherwise",
			},
			[]string{"status"},
		),
	}
}

// Observe sets the gauges from rep.
func (c *RunCollectors) Observe(rep *report.Report) {
	s := rep.Summary()
	c.queries.WithLabelValues(string(report.StatusSucceeded)).Set(float64(s.Succeeded))
	c.queries.WithLabelValues(string(report.StatusFailed)).Set(float64(s.Failed))
	c.queries.WithLabelValues(string(report.StatusSkipped)).Set(float64(s.Skipped))
	c.rows.Set(float64(s.Rows))
	c.duration.Set(rep.Duration.Seconds())

	current := rep.Status()
	for _, st := range []report.RunStatus{report.RunSuccess, report.RunWarning, report.RunFailure} {
		v := 0.0
		if st == current {
			v = 1
		}
		c.status.WithLabelValues(string(st)).Set(v)
	}
}

// Gatherer exposes the private registry.
func (c *RunCollectors) Gatherer() prometheus.Gatherer {
	return c.registry
}

// PushRunSummary pushes the summary of rep to a Prometheus pushgateway, grouped
// by the config name.
func PushRunSummary(ctx context.Context, url, job, configName string, rep *report.Report) error {
	c := NewRunCollectors()
	c.Observe(rep)

	pusher := push.New(url, job).Gatherer(c.Gatherer())
	if configName != "" {
		pusher = pusher.Grouping("config", configName)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push run summary to %s: %w", url, err)
	}
	return nil
}
