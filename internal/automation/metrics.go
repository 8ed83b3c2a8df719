package automation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var messagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "staffix",
		Subsystem: "automation",
		Name:      "messages_total",
		Help:      "Automation targets by job and outcome.",
	},
	[]string{"job", "outcome"},
)

var jobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "staffix",
		Subsystem: "automation",
		Name:      "job_duration_seconds",
		Help:      "Duration of one automation job across all businesses.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"job", "status"},
)

func init() {
	prometheus.MustRegister(messagesTotal, jobDuration)
}

// RegisterMetrics registers automation metrics with a custom registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(messagesTotal, jobDuration)
}

func observeJob(sum JobSummary, elapsed time.Duration) {
	status := "ok"
	if sum.Error != "" {
		status = "error"
	}
	jobDuration.WithLabelValues(sum.Job, status).Observe(elapsed.Seconds())
	messagesTotal.WithLabelValues(sum.Job, "sent").Add(float64(sum.Sent))
	messagesTotal.WithLabelValues(sum.Job, "failed").Add(float64(sum.Failed))
	messagesTotal.WithLabelValues(sum.Job, "skipped").Add(float64(sum.Skipped))
}
