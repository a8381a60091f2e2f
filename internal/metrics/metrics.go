// Package metrics exposes registration counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes.
const (
	OutcomeCreated      = "created"
	OutcomeInvalid      = "invalid"
	OutcomeDuplicate    = "duplicate"
	OutcomeQuota        = "quota_exceeded"
	OutcomeVerification = "verification_failed"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	Submissions  *prometheus.CounterVec
	SeatsIssued  *prometheus.CounterVec
	GateAttempts *prometheus.CounterVec
	CheckIns     *prometheus.CounterVec
	SubmitTime   prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registration",
			Name:      "submissions_total",
			Help:      "Registration submissions by outcome.",
		}, []string{"outcome"}),
		SeatsIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registration",
			Name:      "seats_issued_total",
			Help:      "Seats issued by event and tier.",
		}, []string{"event_id", "tier_id"}),
		GateAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registration",
			Name:      "gate_attempts_total",
			Help:      "Verification gate attempts by result.",
		}, []string{"result"}),
		CheckIns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registration",
			Name:      "checkins_total",
			Help:      "Check-in attempts by result and source.",
		}, []string{"result", "source"}),
		SubmitTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "registration",
			Name:      "submit_duration_seconds",
			Help:      "Time spent handling a registration submission.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Submission records one submit call. Nil receivers are ignored so handlers
// can run without metrics in tests.
func (m *Metrics) Submission(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
	m.SubmitTime.Observe(time.Since(started).Seconds())
}

func (m *Metrics) Seats(eventID, tierID string, quantity int) {
	if m == nil {
		return
	}
	m.SeatsIssued.WithLabelValues(eventID, tierID).Add(float64(quantity))
}

func (m *Metrics) Gate(result string) {
	if m == nil {
		return
	}
	m.GateAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) CheckIn(result, source string) {
	if m == nil {
		return
	}
	m.CheckIns.WithLabelValues(result, source).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
