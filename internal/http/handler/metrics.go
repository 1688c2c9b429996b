package handler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes recorded in contact_submissions_total.
const (
	outcomeAccepted     = "accepted"
	outcomeBadRequest   = "bad_request"
	outcomeRateLimited  = "rate_limited"
	outcomeVerification = "rejected_verification"
	outcomeValidation   = "rejected_validation"
	outcomeStorageError = "storage_error"
)

// Metrics holds the domain counters of the contact endpoint. A nil *Metrics records nothing.
type Metrics struct {
	submissions *prometheus.CounterVec
	rateLimited prometheus.Counter
}

// NewMetrics creates the contact counters and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contact_submissions_total",
				Help: "Contact form submissions by outcome.",
			},
			[]string{"outcome"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contact_rate_limited_total",
				Help: "Contact form submissions rejected by the rate limiter.",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.submissions, m.rateLimited} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) limited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
	m.submissions.WithLabelValues(outcomeRateLimited).Inc()
}
