package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. All methods are safe on
// a nil receiver so services can run without metrics in tests.
type Metrics struct {
	ProofRequestsCreated prometheus.Counter
	CallbacksApplied     *prometheus.CounterVec
	AssertionsIssued     prometheus.Counter
	Verifications        *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		ProofRequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "age_assertion_proof_requests_created_total",
			Help: "Total number of proof requests created",
		}),
		CallbacksApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "age_assertion_callbacks_applied_total",
			Help: "Total number of verifier callbacks applied, by result",
		}, []string{"result"}),
		AssertionsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "age_assertion_assertions_issued_total",
			Help: "Total number of assertion tokens issued",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "age_assertion_verifications_total",
			Help: "Total number of assertion verification attempts, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncProofRequestCreated() {
	if m == nil {
		return
	}
	m.ProofRequestsCreated.Inc()
}

func (m *Metrics) IncCallbackApplied(result string) {
	if m == nil {
		return
	}
	m.CallbacksApplied.WithLabelValues(result).Inc()
}

func (m *Metrics) IncAssertionIssued() {
	if m == nil {
		return
	}
	m.AssertionsIssued.Inc()
}

func (m *Metrics) IncVerification(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}
