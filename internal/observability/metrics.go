package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the service's Prometheus primitives.
type Metrics struct {
	apiRequests        *prometheus.CounterVec
	apiDuration        *prometheus.HistogramVec
	invoicesIssued     prometheus.Counter
	invoicesVoided     prometheus.Counter
	paymentsRecorded   prometheus.Counter
	paymentAmount      prometheus.Histogram
	verificationLookup *prometheus.CounterVec
	auditWrites        *prometheus.CounterVec
}

// NewMetrics registers and returns the service metrics.
func NewMetrics() *Metrics {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "veribill_api_requests_total",
		Help: "Counts API requests by method, route, and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veribill_api_duration_seconds",
		Help:    "API request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	invoicesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veribill_invoices_issued_total",
		Help: "Invoices sealed and issued.",
	})

	invoicesVoided := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veribill_invoices_voided_total",
		Help: "Invoices voided with a credit note.",
	})

	paymentsRecorded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veribill_payments_recorded_total",
		Help: "Payments applied to invoices.",
	})

	paymentAmount := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "veribill_payment_amount_minor_units",
		Help:    "Payment amount distribution in minor currency units.",
		Buckets: prometheus.ExponentialBuckets(100, 10, 8),
	})

	verificationLookup := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "veribill_verification_lookups_total",
		Help: "Public verification lookups by outcome.",
	}, []string{"outcome"})

	auditWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "veribill_audit_writes_total",
		Help: "Audit trail writes by event type.",
	}, []string{"event_type"})

	prometheus.MustRegister(
		apiRequests,
		apiDuration,
		invoicesIssued,
		invoicesVoided,
		paymentsRecorded,
		paymentAmount,
		verificationLookup,
		auditWrites,
	)

	return &Metrics{
		apiRequests:        apiRequests,
		apiDuration:        apiDuration,
		invoicesIssued:     invoicesIssued,
		invoicesVoided:     invoicesVoided,
		paymentsRecorded:   paymentsRecorded,
		paymentAmount:      paymentAmount,
		verificationLookup: verificationLookup,
		auditWrites:        auditWrites,
	}
}

func (m *Metrics) ObserveAPIRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) InvoiceIssued() {
	if m == nil {
		return
	}
	m.invoicesIssued.Inc()
}

func (m *Metrics) InvoiceVoided() {
	if m == nil {
		return
	}
	m.invoicesVoided.Inc()
}

func (m *Metrics) PaymentRecorded(amount int64) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Inc()
	m.paymentAmount.Observe(float64(amount))
}

func (m *Metrics) VerificationLookup(outcome string) {
	if m == nil {
		return
	}
	m.verificationLookup.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AuditWrite(eventType string) {
	if m == nil {
		return
	}
	m.auditWrites.WithLabelValues(eventType).Inc()
}
