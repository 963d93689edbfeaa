// Package metrics records the bill pipeline's health on Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/billed/internal/bill"
)

const (
	FormatReasonDate    = "invalid_date"
	FormatReasonStatus  = "unknown_status"
	FormatReasonUnknown = "unknown"
)

// Recorder holds the collectors. A nil *Recorder records nothing, so callers
// never need to check.
type Recorder struct {
	registry        *prometheus.Registry
	billsListed     *prometheus.CounterVec
	formatFailures  *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	updateFailures  prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		billsListed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billed_bills_listed_total",
			Help: "Bills returned by store listings, by page.",
		}, []string{"page"}),
		formatFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billed_bill_format_failures_total",
			Help: "Bills passed through unformatted, by reason.",
		}, []string{"reason"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billed_bill_decisions_total",
			Help: "Admin decisions on bills, by resulting status.",
		}, []string{"status"}),
		updateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billed_bill_update_failures_total",
			Help: "Bill updates the store rejected after navigation.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billed_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}

	registry.MustRegister(
		r.billsListed,
		r.formatFailures,
		r.decisions,
		r.updateFailures,
		r.requestDuration,
	)
	return r
}

// BillsListed counts n bills fetched for page
func (r *Recorder) BillsListed(page string, n int) {
	if r == nil {
		return
	}
	r.billsListed.WithLabelValues(page).Add(float64(n))
}

// FormatFailed counts a record passed through because of err
func (r *Recorder) FormatFailed(err error) {
	if r == nil {
		return
	}
	r.formatFailures.WithLabelValues(FormatReason(err)).Inc()
}

// Decision counts an accept or refuse
func (r *Recorder) Decision(status bill.Status) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(string(status)).Inc()
}

// UpdateFailed counts a rejected update
func (r *Recorder) UpdateFailed() {
	if r == nil {
		return
	}
	r.updateFailures.Inc()
}

// ObserveRequest records one served request
func (r *Recorder) ObserveRequest(route string, code int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requestDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// FormatReason maps a formatter error to a low-cardinality label
func FormatReason(err error) string {
	switch {
	case errors.Is(err, bill.ErrInvalidDate):
		return FormatReasonDate
	case errors.Is(err, bill.ErrUnknownStatus):
		return FormatReasonStatus
	default:
		return FormatReasonUnknown
	}
}
