package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SubmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "microturk_submissions_total",
		Help: "Total number of labeling submissions recorded",
	})

	SubmissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microturk_submissions_rejected_total",
		Help: "Submissions rejected before any ledger mutation",
	}, []string{"reason"})

	PayoutsReserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "microturk_payouts_reserved_total",
		Help: "Payout reservations created",
	})

	PayoutsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "microturk_payouts_settled_total",
		Help: "Payouts confirmed on-chain",
	})

	PayoutsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "microturk_payouts_failed_total",
		Help: "Payouts refunded after rejection, failure, or timeout",
	})

	LamportsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "microturk_lamports_settled_total",
		Help: "Total lamports that left the ledger through settled payouts",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "microturk_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
