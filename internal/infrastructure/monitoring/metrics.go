package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loanAdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_engine_loan_admissions_total",
			Help: "Total number of loan admission attempts by outcome.",
		},
		[]string{"status"},
	)

	paymentAllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lending_engine_payment_allocations_total",
			Help: "Total number of payment allocation attempts by outcome.",
		},
		[]string{"status"},
	)

	paymentDetailsPerAllocation = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lending_engine_payment_details_per_allocation",
			Help:    "Number of loans touched by a single payment allocation.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lending_engine_db_query_duration_seconds",
			Help:    "Histogram of database query latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query_name", "status"},
	)
)

func RecordLoanAdmission(status string) {
	loanAdmissionsTotal.WithLabelValues(status).Inc()
}

func RecordPaymentAllocation(status string, loansTouched int) {
	paymentAllocationsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		paymentDetailsPerAllocation.Observe(float64(loansTouched))
	}
}

func RecordDBQuery(queryName, status string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}
