package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(paymentsTotal) }

var paymentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Payments by status (issued/prechecked/paid/rejected/expired).",
	},
	[]string{"status"},
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPayments(status string, n int) {
	paymentsTotal.WithLabelValues(norm(status)).Add(float64(n))
}
