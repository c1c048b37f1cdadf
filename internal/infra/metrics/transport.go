package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramRateLimitTriggeredTotal,
		followUpsTotal,
		outboundMessagesTotal,
	)
}

var (
	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)

	followUpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followups_total",
			Help: "Deferred follow-up messages by status (scheduled/sent/dropped).",
		},
		[]string{"status"},
	)

	outboundMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_outbound_messages_total",
			Help: "Messages sent to chat platforms by result.",
		},
		[]string{"channel", "result"},
	)
)

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncFollowUp(status string) {
	followUpsTotal.WithLabelValues(norm(status)).Inc()
}

func IncOutbound(channel string, ok bool) {
	res := "ok"
	if !ok {
		res = "error"
	}
	outboundMessagesTotal.WithLabelValues(norm(channel), res).Inc()
}
