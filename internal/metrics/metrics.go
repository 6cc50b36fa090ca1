package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for ingestion and dispatch health.
var (
	WebhookEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of provider status events received",
		},
	)

	WebhookEventsDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_events_duplicate_total",
			Help: "Total number of provider status events absorbed as duplicates",
		},
	)

	DTMFSubmissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dtmf_submissions_total",
			Help: "Total number of keypad submissions received",
		},
	)

	NotificationsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications delivered successfully",
		},
	)

	NotificationsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of notification delivery failures",
		},
	)

	NotificationDeliverySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_seconds",
			Help:    "Duration of notification delivery attempts",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the default registry.
func Register() {
	prometheus.MustRegister(WebhookEventsTotal)
	prometheus.MustRegister(WebhookEventsDuplicateTotal)
	prometheus.MustRegister(DTMFSubmissionsTotal)
	prometheus.MustRegister(NotificationsSentTotal)
	prometheus.MustRegister(NotificationsFailedTotal)
	prometheus.MustRegister(NotificationDeliverySeconds)
}
