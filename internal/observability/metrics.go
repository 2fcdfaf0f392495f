package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes.
const (
	OutcomeStored  = "stored"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Notification results.
const (
	NotifySent    = "sent"
	NotifyFailed  = "failed"
	NotifySkipped = "skipped"
)

var (
	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_submissions_total",
			Help: "Contact form submissions by outcome.",
		},
		[]string{"outcome"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_notifications_total",
			Help: "Owner notification attempts by result.",
		},
		[]string{"result"},
	)

	notifyLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contact_notification_duration_seconds",
			Help:    "Time spent delivering one owner notification.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
)

func init() {
	prometheus.MustRegister(submissions, notifications, notifyLatency)
	// Pre-create series so dashboards see zeros before the first event.
	for _, o := range []string{OutcomeStored, OutcomeInvalid, OutcomeFailed} {
		submissions.WithLabelValues(o)
	}
	for _, r := range []string{NotifySent, NotifyFailed, NotifySkipped} {
		notifications.WithLabelValues(r)
	}
}

// CountSubmission records one submission with the given outcome.
func CountSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

// CountNotification records one notification attempt. Skipped attempts are
// not timed.
func CountNotification(result string, seconds float64) {
	notifications.WithLabelValues(result).Inc()
	if result != NotifySkipped {
		notifyLatency.Observe(seconds)
	}
}
