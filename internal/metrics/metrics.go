// Package metrics holds the bot's Prometheus collectors. They are
// registered in the default registry and exposed by Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Inbound messages by channel and kind
	messagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_messages_received_total",
			Help: "Total number of inbound messages by channel and kind",
		},
		[]string{"channel", "kind"}, // telegram/whatsapp, text/image/voice
	)

	// Messages dropped because their id was already seen
	messagesDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_messages_deduplicated_total",
			Help: "Total number of redelivered messages ignored",
		},
		[]string{"channel"},
	)

	commandsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_commands_processed_total",
			Help: "Total number of routed actions by type",
		},
		[]string{"action"},
	)

	extractionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_extraction_outcomes_total",
			Help: "Total number of expense pipeline runs by domain and outcome",
		},
		[]string{"domain", "outcome"}, // saved, duplicate, rejected, error
	)

	extractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "expensebot_extraction_duration_seconds",
			Help:    "Duration of expense pipeline runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"domain"},
	)

	duplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_duplicates_total",
			Help: "Total number of duplicate expenses by resolution",
		},
		[]string{"event"}, // staged, confirmed, cancelled
	)

	repliesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_replies_total",
			Help: "Total number of outbound replies by channel and status",
		},
		[]string{"channel", "status"}, // sent, failed, dropped
	)

	emailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_bank_emails_total",
			Help: "Total number of bank emails by result",
		},
		[]string{"status"},
	)
)

// Duplicate events.
const (
	DuplicateStaged    = "staged"
	DuplicateConfirmed = "confirmed"
	DuplicateCancelled = "cancelled"
)

// Reply statuses.
const (
	ReplySent    = "sent"
	ReplyFailed  = "failed"
	ReplyDropped = "dropped"
)

func MessageReceived(channel, kind string) {
	messagesReceived.WithLabelValues(channel, kind).Inc()
}

func MessageDeduplicated(channel string) {
	messagesDeduplicated.WithLabelValues(channel).Inc()
}

func CommandProcessed(action string) {
	commandsProcessed.WithLabelValues(action).Inc()
}

// ExtractionFinished records one pipeline run.
func ExtractionFinished(domain, outcome string, took time.Duration) {
	extractionOutcomes.WithLabelValues(domain, outcome).Inc()
	extractionDuration.WithLabelValues(domain).Observe(took.Seconds())
}

func Duplicate(event string) {
	duplicates.WithLabelValues(event).Inc()
}

func Reply(channel, status string) {
	repliesSent.WithLabelValues(channel, status).Inc()
}

func EmailProcessed(status string) {
	emailsProcessed.WithLabelValues(status).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
