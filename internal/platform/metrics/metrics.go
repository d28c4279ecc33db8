package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	RecordsInserted prometheus.Counter
	RecordsUpdated  prometheus.Counter
	RecordsDeleted  prometheus.Counter
	RowsSkipped     prometheus.Counter

	AccountsProvisioned prometheus.Counter
	AccountsRepaired    prometheus.Counter
	DuplicatesSkipped   prometheus.Counter

	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter

	SweepDuration prometheus.Histogram
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return newWith(promauto.With(prometheus.DefaultRegisterer))
}

// NewForTesting registers on a throwaway registry so parallel test suites do
// not collide on duplicate metric names.
func NewForTesting() *Metrics {
	return newWith(promauto.With(prometheus.NewRegistry()))
}

func newWith(factory promauto.Factory) *Metrics {
	return &Metrics{
		RecordsInserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollsync_records_inserted_total",
			Help: "Registrations mirrored into the target store.",
		}),
		RecordsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollsync_records_updated_total",
			Help: "Mirrored registrations updated with whitelisted field changes.",
		}),
		RecordsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollsync_records_deleted_total",
			Help: "Orphaned mirror records removed from the target store.",
		}),
		RowsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollsync_rows_skipped_total",
			Help: "Rows skipped inside a batch after a row-scoped failure.",
		}),
		AccountsProvisioned: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollsync_accounts_provisioned_total",
			Help: "Guardian accounts created fresh (path 3).",
		}),
		AccountsRepaired: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollsync_accounts_repaired_total",
			Help: "Guardian accounts repaired from partial state (paths 1 and 2).",
		}),
		DuplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollsync_duplicates_skipped_total",
			Help: "Redelivered approval events that found everything already provisioned.",
		}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollsync_notifications_sent_total",
			Help: "Welcome messages delivered.",
		}),
		NotificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "enrollsync_notifications_failed_total",
			Help: "Welcome message delivery attempts that failed.",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrollsync_sweep_duration_seconds",
			Help:    "Wall-clock duration of a full reconcile sweep.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
