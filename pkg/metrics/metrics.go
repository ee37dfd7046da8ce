package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RowsReplicated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrepl_rows_replicated_total",
			Help: "Rows committed to the target per table",
		},
		[]string{"table"},
	)
	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbrepl_batch_seconds",
			Help:    "Per-batch extract/mask/load duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)
	TableErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbrepl_table_errors_total",
			Help: "Tables that failed during replication",
		},
		[]string{"table"},
	)
	SchemaStatements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbrepl_schema_statements_total",
			Help: "DDL statements executed during schema synchronization",
		},
	)
	SchemaSyncFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbrepl_schema_sync_failures_total",
			Help: "Schema synchronization attempts rolled back",
		},
	)
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dbrepl_run_seconds",
			Help:    "End-to-end replication run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
	)
)

// Register registers all collectors on the given registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(
		RowsReplicated,
		BatchDuration,
		TableErrors,
		SchemaStatements,
		SchemaSyncFailures,
		RunDuration,
	)
}
