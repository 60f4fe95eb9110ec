package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	// Report metrics
	ReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chitrac_reports_total",
			Help: "Total performance reports built",
		},
		[]string{"entity_type"},
	)

	ReportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chitrac_report_duration_seconds",
			Help:    "Report build duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity_type"},
	)

	ReportEntitiesOmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chitrac_report_entities_omitted_total",
			Help: "Entities omitted from reports after read failures",
		},
	)

	// Aggregation strategy metrics
	WindowsComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chitrac_windows_computed_total",
			Help: "Timeframe windows computed, by aggregation strategy",
		},
		[]string{"strategy"},
	)

	FallbacksResolved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chitrac_fallbacks_resolved_total",
			Help: "Empty timeframes filled from an open session",
		},
	)

	// HTTP metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chitrac_http_requests_total",
			Help: "Total HTTP requests served",
		},
		[]string{"route", "code"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chitrac_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Ingest metrics
	ImportedSessions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chitrac_imported_sessions_total",
			Help: "Session documents imported from the spool",
		},
	)

	ImportedStates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chitrac_imported_states_total",
			Help: "State documents imported from the spool",
		},
	)

	ImportErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chitrac_import_errors_total",
			Help: "Spool documents rejected during import",
		},
	)

	// Rollup metrics
	RollupRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chitrac_rollup_runs_total",
			Help: "Daily cache rollup passes completed",
		},
	)

	RollupDays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chitrac_rollup_days_total",
			Help: "Entity-days written to the daily cache",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ReportsTotal,
		ReportDuration,
		ReportEntitiesOmitted,
		WindowsComputed,
		FallbacksResolved,
		RequestsTotal,
		RequestDuration,
		ImportedSessions,
		ImportedStates,
		ImportErrors,
		RollupRuns,
		RollupDays,
	)
}
