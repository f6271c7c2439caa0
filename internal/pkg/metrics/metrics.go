package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry is the agent's private metrics registry, served on /metrics by
// the internal HTTP server.
var Registry = prometheus.NewRegistry()

var (
	// CommandsTotal counts processed control-feed commands by kind and outcome.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skystation_commands_total",
			Help: "Total number of control commands processed.",
		},
		[]string{"kind", "status"}, // status: ok/error
	)

	// UpdatesTotal counts finished update jobs by terminal phase.
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skystation_updates_total",
			Help: "Total number of update jobs by terminal phase.",
		},
		[]string{"phase"}, // committed/failed
	)

	// FetchAttemptsTotal counts individual fetch attempts, including retries.
	FetchAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skystation_fetch_attempts_total",
			Help: "Total number of fetch attempts across all update jobs.",
		},
	)

	// UpdateDuration measures wall time of one update job, begin to terminal state.
	UpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skystation_update_duration_seconds",
			Help:    "Duration of update jobs from accept to terminal state.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StagingRecovered counts staging leftovers removed by the startup sweep.
	StagingRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skystation_staging_recovered_total",
			Help: "Staging files removed by the startup recovery sweep.",
		},
	)

	// BrokerConnected is 1 while the agent holds a broker connection.
	BrokerConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skystation_broker_connected",
			Help: "Whether the agent is currently connected to the MQTT broker.",
		},
	)

	// TelemetryPublished counts telemetry readings published to the feed.
	TelemetryPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skystation_telemetry_published_total",
			Help: "Total number of telemetry readings published.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		CommandsTotal,
		UpdatesTotal,
		FetchAttemptsTotal,
		UpdateDuration,
		BrokerConnected,
		StagingRecovered,
		TelemetryPublished,
	)
}
