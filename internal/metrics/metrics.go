// Package metrics exposes the daemon's Prometheus instruments. Collectors
// register against the default registry and are served by the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CaptionsCommitted counts caption entries merged into live sessions.
	CaptionsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribe_captions_committed_total",
		Help: "Caption entries merged into live session records.",
	})

	// BackupsWritten counts durable backup snapshots written.
	BackupsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribe_backups_written_total",
		Help: "Durable backup snapshots written to the store.",
	})

	// SessionsSaved counts sessions persisted to history.
	SessionsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribe_sessions_saved_total",
		Help: "Sessions persisted to the saved history.",
	})

	// SessionsRecovered counts sessions restored from a backup snapshot.
	SessionsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribe_sessions_recovered_total",
		Help: "Sessions restored from a durable backup.",
	})

	// ActiveSessions tracks sessions currently recording, paused, or resuming.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scribe_active_sessions",
		Help: "Sessions currently in an active recording state.",
	})
)
