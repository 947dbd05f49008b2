package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderRequests counts adapter calls by provider and outcome.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_provider_requests_total",
			Help: "Price provider requests by provider and outcome.",
		},
		[]string{"provider", "outcome"}, // ok | rate_limited | unreachable | malformed_response
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewatch_provider_request_duration_seconds",
			Help:    "Duration of price provider requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"provider"},
	)

	// Resolutions counts resolved quotes by symbol and origin.
	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_price_resolutions_total",
			Help: "Resolved asset prices by origin.",
		},
		[]string{"symbol", "origin"}, // live | cached | fallback
	)

	CacheRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_cache_refreshes_total",
			Help: "Refresh attempts of long-lived caches (gold, fx).",
		},
		[]string{"cache", "result"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricewatch_cycle_duration_seconds",
			Help:    "Duration of monitoring cycles.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	Cycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_cycles_total",
			Help: "Monitoring cycles by result.",
		},
		[]string{"result"}, // ok | degraded | skipped_lock
	)

	// SkippedTicks counts scheduler ticks dropped because a cycle was still running.
	SkippedTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewatch_scheduler_skipped_ticks_total",
			Help: "Scheduler ticks skipped while a cycle was running.",
		},
	)

	SnapshotAssets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricewatch_snapshot_assets",
			Help: "Number of assets present in the latest snapshot.",
		},
	)

	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_alerts_triggered_total",
			Help: "Alert rules triggered by symbol and condition.",
		},
		[]string{"symbol", "condition"},
	)

	OrphanedRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricewatch_orphaned_rules",
			Help: "Active alert rules whose symbol is not configured.",
		},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_notifications_total",
			Help: "Notification dispatch attempts by transport and status.",
		},
		[]string{"transport", "status"},
	)

	HistoryRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_history_rows_total",
			Help: "Price history rows written or pruned.",
		},
		[]string{"op"}, // inserted | failed | pruned
	)

	// DetailRefreshes counts asset detail refreshes by symbol and result.
	DetailRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_asset_detail_refreshes_total",
			Help: "Asset detail refresh attempts by symbol and result.",
		},
		[]string{"symbol", "result"}, // ok | static | failed
	)

	LastCycleTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricewatch_last_cycle_timestamp",
			Help: "Unix time of the last completed cycle.",
		},
	)
)

// ObserveSince records the elapsed time since start on an observer.
func ObserveSince(o prometheus.Observer, start time.Time) {
	o.Observe(time.Since(start).Seconds())
}
