package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the range market engine.
type Metrics struct {
	// --- Engine operations ---
	OpsApplied     *prometheus.CounterVec
	OpsRejected    *prometheus.CounterVec
	OpDuration     *prometheus.HistogramVec
	EngineSequence prometheus.Gauge

	// --- Market lifecycle ---
	MarketsCreated prometheus.Counter
	MarketsClosed  prometheus.Counter
	MarketsOpen    prometheus.Gauge

	// --- Trading ---
	BinsBought   prometheus.Counter
	BinsSold     prometheus.Counter
	RewardClaims prometheus.Counter

	// --- Event pipeline ---
	EventsEmitted  *prometheus.CounterVec
	EventDrops     *prometheus.CounterVec
	PersistWritten prometheus.Counter
	PersistErrors  prometheus.Counter
	PersistRetry   prometheus.Counter
	PublishWritten prometheus.Counter
	PublishErrors  prometheus.Counter

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rangemarket_engine_ops_applied_total",
			Help: "Operations applied by the engine",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rangemarket_engine_ops_rejected_total",
			Help: "Operations rejected by validation",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rangemarket_engine_op_duration_seconds",
			Help:    "Time to apply a single engine operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rangemarket_engine_sequence",
			Help: "Current engine event sequence number",
		}),

		MarketsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rangemarket_markets_created_total",
			Help: "Markets created",
		}),

		MarketsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rangemarket_markets_closed_total",
			Help: "Markets closed",
		}),

		MarketsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rangemarket_markets_open",
			Help: "Markets created but not yet closed",
		}),

		BinsBought: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rangemarket_bins_bought_total",
			Help: "Non-zero (bin, amount) buy entries applied",
		}),

		BinsSold: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rangemarket_bins_sold_total",
			Help: "Non-zero (bin, amount) sell entries applied",
		}),

		RewardClaims: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rangemarket_reward_claims_total",
			Help: "Reward claims paid out",
		}),

		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rangemarket_events_emitted_total",
			Help: "Notification events emitted",
		}, []string{"type"}),

		EventDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rangemarket_event_drops_total",
			Help: "Events dropped on a full sink channel",
		}, []string{"sink"}),

		PersistWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rangemarket_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rangemarket_persist_errors_total",
			Help: "Persistence errors",
		}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rangemarket_persist_retry_total",
			Help: "Persistence retries",
		}),

		PublishWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rangemarket_publish_events_total",
			Help: "Events published to NATS",
		}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rangemarket_publish_errors_total",
			Help: "NATS publish failures",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rangemarket_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rangemarket_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"route"}),
	}
}
