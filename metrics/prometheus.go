// Package metrics exports replication metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the Prometheus collector.
type Config struct {
	// Namespace is the metrics namespace (default: "redis_event").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for command handling duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics, such as the
// master address.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "redis_event",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector records replication metrics. It satisfies
// redisevent.MetricsCollector.
type Collector struct {
	syncDuration    prometheus.Histogram
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	snapshotObjects *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	offset          prometheus.Gauge
	reconnects      prometheus.Counter
	errors          *prometheus.CounterVec
}

// New registers the collector metrics with the configured registry
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collector{
		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "snapshot_load_seconds",
			Help:        "Time spent receiving and decoding snapshots",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 10),
		}),

		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commands_total",
			Help:        "Replicated commands handled, by command name",
			ConstLabels: config.ConstLabels,
		}, []string{"command"}),

		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "command_handle_seconds",
			Help:        "Time the handler spent per replicated command",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"command"}),

		snapshotObjects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "snapshot_objects_total",
			Help:        "Snapshot keys delivered, by value kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		bytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "stream_bytes_total",
			Help:        "Replication stream bytes consumed",
			ConstLabels: config.ConstLabels,
		}),

		offset: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "replication_offset",
			Help:        "Offset of the last handled command",
			ConstLabels: config.ConstLabels,
		}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reconnects_total",
			Help:        "Connections made to the master",
			ConstLabels: config.ConstLabels,
		}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Replication errors, by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

func (c *Collector) RecordSyncDuration(duration time.Duration) {
	c.syncDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordCommandProcessed(cmd string, duration time.Duration) {
	c.commandsTotal.WithLabelValues(cmd).Inc()
	c.commandDuration.WithLabelValues(cmd).Observe(duration.Seconds())
}

func (c *Collector) RecordSnapshotObject(kind string) {
	c.snapshotObjects.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordNetworkBytes(bytes int64) {
	if bytes > 0 {
		c.bytesTotal.Add(float64(bytes))
	}
}

func (c *Collector) RecordOffset(offset int64) {
	c.offset.Set(float64(offset))
}

func (c *Collector) RecordReconnection() {
	c.reconnects.Inc()
}

func (c *Collector) RecordError(errorType string) {
	c.errors.WithLabelValues(errorType).Inc()
}
