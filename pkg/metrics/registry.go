package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry owns the Prometheus collectors for repository commands.
type Registry struct {
	config   Config
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	commandErrors   *prometheus.CounterVec
	openCursors     prometheus.Gauge

	connectionsInUse prometheus.Gauge
	connectionsIdle  prometheus.Gauge
	connectionsMax   prometheus.Gauge
}

// NewRegistry creates a registry with its own prometheus.Registry.
func NewRegistry(config Config) *Registry {
	if config.Namespace == "" {
		config.Namespace = DefaultConfig().Namespace
	}
	if len(config.DurationBuckets) == 0 {
		config.DurationBuckets = DefaultDurationBuckets()
	}

	reg := prometheus.NewRegistry()
	r := &Registry{
		config:   config,
		registry: reg,
	}

	r.registerCommandMetrics()
	r.registerPoolMetrics()

	if config.EnableProcessMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if config.EnableRuntimeMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}

	return r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	return r.config
}

func (r *Registry) registerCommandMetrics() {
	ns := r.config.Namespace
	constLabels := prometheus.Labels(r.config.DefaultLabels)

	r.commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "db",
			Name:        "commands_total",
			Help:        "Total number of repository commands executed",
			ConstLabels: constLabels,
		},
		[]string{"primitive", "kind", "operation", "status"},
	)

	r.commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "db",
			Name:        "command_duration_seconds",
			Help:        "Repository command duration in seconds",
			Buckets:     r.config.DurationBuckets,
			ConstLabels: constLabels,
		},
		[]string{"primitive", "kind"},
	)

	r.commandErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "db",
			Name:        "command_errors_total",
			Help:        "Total number of failed repository commands",
			ConstLabels: constLabels,
		},
		[]string{"primitive", "kind", "error_type"},
	)

	r.openCursors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "db",
			Name:        "open_cursors",
			Help:        "Number of row cursors currently holding a connection",
			ConstLabels: constLabels,
		},
	)

	r.registry.MustRegister(
		r.commandsTotal,
		r.commandDuration,
		r.commandErrors,
		r.openCursors,
	)
}

func (r *Registry) registerPoolMetrics() {
	ns := r.config.Namespace
	constLabels := prometheus.Labels(r.config.DefaultLabels)

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "db",
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}

	r.connectionsInUse = gauge("connections_in_use", "Number of database connections in use")
	r.connectionsIdle = gauge("connections_idle", "Number of idle database connections")
	r.connectionsMax = gauge("connections_max", "Maximum number of open database connections")

	r.registry.MustRegister(
		r.connectionsInUse,
		r.connectionsIdle,
		r.connectionsMax,
	)
}

// WriteTextfile writes the current values of every collector to path in
// the Prometheus text format, for pickup by a node exporter textfile
// collector.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
