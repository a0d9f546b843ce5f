// Package metrics provides Prometheus metrics for repository commands and
// the connection pool behind them.
package metrics

// Config holds configuration for the metrics module.
type Config struct {
	// Namespace is the prefix for all metrics (default: "modelrepo")
	Namespace string

	// DefaultLabels are attached as constant labels to every metric
	DefaultLabels map[string]string

	// EnableProcessMetrics enables Go process metrics (CPU, memory, goroutines)
	EnableProcessMetrics bool

	// EnableRuntimeMetrics enables Go runtime metrics
	EnableRuntimeMetrics bool

	// DurationBuckets are the histogram buckets for command duration in seconds
	DurationBuckets []float64
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Namespace: "modelrepo",
		DefaultLabels: map[string]string{
			"version": "unknown",
		},
		EnableProcessMetrics: true,
		EnableRuntimeMetrics: true,
		DurationBuckets:      DefaultDurationBuckets(),
	}
}

// DefaultDurationBuckets returns buckets suited to single SQL commands.
func DefaultDurationBuckets() []float64 {
	return []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
}

// WithVersion sets the version label.
func (c Config) WithVersion(version string) Config {
	labels := make(map[string]string, len(c.DefaultLabels)+1)
	for k, v := range c.DefaultLabels {
		labels[k] = v
	}
	labels["version"] = version
	c.DefaultLabels = labels
	return c
}
