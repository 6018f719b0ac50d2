package web

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors are the loop gauges and counters, registered on their own
// registry so tests can build several servers in one process.
type Collectors struct {
	registry    *prometheus.Registry
	temperature prometheus.Gauge
	fitted      prometheus.Gauge
	slope       prometheus.Gauge
	intensity   *prometheus.GaugeVec
	samples     prometheus.Counter
	bufferFill  prometheus.Gauge
	updates     prometheus.Counter
	skipped     prometheus.Counter
	failures    *prometheus.CounterVec
}

func NewCollectors() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermotrend_temperature_degrees",
			Help: "Latest sensor reading in the configured units.",
		}),
		fitted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermotrend_fitted_temperature_degrees",
			Help: "Trend value at the newest sample.",
		}),
		slope: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermotrend_slope_degrees_per_hour",
			Help: "Estimated rate of change at the newest sample.",
		}),
		intensity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "thermotrend_led_intensity",
			Help: "LED duty cycle per channel (0 to 1).",
		}, []string{"channel"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermotrend_samples_total",
			Help: "Sensor readings recorded into the history.",
		}),
		bufferFill: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermotrend_buffer_valid_samples",
			Help: "Samples currently held by the history buffer.",
		}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermotrend_trend_updates_total",
			Help: "Successful trend recomputes.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermotrend_trend_skipped_total",
			Help: "Trend recomputes skipped for lack of usable data.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermotrend_failures_total",
			Help: "Collaborator failures by loop stage.",
		}, []string{"stage"}),
	}

	c.registry.MustRegister(
		c.temperature,
		c.fitted,
		c.slope,
		c.intensity,
		c.samples,
		c.bufferFill,
		c.updates,
		c.skipped,
		c.failures,
	)

	c.intensity.WithLabelValues("positive").Set(0)
	c.intensity.WithLabelValues("negative").Set(0)

	return c
}

// Registry exposes the registry backing /metrics.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}
