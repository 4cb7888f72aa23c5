package monitoring

import (
	"net/http"
	"time"

	"robotbakery/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for robot iterations
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeError     = "error"
)

// Metrics handles metrics collection and reporting for the bakery
type Metrics struct {
	registry *prometheus.Registry
	metrics  map[string]prometheus.Collector
}

// NewMetrics creates a collector set on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	iterations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bakery_robot_iterations_total",
			Help: "Robot iterations by outcome",
		},
		[]string{"role", "action", "outcome"},
	)

	iterationTime := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bakery_robot_iteration_seconds",
			Help:    "Time taken by a robot iteration",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"role"},
	)

	ingredientStock := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bakery_ingredient_stock",
			Help: "Available ingredient amount in storage",
		},
		[]string{"kind"},
	)

	counterStock := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bakery_counter_stock",
			Help: "Products on the sales counter",
		},
		[]string{"product"},
	)

	metrics := map[string]prometheus.Collector{
		"iterations":     iterations,
		"iteration_time": iterationTime,
		"ingredients":    ingredientStock,
		"counter":        counterStock,
	}

	for _, metric := range metrics {
		registry.MustRegister(metric)
	}

	return &Metrics{
		registry: registry,
		metrics:  metrics,
	}
}

// RecordIteration counts one robot iteration and observes its duration
func (m *Metrics) RecordIteration(role, action, outcome string, d time.Duration) {
	if action == "" {
		action = "none"
	}
	if counter, ok := m.metrics["iterations"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(role, action, outcome).Inc()
	}
	if histogram, ok := m.metrics["iteration_time"].(*prometheus.HistogramVec); ok {
		histogram.WithLabelValues(role).Observe(d.Seconds())
	}
}

// RecordIngredientStock publishes a stock snapshot
func (m *Metrics) RecordIngredientStock(stock models.IngredientStock) {
	if gauge, ok := m.metrics["ingredients"].(*prometheus.GaugeVec); ok {
		for kind, amount := range stock {
			gauge.WithLabelValues(string(kind)).Set(float64(amount))
		}
	}
}

// RecordCounterStock publishes the counter contents. Products missing from
// the snapshot are reported as zero.
func (m *Metrics) RecordCounterStock(catalog *models.Catalog, stock models.CounterStock) {
	if gauge, ok := m.metrics["counter"].(*prometheus.GaugeVec); ok {
		for _, name := range catalog.ProductNames() {
			gauge.WithLabelValues(name).Set(float64(stock[name]))
		}
	}
}

// Registry exposes the private registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
