package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"robotbakery/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_GetMetrics(t *testing.T) {
	m := NewMonitor()
	m.RecordMetric("test_metric", 42)

	metrics := m.GetMetrics()

	value, exists := metrics["test_metric"]
	require.True(t, exists)
	assert.Equal(t, 42, value)

	_, exists = metrics["uptime_seconds"]
	assert.True(t, exists)
}

func TestMonitor_RobotBoard(t *testing.T) {
	m := NewMonitor()
	m.RegisterRobot("knead-2", "knead", "RUNNING")
	m.RegisterRobot("bake-1", "bake", "RUNNING")
	m.RegisterRobot("knead-1", "knead", "RUNNING")

	m.RecordIteration("knead-1", "counter", "", true)
	m.RecordIteration("knead-1", "", "no flour", false)
	m.SetRobotState("knead-2", "CANCELLED", errors.New("unknown recipe"))

	robots := m.Robots()
	require.Len(t, robots, 3)
	assert.Equal(t, "bake-1", robots[0].ID)
	assert.Equal(t, "knead-1", robots[1].ID)
	assert.Equal(t, "knead-2", robots[2].ID)

	assert.Equal(t, 2, robots[1].Iterations)
	assert.Equal(t, 1, robots[1].Committed)
	assert.Equal(t, 1, robots[1].Failed)
	assert.Equal(t, "no flour", robots[1].LastReason)
	assert.False(t, robots[1].LastCommitted)

	assert.Equal(t, "CANCELLED", robots[2].State)
	assert.Equal(t, "unknown recipe", robots[2].Error)
}

func TestMonitor_Reset(t *testing.T) {
	m := NewMonitor()
	m.RecordMetric("test_metric", 42)
	m.RegisterRobot("knead-1", "knead", "RUNNING")
	m.RecordIteration("knead-1", "storage", "", true)

	m.Reset()

	metrics := m.GetMetrics()
	_, exists := metrics["test_metric"]
	assert.False(t, exists)
	assert.Equal(t, 1, metrics["robots"])
	assert.Zero(t, m.Robots()[0].Iterations)
}

func TestMetrics_RecordIteration(t *testing.T) {
	m := NewMetrics()
	m.RecordIteration("knead", "counter", OutcomeCommitted, 20*time.Millisecond)
	m.RecordIteration("knead", "counter", OutcomeCommitted, 30*time.Millisecond)
	m.RecordIteration("knead", "", OutcomeFailed, time.Millisecond)

	counter := m.metrics["iterations"].(*prometheus.CounterVec)
	assert.Equal(t, 2.0, testutil.ToFloat64(counter.WithLabelValues("knead", "counter", OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("knead", "none", OutcomeFailed)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.metrics["iteration_time"]))
}

func TestMetrics_StockGauges(t *testing.T) {
	m := NewMetrics()
	m.RecordIngredientStock(models.IngredientStock{models.IngredientFlour: 750, models.IngredientEggs: 4})
	m.RecordCounterStock(models.DefaultCatalog(), models.CounterStock{models.ProductCroissant: 3})

	expected := `
# HELP bakery_ingredient_stock Available ingredient amount in storage
# TYPE bakery_ingredient_stock gauge
bakery_ingredient_stock{kind="EGGS"} 4
bakery_ingredient_stock{kind="FLOUR"} 750
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "bakery_ingredient_stock"))

	gauge := m.metrics["counter"].(*prometheus.GaugeVec)
	assert.Equal(t, 3.0, testutil.ToFloat64(gauge.WithLabelValues(models.ProductCroissant)))
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge.WithLabelValues(models.ProductBauernbrot)))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordIteration("bake", "bake", OutcomeCommitted, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bakery_robot_iterations_total")
}
