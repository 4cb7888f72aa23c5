package monitoring

import (
	"sort"
	"sync"
	"time"
)

// RobotStatus is the last known state of a robot
type RobotStatus struct {
	ID            string    `json:"id"`
	Role          string    `json:"role"`
	State         string    `json:"state"`
	LastAction    string    `json:"last_action,omitempty"`
	LastReason    string    `json:"last_reason,omitempty"`
	LastCommitted bool      `json:"last_committed"`
	Iterations    int       `json:"iterations"`
	Committed     int       `json:"committed"`
	Failed        int       `json:"failed"`
	Error         string    `json:"error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Monitor collects robot status and free-form metrics for the dashboard
type Monitor struct {
	robots       map[string]*RobotStatus
	metrics      map[string]interface{}
	metricsMutex sync.RWMutex
	startTime    time.Time
}

// NewMonitor creates a new monitoring instance
func NewMonitor() *Monitor {
	return &Monitor{
		robots:    make(map[string]*RobotStatus),
		metrics:   make(map[string]interface{}),
		startTime: time.Now(),
	}
}

// RegisterRobot adds a robot to the board
func (m *Monitor) RegisterRobot(id, role, state string) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.robots[id] = &RobotStatus{ID: id, Role: role, State: state, UpdatedAt: time.Now()}
}

// RecordIteration records the outcome of one robot iteration
func (m *Monitor) RecordIteration(id, action, reason string, committed bool) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()

	status, ok := m.robots[id]
	if !ok {
		status = &RobotStatus{ID: id}
		m.robots[id] = status
	}
	status.Iterations++
	if committed {
		status.Committed++
	} else {
		status.Failed++
	}
	status.LastAction = action
	status.LastReason = reason
	status.LastCommitted = committed
	status.UpdatedAt = time.Now()
}

// SetRobotState updates the state of a robot, with an optional error
func (m *Monitor) SetRobotState(id, state string, err error) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()

	status, ok := m.robots[id]
	if !ok {
		status = &RobotStatus{ID: id}
		m.robots[id] = status
	}
	status.State = state
	if err != nil {
		status.Error = err.Error()
	}
	status.UpdatedAt = time.Now()
}

// Robots returns a copy of every robot status ordered by role and id
func (m *Monitor) Robots() []RobotStatus {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	out := make([]RobotStatus, 0, len(m.robots))
	for _, s := range m.robots {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RecordMetric records a metric value
func (m *Monitor) RecordMetric(name string, value interface{}) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics[name] = value
}

// GetMetric returns a specific metric value
func (m *Monitor) GetMetric(name string) (interface{}, bool) {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()
	value, exists := m.metrics[name]
	return value, exists
}

// GetMetrics returns all current metrics
func (m *Monitor) GetMetrics() map[string]interface{} {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	// Create a copy to avoid concurrent map access
	metrics := make(map[string]interface{}, len(m.metrics)+2)
	for k, v := range m.metrics {
		metrics[k] = v
	}

	metrics["uptime_seconds"] = time.Since(m.startTime).Seconds()
	metrics["robots"] = len(m.robots)

	return metrics
}

// Reset clears all metrics and iteration counters, keeping registered robots
func (m *Monitor) Reset() {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics = make(map[string]interface{})
	for _, s := range m.robots {
		s.Iterations, s.Committed, s.Failed = 0, 0, 0
	}
}
