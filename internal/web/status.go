package web

import (
	"sync"
	"time"

	"codeberg.org/mutker/thermotrend/internal/actuation"
	"codeberg.org/mutker/thermotrend/internal/driver"
)

// Status is the JSON document served at /api/status.
type Status struct {
	Title       string    `json:"title"`
	RunID       string    `json:"run_id"`
	Units       string    `json:"units"`
	Monitor     bool      `json:"monitor"`
	StartedAt   time.Time `json:"started_at"`
	LastSample  time.Time `json:"last_sample,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Samples     int       `json:"samples"`
	Capacity    int       `json:"capacity"`

	LastUpdate time.Time `json:"last_update,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	Points     int       `json:"points,omitempty"`
	Fitted     *float64  `json:"fitted,omitempty"`
	Slope      *float64  `json:"slope_per_hour,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	Intensity  float64   `json:"intensity"`

	Skipped   int    `json:"skipped"`
	LastError string `json:"last_error,omitempty"`
}

// Monitor follows the driver and keeps the status and the collectors
// current. It is safe for concurrent use.
type Monitor struct {
	mu         sync.RWMutex
	status     Status
	collectors *Collectors
}

func NewMonitor(base Status, collectors *Collectors) *Monitor {
	if collectors == nil {
		collectors = NewCollectors()
	}
	if base.StartedAt.IsZero() {
		base.StartedAt = time.Now()
	}

	return &Monitor{status: base, collectors: collectors}
}

var _ driver.Observer = (*Monitor)(nil)

// Status returns a copy of the current status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.status
}

func (m *Monitor) Collectors() *Collectors {
	return m.collectors
}

func (m *Monitor) SampleRecorded(at time.Time, value float64, valid, capacity int) {
	m.mu.Lock()
	m.status.LastSample = at
	m.status.Temperature = &value
	m.status.Samples = valid
	m.status.Capacity = capacity
	m.mu.Unlock()

	m.collectors.temperature.Set(value)
	m.collectors.samples.Inc()
	m.collectors.bufferFill.Set(float64(valid))
}

func (m *Monitor) TrendUpdated(u driver.Update) {
	fitted, slope := u.Fit.Value, u.Fit.Slope

	m.mu.Lock()
	m.status.LastUpdate = u.Time
	m.status.Strategy = string(u.Fit.Strategy)
	m.status.Points = len(u.Fit.Times)
	m.status.Fitted = &fitted
	m.status.Slope = &slope
	m.status.Channel = u.Output.Channel.String()
	m.status.Intensity = u.Output.Intensity
	m.mu.Unlock()

	positive, negative := u.Output.Duties()
	if u.Monitor {
		positive, negative = 0, 0
	}

	m.collectors.fitted.Set(fitted)
	m.collectors.slope.Set(slope)
	m.collectors.intensity.WithLabelValues(actuation.Positive.String()).Set(positive)
	m.collectors.intensity.WithLabelValues(actuation.Negative.String()).Set(negative)
	m.collectors.updates.Inc()
}

func (m *Monitor) TrendSkipped(error) {
	m.mu.Lock()
	m.status.Skipped++
	m.mu.Unlock()

	m.collectors.skipped.Inc()
}

func (m *Monitor) Failure(stage string, err error) {
	m.mu.Lock()
	m.status.LastError = stage + ": " + err.Error()
	m.mu.Unlock()

	m.collectors.failures.WithLabelValues(stage).Inc()
}
