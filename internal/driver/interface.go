package driver

import (
	"context"
	"time"

	"codeberg.org/mutker/thermotrend/internal/actuation"
	"codeberg.org/mutker/thermotrend/internal/metrics"
	"codeberg.org/mutker/thermotrend/internal/publish"
	"codeberg.org/mutker/thermotrend/internal/render"
	"codeberg.org/mutker/thermotrend/internal/snapshot"
	"codeberg.org/mutker/thermotrend/internal/trend"
)

// Failure stages reported to the Observer.
const (
	StageSensor   = "sensor"
	StageTrend    = "trend"
	StageActuator = "actuator"
	StageRender   = "render"
	StagePersist  = "persist"
	StageRecord   = "record"
	StagePublish  = "publish"
)

// Sensor returns one reading in the configured units.
type Sensor interface {
	Read(ctx context.Context) (float64, error)
}

type Clock interface {
	Now() time.Time
}

// Actuator applies an actuation decision. Failures are logged, never fatal.
type Actuator interface {
	Set(out actuation.Output) error
	Close() error
}

type Renderer interface {
	Render(ctx context.Context, p render.Plot) error
}

// Store persists the buffer between runs.
type Store interface {
	Save(ctx context.Context, timestamps, values []float64) error
	Load(ctx context.Context) (snapshot.Snapshot, bool, error)
}

type Recorder interface {
	Record(ctx context.Context, snapshot *metrics.TrendSnapshot) error
}

type Publisher interface {
	Publish(ctx context.Context, r publish.Report) error
}

// Observer follows the loop for status pages and metrics.
type Observer interface {
	SampleRecorded(at time.Time, value float64, valid, capacity int)
	TrendUpdated(u Update)
	TrendSkipped(err error)
	Failure(stage string, err error)
}

// Update is the outcome of one successful trend recompute.
type Update struct {
	Time        time.Time
	Temperature float64
	Units       string
	Fit         *trend.Fit
	Output      actuation.Output
	Monitor     bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type noopRenderer struct{}

func (noopRenderer) Render(context.Context, render.Plot) error { return nil }

type noopStore struct{}

func (noopStore) Save(context.Context, []float64, []float64) error { return nil }

func (noopStore) Load(context.Context) (snapshot.Snapshot, bool, error) {
	return snapshot.Snapshot{}, false, nil
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, *metrics.TrendSnapshot) error { return nil }

type noopObserver struct{}

func (noopObserver) SampleRecorded(time.Time, float64, int, int) {}
func (noopObserver) TrendUpdated(Update)                         {}
func (noopObserver) TrendSkipped(error)                          {}
func (noopObserver) Failure(string, error)                       {}
