package driver_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/thermotrend/internal/actuation"
	"codeberg.org/mutker/thermotrend/internal/driver"
	"codeberg.org/mutker/thermotrend/internal/errors"
	"codeberg.org/mutker/thermotrend/internal/metrics"
	"codeberg.org/mutker/thermotrend/internal/publish"
	"codeberg.org/mutker/thermotrend/internal/render"
	"codeberg.org/mutker/thermotrend/internal/series"
	"codeberg.org/mutker/thermotrend/internal/snapshot"
	"codeberg.org/mutker/thermotrend/internal/trend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 10, 4, 6, 0, 0, 0, time.UTC)

// stepClock advances by step on every call to Now.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

// curveSensor reports f(hours since start) using the clock's next time.
type curveSensor struct {
	clock *stepClock
	f     func(hours float64) float64
	err   error
	reads int
}

func (s *curveSensor) Read(context.Context) (float64, error) {
	s.reads++
	if s.err != nil {
		return 0, s.err
	}
	next := s.clock.now.Add(s.clock.step)
	return s.f(next.Sub(start).Hours()), nil
}

type fakeActuator struct {
	mu      sync.Mutex
	outputs []actuation.Output
	closed  int
	err     error
}

func (a *fakeActuator) Set(out actuation.Output) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outputs = append(a.outputs, out)
	return a.err
}

func (a *fakeActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed++
	return nil
}

type fakeStore struct {
	fail   bool
	saves  int
	ts, vs []float64
	snap   snapshot.Snapshot
	found  bool
}

func (s *fakeStore) Save(_ context.Context, ts, vs []float64) error {
	if s.fail {
		return errors.New().Wrap(errors.ErrPersist, stderrors.New("disk full"))
	}
	s.saves++
	s.ts = append([]float64(nil), ts...)
	s.vs = append([]float64(nil), vs...)
	return nil
}

func (s *fakeStore) Load(context.Context) (snapshot.Snapshot, bool, error) {
	return s.snap, s.found, nil
}

type fakeRenderer struct {
	plots []render.Plot
	err   error
}

func (r *fakeRenderer) Render(_ context.Context, p render.Plot) error {
	r.plots = append(r.plots, p)
	return r.err
}

type fakeRecorder struct{ snapshots []*metrics.TrendSnapshot }

func (r *fakeRecorder) Record(_ context.Context, s *metrics.TrendSnapshot) error {
	r.snapshots = append(r.snapshots, s)
	return nil
}

type fakePublisher struct{ reports []publish.Report }

func (p *fakePublisher) Publish(_ context.Context, r publish.Report) error {
	p.reports = append(p.reports, r)
	return nil
}

type fixture struct {
	clock     *stepClock
	sensor    *curveSensor
	actuator  *fakeActuator
	store     *fakeStore
	renderer  *fakeRenderer
	recorder  *fakeRecorder
	publisher *fakePublisher
	driver    *driver.Driver
}

func newFixture(t *testing.T, cfg driver.Config, strategy trend.Strategy, f func(float64) float64) *fixture {
	t.Helper()

	clock := &stepClock{now: start, step: cfg.Interval}
	fx := &fixture{
		clock:     clock,
		sensor:    &curveSensor{clock: clock, f: f},
		actuator:  &fakeActuator{},
		store:     &fakeStore{},
		renderer:  &fakeRenderer{},
		recorder:  &fakeRecorder{},
		publisher: &fakePublisher{},
	}

	est, err := trend.New(strategy, 500)
	require.NoError(t, err)
	mapper, err := actuation.New(0.3, 2.0)
	require.NoError(t, err)

	fx.driver, err = driver.New(cfg, fx.sensor, est, mapper, fx.actuator,
		driver.WithClock(clock),
		driver.WithStore(fx.store),
		driver.WithRenderer(fx.renderer),
		driver.WithRecorder(fx.recorder),
		driver.WithPublisher(fx.publisher),
	)
	require.NoError(t, err)

	return fx
}

func defaultConfig() driver.Config {
	return driver.Config{
		Interval:   2 * time.Second,
		TrendEvery: 10,
		Window:     time.Hour,
		Capacity:   200,
		Units:      "F",
		Title:      "test",
		Host:       "test",
		RunID:      "run",
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	est, err := trend.New(trend.Linear, 0)
	require.NoError(t, err)
	mapper, err := actuation.New(0.3, 2.0)
	require.NoError(t, err)

	cfg := defaultConfig()
	cfg.TrendEvery = 0

	_, err = driver.New(cfg, &curveSensor{}, est, mapper, &fakeActuator{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidConfig))
}

func TestConstantRateSelectsPositiveChannel(t *testing.T) {
	fx := newFixture(t, defaultConfig(), trend.Spline, func(h float64) float64 {
		return 68 + 1.2*h
	})

	ctx := context.Background()
	for i := 0; i < 30; i++ {
		require.NoError(t, fx.driver.Step(ctx))
	}

	require.Len(t, fx.actuator.outputs, 3, "one actuation per trend update")
	for _, out := range fx.actuator.outputs {
		assert.Equal(t, actuation.Positive, out.Channel)
		assert.InDelta(t, (1.2-0.3)/(2.0-0.3), out.Intensity, 1e-6)
	}

	require.Len(t, fx.publisher.reports, 3)
	assert.InDelta(t, 1.2, fx.publisher.reports[2].Slope, 1e-6)
	assert.Equal(t, "positive", fx.publisher.reports[2].Channel)
	assert.Equal(t, "run", fx.publisher.reports[2].RunID)
	require.Len(t, fx.recorder.snapshots, 3)
	assert.Equal(t, 30, fx.recorder.snapshots[2].Trend.Points)

	require.Len(t, fx.renderer.plots, 3)
	assert.Contains(t, fx.renderer.plots[2].Title, "dT/dt=+1.2°F/hr")
	assert.Equal(t, 3, fx.store.saves)
}

func TestAcceleratingSeriesSaturates(t *testing.T) {
	cfg := defaultConfig()
	cfg.Interval = time.Minute
	cfg.TrendEvery = 5
	cfg.Capacity = 180

	fx := newFixture(t, cfg, trend.Linear, func(h float64) float64 {
		return 65 + 0.2*h + 0.5*h*h
	})

	ctx := context.Background()
	for i := 0; i < 360; i++ {
		require.NoError(t, fx.driver.Step(ctx))
	}

	outputs := fx.actuator.outputs
	require.NotEmpty(t, outputs)

	prev := 0.0
	for i, out := range outputs {
		assert.Equal(t, actuation.Positive, out.Channel, "update %d", i)
		assert.GreaterOrEqual(t, out.Intensity, prev, "update %d", i)
		prev = out.Intensity
	}
	assert.Equal(t, 1.0, outputs[len(outputs)-1].Intensity)
	assert.Less(t, outputs[1].Intensity, 1.0)

	for _, r := range fx.publisher.reports {
		assert.Greater(t, r.Slope, 0.0)
	}
}

func TestFallingSeriesSelectsNegativeChannel(t *testing.T) {
	fx := newFixture(t, defaultConfig(), trend.Linear, func(h float64) float64 {
		return 72 - 5*h
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, fx.driver.Step(context.Background()))
	}

	require.Len(t, fx.actuator.outputs, 1)
	assert.Equal(t, actuation.Negative, fx.actuator.outputs[0].Channel)
	assert.Equal(t, 1.0, fx.actuator.outputs[0].Intensity)
}

func TestInsufficientDataSkipsUpdate(t *testing.T) {
	cfg := defaultConfig()
	cfg.TrendEvery = 1

	fx := newFixture(t, cfg, trend.Spline, func(h float64) float64 { return 70 + h })

	require.NoError(t, fx.driver.Tick(context.Background()))
	_, err := fx.driver.RecomputeTrendAndActuate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInsufficientData))

	// Step swallows the recoverable error and keeps sampling.
	require.NoError(t, fx.driver.Step(context.Background()))

	assert.Empty(t, fx.actuator.outputs)
	assert.Empty(t, fx.renderer.plots)
	assert.Zero(t, fx.store.saves)
}

func TestPersistenceFailureKeepsBuffer(t *testing.T) {
	fx := newFixture(t, defaultConfig(), trend.Linear, func(h float64) float64 { return 70 + h })
	ctx := context.Background()

	fx.store.fail = true
	for i := 0; i < 10; i++ {
		require.NoError(t, fx.driver.Step(ctx))
	}
	assert.Zero(t, fx.store.saves)
	require.Len(t, fx.actuator.outputs, 1, "actuation still happens when persisting fails")

	ts, vs := fx.driver.Snapshot()
	require.Len(t, ts, 200)
	assert.Equal(t, 10, countValid(ts, vs))

	fx.store.fail = false
	for i := 0; i < 10; i++ {
		require.NoError(t, fx.driver.Step(ctx))
	}
	require.Equal(t, 1, fx.store.saves)

	ts, vs = fx.driver.Snapshot()
	assert.Equal(t, 20, countValid(fx.store.ts, fx.store.vs))
	assert.Equal(t, ts[len(ts)-20:], fx.store.ts[len(ts)-20:])
	assert.Equal(t, vs[len(vs)-20:], fx.store.vs[len(vs)-20:])
}

func TestRenderFailureIsNotFatal(t *testing.T) {
	fx := newFixture(t, defaultConfig(), trend.Linear, func(h float64) float64 { return 70 + h })
	fx.renderer.err = errors.New().New(errors.ErrRender)
	fx.actuator.err = errors.New().New(errors.ErrActuator)

	for i := 0; i < 10; i++ {
		require.NoError(t, fx.driver.Step(context.Background()))
	}

	assert.Equal(t, 1, fx.store.saves)
	assert.Len(t, fx.publisher.reports, 1)
}

func TestSensorFailureIsFatal(t *testing.T) {
	fx := newFixture(t, defaultConfig(), trend.Linear, func(h float64) float64 { return 70 })
	require.NoError(t, fx.driver.Step(context.Background()))

	fx.sensor.err = stderrors.New("w1 bus timeout")
	err := fx.driver.Step(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSensorRead))

	ts, vs := fx.driver.Snapshot()
	assert.Equal(t, 1, countValid(ts, vs), "a failed read adds no sample")
}

func TestMonitorModeNeverActuates(t *testing.T) {
	cfg := defaultConfig()
	cfg.Monitor = true

	fx := newFixture(t, cfg, trend.Linear, func(h float64) float64 { return 70 + h })
	for i := 0; i < 20; i++ {
		require.NoError(t, fx.driver.Step(context.Background()))
	}

	assert.Empty(t, fx.actuator.outputs)
	require.Len(t, fx.publisher.reports, 2)
	assert.True(t, fx.publisher.reports[0].Monitor)
}

func TestCloseRunsOnce(t *testing.T) {
	fx := newFixture(t, defaultConfig(), trend.Linear, func(h float64) float64 { return 70 })

	require.NoError(t, fx.driver.Close())
	require.NoError(t, fx.driver.Close())

	assert.Equal(t, 1, fx.actuator.closed)
	require.Len(t, fx.actuator.outputs, 1)
	assert.Zero(t, fx.actuator.outputs[0].Intensity)
}

func TestRestore(t *testing.T) {
	cfg := defaultConfig()
	cfg.Capacity = 4

	t.Run("missing snapshot", func(t *testing.T) {
		fx := newFixture(t, cfg, trend.Linear, func(float64) float64 { return 70 })
		require.NoError(t, fx.driver.Restore(context.Background()))

		ts, vs := fx.driver.Snapshot()
		assert.Len(t, ts, 4)
		assert.Zero(t, countValid(ts, vs))
	})

	t.Run("resized", func(t *testing.T) {
		fx := newFixture(t, cfg, trend.Linear, func(float64) float64 { return 70 })
		fx.store.snap = snapshot.Snapshot{
			Timestamps: []float64{1, 2, 3, 4, 5, 6},
			Values:     []float64{10, 20, 30, 40, 50, 60},
		}
		fx.store.found = true

		require.NoError(t, fx.driver.Restore(context.Background()))
		ts, vs := fx.driver.Snapshot()
		assert.Equal(t, []float64{3, 4, 5, 6}, ts)
		assert.Equal(t, []float64{30, 40, 50, 60}, vs)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		fx := newFixture(t, cfg, trend.Linear, func(float64) float64 { return 70 })
		fx.store.snap = snapshot.Snapshot{Timestamps: []float64{1, 2}, Values: []float64{1}}
		fx.store.found = true

		err := fx.driver.Restore(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrShapeMismatch))
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := defaultConfig()
	cfg.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, cfg, trend.Linear, func(h float64) float64 { return 70 })
	fx.sensor.f = func(float64) float64 {
		if fx.sensor.reads >= 5 {
			cancel()
		}
		return 70
	}

	require.NoError(t, fx.driver.Run(ctx))
	assert.GreaterOrEqual(t, fx.sensor.reads, 5)
}

func TestRunReturnsSensorError(t *testing.T) {
	cfg := defaultConfig()
	cfg.Interval = time.Millisecond

	fx := newFixture(t, cfg, trend.Linear, func(float64) float64 { return 70 })
	fx.sensor.err = stderrors.New("unplugged")

	err := fx.driver.Run(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrSensorRead))
}

func countValid(ts, vs []float64) int {
	n := 0
	for i := range ts {
		if !series.IsMissing(ts[i]) && !series.IsMissing(vs[i]) {
			n++
		}
	}
	return n
}

func TestReplotFromSnapshot(t *testing.T) {
	cfg := defaultConfig()
	cfg.Capacity = 30

	fx := newFixture(t, cfg, trend.Linear, func(float64) float64 { return 70 })

	ts := make([]float64, 30)
	vs := make([]float64, 30)
	for i := range ts {
		ts[i] = series.DayNumber(start.Add(time.Duration(i) * time.Minute))
		vs[i] = 68 + 0.05*float64(i)
	}
	fx.store.snap = snapshot.Snapshot{Timestamps: ts, Values: vs}
	fx.store.found = true

	ctx := context.Background()
	require.NoError(t, fx.driver.Restore(ctx))
	require.NoError(t, fx.driver.Replot(ctx))

	require.Len(t, fx.renderer.plots, 1)
	p := fx.renderer.plots[0]
	assert.Equal(t, ts, p.Times)
	assert.Len(t, p.TrendTimes, 30)
	assert.Len(t, p.TrendValues, 30)
	assert.Contains(t, p.Title, "dT/dt=+3.0°F/hr")

	assert.Empty(t, fx.actuator.outputs)
	assert.Zero(t, fx.store.saves)
	assert.Empty(t, fx.recorder.snapshots)
	assert.Empty(t, fx.publisher.reports)
	assert.Zero(t, fx.sensor.reads)
}

func TestReplotEmptyHistory(t *testing.T) {
	fx := newFixture(t, defaultConfig(), trend.Linear, func(float64) float64 { return 70 })

	require.NoError(t, fx.driver.Restore(context.Background()))
	err := fx.driver.Replot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInsufficientData))
	assert.Empty(t, fx.renderer.plots)
}
