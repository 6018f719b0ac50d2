// Package driver runs the sampling loop: it records sensor readings into the
// history buffer and, every few samples, refits the trend, drives the LEDs
// and refreshes the plot and the snapshot.
package driver

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/thermotrend/internal/actuation"
	"codeberg.org/mutker/thermotrend/internal/errors"
	"codeberg.org/mutker/thermotrend/internal/logger"
	"codeberg.org/mutker/thermotrend/internal/metrics"
	"codeberg.org/mutker/thermotrend/internal/publish"
	"codeberg.org/mutker/thermotrend/internal/render"
	"codeberg.org/mutker/thermotrend/internal/series"
	"codeberg.org/mutker/thermotrend/internal/trend"
)

type Config struct {
	Interval   time.Duration
	TrendEvery int
	Window     time.Duration
	Capacity   int
	Units      string
	Title      string
	Host       string
	RunID      string
	Monitor    bool
}

func (c Config) validate() error {
	errFactory := errors.New()

	invalid := func(field string, value interface{}) error {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value interface{}
		}{
			Field: field,
			Value: value,
		})
	}

	switch {
	case c.Interval <= 0:
		return invalid("interval", c.Interval)
	case c.TrendEvery <= 0:
		return invalid("trend_every", c.TrendEvery)
	case c.Window <= 0:
		return invalid("window", c.Window)
	case c.Capacity <= 0:
		return invalid("capacity", c.Capacity)
	}

	return nil
}

type Option func(*Driver)

func WithClock(c Clock) Option         { return func(d *Driver) { d.clock = c } }
func WithRenderer(r Renderer) Option   { return func(d *Driver) { d.renderer = r } }
func WithStore(s Store) Option         { return func(d *Driver) { d.store = s } }
func WithRecorder(r Recorder) Option   { return func(d *Driver) { d.recorder = r } }
func WithPublisher(p Publisher) Option { return func(d *Driver) { d.publisher = p } }
func WithObserver(o Observer) Option   { return func(d *Driver) { d.observer = o } }
func WithLogger(l logger.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// Driver owns the buffer and every collaborator of the loop. It is not safe
// for concurrent use, except Close.
type Driver struct {
	cfg       Config
	log       logger.Logger
	sensor    Sensor
	clock     Clock
	buffer    *series.Buffer
	estimator *trend.Estimator
	mapper    actuation.Mapper
	actuator  Actuator
	renderer  Renderer
	store     Store
	recorder  Recorder
	publisher Publisher
	observer  Observer

	ticks     int
	closeOnce sync.Once
	closeErr  error
}

func New(cfg Config, s Sensor, est *trend.Estimator, mapper actuation.Mapper, act Actuator, opts ...Option) (*Driver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if s == nil || est == nil || act == nil {
		return nil, errors.New().WithMessage(errors.ErrInvalidArgument, "sensor, estimator and actuator are required")
	}

	d := &Driver{
		cfg:       cfg,
		log:       logger.Default(),
		sensor:    s,
		clock:     systemClock{},
		buffer:    series.New(cfg.Capacity),
		estimator: est,
		mapper:    mapper,
		actuator:  act,
		renderer:  noopRenderer{},
		store:     noopStore{},
		recorder:  noopRecorder{},
		publisher: publish.Noop{},
		observer:  noopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Restore loads the persisted snapshot into the buffer. A missing snapshot
// leaves the buffer empty. A snapshot of a different length is resized,
// keeping its newest samples.
func (d *Driver) Restore(ctx context.Context) error {
	errFactory := errors.New()

	snap, found, err := d.store.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		d.log.Info().Msg("No snapshot found, starting with an empty history")
		return nil
	}

	buf, err := series.Restore(d.cfg.Capacity, snap.Timestamps, snap.Values)
	if errors.IsCode(err, errors.ErrCapacityMismatch) {
		d.log.Warn().
			Int("snapshot_length", len(snap.Timestamps)).
			Int("capacity", d.cfg.Capacity).
			Msg("Snapshot length differs from buffer capacity, resizing")
		buf, err = series.RestoreResized(d.cfg.Capacity, snap.Timestamps, snap.Values)
	}
	if err != nil {
		return errFactory.Wrap(errors.ErrRestore, err)
	}

	d.buffer = buf
	d.log.Info().
		Int("samples", buf.Valid()).
		Int("capacity", buf.Cap()).
		Msg("Restored history from snapshot")

	return nil
}

// Tick reads the sensor once and appends the reading to the buffer. A
// sensor failure leaves the buffer untouched.
func (d *Driver) Tick(ctx context.Context) error {
	v, err := d.sensor.Read(ctx)
	if err != nil {
		d.observer.Failure(StageSensor, err)
		return errors.New().Wrap(errors.ErrSensorRead, err)
	}

	now := d.clock.Now()
	d.buffer.Insert(series.DayNumber(now), v)
	d.ticks++

	d.log.Debug().Float64("value", v).Msg("Sample recorded")
	d.observer.SampleRecorded(now, v, d.buffer.Valid(), d.buffer.Cap())

	return nil
}

// RecomputeTrendAndActuate fits the trend over the window, drives the
// actuator and refreshes the plot, the snapshot and the reports. Only a
// failed fit is returned; every later failure is logged and the remaining
// steps still run.
func (d *Driver) RecomputeTrendAndActuate(ctx context.Context) (*Update, error) {
	fit, err := d.fit()
	if err != nil {
		d.observer.TrendSkipped(err)
		return nil, err
	}

	latest, _ := d.buffer.Latest()
	update := Update{
		Time:        series.TimeOf(latest.Time),
		Temperature: latest.Value,
		Units:       d.cfg.Units,
		Fit:         fit,
		Output:      d.mapper.Map(fit.Slope),
		Monitor:     d.cfg.Monitor,
	}

	if !d.cfg.Monitor {
		if err := d.actuator.Set(update.Output); err != nil {
			d.failed(StageActuator, err)
		}
	}

	timestamps, values := d.buffer.Slices()

	if err := d.renderer.Render(ctx, d.plot(timestamps, values, fit, latest.Value)); err != nil {
		d.failed(StageRender, err)
	}
	if err := d.store.Save(ctx, timestamps, values); err != nil {
		d.failed(StagePersist, err)
	}
	if err := d.recorder.Record(ctx, d.trendSnapshot(update)); err != nil {
		d.failed(StageRecord, err)
	}
	if err := d.publisher.Publish(ctx, d.report(update)); err != nil {
		d.failed(StagePublish, err)
	}

	d.log.Info().
		Float64("temperature", update.Temperature).
		Float64("slope_per_hour", fit.Slope).
		Str("channel", update.Output.Channel.String()).
		Float64("intensity", update.Output.Intensity).
		Int("points", len(fit.Times)).
		Msg("Trend updated")
	d.observer.TrendUpdated(update)

	return &update, nil
}

// Replot fits the current history and renders it without touching the
// actuator or the snapshot.
func (d *Driver) Replot(ctx context.Context) error {
	fit, err := d.fit()
	if err != nil {
		return err
	}

	latest, _ := d.buffer.Latest()
	timestamps, values := d.buffer.Slices()

	return d.renderer.Render(ctx, d.plot(timestamps, values, fit, latest.Value))
}

// Step runs one loop iteration: a tick, plus the trend update on every
// TrendEvery-th tick. Only a sensor failure is returned.
func (d *Driver) Step(ctx context.Context) error {
	if err := d.Tick(ctx); err != nil {
		return err
	}
	if d.ticks%d.cfg.TrendEvery != 0 {
		return nil
	}

	if _, err := d.RecomputeTrendAndActuate(ctx); err != nil {
		if errors.IsCode(err, errors.ErrInsufficientData) || errors.IsCode(err, errors.ErrDegenerateWindow) {
			d.log.Debug().Err(err).Msg("Skipping trend update")
		} else {
			d.failed(StageTrend, err)
		}
	}

	return nil
}

// Run samples every Interval until ctx is cancelled or the sensor fails.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := d.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close turns the actuator off and releases it. It runs once; later calls
// return the first result.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		errFactory := errors.New()

		if err := d.actuator.Set(actuation.Output{}); err != nil {
			d.log.Warn().Err(err).Msg("Failed to turn off actuator")
		}
		if err := d.actuator.Close(); err != nil {
			d.closeErr = errFactory.Wrap(errors.ErrCleanup, err)
			return
		}
		d.log.Debug().Msg("Actuator released")
	})

	return d.closeErr
}

// Snapshot returns copies of the buffered timestamps and values.
func (d *Driver) Snapshot() (timestamps, values []float64) {
	return d.buffer.Slices()
}

func (d *Driver) fit() (*trend.Fit, error) {
	w := series.Select(d.buffer, d.cfg.Window.Hours()/trend.HoursPerDay)
	return d.estimator.Fit(w.Times, w.Values)
}

func (d *Driver) plot(timestamps, values []float64, fit *trend.Fit, latest float64) render.Plot {
	return render.Plot{
		Times:       timestamps,
		Values:      values,
		TrendTimes:  fit.Times,
		TrendValues: fit.Values,
		Title:       render.Title(d.cfg.Title, latest, fit.Slope, d.cfg.Units),
		Units:       d.cfg.Units,
	}
}

func (d *Driver) failed(stage string, err error) {
	d.observer.Failure(stage, err)

	var appErr errors.Error
	if errors.As(err, &appErr) {
		d.log.ErrorWithCode(appErr).Str("stage", stage).Msg("Trend update step failed")
		return
	}
	d.log.Error().Err(err).Str("stage", stage).Msg("Trend update step failed")
}

func (d *Driver) trendSnapshot(u Update) *metrics.TrendSnapshot {
	return &metrics.TrendSnapshot{
		Timestamp: u.Time,
		Temperature: metrics.TempMetrics{
			Current: u.Temperature,
			Fitted:  u.Fit.Value,
			Units:   u.Units,
		},
		Trend: metrics.TrendMetrics{
			Strategy: string(u.Fit.Strategy),
			Points:   len(u.Fit.Times),
			Slope:    u.Fit.Slope,
		},
		Actuation: metrics.LEDMetrics{
			Channel:   u.Output.Channel.String(),
			Intensity: u.Output.Intensity,
			Monitor:   u.Monitor,
		},
	}
}

func (d *Driver) report(u Update) publish.Report {
	return publish.Report{
		RunID:       d.cfg.RunID,
		Host:        d.cfg.Host,
		Timestamp:   u.Time,
		Temperature: u.Temperature,
		Fitted:      u.Fit.Value,
		Units:       u.Units,
		Strategy:    string(u.Fit.Strategy),
		Points:      len(u.Fit.Times),
		Slope:       u.Fit.Slope,
		Channel:     u.Output.Channel.String(),
		Intensity:   u.Output.Intensity,
		Monitor:     u.Monitor,
	}
}
