package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"codeberg.org/mutker/thermotrend/internal/actuation"
	"codeberg.org/mutker/thermotrend/internal/config"
	"codeberg.org/mutker/thermotrend/internal/driver"
	"codeberg.org/mutker/thermotrend/internal/errors"
	"codeberg.org/mutker/thermotrend/internal/led"
	"codeberg.org/mutker/thermotrend/internal/logger"
	"codeberg.org/mutker/thermotrend/internal/metrics"
	"codeberg.org/mutker/thermotrend/internal/pid"
	"codeberg.org/mutker/thermotrend/internal/publish"
	"codeberg.org/mutker/thermotrend/internal/render"
	"codeberg.org/mutker/thermotrend/internal/sensor"
	"codeberg.org/mutker/thermotrend/internal/snapshot"
	"codeberg.org/mutker/thermotrend/internal/trend"
	"codeberg.org/mutker/thermotrend/internal/web"
)

const simBaseCelsius = 21.0

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	var err error
	if cfg.Replot {
		err = replot(ctx)
	} else {
		err = run(ctx)
	}

	if err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("Exiting with error")
		} else {
			logger.Error().Err(err).Msg("Exiting with error")
		}
		os.Exit(1)
	}
	logger.Info().Msg("Exiting...")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func run(ctx context.Context) error {
	errFactory := errors.New()

	pidPath := pid.DefaultPath()
	if err := pid.Write(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove pid file")
		}
	}()

	src, err := newSensor()
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close sensor")
		}
	}()

	act, err := newActuator()
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	collector, err := metrics.NewService(metrics.Config{
		DBPath:       cfg.MetricsDB,
		Enabled:      cfg.Metrics,
		BatchSize:    metrics.DefaultConfig().BatchSize,
		BatchTimeout: metrics.DefaultConfig().BatchTimeout,
	}, logger.Default())
	if err != nil {
		_ = act.Close()
		return errFactory.Wrap(errors.ErrInitMetrics, err)
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close trend history")
		}
	}()

	publisher, err := newPublisher()
	if err != nil {
		_ = act.Close()
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close publishers")
		}
	}()

	host, _ := os.Hostname()
	runID := publish.NewRunID()

	monitor := web.NewMonitor(web.Status{
		Title:   cfg.Title,
		RunID:   runID,
		Units:   cfg.Units,
		Monitor: cfg.Monitor,
	}, nil)

	d, err := newDriver(driver.Config{
		Interval:   cfg.IntervalDuration(),
		TrendEvery: cfg.TrendEvery,
		Window:     cfg.Window,
		Capacity:   cfg.Capacity(),
		Units:      cfg.Units,
		Title:      cfg.Title,
		Host:       host,
		RunID:      runID,
		Monitor:    cfg.Monitor,
	}, src, act,
		driver.WithRecorder(collector),
		driver.WithPublisher(publisher),
		driver.WithObserver(monitor),
	)
	if err != nil {
		_ = act.Close()
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to turn off LEDs")
		}
	}()

	if err := d.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("Ignoring unusable snapshot, starting with an empty history")
	}

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	serverErr := make(chan error, 1)
	if cfg.Listen != "" {
		srv := web.NewServer(cfg.Listen, plotPath(), monitor, collector, logger.Default())
		go func() { serverErr <- srv.ListenAndServe(serverCtx) }()
	}

	if cfg.Monitor {
		logger.Info().Msg("Monitor mode activated. LEDs stay off.")
	}
	logger.Info().
		Str("sensor", cfg.Sensor).
		Str("strategy", cfg.Strategy).
		Int("capacity", cfg.Capacity()).
		Dur("window", cfg.Window).
		Str("run_id", runID).
		Msg("Sampling started")

	loopErr := d.Run(ctx)
	if loopErr != nil {
		loopErr = errFactory.Wrap(errors.ErrMainLoop, loopErr)
	}

	if cfg.Listen != "" {
		stopServer()
		if err := <-serverErr; err != nil {
			logger.Error().Err(err).Msg("Status server failed")
		}
	}

	return loopErr
}

// replot renders the stored snapshot once, without sensor or LEDs.
func replot(ctx context.Context) error {
	d, err := newDriver(driver.Config{
		Interval:   cfg.IntervalDuration(),
		TrendEvery: cfg.TrendEvery,
		Window:     cfg.Window,
		Capacity:   cfg.Capacity(),
		Units:      cfg.Units,
		Title:      cfg.Title,
	}, replotSensor{}, led.Noop{})
	if err != nil {
		return err
	}

	if err := d.Restore(ctx); err != nil {
		return err
	}
	if err := d.Replot(ctx); err != nil {
		return err
	}
	logger.Info().Str("path", plotPath()).Msg("Plot regenerated from snapshot")

	return nil
}

func newDriver(dc driver.Config, s driver.Sensor, act driver.Actuator, opts ...driver.Option) (*driver.Driver, error) {
	est, err := trend.New(trend.Strategy(cfg.Strategy), cfg.Smoothing)
	if err != nil {
		return nil, err
	}
	mapper, err := actuation.New(cfg.DeadBand, cfg.Saturation)
	if err != nil {
		return nil, err
	}

	opts = append([]driver.Option{
		driver.WithRenderer(render.NewPNGRenderer(plotPath())),
		driver.WithStore(snapshot.NewFileStore(filepath.Join(cfg.OutputDir, cfg.SnapshotFile))),
	}, opts...)

	return driver.New(dc, s, est, mapper, act, opts...)
}

func newSensor() (sensor.Sensor, error) {
	var (
		s   sensor.Sensor
		err error
	)

	switch cfg.Sensor {
	case config.SensorW1:
		s, err = sensor.NewW1(sensor.DefaultW1Dir, cfg.W1Device)
	case config.SensorSerial:
		s, err = sensor.NewSerial(cfg.SerialPort, cfg.SerialBaud)
	case config.SensorNVML:
		s, err = sensor.NewNVML(cfg.NVMLIndex)
	default:
		s = sensor.NewSim(simBaseCelsius)
	}
	if err != nil {
		return nil, err
	}

	return sensor.WithUnits(s, cfg.Units), nil
}

func newActuator() (driver.Actuator, error) {
	if cfg.Monitor {
		return led.Noop{}, nil
	}

	return led.Open(cfg.WarmPin, cfg.CoolPin, cfg.PWMFrequency)
}

func newPublisher() (publish.Publisher, error) {
	var publishers publish.Multi

	if cfg.MQTTBroker != "" {
		host, _ := os.Hostname()
		m, err := publish.NewMQTT(cfg.MQTTBroker, cfg.MQTTTopic, "thermotrend-"+host)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, m)
	}
	if len(cfg.KafkaBrokers) > 0 {
		publishers = append(publishers, publish.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic))
	}

	if len(publishers) == 0 {
		return publish.Noop{}, nil
	}

	return publishers, nil
}

func plotPath() string {
	return filepath.Join(cfg.OutputDir, cfg.PlotFile)
}

// replotSensor stands in for the sensor when only the snapshot is rendered.
type replotSensor struct{}

func (replotSensor) Read(context.Context) (float64, error) {
	return 0, errors.New().New(errors.ErrNotImplemented)
}
