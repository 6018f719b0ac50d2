package config

import (
	"math"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "THERMOTREND"
	DefaultConfigName = "thermotrend"
	DefaultLogLevel   = "info"

	StrategySpline = "spline"
	StrategyLinear = "linear"

	SensorW1     = "w1"
	SensorSerial = "serial"
	SensorNVML   = "nvml"
	SensorSim    = "sim"

	UnitsFahrenheit = "F"
	UnitsCelsius    = "C"
)

type Config struct {
	Interval       int           `mapstructure:"interval"`
	TrendEvery     int           `mapstructure:"trend_every"`
	Window         time.Duration `mapstructure:"window"`
	BufferDuration time.Duration `mapstructure:"buffer_duration"`
	Strategy       string        `mapstructure:"strategy"`
	Smoothing      float64       `mapstructure:"smoothing"`
	DeadBand       float64       `mapstructure:"dead_band"`
	Saturation     float64       `mapstructure:"saturation"`
	Units          string        `mapstructure:"units"`

	Sensor     string `mapstructure:"sensor"`
	W1Device   string `mapstructure:"w1_device"`
	SerialPort string `mapstructure:"serial_port"`
	SerialBaud int    `mapstructure:"serial_baud"`
	NVMLIndex  int    `mapstructure:"nvml_index"`

	WarmPin      string `mapstructure:"warm_pin"`
	CoolPin      string `mapstructure:"cool_pin"`
	PWMFrequency int    `mapstructure:"pwm_frequency"`
	Monitor      bool   `mapstructure:"monitor"`
	Replot       bool   `mapstructure:"replot"`

	OutputDir    string `mapstructure:"output_dir"`
	PlotFile     string `mapstructure:"plot_file"`
	SnapshotFile string `mapstructure:"snapshot_file"`
	Title        string `mapstructure:"title"`

	Metrics   bool   `mapstructure:"metrics"`
	MetricsDB string `mapstructure:"metrics_db"`

	MQTTBroker   string   `mapstructure:"mqtt_broker"`
	MQTTTopic    string   `mapstructure:"mqtt_topic"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`

	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`
}

type setting struct {
	key   string
	flag  string
	value interface{}
	usage string
}

func settings() []setting {
	title, err := os.Hostname()
	if err != nil {
		title = "thermotrend"
	}

	return []setting{
		{"interval", "interval", 2, "Seconds between sensor samples"},
		{"trend_every", "trend-every", 10, "Samples between trend updates"},
		{"window", "window", time.Hour, "Trailing time span used for the trend fit"},
		{"buffer_duration", "buffer-duration", 24 * time.Hour, "Time span kept in the history buffer"},
		{"strategy", "strategy", StrategySpline, "Trend model: spline or linear"},
		{"smoothing", "smoothing", 500.0, "Spline smoothing factor (residual sum of squares budget)"},
		{"dead_band", "dead-band", 0.3, "Slope per hour below which the LEDs stay dark"},
		{"saturation", "saturation", 2.0, "Slope per hour at which the LEDs reach full brightness"},
		{"units", "units", UnitsFahrenheit, "Temperature units: F or C"},
		{"sensor", "sensor", SensorW1, "Sensor backend: w1, serial, nvml or sim"},
		{"w1_device", "w1-device", "", "One-wire device id (default: first 28-* device)"},
		{"serial_port", "serial-port", "", "Serial port of a line-oriented sensor"},
		{"serial_baud", "serial-baud", 9600, "Serial baud rate"},
		{"nvml_index", "nvml-index", 0, "GPU index for the nvml sensor"},
		{"warm_pin", "warm-pin", "GPIO19", "GPIO driven while warming"},
		{"cool_pin", "cool-pin", "GPIO12", "GPIO driven while cooling"},
		{"pwm_frequency", "pwm-frequency", 60, "LED PWM frequency in Hz"},
		{"monitor", "monitor", false, "Only monitor, never drive the LEDs"},
		{"replot", "replot", false, "Render the plot from the stored snapshot and exit"},
		{"output_dir", "output-dir", "/var/www/html/files", "Directory for the plot and the snapshot"},
		{"plot_file", "plot-file", "temperature.png", "Plot file name"},
		{"snapshot_file", "snapshot-file", "temperature.dat", "Snapshot file name"},
		{"title", "title", title, "Plot title prefix"},
		{"metrics", "metrics", false, "Record trend history to sqlite"},
		{"metrics_db", "metrics-db", "/var/lib/thermotrend/metrics.db", "Trend history database"},
		{"mqtt_broker", "mqtt-broker", "", "MQTT broker for trend reports (tcp://host:1883)"},
		{"mqtt_topic", "mqtt-topic", "thermotrend/trend", "MQTT topic for trend reports"},
		{"kafka_brokers", "kafka-brokers", []string{}, "Kafka brokers for trend reports"},
		{"kafka_topic", "kafka-topic", "thermotrend.trend", "Kafka topic for trend reports"},
		{"listen", "listen", "", "Status server address (empty disables it)"},
		{"log_level", "log-level", DefaultLogLevel, "Log level: debug, info, warning or error"},
	}
}

func newFlagSet(list []setting) *pflag.FlagSet {
	fs := pflag.NewFlagSet("thermotrend", pflag.ContinueOnError)
	fs.String("config", "", "Path to the configuration file")

	for _, s := range list {
		switch v := s.value.(type) {
		case int:
			fs.Int(s.flag, v, s.usage)
		case float64:
			fs.Float64(s.flag, v, s.usage)
		case bool:
			fs.Bool(s.flag, v, s.usage)
		case string:
			fs.String(s.flag, v, s.usage)
		case time.Duration:
			fs.Duration(s.flag, v, s.usage)
		case []string:
			fs.StringSlice(s.flag, v, s.usage)
		}
	}

	return fs
}

// Load reads flags, environment and the config file, in that order of precedence
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}
	if !o.argsSet {
		o.args = os.Args[1:]
	}

	list := settings()
	fs := newFlagSet(list)
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	for _, s := range list {
		v.SetDefault(s.key, s.value)
		if err := v.BindPFlag(s.key, fs.Lookup(s.flag)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	configPath := o.configPath
	if flagPath, _ := fs.GetString("config"); flagPath != "" {
		configPath = flagPath
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	config.Units = strings.ToUpper(config.Units)
	config.LogLevel = strings.ToLower(config.LogLevel)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks ranges and cross-field constraints
func (c *Config) Validate() error {
	errFactory := errors.New()

	invalid := func(field string, value interface{}, reason string) error {
		return errFactory.WithData(errors.ErrInvalidConfig, ValidationError{
			Field:  field,
			Value:  value,
			Reason: reason,
		})
	}

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, ValidationError{
			Field:  "interval",
			Value:  c.Interval,
			Reason: "must be positive",
		})
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, ValidationError{
			Field:  "log_level",
			Value:  c.LogLevel,
			Reason: "must be one of debug, info, warning, error",
		})
	}
	if c.TrendEvery <= 0 {
		return invalid("trend_every", c.TrendEvery, "must be positive")
	}
	if c.Window <= 0 {
		return invalid("window", c.Window, "must be positive")
	}
	if c.BufferDuration < c.Window {
		return invalid("buffer_duration", c.BufferDuration, "must cover the trend window")
	}
	switch c.Strategy {
	case StrategySpline, StrategyLinear:
	default:
		return invalid("strategy", c.Strategy, "must be spline or linear")
	}
	if c.Smoothing < 0 || math.IsNaN(c.Smoothing) {
		return invalid("smoothing", c.Smoothing, "must not be negative")
	}
	if c.DeadBand < 0 {
		return invalid("dead_band", c.DeadBand, "must not be negative")
	}
	if !(c.DeadBand < c.Saturation) {
		return invalid("saturation", c.Saturation, "must be greater than dead_band")
	}
	switch c.Units {
	case UnitsFahrenheit, UnitsCelsius:
	default:
		return invalid("units", c.Units, "must be F or C")
	}
	switch c.Sensor {
	case SensorW1, SensorSim, SensorNVML:
	case SensorSerial:
		if c.SerialPort == "" {
			return invalid("serial_port", c.SerialPort, "required by the serial sensor")
		}
	default:
		return invalid("sensor", c.Sensor, "must be w1, serial, nvml or sim")
	}
	if c.PWMFrequency <= 0 {
		return invalid("pwm_frequency", c.PWMFrequency, "must be positive")
	}
	if c.OutputDir == "" {
		return invalid("output_dir", c.OutputDir, "must not be empty")
	}
	if c.Metrics && c.MetricsDB == "" {
		return invalid("metrics_db", c.MetricsDB, "required when metrics are enabled")
	}

	return nil
}

// IntervalDuration returns the sampling interval
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// Capacity returns the number of samples that cover BufferDuration
func (c *Config) Capacity() int {
	return int(math.Ceil(c.BufferDuration.Seconds() / float64(c.Interval)))
}
