package metrics

import (
	"context"
	"time"
)

// MetricsCollector records one snapshot per trend update.
type MetricsCollector interface {
	Record(ctx context.Context, snapshot *TrendSnapshot) error
	Recent(ctx context.Context, limit int) ([]TrendSnapshot, error)
	Close() error
}

// MetricsRepository defines the interface for trend history storage
type MetricsRepository interface {
	Record(snapshot *TrendSnapshot) error
	Recent(limit int) ([]TrendSnapshot, error)
	Close() error
}

// TrendSnapshot is the outcome of one trend update.
type TrendSnapshot struct {
	Timestamp   time.Time    `json:"timestamp"`
	Temperature TempMetrics  `json:"temperature"`
	Trend       TrendMetrics `json:"trend"`
	Actuation   LEDMetrics   `json:"actuation"`
}

type TempMetrics struct {
	Current float64 `json:"current"`
	Fitted  float64 `json:"fitted"`
	Units   string  `json:"units"`
}

type TrendMetrics struct {
	Strategy string  `json:"strategy"`
	Points   int     `json:"points"`
	Slope    float64 `json:"slope_per_hour"`
}

type LEDMetrics struct {
	Channel   string  `json:"channel"`
	Intensity float64 `json:"intensity"`
	Monitor   bool    `json:"monitor"`
}
