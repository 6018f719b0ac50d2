// Package publish sends trend reports to message brokers.
package publish

import (
	"context"
	"encoding/json"
	"time"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"github.com/google/uuid"
)

// Report is the JSON document published after every trend update.
type Report struct {
	RunID       string    `json:"run_id"`
	Host        string    `json:"host"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Fitted      float64   `json:"fitted"`
	Units       string    `json:"units"`
	Strategy    string    `json:"strategy"`
	Points      int       `json:"points"`
	Slope       float64   `json:"slope_per_hour"`
	Channel     string    `json:"channel"`
	Intensity   float64   `json:"intensity"`
	Monitor     bool      `json:"monitor"`
}

// Publisher delivers reports. Publish may block until the broker acks.
type Publisher interface {
	Publish(ctx context.Context, r Report) error
	Close() error
}

// NewRunID identifies one process run across its reports.
func NewRunID() string {
	return uuid.NewString()
}

func encode(r Report) ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrPublish, err)
	}

	return payload, nil
}

// Multi publishes to every publisher, returning the first failure.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, r Report) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (m Multi) Close() error {
	var firstErr error
	for _, p := range m {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Noop discards reports.
type Noop struct{}

func (Noop) Publish(context.Context, Report) error { return nil }
func (Noop) Close() error                          { return nil }
