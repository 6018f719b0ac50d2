package publish

import (
	"context"
	"time"

	"codeberg.org/mutker/thermotrend/internal/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttQoS            = 1
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttQuiesceMillis  = 250
)

// mqttClient is the subset of mqtt.Client used for publishing.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTT struct {
	client mqttClient
	topic  string
}

// NewMQTT connects to broker (e.g. "tcp://localhost:1883").
func NewMQTT(broker, topic, clientID string) (*MQTT, error) {
	errFactory := errors.New()

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)
	c := mqtt.NewClient(opts)

	token := c.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, errFactory.WithData(errors.ErrTimeout, struct{ Broker string }{Broker: broker})
	}
	if err := token.Error(); err != nil {
		return nil, errFactory.Wrap(errors.ErrPublish, err)
	}

	return &MQTT{client: c, topic: topic}, nil
}

// Publish sends r as a retained message so new subscribers see the latest
// trend immediately.
func (m *MQTT) Publish(ctx context.Context, r Report) error {
	errFactory := errors.New()

	payload, err := encode(r)
	if err != nil {
		return err
	}

	timeout := mqttPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	token := m.client.Publish(m.topic, mqttQoS, true, payload)
	if !token.WaitTimeout(timeout) {
		return errFactory.WithData(errors.ErrTimeout, struct{ Topic string }{Topic: m.topic})
	}
	if err := token.Error(); err != nil {
		return errFactory.Wrap(errors.ErrPublish, err)
	}

	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(mqttQuiesceMillis)
	return nil
}
