package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "codeberg.org/mutker/thermotrend/internal/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() Report {
	return Report{
		RunID:       NewRunID(),
		Host:        "pi",
		Timestamp:   time.Date(2024, 10, 4, 12, 0, 0, 0, time.UTC),
		Temperature: 70.4,
		Fitted:      70.3,
		Units:       "F",
		Strategy:    "spline",
		Points:      1800,
		Slope:       1.15,
		Channel:     "positive",
		Intensity:   0.5,
	}
}

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeMQTT struct {
	topic        string
	qos          byte
	retained     bool
	payload      []byte
	token        *fakeToken
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic, c.qos, c.retained = topic, qos, retained
	c.payload = payload.([]byte)
	return c.token
}

func (c *fakeMQTT) Disconnect(uint) { c.disconnected = true }

func TestNewRunID(t *testing.T) {
	_, err := uuid.Parse(NewRunID())
	assert.NoError(t, err)
	assert.NotEqual(t, NewRunID(), NewRunID())
}

func TestMQTTPublish(t *testing.T) {
	client := &fakeMQTT{token: &fakeToken{complete: true}}
	m := &MQTT{client: client, topic: "thermotrend/trend"}

	r := sampleReport()
	require.NoError(t, m.Publish(context.Background(), r))
	assert.Equal(t, "thermotrend/trend", client.topic)
	assert.True(t, client.retained)

	var got Report
	require.NoError(t, json.Unmarshal(client.payload, &got))
	assert.Equal(t, r.RunID, got.RunID)
	assert.InDelta(t, 1.15, got.Slope, 1e-12)

	require.NoError(t, m.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTPublishFailures(t *testing.T) {
	m := &MQTT{client: &fakeMQTT{token: &fakeToken{complete: false}}, topic: "t"}
	err := m.Publish(context.Background(), sampleReport())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrTimeout))

	m = &MQTT{client: &fakeMQTT{token: &fakeToken{complete: true, err: errors.New("not connected")}}, topic: "t"}
	err = m.Publish(context.Background(), sampleReport())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrPublish))
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (*fakeWriter) Close() error { return nil }

func TestKafkaPublish(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w}

	r := sampleReport()
	require.NoError(t, k.Publish(context.Background(), r))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte(r.RunID), w.msgs[0].Key)
	assert.True(t, w.msgs[0].Time.Equal(r.Timestamp))
}

func TestMultiPublishesToAll(t *testing.T) {
	failing := &fakeWriter{err: errors.New("broker down")}
	ok := &fakeWriter{}
	m := Multi{&Kafka{writer: failing}, &Kafka{writer: ok}}

	err := m.Publish(context.Background(), sampleReport())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrPublish))
	assert.Len(t, ok.msgs, 1, "a failing publisher must not starve the others")
	assert.NoError(t, m.Close())
}

// stalledWriter blocks until the caller gives up, like a writer whose
// broker stopped acknowledging.
type stalledWriter struct{}

func (stalledWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledWriter) Close() error { return nil }

func TestKafkaPublishTimesOut(t *testing.T) {
	k := &Kafka{writer: stalledWriter{}, timeout: 20 * time.Millisecond}

	done := make(chan error, 1)
	go func() { done <- k.Publish(context.Background(), sampleReport()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrPublish))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("publish did not give up on a stalled broker")
	}
}

func TestNewKafkaBoundsPublish(t *testing.T) {
	k := NewKafka([]string{"localhost:9092"}, "thermotrend")
	assert.Equal(t, kafkaPublishTimeout, k.timeout)
	assert.NoError(t, k.Close())
}
