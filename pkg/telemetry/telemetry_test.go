package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/golongboard/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	connected bool
	sent      []string
	err       error
}

func (l *fakeLink) LinkConnected() bool { return l.connected }

func (l *fakeLink) SendTelemetry(text string) error {
	l.sent = append(l.sent, text)
	return l.err
}

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type fakeMessage struct{ payload []byte }

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "" }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeClient struct {
	mu           sync.Mutex
	published    map[string][][]byte
	handlers     map[string]mqtt.MessageHandler
	disconnected bool
	err          error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		published: make(map[string][][]byte),
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[topic] = append(c.published[topic], payload.([]byte))
	return doneToken{err: c.err}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
	return doneToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func (c *fakeClient) deliver(topic string, payload []byte) {
	c.handlers[topic](nil, fakeMessage{payload: payload})
}

func sampleRecord() Record {
	return Record{
		Timestamp:      time.Unix(1700000000, 0).UTC(),
		Speed:          2.5,
		SpeedKMH:       9,
		BatteryVoltage: 7.41,
		BatteryPercent: 50.5,
		Duty:           40,
		Intent:         "accelerate",
		Safety:         "normal",
		Connected:      true,
	}
}

func TestRecord_Text(t *testing.T) {
	assert.Equal(t, "Bat: 7.41 V | Vel: 9.00 km/h", sampleRecord().Text())
}

func TestLinkSink(t *testing.T) {
	link := &fakeLink{connected: false}
	sink := NewLinkSink(link)

	require.NoError(t, sink.Send(sampleRecord()))
	assert.Empty(t, link.sent, "nothing is sent while disconnected")

	link.connected = true
	require.NoError(t, sink.Send(sampleRecord()))
	assert.Equal(t, []string{"Bat: 7.41 V | Vel: 9.00 km/h"}, link.sent)

	link.err = errors.New("tx full")
	assert.Error(t, sink.Send(sampleRecord()))
}

type countingSink struct {
	mu  sync.Mutex
	n   int
	err error
}

func (s *countingSink) Send(Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.err
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func TestReporter_FansOutAndSurvivesErrors(t *testing.T) {
	bad := &countingSink{err: errors.New("boom")}
	good := &countingSink{}
	r := NewReporter(sampleRecord, bad, good)

	rec := r.Report()
	assert.Equal(t, sampleRecord(), rec)
	assert.Equal(t, 1, bad.count())
	assert.Equal(t, 1, good.count())
}

func TestReporter_Run(t *testing.T) {
	sink := &countingSink{}
	r := NewReporter(sampleRecord, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, 5*time.Millisecond)
	}()

	assert.Eventually(t, func() bool { return sink.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMQTT_Send(t *testing.T) {
	c := newFakeClient()
	m := newMQTT(c, config.Default().Telemetry.MQTT)

	require.NoError(t, m.Send(sampleRecord()))

	msgs := c.published["longboard/telemetry"]
	require.Len(t, msgs, 1)

	var got Record
	require.NoError(t, json.Unmarshal(msgs[0], &got))
	assert.Equal(t, sampleRecord(), got)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msgs[0], &raw))
	assert.Contains(t, raw, "speed_kmh")
	assert.Contains(t, raw, "battery_pct")

	c.err = errors.New("not connected")
	assert.Error(t, m.Send(sampleRecord()))
}

func TestMQTT_SubscribeCommands(t *testing.T) {
	c := newFakeClient()
	m := newMQTT(c, config.Default().Telemetry.MQTT)

	var got []byte
	require.NoError(t, m.SubscribeCommands(func(b byte) { got = append(got, b) }))

	c.deliver("longboard/command", []byte("A"))
	c.deliver("longboard/command", nil)
	c.deliver("longboard/command", []byte("Fxyz"))
	assert.Equal(t, []byte{'A', 'F'}, got)

	m.Close()
	assert.True(t, c.disconnected)
}
