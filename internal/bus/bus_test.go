package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/loykin/launchr/internal/logger"
	"github.com/loykin/launchr/internal/orchestrator"
)

func TestMemoryDeliversAndReplaysRetained(t *testing.T) {
	m := NewMemory()
	var got []string
	require.NoError(t, m.Subscribe("t", func(topic string, p []byte) { got = append(got, topic+":"+string(p)) }))

	require.NoError(t, m.Publish("t", []byte("one"), false))
	require.NoError(t, m.Publish("t", []byte("two"), true))
	require.NoError(t, m.Publish("other", []byte("x"), false))
	assert.Equal(t, []string{"t:one", "t:two"}, got)

	var late []string
	require.NoError(t, m.Subscribe("t", func(_ string, p []byte) { late = append(late, string(p)) }))
	assert.Equal(t, []string{"two"}, late, "retained payload is replayed on subscribe")

	r, ok := m.Retained("t")
	require.True(t, ok)
	assert.Equal(t, "two", string(r))
	assert.Len(t, m.Messages("t"), 2)
}

func TestStatePublisherShape(t *testing.T) {
	m := NewMemory()
	p := NewStatePublisher(m, "")
	id := "pong"
	require.NoError(t, p.Publish(orchestrator.State{Mode: orchestrator.ModeRunning, GameID: &id, TS: 1700000000.25}))
	require.NoError(t, p.Publish(orchestrator.State{Mode: orchestrator.ModeIdle, Detail: "game pong crashed (code=137)", TS: 1700000001}))

	msgs := m.Messages(DefaultStateTopic)
	require.Len(t, msgs, 2)

	first := gjson.ParseBytes(msgs[0])
	assert.Equal(t, "RUNNING", first.Get("mode").String())
	assert.Equal(t, "pong", first.Get("game_id").String())
	assert.Equal(t, "", first.Get("detail").String())
	assert.True(t, first.Get("detail").Exists())
	assert.InDelta(t, 1700000000.25, first.Get("ts").Float(), 1e-9)

	second := gjson.ParseBytes(msgs[1])
	assert.Equal(t, gjson.Null, second.Get("game_id").Type)
	assert.Contains(t, second.Get("detail").String(), "137")

	retained, ok := m.Retained(DefaultStateTopic)
	require.True(t, ok)
	assert.Equal(t, msgs[1], retained)
}

type failingTransport struct{}

func (failingTransport) Subscribe(string, Handler) error    { return errors.New("refused") }
func (failingTransport) Publish(string, []byte, bool) error { return errors.New("refused") }

func TestSubscribeIntents(t *testing.T) {
	m := NewMemory()
	var got [][]byte
	require.NoError(t, SubscribeIntents(m, DefaultIntentTopic, func(p []byte) bool {
		got = append(got, p)
		return true
	}))
	require.NoError(t, m.Publish(DefaultIntentTopic, []byte(`{"type":"QUIT"}`), false))
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"type":"QUIT"}`, string(got[0]))

	err := SubscribeIntents(failingTransport{}, "x", func([]byte) bool { return true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe x")
}

func TestMQTTBrokerAddress(t *testing.T) {
	assert.Equal(t, "tcp://127.0.0.1:1883", MQTTConfig{}.broker())
	assert.Equal(t, "tcp://broker.local:8883", MQTTConfig{Host: "broker.local", Port: 8883}.broker())
	assert.Equal(t, "tcp://[::1]:1883", MQTTConfig{Host: "::1"}.broker())
}

func TestMQTTWithoutBroker(t *testing.T) {
	m := NewMQTT(MQTTConfig{Host: "127.0.0.1", Port: 1, ConnectTimeout: 100 * time.Millisecond, UniqueClientID: true}, logger.Discard())
	t.Cleanup(m.Close)

	assert.Error(t, m.Publish("robot/state", []byte(`{}`), true))
	assert.NoError(t, m.Subscribe("robot/intent", func(string, []byte) {}), "subscriptions wait for the connection")

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.Error(t, m.Connect(ctx))
}
