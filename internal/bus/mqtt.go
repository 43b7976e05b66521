package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTConfig addresses a broker.
type MQTTConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ClientID       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	// UniqueClientID appends a random suffix so short-lived tools do not
	// kick the long-running service off the broker.
	UniqueClientID bool
}

func (c MQTTConfig) broker() string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 1883
	}
	return "tcp://" + net.JoinHostPort(host, strconv.Itoa(port))
}

const qos = 1

// MQTT is a Transport backed by an MQTT broker. Subscriptions are replayed
// and OnConnect hooks run on every (re)connect.
type MQTT struct {
	client  paho.Client
	timeout time.Duration
	log     *slog.Logger

	mu        sync.Mutex
	subs      map[string]Handler
	onConnect []func()
}

func NewMQTT(cfg MQTTConfig, log *slog.Logger) *MQTT {
	if log == nil {
		log = slog.Default()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 10 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	id := cfg.ClientID
	if id == "" {
		id = "launchr"
	}
	if cfg.UniqueClientID {
		id += "-" + uuid.NewString()[:8]
	}

	m := &MQTT{
		timeout: cfg.ConnectTimeout,
		log:     log.With("component", "mqtt", "broker", cfg.broker(), "client_id", id),
		subs:    make(map[string]Handler),
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.broker()).
		SetClientID(id).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(m.handleConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			m.log.Warn("mqtt connection lost", "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	m.client = paho.NewClient(opts)
	return m
}

// OnConnect registers fn to run after every successful (re)connect.
func (m *MQTT) OnConnect(fn func()) {
	m.mu.Lock()
	m.onConnect = append(m.onConnect, fn)
	m.mu.Unlock()
}

// Connect blocks until the first connection succeeds or ctx is done. The
// client keeps retrying in the background either way.
func (m *MQTT) Connect(ctx context.Context) error {
	tok := m.client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MQTT) handleConnect(c paho.Client) {
	m.log.Info("connected to mqtt")
	m.mu.Lock()
	subs := make(map[string]Handler, len(m.subs))
	for t, h := range m.subs {
		subs[t] = h
	}
	hooks := append([]func(){}, m.onConnect...)
	m.mu.Unlock()

	// callbacks must not block on tokens
	go func() {
		for topic, h := range subs {
			if err := m.wait(c.Subscribe(topic, qos, wrap(h))); err != nil {
				m.log.Error("resubscribe failed", "topic", topic, "error", err)
			}
		}
		for _, fn := range hooks {
			fn()
		}
	}()
}

func (m *MQTT) Subscribe(topic string, h Handler) error {
	m.mu.Lock()
	m.subs[topic] = h
	m.mu.Unlock()
	if !m.client.IsConnectionOpen() {
		// replayed by handleConnect
		return nil
	}
	return m.wait(m.client.Subscribe(topic, qos, wrap(h)))
}

func (m *MQTT) Publish(topic string, payload []byte, retained bool) error {
	if !m.client.IsConnectionOpen() {
		return errors.New("mqtt not connected")
	}
	return m.wait(m.client.Publish(topic, qos, retained, payload))
}

// Close disconnects, allowing in-flight work a short grace period.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
	m.log.Info("mqtt disconnected")
}

func (m *MQTT) wait(tok paho.Token) error {
	if !tok.WaitTimeout(m.timeout) {
		return errors.New("mqtt operation timed out")
	}
	return tok.Error()
}

func wrap(h Handler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	}
}
