// Package bus carries intents in and states out over a publish/subscribe
// transport.
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/loykin/launchr/internal/orchestrator"
)

const (
	DefaultIntentTopic = "robot/intent"
	DefaultStateTopic  = "robot/state"
)

// Handler receives one inbound message. It must not block for long.
type Handler func(topic string, payload []byte)

// Transport is the minimal pub/sub surface the orchestrator needs.
type Transport interface {
	Subscribe(topic string, h Handler) error
	Publish(topic string, payload []byte, retained bool) error
}

// SubscribeIntents forwards every payload on topic to deliver.
func SubscribeIntents(t Transport, topic string, deliver func([]byte) bool) error {
	if err := t.Subscribe(topic, func(_ string, payload []byte) {
		deliver(payload)
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// StatePublisher writes orchestrator states to a topic as retained JSON.
type StatePublisher struct {
	t     Transport
	topic string
}

func NewStatePublisher(t Transport, topic string) *StatePublisher {
	if topic == "" {
		topic = DefaultStateTopic
	}
	return &StatePublisher{t: t, topic: topic}
}

func (p *StatePublisher) Publish(s orchestrator.State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return p.t.Publish(p.topic, b, true)
}
