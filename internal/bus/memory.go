package bus

import "sync"

// Memory is an in-process Transport. Publish delivers synchronously and
// retained payloads are replayed to late subscribers, as a broker would.
type Memory struct {
	mu       sync.Mutex
	subs     map[string][]Handler
	retained map[string][]byte
	log      map[string][][]byte
}

func NewMemory() *Memory {
	return &Memory{
		subs:     make(map[string][]Handler),
		retained: make(map[string][]byte),
		log:      make(map[string][][]byte),
	}
}

func (m *Memory) Subscribe(topic string, h Handler) error {
	m.mu.Lock()
	m.subs[topic] = append(m.subs[topic], h)
	last, ok := m.retained[topic]
	m.mu.Unlock()
	if ok {
		h(topic, last)
	}
	return nil
}

func (m *Memory) Publish(topic string, payload []byte, retained bool) error {
	b := append([]byte(nil), payload...)
	m.mu.Lock()
	if retained {
		m.retained[topic] = b
	}
	m.log[topic] = append(m.log[topic], b)
	hs := append([]Handler(nil), m.subs[topic]...)
	m.mu.Unlock()
	for _, h := range hs {
		h(topic, b)
	}
	return nil
}

// Messages returns every payload published on topic, oldest first.
func (m *Memory) Messages(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.log[topic]...)
}

// Retained returns the retained payload for topic, if any.
func (m *Memory) Retained(topic string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.retained[topic]
	return b, ok
}
