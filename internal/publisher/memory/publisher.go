// Package memory implements the summarization handoff against process
// memory, for development runs without a broker and for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message is one recorded publish.
type Message struct {
	Topic   string
	Payload any
}

// Publisher accumulates published messages instead of sending them anywhere.
// Construct with New.
type Publisher struct {
	mu   sync.RWMutex
	seq  int
	msgs map[string][]Message
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{msgs: make(map[string][]Message)}
}

// Publish records the payload under topic and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.msgs[topic] = append(p.msgs[topic], Message{Topic: topic, Payload: payload})
	return fmt.Sprintf("mem-%d", p.seq), nil
}

// Messages returns copies of everything published to topic, oldest first.
func (p *Publisher) Messages(topic string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.msgs[topic]))
	copy(out, p.msgs[topic])
	return out
}

// Len reports the total number of recorded messages across all topics.
func (p *Publisher) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, m := range p.msgs {
		n += len(m)
	}
	return n
}
