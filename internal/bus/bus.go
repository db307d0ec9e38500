package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/metrics"
)

// ErrSubscriberDead is returned by a Subscriber whose transport can no
// longer accept events. It is an expected condition, not a failure of the
// broadcast itself.
var ErrSubscriberDead = errors.New("subscriber dead")

// ErrUnknownTopic is returned by Publish for a topic outside the registry.
var ErrUnknownTopic = errors.New("unknown topic")

// Subscriber is one live delivery target, typically a WebSocket session.
// Send must not block: it either accepts the payload or reports the
// subscriber dead. The bus calls Send from whichever goroutine publishes,
// so implementations must be safe for concurrent use.
type Subscriber interface {
	Send(payload []byte) error
}

// envelope is the wire form of every broadcast frame.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Bus is the subscription table. Safe for concurrent use; every
// subscribe, unsubscribe and prune is a single critical section, so no
// reader observes a half-updated table.
type Bus struct {
	rec *metrics.Recorder

	mu     sync.RWMutex
	topics map[string]map[Subscriber]struct{}
}

// New creates a Bus whose registry holds exactly the given topics.
// Duplicates collapse. The registry never changes afterwards.
func New(topics []string, rec *metrics.Recorder) *Bus {
	b := &Bus{
		rec:    rec,
		topics: make(map[string]map[Subscriber]struct{}, len(topics)),
	}
	for _, t := range topics {
		if _, ok := b.topics[t]; !ok {
			b.topics[t] = make(map[Subscriber]struct{})
		}
	}
	return b
}

// Valid reports whether topic is in the registry.
func (b *Bus) Valid(topic string) bool {
	_, ok := b.topics[topic]
	return ok
}

// Topics returns the registry as a sorted list.
func (b *Bus) Topics() []string {
	out := make([]string, 0, len(b.topics))
	for t := range b.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Counts returns the current subscriber count per topic.
func (b *Bus) Counts() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int, len(b.topics))
	for t, set := range b.topics {
		out[t] = len(set)
	}
	return out
}

// Subscribe adds sub to topic's set. Returns false without mutating
// anything if topic is not registered, so a partially-valid subscribe
// list can skip bad names instead of failing whole.
func (b *Bus) Subscribe(topic string, sub Subscriber) bool {
	set, ok := b.topics[topic]
	if !ok {
		return false
	}
	b.mu.Lock()
	set[sub] = struct{}{}
	b.mu.Unlock()
	return true
}

// Unsubscribe removes sub from topic's set. Removing a non-member or an
// unknown topic is a no-op.
func (b *Bus) Unsubscribe(topic string, sub Subscriber) {
	set, ok := b.topics[topic]
	if !ok {
		return
	}
	b.mu.Lock()
	delete(set, sub)
	b.mu.Unlock()
}

// Resubscribe replaces sub's entire membership in one critical section:
// sub is removed from every topic it held, then added to each registered
// topic in the new list. Unregistered names are skipped. Returns the
// sorted list of topics actually applied.
func (b *Bus) Resubscribe(topics []string, sub Subscriber) []string {
	b.mu.Lock()
	for _, set := range b.topics {
		delete(set, sub)
	}
	applied := make([]string, 0, len(topics))
	for _, t := range topics {
		set, ok := b.topics[t]
		if !ok {
			continue
		}
		if _, member := set[sub]; member {
			continue
		}
		set[sub] = struct{}{}
		applied = append(applied, t)
	}
	b.mu.Unlock()

	sort.Strings(applied)
	return applied
}

// UnsubscribeAll removes sub from every topic's set.
func (b *Bus) UnsubscribeAll(sub Subscriber) {
	b.mu.Lock()
	for _, set := range b.topics {
		delete(set, sub)
	}
	b.mu.Unlock()
}

// Publish broadcasts {"type": topic, "data": data} to every current
// subscriber of topic and returns how many sends succeeded.
//
// The count is best-effort: subscribers at snapshot time minus those whose
// Send failed. A subscriber can still die the instant after being counted.
// Dead subscribers are removed from all topics, not just this one.
func (b *Bus) Publish(topic string, data any) (int, error) {
	if !b.Valid(topic) {
		b.rec.PublishRejected()
		return 0, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}

	payload, err := json.Marshal(envelope{Type: topic, Data: data})
	if err != nil {
		return 0, fmt.Errorf("bus: marshal event for %q: %w", topic, err)
	}

	b.mu.RLock()
	targets := make([]Subscriber, 0, len(b.topics[topic]))
	for sub := range b.topics[topic] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	var dead []Subscriber
	for _, sub := range targets {
		if err := sub.Send(payload); err != nil {
			dead = append(dead, sub)
		}
	}

	if len(dead) > 0 {
		b.mu.Lock()
		for _, sub := range dead {
			for _, set := range b.topics {
				delete(set, sub)
			}
		}
		b.mu.Unlock()
		slog.Debug("bus: pruned dead subscribers",
			"topic", topic, "pruned", len(dead))
	}

	delivered := len(targets) - len(dead)
	b.rec.Broadcast(delivered, len(dead))
	return delivered, nil
}
