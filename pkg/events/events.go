package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Well-known topics published by the intelligence layer
const (
	TopicAnalysis = "analysis" // rebuild-necessity analysis lifecycle
	TopicBuild    = "build"    // recorded build completions
	TopicModel    = "model"    // prediction model retraining
	TopicCache    = "cache"    // cache maintenance and eviction
)

// Event is one published notification
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"` // e.g., "started", "completed", "retrained", "evicted"
	Data    json.RawMessage `json:"data"`
	Version int             `json:"version"` // per-topic ordering counter
}

// Subscription receives events for a single topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher fans events out to topic subscribers
type Publisher interface {
	// Subscribe creates a new subscription to a topic.
	// Context cancellation closes the subscription.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// BusPublisher is an in-process Publisher backed by buffered channels.
// Publishing never blocks: events to a slow subscriber are dropped rather
// than stalling the analysis path.
type BusPublisher struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*busSubscription]bool
	version       map[string]int
	closed        bool
}

// NewBusPublisher creates an in-process publisher
func NewBusPublisher() *BusPublisher {
	return &BusPublisher{
		subscriptions: make(map[string]map[*busSubscription]bool),
		version:       make(map[string]int),
	}
}

// Subscribe creates a new subscription to a topic
func (p *BusPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("publisher is closed")
	}

	sub := &busSubscription{
		topic:     topic,
		events:    make(chan Event, 64),
		publisher: p,
	}

	if p.subscriptions[topic] == nil {
		p.subscriptions[topic] = make(map[*busSubscription]bool)
	}
	p.subscriptions[topic][sub] = true

	if ctx != nil {
		go func() {
			<-ctx.Done()
			_ = sub.Close()
		}()
	}

	return sub, nil
}

// Publish sends an event to all subscribers of a topic
func (p *BusPublisher) Publish(topic string, eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}

	p.version[topic]++
	event := Event{
		Topic:   topic,
		Type:    eventType,
		Data:    payload,
		Version: p.version[topic],
	}

	for sub := range p.subscriptions[topic] {
		select {
		case sub.events <- event:
		default:
			// Slow subscriber: drop rather than block the publisher
		}
	}
	return nil
}

// Close shuts down the publisher and all subscriptions
func (p *BusPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, subs := range p.subscriptions {
		for sub := range subs {
			close(sub.events)
		}
	}
	p.subscriptions = make(map[string]map[*busSubscription]bool)
	return nil
}

type busSubscription struct {
	topic     string
	events    chan Event
	publisher *BusPublisher
	closeOnce sync.Once
}

func (s *busSubscription) Topic() string { return s.topic }

func (s *busSubscription) Events() <-chan Event { return s.events }

func (s *busSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.publisher.mu.Lock()
		defer s.publisher.mu.Unlock()

		if subs, ok := s.publisher.subscriptions[s.topic]; ok && subs[s] {
			delete(subs, s)
			close(s.events)
		}
	})
	return nil
}
