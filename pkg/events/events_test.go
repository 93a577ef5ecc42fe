package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	pub := NewBusPublisher()
	defer pub.Close()

	sub, err := pub.Subscribe(context.Background(), TopicBuild)
	if err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}
	defer sub.Close()

	if err := pub.Publish(TopicBuild, "recorded", map[string]int{"duration": 42}); err != nil {
		t.Fatalf("Publish() = %v", err)
	}

	select {
	case event := <-sub.Events():
		if event.Topic != TopicBuild || event.Type != "recorded" {
			t.Errorf("event = %s/%s, want %s/recorded", event.Topic, event.Type, TopicBuild)
		}
		var data map[string]int
		if err := json.Unmarshal(event.Data, &data); err != nil {
			t.Fatalf("decoding event data: %v", err)
		}
		if data["duration"] != 42 {
			t.Errorf("data = %v, want duration 42", data)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPublishIsolatesTopics(t *testing.T) {
	pub := NewBusPublisher()
	defer pub.Close()

	buildSub, err := pub.Subscribe(context.Background(), TopicBuild)
	if err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}
	defer buildSub.Close()

	if err := pub.Publish(TopicCache, "evicted", nil); err != nil {
		t.Fatalf("Publish() = %v", err)
	}

	select {
	case event := <-buildSub.Events():
		t.Errorf("build subscriber got %s/%s from another topic", event.Topic, event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestVersionsIncreasePerTopic(t *testing.T) {
	pub := NewBusPublisher()
	defer pub.Close()

	sub, err := pub.Subscribe(context.Background(), TopicModel)
	if err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}
	defer sub.Close()

	for i := 0; i < 3; i++ {
		if err := pub.Publish(TopicModel, "retrained", i); err != nil {
			t.Fatalf("Publish(%d) = %v", i, err)
		}
	}

	for want := 1; want <= 3; want++ {
		event := <-sub.Events()
		if event.Version != want {
			t.Errorf("Version = %d, want %d", event.Version, want)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	pub := NewBusPublisher()
	defer pub.Close()

	sub, err := pub.Subscribe(context.Background(), TopicAnalysis)
	if err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}
	defer sub.Close()

	// Nobody drains the subscription; publishing well past the buffer
	// size must still return promptly
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			_ = pub.Publish(TopicAnalysis, "started", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestContextCancelClosesSubscription(t *testing.T) {
	pub := NewBusPublisher()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := pub.Subscribe(ctx, TopicBuild)
	if err != nil {
		t.Fatalf("Subscribe() = %v", err)
	}

	cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("expected closed channel after context cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	pub := NewBusPublisher()
	pub.Close()

	if err := pub.Publish(TopicBuild, "recorded", nil); err == nil {
		t.Error("Publish() after Close() = nil, want error")
	}
	if _, err := pub.Subscribe(context.Background(), TopicBuild); err == nil {
		t.Error("Subscribe() after Close() = nil, want error")
	}
}
