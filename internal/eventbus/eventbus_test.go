package eventbus

import (
	"testing"
	"time"
)

func TestBus_PublishFanOut(t *testing.T) {
	b := New[int](4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Unsubscribe()
	defer s2.Unsubscribe()

	b.Publish(42)

	select {
	case v := <-s1.C():
		if v != 42 {
			t.Fatalf("s1: expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("s1: timed out")
	}

	select {
	case v := <-s2.C():
		if v != 42 {
			t.Fatalf("s2: expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("s2: timed out")
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New[string](1)
	s := b.Subscribe()
	s.Unsubscribe()

	b.Publish("hello") // must not panic even though the channel is closed

	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestBus_FullSubscriberDoesNotBlockPublisher(t *testing.T) {
	b := New[int](1)
	s := b.Subscribe()
	defer s.Unsubscribe()

	done := make(chan struct{})
	go func() {
		b.Publish(1)
		b.Publish(2) // s's buffer (cap 1) is already full; must not block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}
