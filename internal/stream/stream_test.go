package stream

import (
	"sync"
	"testing"
)

func TestPublishFansOut(t *testing.T) {
	h := New[string]()
	a, unsubA := h.Subscribe(1)
	b, unsubB := h.Subscribe(1)
	defer unsubA()
	defer unsubB()

	if n := h.Publish("hello"); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if got := <-a; got != "hello" {
		t.Fatalf("unexpected value on a: %q", got)
	}
	if got := <-b; got != "hello" {
		t.Fatalf("unexpected value on b: %q", got)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := New[int]()
	_, unsub := h.Subscribe(1)
	defer unsub()

	h.Publish(1)
	if n := h.Publish(2); n != 0 {
		t.Fatalf("expected full buffer to drop, got %d deliveries", n)
	}
	if _, dropped := h.Stats(); dropped != 1 {
		t.Fatalf("expected 1 drop, got %d", dropped)
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	h := New[int]()
	ch, unsub := h.Subscribe(0)
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if subs, _ := h.Stats(); subs != 0 {
		t.Fatalf("expected no subscribers, got %d", subs)
	}
	if n := h.Publish(1); n != 0 {
		t.Fatalf("published to removed subscriber")
	}
}

func TestCloseEndsAllSubscriptions(t *testing.T) {
	h := New[int]()
	ch, unsub := h.Subscribe(4)
	h.Close()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after Close")
	}
	late, _ := h.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatal("expected closed channel for late subscriber")
	}
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	h := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, unsub := h.Subscribe(8)
			h.Publish(1)
			unsub()
			for range ch {
			}
		}()
	}
	wg.Wait()
	if subs, _ := h.Stats(); subs != 0 {
		t.Fatalf("leaked subscribers: %d", subs)
	}
}
