package telephony

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CyCoreSystems/ari/v6"
)

type fakeSub struct {
	events    chan ari.Event
	cancelled int32
}

func (s *fakeSub) Events() <-chan ari.Event { return s.events }
func (s *fakeSub) Cancel()                  { atomic.StoreInt32(&s.cancelled, 1) }

type sinkFunc func(ctx context.Context, e Event)

func (f sinkFunc) HandleEvent(ctx context.Context, e Event) { f(ctx, e) }

func TestARIController_ResubscribesAfterSubscriptionLoss(t *testing.T) {
	first := &fakeSub{events: make(chan ari.Event)}
	second := &fakeSub{events: make(chan ari.Event, 1)}
	subs := make(chan *fakeSub, 2)
	subs <- first
	subs <- second

	c := NewARIController(nil, "agent", t.TempDir(), nil)
	c.subscribe = func() ari.Subscription { return <-subs }
	c.resubscribeDelay = 10 * time.Millisecond

	got := make(chan Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, sinkFunc(func(_ context.Context, e Event) { got <- e }))
	}()

	close(first.events)
	second.events <- &ari.StasisEnd{Channel: ari.ChannelData{ID: "chan-1"}}

	select {
	case e := <-got:
		if e.Type != EventEnded || e.CallID != "chan-1" {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event delivered after resubscribing")
	}
	if atomic.LoadInt32(&first.cancelled) != 1 {
		t.Fatalf("expected the lost subscription to be cancelled")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if atomic.LoadInt32(&second.cancelled) != 1 {
		t.Fatalf("expected the live subscription to be cancelled on shutdown")
	}
}

func TestARIController_StopsDuringResubscribeDelay(t *testing.T) {
	sub := &fakeSub{events: make(chan ari.Event)}
	close(sub.events)

	c := NewARIController(nil, "agent", t.TempDir(), nil)
	var subscribed int32
	c.subscribe = func() ari.Subscription {
		atomic.AddInt32(&subscribed, 1)
		return sub
	}
	c.resubscribeDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&subscribed) < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run kept waiting after cancel")
	}
	if n := atomic.LoadInt32(&subscribed); n != 1 {
		t.Fatalf("expected a single subscription, got %d", n)
	}
}
