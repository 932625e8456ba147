package bus_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trackside/telemetry-core/bus"
	"github.com/trackside/telemetry-core/config"
)

type widget struct{ N int }

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	cfg := config.BusConfig{QueueCapacity: 8, Workers: 2, StopGrace: time.Second}
	b := bus.New(cfg, nil, nil)
	b.Start()
	t.Cleanup(func() { b.Stop(context.Background()) })
	return b
}

func TestPublishSubscribeDelivers(t *testing.T) {
	b := newTestBus(t)
	et := bus.NewEventType[widget]("widget.test.delivers")

	received := make(chan widget, 1)
	_, err := bus.Subscribe(b, et, func(hc bus.HandlerContext[widget]) error {
		received <- hc.Event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(b, et, widget{N: 7}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case w := <-received:
		if w.N != 7 {
			t.Fatalf("got %d, want 7", w.N)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestPerSubscriberOrderPreserved(t *testing.T) {
	b := newTestBus(t)
	et := bus.NewEventType[widget]("widget.test.order")

	var mu sync.Mutex
	var seen []int
	done := make(chan struct{})
	const total = 50
	_, err := bus.Subscribe(b, et, func(hc bus.HandlerContext[widget]) error {
		mu.Lock()
		seen = append(seen, hc.Event.N)
		n := len(seen)
		mu.Unlock()
		if n == total {
			close(done)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < total; i++ {
		if err := bus.PublishBlocking(context.Background(), b, et, widget{N: i}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, n := range seen {
		if n != i {
			t.Fatalf("out of order delivery at index %d: got %d", i, n)
		}
	}
}

func TestSubscribeIsIdempotentForSameHandler(t *testing.T) {
	b := newTestBus(t)
	et := bus.NewEventType[widget]("widget.test.idempotent")

	var calls atomic.Int32
	h := func(hc bus.HandlerContext[widget]) error {
		calls.Add(1)
		return nil
	}
	sub1, err := bus.Subscribe(b, et, h)
	if err != nil {
		t.Fatalf("subscribe 1: %v", err)
	}
	sub2, err := bus.Subscribe(b, et, h)
	if err != nil {
		t.Fatalf("subscribe 2: %v", err)
	}
	if sub1.ID() != sub2.ID() {
		t.Fatalf("expected same subscription id, got %d and %d", sub1.ID(), sub2.ID())
	}

	if err := bus.PublishBlocking(context.Background(), b, et, widget{N: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("handler invoked %d times, want 1", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t)
	et := bus.NewEventType[widget]("widget.test.unsubscribe")

	var calls atomic.Int32
	sub, err := bus.Subscribe(b, et, func(hc bus.HandlerContext[widget]) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := bus.PublishBlocking(context.Background(), b, et, widget{N: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("handler invoked %d times after unsubscribe, want 0", got)
	}
}

func TestNonBlockingPublishFailsFastWhenQueueFull(t *testing.T) {
	cfg := config.BusConfig{QueueCapacity: 2, Workers: 1, StopGrace: time.Second}
	b := bus.New(cfg, nil, nil)
	defer b.Stop(context.Background())
	// Deliberately never Start(): nothing drains the main queue, so once
	// it fills, the next non-blocking publish must fail fast.
	et := bus.NewEventType[widget]("widget.test.backpressure")

	for i := 0; i < cfg.QueueCapacity; i++ {
		if err := bus.Publish(b, et, widget{N: i}); err != nil {
			t.Fatalf("publish %d should have fit in the queue: %v", i, err)
		}
	}
	if err := bus.Publish(b, et, widget{N: 99}); err == nil {
		t.Fatal("expected ErrBackpressureFull once the queue is full")
	}
}

func TestPublishAfterStopFailsFast(t *testing.T) {
	cfg := config.BusConfig{QueueCapacity: 4, Workers: 1, StopGrace: time.Second}
	b := bus.New(cfg, nil, nil)
	b.Start()
	et := bus.NewEventType[widget]("widget.test.afterstop")

	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := bus.Publish(b, et, widget{N: 1}); err == nil {
		t.Fatal("expected publish after stop to fail")
	}
}
