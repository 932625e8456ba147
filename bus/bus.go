// Package bus is a typed publish/subscribe event bus. A single dispatcher
// goroutine pulls events off a bounded queue and fans each one out to every
// subscriber registered for its type; each subscriber owns a bounded inbox
// and a dedicated consumer goroutine so handler invocations for that
// subscriber are strictly ordered, while different subscribers run
// concurrently up to a fixed worker budget.
package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trackside/telemetry-core/config"
	"github.com/trackside/telemetry-core/models"
	"github.com/trackside/telemetry-core/telemetry/logging"
	"github.com/trackside/telemetry-core/telemetry/metrics"
)

// EventType identifies a payload type T on the bus. Construct with
// NewEventType; the zero value is not usable.
type EventType[T any] struct {
	id   uint32
	name string
}

// Name returns the event type's human-readable name.
func (t EventType[T]) Name() string { return t.name }

var typeCounter uint32

// NewEventType allocates a fresh EventType for payload T. Call once per
// logical event kind, typically at package init, and share the result.
func NewEventType[T any](name string) EventType[T] {
	id := atomic.AddUint32(&typeCounter, 1)
	return EventType[T]{id: id, name: name}
}

// Event is the envelope a subscriber's handler receives.
type Event[T any] struct {
	Type       EventType[T]
	Payload    T
	EnqueuedAt time.Time
}

// HandlerContext carries the delivered payload plus a context and a bus
// back-reference, so a handler can itself publish without the bus needing
// to hold a reference to the handler's owner.
type HandlerContext[T any] struct {
	Event      T
	EnqueuedAt time.Time
	Ctx        context.Context
	Bus        *Bus
}

// Handler processes one delivered event. A returned error is logged and
// counted; it never stops the dispatcher or the subscriber's own inbox.
type Handler[T any] func(HandlerContext[T]) error

// Subscription is returned by Subscribe and can be used to stop delivery.
type Subscription interface {
	ID() uint64
	EventTypeName() string
	Close() error
}

type envelope struct {
	typeID     uint32
	payload    any
	enqueuedAt time.Time
}

type subscriberEntry struct {
	bus        *Bus
	id         uint64
	typeID     uint32
	typeName   string
	handlerKey uintptr
	invoke     func(ctx context.Context, env envelope) error
	inbox      chan envelope
	done       chan struct{}
	active     atomic.Bool
	dropped    atomic.Uint64
}

func (s *subscriberEntry) ID() uint64            { return s.id }
func (s *subscriberEntry) EventTypeName() string { return s.typeName }
func (s *subscriberEntry) Close() error          { return unsubscribe(s.bus, s) }

type subscribeKey struct {
	typeID     uint32
	handlerPtr uintptr
}

// Bus is the shared dispatch backbone. Every component that produces or
// consumes domain events (frames, laps, metrics, producer lifecycle) plugs
// into exactly one Bus instance.
type Bus struct {
	cfg    config.BusConfig
	logger logging.Logger
	metric busMetrics

	started atomic.Bool
	stopped atomic.Bool

	subMu      sync.RWMutex
	subsByType map[uint32][]*subscriberEntry
	byKey      map[subscribeKey]*subscriberEntry
	nextSubID  atomic.Uint64

	mainQueue chan envelope
	sem       chan struct{}

	stopCtx    context.Context
	stopCancel context.CancelFunc
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

type busMetrics struct {
	published metrics.Counter
	dropped   metrics.Counter
	handlerErrs metrics.Counter
	queueDepth  metrics.Gauge
}

// New builds a Bus from cfg. The bus does not start dispatching until
// Start is called.
func New(cfg config.BusConfig, provider metrics.Provider, logger logging.Logger) *Bus {
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	if logger == nil {
		logger = logging.New(nil)
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	capacity := cfg.QueueCapacity
	if capacity < 1 {
		capacity = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		cfg:        cfg,
		logger:     logger,
		subsByType: make(map[uint32][]*subscriberEntry),
		byKey:      make(map[subscribeKey]*subscriberEntry),
		mainQueue:  make(chan envelope, capacity),
		sem:        make(chan struct{}, workers),
		stopCtx:    ctx,
		stopCancel: cancel,
		metric: busMetrics{
			published: provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
				Namespace: "telemetry", Subsystem: "bus", Name: "published_total", Help: "events accepted onto the bus queue",
			}}),
			dropped: provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
				Namespace: "telemetry", Subsystem: "bus", Name: "dropped_total", Help: "events dropped for a full subscriber inbox", Labels: []string{"event_type"},
			}}),
			handlerErrs: provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
				Namespace: "telemetry", Subsystem: "bus", Name: "handler_errors_total", Help: "handler invocations that returned an error", Labels: []string{"event_type"},
			}}),
			queueDepth: provider.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{
				Namespace: "telemetry", Subsystem: "bus", Name: "queue_depth", Help: "events currently buffered on the main queue",
			}}),
		},
	}
	return b
}

// Start launches the dispatcher goroutine. Idempotent. Publish and
// Subscribe both work before Start is called; events simply queue up (or,
// once the main queue is full, are rejected) until dispatching begins.
func (b *Bus) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	b.wg.Add(1)
	go b.dispatchLoop()
}

// Stop stops accepting new publishes and waits for in-flight handler
// invocations to finish, up to cfg.StopGrace or ctx's deadline, whichever
// is shorter. The dispatcher and subscriber loops exit as soon as Stop is
// called; events still buffered on the main queue or in subscriber inboxes
// at that point are not delivered.
func (b *Bus) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		b.stopCancel()
	})

	done := make(chan struct{})
	go func() { b.wg.Wait(); close(done) }()

	grace := b.cfg.StopGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	for {
		select {
		case env, ok := <-b.mainQueue:
			if !ok {
				return
			}
			b.metric.queueDepth.Set(float64(len(b.mainQueue)))
			b.fanOut(env)
		case <-b.stopCtx.Done():
			return
		}
	}
}

func (b *Bus) fanOut(env envelope) {
	b.subMu.RLock()
	subs := b.subsByType[env.typeID]
	snapshot := make([]*subscriberEntry, len(subs))
	copy(snapshot, subs)
	b.subMu.RUnlock()

	for _, s := range snapshot {
		if !s.active.Load() {
			continue
		}
		select {
		case s.inbox <- env:
		default:
			s.dropped.Add(1)
			b.metric.dropped.Inc(1, s.typeName)
			b.logger.WarnCtx(context.Background(), "bus: subscriber inbox full, event dropped",
				"event_type", s.typeName, "subscriber_id", s.id)
		}
	}
}

func (b *Bus) runSubscriber(s *subscriberEntry) {
	defer b.wg.Done()
	for {
		select {
		case env := <-s.inbox:
			b.invokeHandler(s, env)
		case <-s.done:
			return
		case <-b.stopCtx.Done():
			return
		}
	}
}

func (b *Bus) invokeHandler(s *subscriberEntry, env envelope) {
	b.sem <- struct{}{}
	defer func() { <-b.sem }()
	defer func() {
		if r := recover(); r != nil {
			b.metric.handlerErrs.Inc(1, s.typeName)
			b.logger.ErrorCtx(context.Background(), "bus: handler panicked",
				"event_type", s.typeName, "subscriber_id", s.id, "panic", r)
		}
	}()
	if err := s.invoke(b.stopCtx, env); err != nil {
		b.metric.handlerErrs.Inc(1, s.typeName)
		b.logger.ErrorCtx(context.Background(), "bus: handler returned error",
			"event_type", s.typeName, "subscriber_id", s.id, "error", err)
	}
}

// Subscribe registers h for events of type et. Subscribing the same
// function value for the same EventType twice is a no-op that returns the
// existing Subscription. Handlers are identified by their code pointer, so
// closures created from one function literal, or method values of one
// method on different receivers, also count as the same handler.
func Subscribe[T any](b *Bus, et EventType[T], h Handler[T]) (Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("bus: nil handler for %s", et.name)
	}
	key := subscribeKey{typeID: et.id, handlerPtr: reflect.ValueOf(h).Pointer()}

	b.subMu.Lock()
	if existing, ok := b.byKey[key]; ok {
		b.subMu.Unlock()
		return existing, nil
	}
	se := &subscriberEntry{
		bus:        b,
		id:         b.nextSubID.Add(1),
		typeID:     et.id,
		typeName:   et.name,
		handlerKey: key.handlerPtr,
		inbox:      make(chan envelope, b.cfg.QueueCapacity),
		done:       make(chan struct{}),
	}
	se.active.Store(true)
	se.invoke = func(ctx context.Context, env envelope) error {
		typed, ok := env.payload.(Event[T])
		if !ok {
			return fmt.Errorf("bus: payload type mismatch for %s", et.name)
		}
		return h(HandlerContext[T]{
			Event:      typed.Payload,
			EnqueuedAt: typed.EnqueuedAt,
			Ctx:        ctx,
			Bus:        b,
		})
	}
	b.subsByType[et.id] = append(b.subsByType[et.id], se)
	b.byKey[key] = se
	b.subMu.Unlock()

	b.wg.Add(1)
	go b.runSubscriber(se)
	return se, nil
}

// Unsubscribe stops delivery to sub. Idempotent.
func Unsubscribe(b *Bus, sub Subscription) error {
	se, ok := sub.(*subscriberEntry)
	if !ok || se == nil {
		return fmt.Errorf("bus: not a subscription issued by this package")
	}
	return unsubscribe(b, se)
}

func unsubscribe(b *Bus, se *subscriberEntry) error {
	if !se.active.CompareAndSwap(true, false) {
		return nil
	}
	b.subMu.Lock()
	list := b.subsByType[se.typeID]
	for i, s := range list {
		if s == se {
			b.subsByType[se.typeID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	delete(b.byKey, subscribeKey{typeID: se.typeID, handlerPtr: se.handlerKey})
	b.subMu.Unlock()
	close(se.done)
	return nil
}

// Publish enqueues payload for et non-blockingly: if the main queue is at
// capacity it returns models.ErrBackpressureFull immediately rather than
// stalling the caller.
func Publish[T any](b *Bus, et EventType[T], payload T) error {
	return publish(b, et, payload, false, nil)
}

// PublishBlocking enqueues payload for et, blocking the caller until space
// is available on the main queue, ctx is done, or the bus stops.
func PublishBlocking[T any](ctx context.Context, b *Bus, et EventType[T], payload T) error {
	return publish(b, et, payload, true, ctx)
}

// ThreadSafePublish is the entry point for producer-side goroutines that
// are not part of the bus's own dispatch tree. It is semantically
// identical to PublishBlocking; Go's channels already make both safe to
// call concurrently from any goroutine, so the distinction is purely one
// of calling convention at the call site.
func ThreadSafePublish[T any](ctx context.Context, b *Bus, et EventType[T], payload T) error {
	return PublishBlocking(ctx, b, et, payload)
}

func publish[T any](b *Bus, et EventType[T], payload T, block bool, ctx context.Context) error {
	if b.stopped.Load() {
		return models.ErrBusStopped
	}
	env := envelope{typeID: et.id, payload: Event[T]{Type: et, Payload: payload, EnqueuedAt: time.Now()}, enqueuedAt: time.Now()}

	if !block {
		select {
		case b.mainQueue <- env:
			b.metric.published.Inc(1)
			return nil
		default:
			return models.ErrBackpressureFull
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case b.mainQueue <- env:
		b.metric.published.Inc(1)
		return nil
	case <-b.stopCtx.Done():
		return models.ErrBusStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports point-in-time bus occupancy, useful for health endpoints.
type Stats struct {
	QueueDepth    int
	QueueCapacity int
	Subscribers   int
}

// Stats returns the bus's current queue depth and subscriber count.
func (b *Bus) Stats() Stats {
	b.subMu.RLock()
	n := 0
	for _, list := range b.subsByType {
		n += len(list)
	}
	b.subMu.RUnlock()
	return Stats{
		QueueDepth:    len(b.mainQueue),
		QueueCapacity: cap(b.mainQueue),
		Subscribers:   n,
	}
}
