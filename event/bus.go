package event

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultHeartbeatInterval spaces the synthetic heartbeat events subscribers
// use to detect a dead connection.
const DefaultHeartbeatInterval = 15 * time.Second

// DefaultSubscriberBuffer is the live-event buffer per subscription.
const DefaultSubscriberBuffer = 64

// SubscribeRequest describes what a subscriber wants to see.
type SubscribeRequest struct {
	// WorkflowID limits delivery to one workflow; empty means all.
	WorkflowID string
	// AfterSeq replays persisted events with Seq > AfterSeq before live
	// delivery. Only meaningful with a WorkflowID; zero replays history
	// from the start of the retention window.
	AfterSeq int64
	// Buffer overrides DefaultSubscriberBuffer when positive.
	Buffer int
}

// Subscription is an ordered stream of events. Consumers range over
// Events(); when the channel closes, Err() explains why (nil after a plain
// Close).
type Subscription struct {
	bus        *Bus
	workflowID string
	ch         chan Event

	mu  sync.Mutex
	err error
}

// Events returns the subscription's channel.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Err reports why the bus closed the subscription: ErrSlowSubscriber,
// ErrBusClosed, or nil when the subscriber closed it itself.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.remove(s)
}

// Bus appends events to the log and fans them out to live subscribers.
// Appending and subscriber attachment share one lock, so a subscriber sees
// every event exactly once: backfill first, then live, no gaps at the
// boundary.
type Bus struct {
	log    Log
	logger *slog.Logger

	heartbeatInterval time.Duration

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithHeartbeatInterval overrides the heartbeat cadence. Zero or negative
// disables heartbeats.
func WithHeartbeatInterval(d time.Duration) BusOption {
	return func(b *Bus) {
		b.heartbeatInterval = d
	}
}

// NewBus creates a broadcaster over the given log and starts its heartbeat.
func NewBus(log Log, opts ...BusOption) *Bus {
	b := &Bus{
		log:               log,
		logger:            slog.Default(),
		heartbeatInterval: DefaultHeartbeatInterval,
		subs:              make(map[*Subscription]struct{}),
		stop:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.heartbeatInterval > 0 {
		b.wg.Add(1)
		go b.heartbeatLoop()
	}
	return b
}

// Publish appends the event to the log and delivers the stored form (with
// its assigned sequence) to matching subscribers. Subscribers whose buffers
// are full are dropped with ErrSlowSubscriber rather than blocking the
// engine.
func (b *Bus) Publish(ctx context.Context, e Event) (Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Event{}, ErrBusClosed
	}

	stored, err := b.log.Append(ctx, e)
	if err != nil {
		return Event{}, err
	}
	b.deliverLocked(stored)
	return stored, nil
}

// Subscribe attaches a consumer. When the request names a workflow, events
// after AfterSeq are replayed from the log first; if those events were
// already pruned, Subscribe fails with ErrBackfillExpired and the caller
// should fetch current state instead.
func (b *Bus) Subscribe(ctx context.Context, req SubscribeRequest) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	var backfill []Event
	if req.WorkflowID != "" {
		floor, last, err := b.log.Bounds(ctx, req.WorkflowID)
		if err != nil {
			return nil, err
		}
		if backfillExpired(req.AfterSeq, floor, last) {
			return nil, ErrBackfillExpired
		}
		if req.AfterSeq < last {
			backfill, err = b.log.ListAfter(ctx, req.WorkflowID, req.AfterSeq, 0)
			if err != nil {
				return nil, err
			}
		}
	}

	buffer := req.Buffer
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	sub := &Subscription{
		bus:        b,
		workflowID: req.WorkflowID,
		ch:         make(chan Event, len(backfill)+buffer),
	}
	for _, e := range backfill {
		sub.ch <- e
	}
	b.subs[sub] = struct{}{}
	return sub, nil
}

// Close shuts the bus down, closing every subscription with ErrBusClosed.
// Events already in subscriber buffers remain readable.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.stop)
	for sub := range b.subs {
		b.dropLocked(sub, ErrBusClosed)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bus) deliverLocked(e Event) {
	for sub := range b.subs {
		if sub.workflowID != "" && e.Type != TypeHeartbeat && e.WorkflowID != sub.workflowID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.logger.Warn("dropping slow event subscriber",
				"workflow_id", sub.workflowID, "buffer", cap(sub.ch))
			b.dropLocked(sub, ErrSlowSubscriber)
		}
	}
}

func (b *Bus) dropLocked(sub *Subscription, err error) {
	if _, ok := b.subs[sub]; !ok {
		return
	}
	sub.setErr(err)
	delete(b.subs, sub)
	close(sub.ch)
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *Bus) heartbeatLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case t := <-ticker.C:
			b.mu.Lock()
			if !b.closed {
				b.deliverLocked(Event{Type: TypeHeartbeat, Time: t.UTC()})
			}
			b.mu.Unlock()
		}
	}
}
