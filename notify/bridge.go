package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/conductor/event"
)

// =============================================================================
// Bridge
// =============================================================================

// DefaultNotifyTimeout bounds a single delivery attempt.
const DefaultNotifyTimeout = 10 * time.Second

// DefaultBridgeTypes returns the event types a bridge forwards unless
// configured otherwise: the points where a human should look at the
// workflow, and how it ended.
func DefaultBridgeTypes() []event.Type {
	return []event.Type{
		event.TypeApprovalRequired,
		event.TypeBlocked,
		event.TypePRCreated,
		event.TypeWorkflowCompleted,
		event.TypeWorkflowFailed,
		event.TypeWorkflowCancelled,
	}
}

// Subscriber is the slice of the event bus the bridge needs. Both
// *event.Bus and the workflow manager satisfy it.
type Subscriber interface {
	Subscribe(ctx context.Context, req event.SubscribeRequest) (*event.Subscription, error)
}

var _ Subscriber = (*event.Bus)(nil)

// Bridge subscribes to an event stream and forwards selected events to a
// notifier. Delivery happens on the bridge's own goroutine so a slow sink
// never blocks the engine; if the bridge falls behind far enough for the
// bus to drop it, it resubscribes and carries on from the live stream.
type Bridge struct {
	bus     Subscriber
	sink    Notifier
	types   map[event.Type]struct{}
	buffer  int
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	sub     *event.Subscription
	done    chan struct{}
	started bool
	closed  bool
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeTypes replaces the default forwarded event types.
func WithBridgeTypes(types ...event.Type) BridgeOption {
	return func(b *Bridge) {
		b.types = make(map[event.Type]struct{}, len(types))
		for _, t := range types {
			b.types[t] = struct{}{}
		}
	}
}

// WithBridgeBuffer sets the subscription buffer size.
func WithBridgeBuffer(n int) BridgeOption {
	return func(b *Bridge) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithBridgeTimeout bounds each delivery attempt.
func WithBridgeTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithBridgeLogger sets the bridge logger.
func WithBridgeLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBridge creates a bridge from bus to sink. Call Start to begin
// forwarding and Close to stop.
func NewBridge(bus Subscriber, sink Notifier, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		bus:     bus,
		sink:    sink,
		buffer:  event.DefaultSubscriberBuffer,
		timeout: DefaultNotifyTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.types == nil {
		b.types = make(map[event.Type]struct{})
		for _, t := range DefaultBridgeTypes() {
			b.types[t] = struct{}{}
		}
	}
	return b
}

// Start subscribes to the bus and begins forwarding events.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return errors.New("notify: bridge already started")
	}

	sub, err := b.bus.Subscribe(context.Background(), event.SubscribeRequest{Buffer: b.buffer})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	b.started = true
	b.sub = sub
	b.done = make(chan struct{})
	go b.run(sub)
	return nil
}

// Close stops forwarding and waits for the delivery goroutine to exit.
func (b *Bridge) Close() {
	b.mu.Lock()
	if !b.started || b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	sub := b.sub
	b.mu.Unlock()

	sub.Close()
	<-b.done
}

func (b *Bridge) run(sub *event.Subscription) {
	defer close(b.done)

	for {
		for ev := range sub.Events() {
			b.forward(ev)
		}

		err := sub.Err()
		if err == nil || errors.Is(err, event.ErrBusClosed) {
			return
		}

		// Dropped for falling behind. The missed events are gone; reattach
		// to the live stream rather than going silent.
		b.logger.Warn("notification bridge fell behind, resubscribing", "error", err)

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		next, serr := b.bus.Subscribe(context.Background(), event.SubscribeRequest{Buffer: b.buffer})
		if serr != nil {
			b.mu.Unlock()
			b.logger.Error("notification bridge resubscribe failed", "error", serr)
			return
		}
		b.sub = next
		b.mu.Unlock()
		sub = next
	}
}

func (b *Bridge) forward(ev event.Event) {
	if _, want := b.types[ev.Type]; !want {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if err := b.sink.Notify(ctx, ev); err != nil {
		b.logger.Warn("notification delivery failed",
			"type", ev.Type,
			"workflow_id", ev.WorkflowID,
			"error", err,
		)
	}
}
