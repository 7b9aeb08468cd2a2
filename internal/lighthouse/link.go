package lighthouse

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	channel "github.com/hanpama/lighthouselink/internal/channel"
	eventbus "github.com/hanpama/lighthouselink/internal/eventbus"
	events "github.com/hanpama/lighthouselink/internal/events"
	language "github.com/hanpama/lighthouselink/internal/language"
	link "github.com/hanpama/lighthouselink/internal/link"
	reqid "github.com/hanpama/lighthouselink/internal/reqid"
)

// Link is the subscription link. Links created from the same client share
// it but nothing else.
type Link struct {
	client channel.Client
	cfg    Config
	log    *slog.Logger
}

var _ link.Link = (*Link)(nil)

// NewLink returns a link joining channels through client.
func NewLink(client channel.Client, opts ...Option) *Link {
	o := options{cfg: DefaultConfig()}
	for _, f := range opts {
		f(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Link{client: client, cfg: o.cfg.withDefaults(), log: o.logger}
}

// Config returns the effective configuration.
func (l *Link) Config() Config { return l.cfg }

// Request implements link.Link. Each subscription to the returned stream is
// an independent invocation with its own channel state.
func (l *Link) Request(op *link.Operation, forward link.NextLink) *link.Observable {
	return link.New(func(consumer link.Observer) func() {
		ctx, _ := reqid.Ensure(op.Context())
		op := op.WithContext(ctx)

		field, err := language.SubscriptionFieldName(op.Query)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrMalformedOperation, err)
			eventbus.Publish(ctx, events.OperationFailed{OperationName: op.OperationName, Err: err})
			consumer.Error(err)
			return nil
		}

		inv := &invocation{
			link:     l,
			op:       op,
			field:    field,
			consumer: consumer,
			log:      l.log.With("operation", op.OperationName, "field", field),
		}
		eventbus.Publish(ctx, events.OperationStart{
			OperationName: op.OperationName,
			OperationType: string(op.Type()),
			Field:         field,
		})

		upstream := forward(op).Subscribe(&router{inv: inv})
		return func() {
			upstream.Unsubscribe()
			inv.teardown()
		}
	})
}

// invocation is the state of one subscription to a Request stream. The
// channel name is written once by the router and read once by teardown.
// Teardown and routing may run on different goroutines: a join in flight
// defers the leave to the router, which runs it once the join returns.
type invocation struct {
	link     *Link
	op       *link.Operation
	field    string
	consumer link.Observer
	log      *slog.Logger

	mu       sync.Mutex
	channel  string
	joinedAt time.Time
	joining  bool
	closed   bool
	left     bool
}

// assign records name and reports whether this call set it. It refuses
// once teardown has run.
func (inv *invocation) assign(name string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.closed || inv.channel != "" {
		return false
	}
	inv.channel = name
	inv.joinedAt = time.Now()
	inv.joining = true
	return true
}

func (inv *invocation) assigned() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.channel != ""
}

// joinDone ends the join started by assign and reports whether teardown
// ran meanwhile.
func (inv *invocation) joinDone() (closed bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.joining = false
	return inv.closed
}

// release hands out the channel to leave, at most once and never while its
// join is in flight.
func (inv *invocation) release() (string, time.Time, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.channel == "" || inv.joining || inv.left {
		return "", time.Time{}, false
	}
	inv.left = true
	return inv.channel, inv.joinedAt, true
}

// teardown closes the invocation. Without a channel there is nothing to
// leave and the operation just ends.
func (inv *invocation) teardown() {
	inv.mu.Lock()
	inv.closed = true
	idle := inv.channel == ""
	inv.mu.Unlock()
	if idle {
		eventbus.Publish(inv.op.Context(), events.OperationClosed{OperationName: inv.op.OperationName})
		return
	}
	inv.leave()
}

// leave leaves the assigned channel with the name exactly as received.
// Teardown has no consumer left to report to, so failures are logged.
func (inv *invocation) leave() {
	name, joinedAt, ok := inv.release()
	if !ok {
		return
	}
	err := inv.link.client.Leave(name)
	if err != nil {
		inv.log.Warn("leave channel failed", "channel", name, "error", err)
	} else {
		inv.log.Debug("left channel", "channel", name)
	}
	eventbus.Publish(inv.op.Context(), events.ChannelLeft{
		Channel:  name,
		Err:      err,
		Duration: time.Since(joinedAt),
	})
}

func (inv *invocation) fail(err error) {
	inv.log.Error("subscription failed", "error", err)
	eventbus.Publish(inv.op.Context(), events.OperationFailed{OperationName: inv.op.OperationName, Err: err})
	inv.consumer.Error(err)
}
