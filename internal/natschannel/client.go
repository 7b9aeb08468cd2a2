// Package natschannel is a channel.Client backed by NATS subjects. Each
// broadcast channel maps to one subject; messages are channel.Envelope JSON.
package natschannel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	channel "github.com/hanpama/lighthouselink/internal/channel"
)

// Options configures the client.
//
// Defaults:
// - SubjectPrefix: "lighthouse."
// - Timeout:       5s (subscribe flush wait when ctx has no deadline)
// - Logger:        slog.Default()
type Options struct {
	SubjectPrefix string
	Timeout       time.Duration
	Logger        *slog.Logger
}

type Option func(*Options)

func WithSubjectPrefix(p string) Option  { return func(o *Options) { o.SubjectPrefix = p } }
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithLogger(l *slog.Logger) Option   { return func(o *Options) { o.Logger = l } }

// Client joins channels by subscribing to their subjects on a shared
// connection. The connection is owned by the caller.
type Client struct {
	nc   *nats.Conn
	opts Options
	log  *slog.Logger

	mu   sync.Mutex
	subs map[string]*Channel
}

var _ channel.Client = (*Client)(nil)

func New(nc *nats.Conn, opts ...Option) *Client {
	o := Options{SubjectPrefix: "lighthouse.", Timeout: 5 * time.Second, Logger: slog.Default()}
	for _, f := range opts {
		f(&o)
	}
	return &Client{nc: nc, opts: o, log: o.Logger.With("component", "nats"), subs: map[string]*Channel{}}
}

// Subject returns the subject carrying channel name.
func (c *Client) Subject(name string) string { return c.opts.SubjectPrefix + name }

func (c *Client) Channel(ctx context.Context, name string) (channel.Channel, error) {
	return c.subscribe(ctx, name)
}

// Private joins the private variant. NATS has no per-subject handshake;
// access control belongs to the connection's credentials.
func (c *Client) Private(ctx context.Context, name string) (channel.Channel, error) {
	return c.subscribe(ctx, channel.PrivatePrefix+name)
}

func (c *Client) Join(ctx context.Context, name string) (channel.Channel, error) {
	return c.subscribe(ctx, channel.PresencePrefix+name)
}

func (c *Client) subscribe(ctx context.Context, name string) (*Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch := c.subs[name]; ch != nil {
		return ch, nil
	}
	ch := &Channel{name: name}
	sub, err := c.nc.Subscribe(c.Subject(name), func(msg *nats.Msg) {
		env, err := channel.DecodeEnvelope(msg.Data)
		if err != nil {
			c.log.Warn("dropping message", "subject", msg.Subject, "error", err)
			return
		}
		payload, err := channel.DecodeData(env.Data)
		if err != nil {
			c.log.Warn("dropping message", "subject", msg.Subject, "error", err)
			return
		}
		ch.listeners.Dispatch(env.Event, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("natschannel: subscribe %s: %w", name, err)
	}
	// the subscription is registered with the server once Flush returns
	if err := c.flush(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("natschannel: subscribe %s: %w", name, err)
	}
	ch.sub = sub
	c.subs[name] = ch
	c.log.Debug("subscribed", "subject", sub.Subject)
	return ch, nil
}

// flush waits for the server to process pending subscriptions. nats.go
// refuses a context without a deadline, so the Timeout option bounds those.
func (c *Client) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	return c.nc.FlushWithContext(ctx)
}

func (c *Client) Leave(name string) error {
	c.mu.Lock()
	var left []*Channel
	for _, v := range channel.Variants(name) {
		if ch := c.subs[v]; ch != nil {
			delete(c.subs, v)
			left = append(left, ch)
		}
	}
	c.mu.Unlock()
	for _, ch := range left {
		if err := ch.sub.Unsubscribe(); err != nil {
			return fmt.Errorf("natschannel: leave %s: %w", ch.name, err)
		}
	}
	return nil
}

// Publish sends an event to channel name; it is what a broadcaster writing
// to NATS does.
func (c *Client) Publish(name, event string, data any) error {
	b, err := channel.EncodeEnvelope(channel.NormalizeEvent(event), name, data)
	if err != nil {
		return err
	}
	return c.nc.Publish(c.Subject(name), b)
}

// Channel is a joined subject.
type Channel struct {
	name      string
	sub       *nats.Subscription
	listeners channel.Listeners
}

func (ch *Channel) Name() string { return ch.name }

func (ch *Channel) Listen(event string, cb channel.Listener) error {
	ch.listeners.Add(event, cb)
	return nil
}
