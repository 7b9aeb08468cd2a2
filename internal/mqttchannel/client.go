// Package mqttchannel is a channel.Client backed by MQTT topics through the
// Eclipse Paho client. Each broadcast channel maps to one topic; messages are
// channel.Envelope JSON.
package mqttchannel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	channel "github.com/hanpama/lighthouselink/internal/channel"
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqttchannel: broker did not acknowledge")

// Conn is the subset of mqtt.Client used here.
type Conn interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Options configures the client.
//
// Defaults:
// - TopicPrefix: "lighthouse/"
// - QoS:         1
// - Timeout:     5s (acknowledgement wait)
// - Logger:      slog.Default()
type Options struct {
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
	Logger      *slog.Logger
}

type Option func(*Options)

func WithTopicPrefix(p string) Option    { return func(o *Options) { o.TopicPrefix = p } }
func WithQoS(q byte) Option              { return func(o *Options) { o.QoS = q } }
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithLogger(l *slog.Logger) Option   { return func(o *Options) { o.Logger = l } }

// Client joins channels by subscribing to their topics. The connection is
// owned by the caller.
type Client struct {
	conn Conn
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	topics map[string]*Channel
}

var _ channel.Client = (*Client)(nil)

func New(conn Conn, opts ...Option) *Client {
	o := Options{TopicPrefix: "lighthouse/", QoS: 1, Timeout: 5 * time.Second, Logger: slog.Default()}
	for _, f := range opts {
		f(&o)
	}
	return &Client{conn: conn, opts: o, log: o.Logger.With("component", "mqtt"), topics: map[string]*Channel{}}
}

// Topic returns the topic carrying channel name.
func (c *Client) Topic(name string) string { return c.opts.TopicPrefix + name }

func (c *Client) Channel(ctx context.Context, name string) (channel.Channel, error) {
	return c.subscribe(ctx, name)
}

// Private joins the private variant. Authorization is enforced by the
// broker's topic ACLs for the connected client.
func (c *Client) Private(ctx context.Context, name string) (channel.Channel, error) {
	return c.subscribe(ctx, channel.PrivatePrefix+name)
}

func (c *Client) Join(ctx context.Context, name string) (channel.Channel, error) {
	return c.subscribe(ctx, channel.PresencePrefix+name)
}

func (c *Client) subscribe(ctx context.Context, name string) (*Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch := c.topics[name]; ch != nil {
		return ch, nil
	}
	ch := &Channel{name: name}
	topic := c.Topic(name)
	tok := c.conn.Subscribe(topic, c.opts.QoS, func(_ mqtt.Client, m mqtt.Message) {
		env, err := channel.DecodeEnvelope(m.Payload())
		if err != nil {
			c.log.Warn("dropping message", "topic", m.Topic(), "error", err)
			return
		}
		payload, err := channel.DecodeData(env.Data)
		if err != nil {
			c.log.Warn("dropping message", "topic", m.Topic(), "error", err)
			return
		}
		ch.listeners.Dispatch(env.Event, payload)
	})
	if err := c.wait(ctx, tok); err != nil {
		return nil, fmt.Errorf("mqttchannel: subscribe %s: %w", topic, err)
	}
	c.topics[name] = ch
	c.log.Debug("subscribed", "topic", topic)
	return ch, nil
}

func (c *Client) Leave(name string) error {
	c.mu.Lock()
	var topics []string
	for _, v := range channel.Variants(name) {
		if c.topics[v] != nil {
			delete(c.topics, v)
			topics = append(topics, c.Topic(v))
		}
	}
	c.mu.Unlock()
	if len(topics) == 0 {
		return nil
	}
	if err := c.wait(context.Background(), c.conn.Unsubscribe(topics...)); err != nil {
		return fmt.Errorf("mqttchannel: leave %s: %w", name, err)
	}
	return nil
}

// Publish sends an event to channel name.
func (c *Client) Publish(ctx context.Context, name, event string, data any) error {
	b, err := channel.EncodeEnvelope(channel.NormalizeEvent(event), name, data)
	if err != nil {
		return err
	}
	return c.wait(ctx, c.conn.Publish(c.Topic(name), c.opts.QoS, false, b))
}

func (c *Client) wait(ctx context.Context, tok mqtt.Token) error {
	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}

// Channel is a joined topic.
type Channel struct {
	name      string
	listeners channel.Listeners
}

func (ch *Channel) Name() string { return ch.name }

func (ch *Channel) Listen(event string, cb channel.Listener) error {
	ch.listeners.Add(event, cb)
	return nil
}
