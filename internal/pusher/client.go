// Package pusher is a channel.Client speaking the Pusher protocol over a
// WebSocket, which is what Laravel Echo uses with the pusher, reverb and
// laravel-websockets broadcasters.
package pusher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	channel "github.com/hanpama/lighthouselink/internal/channel"
)

// Protocol is the Pusher protocol version announced on connect.
const Protocol = 7

// URL returns the WebSocket URL of app key on host.
func URL(scheme, host, key string) string {
	return fmt.Sprintf("%s://%s/app/%s?protocol=%d&client=lighthouselink&version=1.0", scheme, host, key, Protocol)
}

type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client is a connected Pusher socket.
type Client struct {
	opts     *Options
	conn     *websocket.Conn
	socketID string
	log      *slog.Logger

	writeMu sync.Mutex

	mu       sync.RWMutex
	channels map[string]*Channel

	closed atomic.Bool
	done   chan struct{}
	err    error // read loop exit reason, valid after done
}

var _ channel.Client = (*Client)(nil)

// Dial connects to url and waits for the connection to be established.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	conn, _, err := o.Dialer.DialContext(ctx, url, o.Header)
	if err != nil {
		return nil, fmt.Errorf("pusher: dial %s: %w", url, err)
	}
	c := &Client{
		opts:     o,
		conn:     conn,
		log:      o.Logger.With("component", "pusher"),
		channels: make(map[string]*Channel),
		done:     make(chan struct{}),
	}
	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(dl)
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}
	var f frame
	if err := c.conn.ReadJSON(&f); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	switch f.Event {
	case "pusher:connection_established":
		data, err := channel.DecodeData(f.Data)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		id, _ := data["socket_id"].(string)
		if id == "" {
			return fmt.Errorf("%w: missing socket_id", ErrHandshake)
		}
		c.socketID = id
		return nil
	case "pusher:error":
		data, _ := channel.DecodeData(f.Data)
		return fmt.Errorf("%w: %v", ErrHandshake, data["message"])
	default:
		return fmt.Errorf("%w: unexpected event %q", ErrHandshake, f.Event)
	}
}

// SocketID returns the id assigned by the server.
func (c *Client) SocketID() string { return c.socketID }

// Done is closed when the connection is lost or closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, once Done is closed.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) Channel(ctx context.Context, name string) (channel.Channel, error) {
	return c.subscribe(ctx, name)
}

func (c *Client) Private(ctx context.Context, name string) (channel.Channel, error) {
	return c.subscribe(ctx, channel.PrivatePrefix+name)
}

func (c *Client) Join(ctx context.Context, name string) (channel.Channel, error) {
	return c.subscribe(ctx, channel.PresencePrefix+name)
}

func (c *Client) subscribe(ctx context.Context, name string) (*Channel, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.mu.RLock()
	ch := c.channels[name]
	c.mu.RUnlock()
	if ch != nil {
		return ch, nil
	}

	payload := map[string]string{"channel": name}
	if strings.HasPrefix(name, channel.PrivatePrefix) || strings.HasPrefix(name, channel.PresencePrefix) {
		if c.opts.Authorizer == nil {
			return nil, fmt.Errorf("%w: %s: no authorizer configured", ErrUnauthorized, name)
		}
		auth, err := c.opts.Authorizer.Authorize(ctx, c.socketID, name)
		if err != nil {
			return nil, err
		}
		payload["auth"] = auth.Auth
		if auth.ChannelData != "" {
			payload["channel_data"] = auth.ChannelData
		}
	}

	c.mu.Lock()
	if existing := c.channels[name]; existing != nil {
		c.mu.Unlock()
		return existing, nil
	}
	ch = &Channel{name: name, client: c}
	c.channels[name] = ch
	c.mu.Unlock()

	if err := c.send("pusher:subscribe", payload); err != nil {
		c.mu.Lock()
		delete(c.channels, name)
		c.mu.Unlock()
		return nil, err
	}
	c.log.Debug("subscribed", "channel", name)
	return ch, nil
}

// Leave unsubscribes name and its private and presence variants, the way
// Echo's leave does.
func (c *Client) Leave(name string) error {
	var left []string
	c.mu.Lock()
	for _, v := range channel.Variants(name) {
		if _, ok := c.channels[v]; ok {
			delete(c.channels, v)
			left = append(left, v)
		}
	}
	c.mu.Unlock()
	if c.closed.Load() {
		return nil
	}
	for _, v := range left {
		if err := c.send("pusher:unsubscribe", map[string]string{"channel": v}); err != nil {
			return err
		}
		c.log.Debug("unsubscribed", "channel", v)
	}
	return nil
}

// Close closes the socket and waits for the read loop to stop.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.conn.WriteJSON(frame{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("pusher: send %s: %w", event, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if !c.closed.Load() {
				c.log.Warn("connection lost", "error", err)
				c.err = err
			} else {
				c.err = ErrClosed
			}
			return
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame) {
	switch f.Event {
	case "pusher:ping":
		if err := c.send("pusher:pong", struct{}{}); err != nil {
			c.log.Warn("pong failed", "error", err)
		}
		return
	case "pusher:pong":
		return
	case "pusher:error":
		data, _ := channel.DecodeData(f.Data)
		c.log.Warn("server error", "message", data["message"], "code", data["code"])
		return
	case "pusher_internal:subscription_succeeded":
		c.log.Debug("subscription succeeded", "channel", f.Channel)
		return
	case "pusher:subscription_error", "pusher_internal:subscription_error":
		c.log.Error("subscription rejected", "channel", f.Channel)
		return
	}
	if f.Channel == "" {
		return
	}
	c.mu.RLock()
	ch := c.channels[f.Channel]
	c.mu.RUnlock()
	if ch == nil {
		return
	}
	payload, err := channel.DecodeData(f.Data)
	if err != nil {
		c.log.Warn("dropping event", "channel", f.Channel, "event", f.Event, "error", err)
		return
	}
	ch.listeners.Dispatch(f.Event, payload)
}

// Channel is a subscribed Pusher channel.
type Channel struct {
	name      string
	client    *Client
	listeners channel.Listeners
}

func (ch *Channel) Name() string { return ch.name }

// Listen registers cb for event, formatted the way Echo formats event
// names: a leading '.' or '\' marks a fully qualified name, anything else is
// prefixed with the namespace.
func (ch *Channel) Listen(event string, cb channel.Listener) error {
	if ch.client.closed.Load() {
		return ErrClosed
	}
	ch.listeners.Add(FormatEvent(ch.client.opts.Namespace, event), cb)
	return nil
}

// FormatEvent mirrors Echo's EventFormatter.
func FormatEvent(namespace, event string) string {
	if strings.HasPrefix(event, ".") || strings.HasPrefix(event, `\`) {
		return event[1:]
	}
	if namespace != "" {
		event = namespace + "." + event
	}
	return strings.ReplaceAll(event, ".", `\`)
}
