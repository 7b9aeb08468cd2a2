package pusher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks enough of the Pusher protocol to drive the client.
type fakeServer struct {
	t      *testing.T
	srv    *httptest.Server
	frames chan frame

	mu   sync.Mutex
	conn *websocket.Conn
}

func newFakeServer(t *testing.T, socketID string) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t, frames: make(chan frame, 16)}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conn = c
		fs.mu.Unlock()
		fs.write(frame{Event: "pusher:connection_established", Data: jsonString(t, map[string]any{"socket_id": socketID, "activity_timeout": 120})})
		for {
			var f frame
			if err := c.ReadJSON(&f); err != nil {
				return
			}
			fs.frames <- f
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return URL("ws", strings.TrimPrefix(fs.srv.URL, "http://"), "app-key")
}

func (fs *fakeServer) write(f frame) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NoError(fs.t, fs.conn.WriteJSON(f))
}

func (fs *fakeServer) next() frame {
	fs.t.Helper()
	select {
	case f := <-fs.frames:
		return f
	case <-time.After(2 * time.Second):
		fs.t.Fatal("timed out waiting for client frame")
		return frame{}
	}
}

// jsonString encodes v as a JSON string holding JSON, as Pusher sends data.
func jsonString(t *testing.T, v any) json.RawMessage {
	t.Helper()
	inner, err := json.Marshal(v)
	require.NoError(t, err)
	outer, err := json.Marshal(string(inner))
	require.NoError(t, err)
	return outer
}

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func dial(t *testing.T, fs *fakeServer, opts ...Option) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, fs.url(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDialRecordsSocketID(t *testing.T) {
	fs := newFakeServer(t, "123.456")
	c := dial(t, fs)
	require.Equal(t, "123.456", c.SocketID())
}

func TestPrivateSubscribeAuthorizesAndDispatches(t *testing.T) {
	fs := newFakeServer(t, "1.2")
	auth := &SecretAuthorizer{Key: "app-key", Secret: "s3cret"}
	c := dial(t, fs, WithAuthorizer(auth))

	ch, err := c.Private(context.Background(), "lighthouse-1")
	require.NoError(t, err)
	require.Equal(t, "private-lighthouse-1", ch.Name())

	sub := fs.next()
	require.Equal(t, "pusher:subscribe", sub.Event)
	data := decode(t, sub.Data)
	require.Equal(t, "private-lighthouse-1", data["channel"])
	require.Equal(t, "app-key:"+Sign("s3cret", "1.2:private-lighthouse-1"), data["auth"])

	got := make(chan map[string]any, 1)
	require.NoError(t, ch.Listen(".lighthouse-subscription", func(p map[string]any) { got <- p }))

	fs.write(frame{
		Event:   "lighthouse-subscription",
		Channel: "private-lighthouse-1",
		Data:    jsonString(t, map[string]any{"data": map[string]any{"someEvent": "x"}}),
	})
	select {
	case p := <-got:
		require.Equal(t, map[string]any{"data": map[string]any{"someEvent": "x"}}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("event not dispatched")
	}
}

func TestPrivateWithoutAuthorizer(t *testing.T) {
	fs := newFakeServer(t, "1.2")
	c := dial(t, fs)
	_, err := c.Private(context.Background(), "x")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLeaveUnsubscribesVariants(t *testing.T) {
	fs := newFakeServer(t, "1.2")
	c := dial(t, fs, WithAuthorizer(&SecretAuthorizer{Key: "k", Secret: "s"}))

	_, err := c.Private(context.Background(), "lighthouse-2")
	require.NoError(t, err)
	require.Equal(t, "pusher:subscribe", fs.next().Event)

	require.NoError(t, c.Leave("private-lighthouse-2"))
	unsub := fs.next()
	require.Equal(t, "pusher:unsubscribe", unsub.Event)
	require.Equal(t, "private-lighthouse-2", decode(t, unsub.Data)["channel"])

	// leaving again is a no-op
	require.NoError(t, c.Leave("private-lighthouse-2"))
}

func TestPingPong(t *testing.T) {
	fs := newFakeServer(t, "1.2")
	_ = dial(t, fs)
	fs.write(frame{Event: "pusher:ping", Data: json.RawMessage(`{}`)})
	require.Equal(t, "pusher:pong", fs.next().Event)
}

func TestPublicChannelSkipsAuth(t *testing.T) {
	fs := newFakeServer(t, "1.2")
	c := dial(t, fs)
	ch, err := c.Channel(context.Background(), "news")
	require.NoError(t, err)
	require.Equal(t, "news", ch.Name())
	data := decode(t, fs.next().Data)
	require.Equal(t, map[string]any{"channel": "news"}, data)

	again, err := c.Channel(context.Background(), "news")
	require.NoError(t, err)
	require.Same(t, ch, again)
}

func TestClosedClient(t *testing.T) {
	fs := newFakeServer(t, "1.2")
	c := dial(t, fs)
	require.NoError(t, c.Close())
	_, err := c.Channel(context.Background(), "news")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, c.Err(), ErrClosed)
	require.NoError(t, c.Close())
}

func TestHandshakeError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteJSON(frame{Event: "pusher:error", Data: json.RawMessage(`{"message":"App key not in this cluster","code":4001}`)})
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), URL("ws", strings.TrimPrefix(srv.URL, "http://"), "nope"))
	require.ErrorIs(t, err, ErrHandshake)
	require.Contains(t, err.Error(), "App key not in this cluster")
}

func TestFormatEvent(t *testing.T) {
	require.Equal(t, "lighthouse-subscription", FormatEvent("App.Events", ".lighthouse-subscription"))
	require.Equal(t, `App\Events\OrderShipped`, FormatEvent("App.Events", "OrderShipped"))
	require.Equal(t, `Other\Thing`, FormatEvent("", "Other.Thing"))
	require.Equal(t, `Full\Name`, FormatEvent("App.Events", `\Full\Name`))
}
