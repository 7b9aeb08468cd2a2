package channel

import (
	"context"
	"fmt"
	"sync"
)

// Call captures a single MockClient invocation for assertions.
type Call struct {
	// Method is one of "Channel", "Private", "Join", "Leave".
	Method string
	Name   string
}

// MockClient implements Client in memory, recording every call. Channels it
// hands out are MockChannels whose listeners tests fire directly.
type MockClient struct {
	mu       sync.Mutex
	calls    []Call
	errs     map[string]error
	channels map[string]*MockChannel
}

func NewMockClient() *MockClient {
	return &MockClient{errs: map[string]error{}, channels: map[string]*MockChannel{}}
}

// FailWith makes every later call of method return err.
func (m *MockClient) FailWith(method string, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[method] = err
	return m
}

func (m *MockClient) Channel(ctx context.Context, name string) (Channel, error) {
	return m.join(ctx, "Channel", name, name)
}

func (m *MockClient) Private(ctx context.Context, name string) (Channel, error) {
	return m.join(ctx, "Private", name, PrivatePrefix+name)
}

func (m *MockClient) Join(ctx context.Context, name string) (Channel, error) {
	return m.join(ctx, "Join", name, PresencePrefix+name)
}

func (m *MockClient) join(ctx context.Context, method, name, full string) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Name: name})
	if err := m.errs[method]; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := m.channels[full]
	if ch == nil {
		ch = &MockChannel{name: full}
		m.channels[full] = ch
	}
	return ch, nil
}

func (m *MockClient) Leave(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Leave", Name: name})
	if err := m.errs["Leave"]; err != nil {
		return err
	}
	for _, v := range Variants(name) {
		delete(m.channels, v)
	}
	return nil
}

// Calls returns a snapshot of recorded invocations.
func (m *MockClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the recorded invocations of method.
func (m *MockClient) CallsTo(method string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Joined returns the channel registered under its full name (for example
// "private-lighthouse-1"), or nil once it was left.
func (m *MockClient) Joined(full string) *MockChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[full]
}

// MockChannel is a Channel whose events are fired by tests.
type MockChannel struct {
	name      string
	listeners Listeners

	mu        sync.Mutex
	listenErr error
}

func (c *MockChannel) Name() string { return c.name }

func (c *MockChannel) Listen(event string, cb Listener) error {
	c.mu.Lock()
	err := c.listenErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.listeners.Add(event, cb)
	return nil
}

// FailListen makes later Listen calls return err.
func (c *MockChannel) FailListen(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listenErr = err
}

// Fire delivers payload to the listeners of event. It fails when nobody
// listens, which usually means the test fired the wrong event name.
func (c *MockChannel) Fire(event string, payload map[string]any) error {
	if !c.listeners.Dispatch(event, payload) {
		return fmt.Errorf("mock channel %s: no listener for %q", c.name, event)
	}
	return nil
}

// ListenerCount reports the listeners registered for event.
func (c *MockChannel) ListenerCount(event string) int { return c.listeners.Len(event) }
