package lighthouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	channel "github.com/hanpama/lighthouselink/internal/channel"
	eventbus "github.com/hanpama/lighthouselink/internal/eventbus"
	events "github.com/hanpama/lighthouselink/internal/events"
	link "github.com/hanpama/lighthouselink/internal/link"
)

// slowJoinClient holds Private until release is closed, like a broadcaster
// waiting for its subscription to be confirmed.
type slowJoinClient struct {
	*channel.MockClient
	entered chan struct{}
	release chan struct{}
}

func (c *slowJoinClient) Private(ctx context.Context, name string) (channel.Channel, error) {
	close(c.entered)
	<-c.release
	return c.MockClient.Private(ctx, name)
}

func TestUnsubscribeDuringJoinLeavesAfterJoin(t *testing.T) {
	client := &slowJoinClient{
		MockClient: channel.NewMockClient(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	upstream := link.NewSubject()
	fakeHTTP := link.Func(func(*link.Operation, link.NextLink) *link.Observable {
		return upstream.Observable()
	})
	chain := link.From(NewLink(client), fakeHTTP)
	op, err := link.NewOperation(context.Background(), subscriptionQuery)
	require.NoError(t, err)
	rec := link.NewRecordingObserver()
	sub := link.Execute(chain, op).Subscribe(rec)

	routed := make(chan struct{})
	go func() {
		defer close(routed)
		upstream.Next(routingV2("private-x"))
	}()
	<-client.entered

	sub.Unsubscribe()
	require.Empty(t, client.CallsTo("Leave"), "leave must wait for the join in flight")

	close(client.release)
	select {
	case <-routed:
	case <-time.After(2 * time.Second):
		t.Fatal("router did not return")
	}

	require.Equal(t, []channel.Call{
		{Method: "Private", Name: "x"},
		{Method: "Leave", Name: "private-x"},
	}, client.Calls())
	require.Nil(t, client.Joined("private-x"))
	require.Empty(t, rec.Results())
}

func TestRoutingAfterTeardownJoinsNothing(t *testing.T) {
	client := channel.NewMockClient()
	l := NewLink(client)
	op, err := link.NewOperation(context.Background(), subscriptionQuery)
	require.NoError(t, err)
	inv := &invocation{link: l, op: op, field: "someEvent", consumer: link.NewRecordingObserver(), log: l.log}

	// teardown wins the race against a response already being routed
	inv.teardown()
	(&router{inv: inv}).Next(routingV2("private-x"))

	require.Empty(t, client.Calls())
}

func recordClosed(t *testing.T) func() int {
	t.Helper()
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })
	var n int
	eventbus.SubscribeTo(bus, func(context.Context, events.OperationClosed) { n++ })
	return func() int { return n }
}

func TestUnsubscribeBeforeRoutingClosesOperation(t *testing.T) {
	closed := recordClosed(t)
	h := newHarness(t)
	_, sub := h.execute(t, subscriptionQuery)
	sub.Unsubscribe()
	sub.Unsubscribe()
	require.Equal(t, 1, closed())
}

func TestEmptyUpstreamCompletionClosesOperation(t *testing.T) {
	closed := recordClosed(t)
	h := newHarness(t)
	rec, _ := h.execute(t, subscriptionQuery)
	h.http.Complete()
	require.True(t, rec.Completed())
	require.Equal(t, 1, closed())
}

func TestJoinedOperationDoesNotPublishClosed(t *testing.T) {
	closed := recordClosed(t)
	h := newHarness(t)
	_, sub := h.execute(t, subscriptionQuery)
	h.http.Next(routingV2("private-y"))
	sub.Unsubscribe()
	require.Equal(t, 0, closed())
	require.Len(t, h.client.CallsTo("Leave"), 1)
}
