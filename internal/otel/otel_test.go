package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	eventbus "github.com/hanpama/lighthouselink/internal/eventbus"
	events "github.com/hanpama/lighthouselink/internal/events"
	reqid "github.com/hanpama/lighthouselink/internal/reqid"
)

func TestSubscriptionSpanLifecycle(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	off := Register(tp.Tracer("test"))
	defer off()

	ctx, _ := reqid.NewContext(context.Background())
	eventbus.Publish(ctx, events.OperationStart{OperationName: "On", OperationType: "subscription", Field: "someEvent"})
	eventbus.Publish(ctx, events.ChannelJoined{OperationName: "On", Channel: "private-x", Version: 2})
	eventbus.Publish(ctx, events.ChannelEvent{Channel: "private-x"})
	require.Empty(t, rec.Ended())
	eventbus.Publish(ctx, events.ChannelLeft{Channel: "private-x"})

	ended := rec.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "lighthouse.subscription", ended[0].Name())
	var names []string
	for _, ev := range ended[0].Events() {
		names = append(names, ev.Name)
	}
	require.Equal(t, []string{"channel.joined", "channel.event"}, names)
}

func TestFailedOperationEndsSpan(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer Register(tp.Tracer("test"))()

	ctx, _ := reqid.NewContext(context.Background())
	eventbus.Publish(ctx, events.OperationStart{OperationName: "On"})
	eventbus.Publish(ctx, events.OperationFailed{OperationName: "On", Err: errors.New("boom")})
	eventbus.Publish(ctx, events.ChannelLeft{Channel: "late"})

	require.Len(t, rec.Ended(), 1)
	require.Equal(t, "boom", rec.Ended()[0].Status().Description)
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup("", "svc")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestClosedWithoutChannelEndsSpan(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer Register(tp.Tracer("test"))()

	ctx, _ := reqid.NewContext(context.Background())
	eventbus.Publish(ctx, events.OperationStart{OperationName: "On"})
	require.Empty(t, rec.Ended())
	eventbus.Publish(ctx, events.OperationClosed{OperationName: "On"})

	require.Len(t, rec.Ended(), 1)
	require.Equal(t, "lighthouse.subscription", rec.Ended()[0].Name())
}
