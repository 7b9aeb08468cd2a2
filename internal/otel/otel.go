package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/lighthouselink/internal/eventbus"
	events "github.com/hanpama/lighthouselink/internal/events"
	reqid "github.com/hanpama/lighthouselink/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unregister := Register(tp.Tracer("lighthouselink"))
	return func(ctx context.Context) error {
		unregister()
		return tp.Shutdown(ctx)
	}, nil
}

// Register subscribes span handlers using tracer on the global bus and
// returns a function removing them.
func Register(tracer trace.Tracer) func() {
	s := &subscriber{tracer: tracer}
	return s.register()
}

// subscriber keys open spans by request id. A subscription span lives from
// operation start until its channel is left or the operation ends without
// one.
type subscriber struct {
	tracer    trace.Tracer
	opSpans   sync.Map // rid -> trace.Span
	httpSpans sync.Map // rid -> trace.Span
}

func (s *subscriber) register() func() {
	offs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.OperationStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "lighthouse.subscription")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType),
				attribute.String("lighthouse.field", e.Field),
			)
			s.opSpans.Store(rid, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.OperationForwarded) {
			s.endOp(ctx, func(span trace.Span) {
				span.SetAttributes(attribute.Bool("lighthouse.forwarded", true))
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.ChannelJoined) {
			rid, _ := reqid.FromContext(ctx)
			if v, ok := s.opSpans.Load(rid); ok {
				span := v.(trace.Span)
				span.AddEvent("channel.joined", trace.WithAttributes(
					attribute.String("lighthouse.channel", e.Channel),
					attribute.Int("lighthouse.version", e.Version),
				))
			}
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.ChannelEvent) {
			rid, _ := reqid.FromContext(ctx)
			if v, ok := s.opSpans.Load(rid); ok {
				v.(trace.Span).AddEvent("channel.event")
			}
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.ChannelLeft) {
			s.endOp(ctx, func(span trace.Span) {
				span.SetAttributes(attribute.String("lighthouse.channel", e.Channel))
				if e.Err != nil {
					span.RecordError(e.Err)
				}
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.OperationClosed) {
			s.endOp(ctx, func(span trace.Span) {
				span.SetAttributes(attribute.Bool("lighthouse.joined", false))
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.OperationFailed) {
			s.endOp(ctx, func(span trace.Span) {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			})
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.HTTPRequestStart) {
			rid, _ := reqid.FromContext(ctx)
			parent := ctx
			if v, ok := s.opSpans.Load(rid); ok {
				parent = trace.ContextWithSpan(ctx, v.(trace.Span))
			}
			_, span := s.tracer.Start(parent, "graphql.http")
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.url", e.Request.URL.String()),
				attribute.String("graphql.operation.name", e.OperationName),
			)
			s.httpSpans.Store(rid, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.HTTPRequestFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.httpSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (s *subscriber) endOp(ctx context.Context, annotate func(trace.Span)) {
	rid, _ := reqid.FromContext(ctx)
	v, ok := s.opSpans.LoadAndDelete(rid)
	if !ok {
		return
	}
	span := v.(trace.Span)
	annotate(span)
	span.End()
}
