package natsx

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HeaderCarrier adapts nats.Header to propagation.TextMapCarrier.
type HeaderCarrier struct {
	Header nats.Header
}

func (c *HeaderCarrier) Get(key string) string { return c.Header.Get(key) }

func (c *HeaderCarrier) Set(key, value string) { c.Header.Set(key, value) }

func (c *HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

var tracer = otel.Tracer("github.com/cwrk-planet/chat-service/natsx")

func InjectContext(ctx context.Context) nats.Header {
	h := nats.Header{}
	otel.GetTextMapPropagator().Inject(ctx, &HeaderCarrier{Header: h})
	return h
}

func ExtractContext(ctx context.Context, header nats.Header) context.Context {
	if header == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, &HeaderCarrier{Header: header})
}

// Publisher is the subset of *nats.Conn used for publishing.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
	RequestMsg(m *nats.Msg, timeout time.Duration) (*nats.Msg, error)
}

// TracedPublish publishes with trace context in headers under a PRODUCER span.
func TracedPublish(ctx context.Context, nc Publisher, subject string, data []byte) error {
	ctx, span := tracer.Start(ctx, subject+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(messagingAttrs(subject, len(data))...),
	)
	defer span.End()

	err := nc.PublishMsg(&nats.Msg{Subject: subject, Data: data, Header: InjectContext(ctx)})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// TracedRequest sends a request under a CLIENT span; timeout comes from ctx
// when it has a deadline, otherwise nats.DefaultTimeout.
func TracedRequest(ctx context.Context, nc Publisher, subject string, data []byte) (*nats.Msg, error) {
	ctx, span := tracer.Start(ctx, subject+" request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(messagingAttrs(subject, len(data))...),
	)
	defer span.End()

	timeout := nats.DefaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	reply, err := nc.RequestMsg(&nats.Msg{Subject: subject, Data: data, Header: InjectContext(ctx)}, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("messaging.message.response_size_bytes", len(reply.Data)))
	return reply, nil
}

// StartConsumerSpan continues the producer's trace for a received message.
// Caller must call span.End().
func StartConsumerSpan(ctx context.Context, msg *nats.Msg, operation string) (context.Context, trace.Span) {
	ctx = ExtractContext(ctx, msg.Header)
	return tracer.Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(messagingAttrs(msg.Subject, len(msg.Data))...),
	)
}

func messagingAttrs(subject string, size int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("messaging.system", "nats"),
		attribute.String("messaging.destination.name", subject),
		attribute.Int("messaging.message.payload_size_bytes", size),
	}
}
