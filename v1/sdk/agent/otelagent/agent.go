// Copyright (C) 2021 Librato, Inc. All rights reserved.

// Package otelagent implements the SDK agent on top of OpenTelemetry. Tracers
// become OpenTelemetry spans, and tags carry the W3C trace context.
package otelagent

import (
	"context"
	"net/http"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/internal/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
)

// InstrumentationName is the name of the OpenTelemetry tracer the agent uses.
const InstrumentationName = "github.com/appoptics/appoptics-sdk-go"

// Attribute keys added by the agent
const (
	KeyServiceName     = "service.name"
	KeyAsync           = "sdk.async"
	KeyCustomAttribute = "sdk.custom_attribute"
	eventException     = "exception"
	keyExceptionMsg    = "exception.message"
	keyCustomKey       = "key"
	keyCustomValue     = "value"
)

var spanKinds = map[agent.Kind]trace.SpanKind{
	agent.KindIncomingRemoteCall:     trace.SpanKindServer,
	agent.KindOutgoingRemoteCall:     trace.SpanKindClient,
	agent.KindDatabaseRequest:        trace.SpanKindClient,
	agent.KindOutgoingMessage:        trace.SpanKindProducer,
	agent.KindIncomingMessageReceive: trace.SpanKindConsumer,
	agent.KindIncomingMessageProcess: trace.SpanKindConsumer,
	agent.KindIncomingWebRequest:     trace.SpanKindServer,
	agent.KindOutgoingWebRequest:     trace.SpanKindClient,
	agent.KindInProcessLink:          trace.SpanKindInternal,
}

// Agent reports tracers as OpenTelemetry spans.
type Agent struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	active     atomic.Bool
	service    atomic.String
	// recording is set once the tracer has produced a real span.
	recording atomic.Bool
}

// Option values may be passed to New.
type Option func(*Agent)

// WithPropagator replaces the W3C trace context propagator which encodes tags
// and headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(a *Agent) { a.propagator = p }
}

// New returns an Agent creating spans with tp. A nil tp means the global
// TracerProvider. The agent is inactive while tp is a no-op provider.
func New(tp trace.TracerProvider, opts ...Option) *Agent {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	a := &Agent{
		tracer: tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(otel.Version())),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{}),
	}
	a.active.Store(true)
	for _, opt := range opts {
		opt(a)
	}
	if !a.producesSpans() {
		log.Warning("otelagent: the TracerProvider does not record spans, the agent stays inactive until it does")
	}
	return a
}

// Version implements agent.Agent. It is the version of OpenTelemetry.
func (a *Agent) Version() string { return otel.Version() }

// Active implements agent.Agent. An agent whose TracerProvider is a no-op,
// like the global one before otel.SetTracerProvider, is not active.
func (a *Agent) Active() bool { return a.active.Load() && a.producesSpans() }

// checkParent is a remote parent which is not sampled, so that the span
// started under it by producesSpans is dropped by parent based samplers.
var checkParent = trace.NewSpanContext(trace.SpanContextConfig{
	TraceID: trace.TraceID{0x5d, 0x4b},
	SpanID:  trace.SpanID{0x5d, 0x4b},
	Remote:  true,
})

// producesSpans reports whether the tracer creates spans of its own. No-op
// tracers hand back the parent span instead. A positive answer is kept;
// a negative one is checked again, since the global provider may be set later.
func (a *Agent) producesSpans() bool {
	if a.recording.Load() {
		return true
	}
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), checkParent)
	_, span := a.tracer.Start(ctx, "sdk.capture_check")
	sc := span.SpanContext()
	span.End()
	if !sc.IsValid() || sc.SpanID() == checkParent.SpanID() {
		return false
	}
	a.recording.Store(true)
	return true
}

// SetActive switches capturing on or off at runtime.
func (a *Agent) SetActive(active bool) { a.active.Store(active) }

// SetServiceName implements agent.ServiceNamer. The name is added to the
// spans which start a trace in this process.
func (a *Agent) SetServiceName(name string) { a.service.Store(name) }

// Begin implements agent.Agent.
func (a *Agent) Begin(ctx context.Context, opts agent.StartOptions) agent.Span {
	parent := a.parentContext(ctx, opts)

	kvs := toAttributes(opts.Attributes)
	if opts.Async {
		kvs = append(kvs, attribute.Bool(KeyAsync, true))
	}
	if svc := a.service.Load(); svc != "" && !trace.SpanContextFromContext(parent).IsValid() {
		kvs = append(kvs, attribute.String(KeyServiceName, svc))
	}

	spanCtx, span := a.tracer.Start(parent, spanName(opts),
		trace.WithSpanKind(spanKinds[opts.Kind]),
		trace.WithAttributes(kvs...))
	return &otelSpan{ctx: spanCtx, span: span, propagator: a.propagator}
}

// parentContext returns the context the span of a tracer starts in: the one
// encoded in its tag or link if there is one, ctx otherwise.
func (a *Agent) parentContext(ctx context.Context, opts agent.StartOptions) context.Context {
	var carrier propagation.MapCarrier
	switch {
	case opts.Kind == agent.KindInProcessLink:
		carrier = decodeByteTag(opts.Link)
	case opts.IncomingTag.Text != "":
		carrier = decodeStringTag(opts.IncomingTag.Text)
	case len(opts.IncomingTag.Binary) > 0:
		carrier = decodeByteTag(opts.IncomingTag.Binary)
	case opts.Kind == agent.KindIncomingWebRequest:
		if headers, ok := opts.Attributes[agent.KeyRequestHeaders].(map[string][]string); ok {
			h := http.Header{}
			for name, values := range headers {
				for _, v := range values {
					h.Add(name, v)
				}
			}
			return a.propagator.Extract(ctx, propagation.HeaderCarrier(h))
		}
	}
	if len(carrier) == 0 {
		return ctx
	}
	return a.propagator.Extract(ctx, carrier)
}

func spanName(opts agent.StartOptions) string {
	if opts.Name != "" {
		return opts.Name
	}
	return opts.Kind.String()
}

// AddCustomRequestAttribute implements agent.Agent. Each call adds an event
// to the span in ctx so that repeated keys keep all their values.
func (a *Agent) AddCustomRequestAttribute(ctx context.Context, key string, value interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(KeyCustomAttribute, trace.WithAttributes(
		attribute.String(keyCustomKey, key),
		toAttribute(keyCustomValue, value)))
}

// TraceContext implements agent.Agent.
func (a *Agent) TraceContext(ctx context.Context) (string, string, bool) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}

// NewLink implements agent.Agent.
func (a *Agent) NewLink(ctx context.Context) []byte {
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return nil
	}
	carrier := propagation.MapCarrier{}
	a.propagator.Inject(ctx, carrier)
	return encodeByteTag(carrier)
}

type otelSpan struct {
	ctx        context.Context
	span       trace.Span
	propagator propagation.TextMapPropagator
}

func (s *otelSpan) Context() context.Context { return s.ctx }

func (s *otelSpan) carrier() propagation.MapCarrier {
	carrier := propagation.MapCarrier{}
	s.propagator.Inject(s.ctx, carrier)
	return carrier
}

func (s *otelSpan) StringTag() string { return encodeStringTag(s.carrier()) }

func (s *otelSpan) ByteTag() []byte { return encodeByteTag(s.carrier()) }

func (s *otelSpan) Headers() map[string]string { return s.carrier() }

func (s *otelSpan) Error(msg string) {
	s.span.SetStatus(codes.Error, msg)
	s.span.AddEvent(eventException, trace.WithAttributes(attribute.String(keyExceptionMsg, msg)))
}

func (s *otelSpan) End(attrs agent.KVMap) {
	if len(attrs) > 0 {
		s.span.SetAttributes(toAttributes(attrs)...)
	}
	s.span.End()
}
