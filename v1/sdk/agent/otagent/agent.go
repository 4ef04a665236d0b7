// Copyright (C) 2017 Librato, Inc. All rights reserved.

// Package otagent implements the SDK agent on top of an OpenTracing tracer.
// Tags are the tracer's own TextMap and Binary propagation formats.
package otagent

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/internal/log"
	basictracer "github.com/opentracing/basictracer-go"
	ot "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otlog "github.com/opentracing/opentracing-go/log"
	"go.uber.org/atomic"
)

// Version is the OpenTracing API version the agent implements.
const Version = "1.1.0"

// Tag and log field keys added by the agent
const (
	KeyServiceName     = "service.name"
	KeyAsync           = "sdk.async"
	KeyCustomAttribute = "sdk.custom_attribute"
	fieldEvent         = "event"
	fieldMessage       = "message"
	fieldKey           = "key"
	fieldValue         = "value"
)

var spanKinds = map[agent.Kind]ot.StartSpanOption{
	agent.KindIncomingRemoteCall:     ext.SpanKindRPCServer,
	agent.KindOutgoingRemoteCall:     ext.SpanKindRPCClient,
	agent.KindDatabaseRequest:        ext.SpanKindRPCClient,
	agent.KindOutgoingMessage:        ext.SpanKindProducer,
	agent.KindIncomingMessageReceive: ext.SpanKindConsumer,
	agent.KindIncomingMessageProcess: ext.SpanKindConsumer,
	agent.KindIncomingWebRequest:     ext.SpanKindRPCServer,
	agent.KindOutgoingWebRequest:     ext.SpanKindRPCClient,
}

// Agent reports tracers as OpenTracing spans.
type Agent struct {
	tracer  ot.Tracer
	active  atomic.Bool
	service atomic.String
}

// New returns an Agent creating spans with tracer. A nil tracer means the
// global tracer.
func New(tracer ot.Tracer) *Agent {
	if tracer == nil {
		tracer = ot.GlobalTracer()
	}
	a := &Agent{tracer: tracer}
	a.active.Store(true)
	return a
}

// Version implements agent.Agent.
func (a *Agent) Version() string { return Version }

// Active implements agent.Agent.
func (a *Agent) Active() bool { return a.active.Load() }

// SetActive switches capturing on or off at runtime.
func (a *Agent) SetActive(active bool) { a.active.Store(active) }

// SetServiceName implements agent.ServiceNamer.
func (a *Agent) SetServiceName(name string) { a.service.Store(name) }

// Begin implements agent.Agent.
func (a *Agent) Begin(ctx context.Context, opts agent.StartOptions) agent.Span {
	var startOpts []ot.StartSpanOption
	parent := a.parent(opts)
	if parent == nil {
		if span := ot.SpanFromContext(ctx); span != nil {
			parent = span.Context()
		}
	}
	if parent != nil {
		startOpts = append(startOpts, ot.ChildOf(parent))
	} else if svc := a.service.Load(); svc != "" {
		startOpts = append(startOpts, ot.Tag{Key: KeyServiceName, Value: svc})
	}
	if kind, ok := spanKinds[opts.Kind]; ok {
		startOpts = append(startOpts, kind)
	}
	if opts.Async {
		startOpts = append(startOpts, ot.Tag{Key: KeyAsync, Value: true})
	}
	startOpts = append(startOpts, ot.Tags(flatten(opts.Attributes)))

	name := opts.Name
	if name == "" {
		name = opts.Kind.String()
	}
	span := a.tracer.StartSpan(name, startOpts...)
	return &otSpan{ctx: ot.ContextWithSpan(ctx, span), span: span, tracer: a.tracer}
}

// parent extracts the remote span context carried by the tag, link or
// request headers of a tracer.
func (a *Agent) parent(opts agent.StartOptions) ot.SpanContext {
	var (
		sc  ot.SpanContext
		err error
	)
	switch {
	case opts.Kind == agent.KindInProcessLink:
		if len(opts.Link) == 0 {
			return nil
		}
		sc, err = a.tracer.Extract(ot.Binary, bytes.NewReader(opts.Link))
	case opts.IncomingTag.Text != "":
		sc, err = a.tracer.Extract(ot.TextMap, decodeStringTag(opts.IncomingTag.Text))
	case len(opts.IncomingTag.Binary) > 0:
		sc, err = a.tracer.Extract(ot.Binary, bytes.NewReader(opts.IncomingTag.Binary))
	case opts.Kind == agent.KindIncomingWebRequest:
		headers, ok := opts.Attributes[agent.KeyRequestHeaders].(map[string][]string)
		if !ok {
			return nil
		}
		h := http.Header{}
		for name, values := range headers {
			for _, v := range values {
				h.Add(name, v)
			}
		}
		sc, err = a.tracer.Extract(ot.HTTPHeaders, ot.HTTPHeadersCarrier(h))
		if err == ot.ErrSpanContextNotFound {
			return nil
		}
	default:
		return nil
	}
	if err != nil {
		log.Debugf("otagent: dropping unreadable tag of %s: %v", opts.Kind, err)
		return nil
	}
	return sc
}

// AddCustomRequestAttribute implements agent.Agent. The pair is logged on the
// span in ctx.
func (a *Agent) AddCustomRequestAttribute(ctx context.Context, key string, value interface{}) {
	span := ot.SpanFromContext(ctx)
	if span == nil {
		return
	}
	span.LogFields(
		otlog.String(fieldEvent, KeyCustomAttribute),
		otlog.String(fieldKey, key),
		otlog.Object(fieldValue, value))
}

// TraceContext implements agent.Agent. Only span contexts of basictracer
// expose their IDs.
func (a *Agent) TraceContext(ctx context.Context) (string, string, bool) {
	span := ot.SpanFromContext(ctx)
	if span == nil {
		return "", "", false
	}
	sc, ok := span.Context().(basictracer.SpanContext)
	if !ok {
		return "", "", false
	}
	return fmt.Sprintf("%032x", sc.TraceID), fmt.Sprintf("%016x", sc.SpanID), true
}

// NewLink implements agent.Agent.
func (a *Agent) NewLink(ctx context.Context) []byte {
	span := ot.SpanFromContext(ctx)
	if span == nil {
		return nil
	}
	return injectBinary(a.tracer, span.Context())
}

func injectBinary(tracer ot.Tracer, sc ot.SpanContext) []byte {
	var buf bytes.Buffer
	if err := tracer.Inject(sc, ot.Binary, &buf); err != nil {
		log.Debugf("otagent: binary inject failed: %v", err)
		return []byte{}
	}
	return buf.Bytes()
}

type otSpan struct {
	ctx    context.Context
	span   ot.Span
	tracer ot.Tracer
}

func (s *otSpan) Context() context.Context { return s.ctx }

func (s *otSpan) StringTag() string {
	carrier := ot.TextMapCarrier{}
	if err := s.tracer.Inject(s.span.Context(), ot.TextMap, carrier); err != nil {
		log.Debugf("otagent: text map inject failed: %v", err)
	}
	return encodeStringTag(carrier)
}

func (s *otSpan) ByteTag() []byte { return injectBinary(s.tracer, s.span.Context()) }

func (s *otSpan) Headers() map[string]string {
	h := http.Header{}
	if err := s.tracer.Inject(s.span.Context(), ot.HTTPHeaders, ot.HTTPHeadersCarrier(h)); err != nil {
		log.Debugf("otagent: header inject failed: %v", err)
	}
	headers := make(map[string]string, len(h))
	for name := range h {
		headers[name] = h.Get(name)
	}
	return headers
}

func (s *otSpan) Error(msg string) {
	ext.Error.Set(s.span, true)
	s.span.LogFields(otlog.String(fieldEvent, "error"), otlog.String(fieldMessage, msg))
}

func (s *otSpan) End(attrs agent.KVMap) {
	for k, v := range flatten(attrs) {
		s.span.SetTag(k, v)
	}
	s.span.Finish()
}
