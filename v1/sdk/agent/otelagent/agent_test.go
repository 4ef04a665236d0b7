// Copyright (C) 2021 Librato, Inc. All rights reserved.

package otelagent_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent/otelagent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func setup(t *testing.T, opts ...sdk.Option) (sdk.SDK, *otelagent.Agent, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	a := otelagent.New(tp)
	s := sdk.New(append([]sdk.Option{sdk.WithAgent(a)}, opts...)...)
	require.Equal(t, sdk.StateActive, s.CurrentState())
	return s, a, sr
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestRemoteCallStringTag(t *testing.T) {
	s, _, sr := setup(t)
	out := s.TraceOutgoingRemoteCall(context.Background(), "Get", "UserService", "users:8080", sdk.ChannelTCPIP, "users:8080")
	out.Start()
	tag := out.StringTag()
	require.Contains(t, tag, "traceparent=")

	in := s.TraceIncomingRemoteCall(context.Background(), "Get", "UserService", "users:8080")
	in.SetStringTag(tag)
	in.Start()
	in.End()
	out.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	server, client := spans[0], spans[1]
	assert.Equal(t, trace.SpanKindServer, server.SpanKind())
	assert.Equal(t, trace.SpanKindClient, client.SpanKind())
	assert.Equal(t, client.SpanContext().TraceID(), server.SpanContext().TraceID())
	assert.Equal(t, client.SpanContext().SpanID(), server.Parent().SpanID())
	assert.True(t, server.Parent().IsRemote())
	assert.Equal(t, "Get", server.Name())

	v, ok := attr(client, "ChannelType")
	assert.True(t, ok)
	assert.Equal(t, "TCP_IP", v.AsString())
}

func TestMessageByteTag(t *testing.T) {
	s, _, sr := setup(t)
	out := s.TraceOutgoingMessage(context.Background(), sdk.MessagingSystemInfo{
		VendorName: sdk.MessagingVendorRabbitMQ, DestinationName: "orders",
	})
	out.Start()
	b := out.ByteTag()
	require.NotEmpty(t, b)
	assert.Equal(t, out.StringTag(), otelagent.StringTagFromBytes(b))
	assert.Equal(t, b, otelagent.BytesTagFromString(out.StringTag()))

	in := s.TraceIncomingMessageProcess(context.Background(), sdk.MessagingSystemInfo{DestinationName: "orders"})
	in.SetByteTag(b)
	in.Start()
	in.End()
	out.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, trace.SpanKindConsumer, spans[0].SpanKind())
	assert.Equal(t, trace.SpanKindProducer, spans[1].SpanKind())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, "orders", spans[0].Name())
}

func TestWebRequestHeaders(t *testing.T) {
	s, _, sr := setup(t)
	out := s.TraceOutgoingWebRequest(context.Background(), "http://shop/cart", "GET")
	out.Start()
	headers := http.Header{}
	sdk.InjectTracingHeadersTo(out, headers, func(name, value string, h http.Header) { h.Set(name, value) })
	assert.NotEmpty(t, headers.Get("traceparent"))
	assert.Equal(t, out.StringTag(), headers.Get(sdk.HTTPHeaderName))

	// only the W3C header reaches the server
	in := s.TraceIncomingWebRequest(context.Background(), sdk.WebApplicationInfo{}, "http://shop/cart", "GET")
	in.AddRequestHeader("traceparent", headers.Get("traceparent"))
	in.Start()
	in.AddResponseHeader("Content-Type", "text/html")
	in.SetStatusCode(http.StatusOK)
	in.End()
	out.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	server := spans[0]
	assert.Equal(t, spans[1].SpanContext().SpanID(), server.Parent().SpanID())
	assert.Equal(t, "GET /cart", server.Name())

	v, ok := attr(server, "StatusCode")
	assert.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), v.AsInt64())
	v, ok = attr(server, "ResponseHeaders.Content-Type")
	assert.True(t, ok)
	assert.Equal(t, []string{"text/html"}, v.AsStringSlice())
}

func TestErrorStatus(t *testing.T) {
	s, _, sr := setup(t)
	tr := s.TraceSQLDatabaseRequest(context.Background(), sdk.DatabaseInfo{Name: "users"}, "SELECT 1")
	_ = tr.Trace(func() error { return assert.AnError })

	span := sr.Ended()[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, assert.AnError.Error(), span.Status().Description)
	require.Len(t, span.Events(), 1)
	assert.Equal(t, "exception", span.Events()[0].Name)
	v, ok := attr(span, "Statement")
	assert.True(t, ok)
	assert.Equal(t, "SELECT 1", v.AsString())
}

func TestCustomAttributesAndContextInfo(t *testing.T) {
	s, _, sr := setup(t)
	tr := s.TraceIncomingRemoteCall(context.Background(), "Get", "S", "E")
	tr.Start()
	s.AddCustomRequestAttributeString(tr.Context(), "tier", "gold")
	s.AddCustomRequestAttributeString(tr.Context(), "tier", "silver")
	info := s.TraceContextInfo(tr.Context())
	tr.End()

	span := sr.Ended()[0]
	assert.Len(t, span.Events(), 2)
	assert.Equal(t, otelagent.KeyCustomAttribute, span.Events()[1].Name)
	assert.Equal(t, span.SpanContext().TraceID().String(), info.TraceID)
	assert.Equal(t, span.SpanContext().SpanID().String(), info.SpanID)
	assert.True(t, info.IsValid())
}

func TestInProcessLinkAndServiceName(t *testing.T) {
	s, _, sr := setup(t, sdk.WithServiceName("checkout"))
	root := s.TraceIncomingWebRequest(context.Background(), sdk.WebApplicationInfo{}, "/checkout", "POST")
	root.Start()
	link := s.CreateInProcessLink(root.Context())
	root.End()

	f := sdk.TraceAsync(s.TraceInProcessLink(context.Background(), link), func(context.Context) error { return nil })
	_, err := f.Wait()
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	rootSpan, child := spans[0], spans[1]
	assert.Equal(t, rootSpan.SpanContext().SpanID(), child.Parent().SpanID())
	assert.Equal(t, trace.SpanKindInternal, child.SpanKind())

	v, ok := attr(rootSpan, otelagent.KeyServiceName)
	assert.True(t, ok)
	assert.Equal(t, "checkout", v.AsString())
	_, ok = attr(child, otelagent.KeyServiceName)
	assert.False(t, ok)
	v, ok = attr(child, otelagent.KeyAsync)
	assert.True(t, ok)
	assert.True(t, v.AsBool())
}

func TestInactive(t *testing.T) {
	s, a, sr := setup(t)
	a.SetActive(false)
	assert.Equal(t, sdk.StateTemporarilyInactive, s.CurrentState())
	assert.NoError(t, s.TraceSQLDatabaseRequest(context.Background(), sdk.DatabaseInfo{}, "").Trace(nil))
	assert.Empty(t, sr.Ended())
}

func TestNoTraceContext(t *testing.T) {
	a := otelagent.New(nil)
	_, _, ok := a.TraceContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, a.NewLink(context.Background()))
	assert.NotPanics(t, func() { a.AddCustomRequestAttribute(context.Background(), "k", 1) })
}

func TestNoopProviderIsInactive(t *testing.T) {
	a := otelagent.New(noop.NewTracerProvider())
	assert.False(t, a.Active())

	s := sdk.New(sdk.WithAgent(a))
	assert.Equal(t, sdk.StateTemporarilyInactive, s.CurrentState())
	out := s.TraceOutgoingRemoteCall(context.Background(), "charge", "billing", "grpc://billing", sdk.ChannelTCPIP, "billing:443")
	out.Start()
	defer out.End()
	assert.Empty(t, out.StringTag())
}

func TestGlobalProviderActivatesAgent(t *testing.T) {
	a := otelagent.New(nil)
	s := sdk.New(sdk.WithAgent(a))
	assert.Equal(t, sdk.StateTemporarilyInactive, s.CurrentState())

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTracerProvider(tp)

	assert.Equal(t, sdk.StateActive, s.CurrentState())
	out := s.TraceOutgoingRemoteCall(context.Background(), "charge", "billing", "grpc://billing", sdk.ChannelTCPIP, "billing:443")
	out.Start()
	assert.NotEmpty(t, out.StringTag())
	out.End()
	require.Len(t, sr.Ended(), 1, "only the traced call is exported")
	assert.Equal(t, trace.SpanKindClient, sr.Ended()[0].SpanKind())
}
