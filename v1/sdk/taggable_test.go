// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteCallEndToEnd(t *testing.T) {
	s, a, cb := newTestSDK(t, nil)

	out := s.TraceOutgoingRemoteCall(context.Background(), "M", "S", "E", sdk.ChannelTCPIP, "host:1234")
	out.SetProtocolName("gRPC")
	out.Start()
	tag := out.StringTag()
	assert.NotEmpty(t, tag)

	in := s.TraceIncomingRemoteCall(context.Background(), "M", "S", "E")
	in.SetStringTag(tag)
	in.SetProtocolName("gRPC")
	in.Start()
	in.End()
	out.End()

	assert.Empty(t, cb.Warnings())
	spans := a.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, agent.Tag{Text: tag}, spans[1].Options.IncomingTag)
	assert.Equal(t, spans[0].TraceID, spans[1].TraceID)
	assert.Equal(t, spans[0].ID, spans[1].ParentID)
	assert.Equal(t, "M", spans[0].Options.Attributes[agent.KeyServiceMethod])
	assert.Equal(t, "S", spans[0].Options.Attributes[agent.KeyServiceName])
	assert.Equal(t, "E", spans[0].Options.Attributes[agent.KeyServiceEndpoint])
	assert.Equal(t, "host:1234", spans[0].Options.Attributes[agent.KeyChannelEndpoint])
	assert.Equal(t, "gRPC", spans[1].Options.Attributes[agent.KeyProtocolName])
}

func TestIncomingTagClearedAndOverwritten(t *testing.T) {
	s, a, _ := newTestSDK(t, nil)

	tr := s.TraceIncomingRemoteCall(context.Background(), "M", "S", "E")
	tr.SetStringTag("agenttest;1;1")
	tr.SetStringTag("")
	tr.Start()
	tr.End()
	assert.True(t, a.Spans()[0].Options.IncomingTag.IsEmpty())

	tr = s.TraceIncomingRemoteCall(context.Background(), "M", "S", "E")
	tr.SetByteTag([]byte("agenttest;1;1"))
	tr.SetByteTag(nil)
	tr.Start()
	tr.End()
	assert.True(t, a.Spans()[1].Options.IncomingTag.IsEmpty())

	tr = s.TraceIncomingRemoteCall(context.Background(), "M", "S", "E")
	tr.SetStringTag("agenttest;1;1")
	tr.SetByteTag([]byte("agenttest;2;2"))
	tr.Start()
	tr.End()
	assert.Equal(t, agent.Tag{Binary: []byte("agenttest;2;2")}, a.Spans()[2].Options.IncomingTag)
}

func TestByteTagIsCopied(t *testing.T) {
	s, a, _ := newTestSDK(t, nil)
	b := []byte("agenttest;1;1")
	tr := s.TraceIncomingMessageProcess(context.Background(), testQueue)
	tr.SetByteTag(b)
	b[0] = 'X'
	tr.Start()
	tr.End()
	assert.Equal(t, []byte("agenttest;1;1"), a.Spans()[0].Options.IncomingTag.Binary)
}

func TestOutgoingTagsNeverNil(t *testing.T) {
	active, _, _ := newTestSDK(t, nil)
	for _, s := range []sdk.SDK{active, sdk.NewDummy()} {
		taggables := []interface {
			sdk.Tracer
			sdk.OutgoingTaggable
		}{
			s.TraceOutgoingRemoteCall(context.Background(), "M", "S", "E", sdk.ChannelOther, ""),
			s.TraceOutgoingMessage(context.Background(), testQueue),
			s.TraceOutgoingWebRequest(context.Background(), "http://x", "GET"),
		}
		for _, tr := range taggables {
			assert.NotNil(t, tr.ByteTag())
			assert.Equal(t, "", tr.StringTag())
			tr.Start()
			assert.NotNil(t, tr.ByteTag())
			assert.Equal(t, len(tr.StringTag()) > 0, s.CurrentState() == sdk.StateActive)
			tr.End()
			assert.NotNil(t, tr.ByteTag())
		}
	}
}

func TestInjectOverwritesAddAccumulates(t *testing.T) {
	s, a, cb := newTestSDK(t, nil)
	tr := s.TraceOutgoingWebRequest(context.Background(), "http://users/1", "GET")
	tr.AddRequestHeader("Accept", "text/html")
	tr.AddRequestHeader("Accept", "application/json")
	tr.Start()

	header := http.Header{}
	set := func(name, value string, h http.Header) { h.Set(name, value) }
	sdk.InjectTracingHeadersTo(tr, header, set)
	sdk.InjectTracingHeadersTo(tr, header, set)

	tr.AddResponseHeader("Set-Cookie", "a=1")
	tr.AddResponseHeader("Set-Cookie", "b=2")
	tr.SetStatusCode(http.StatusOK)
	tr.End()

	assert.Empty(t, cb.Warnings())
	assert.Equal(t, []string{tr.StringTag()}, header.Values(sdk.HTTPHeaderName))
	assert.Len(t, header.Values("traceparent"), 1)

	span := a.Spans()[0]
	assert.Equal(t, map[string][]string{"Accept": {"text/html", "application/json"}},
		span.Options.Attributes[agent.KeyRequestHeaders])
	assert.Equal(t, agent.KVMap{
		agent.KeyResponseHeaders: map[string][]string{"Set-Cookie": {"a=1", "b=2"}},
		agent.KeyStatusCode:      http.StatusOK,
	}, span.EndAttributes())
}

func TestInjectOutsideStarted(t *testing.T) {
	s, _, cb := newTestSDK(t, nil)
	tr := s.TraceOutgoingWebRequest(context.Background(), "http://users/1", "GET")
	calls := 0
	setter := func(string, string) { calls++ }

	tr.InjectTracingHeaders(setter)
	tr.Start()
	tr.InjectTracingHeaders(nil)
	tr.End()
	tr.InjectTracingHeaders(setter)

	assert.Equal(t, 0, calls)
	assert.Len(t, cb.Warnings(), 3)
}

func TestInjectWithoutLegacyHeader(t *testing.T) {
	s, _, _ := newTestSDK(t, nil, sdk.WithLegacyHeader(false))
	tr := s.TraceOutgoingWebRequest(context.Background(), "http://users/1", "GET")
	tr.Start()
	carrier := map[string]string{}
	sdk.InjectTracingHeadersTo(tr, carrier, func(name, value string, c map[string]string) { c[name] = value })
	tr.End()

	assert.Len(t, carrier, 1)
	assert.Contains(t, carrier, "traceparent")
}

func TestIncomingWebRequestHeaderTag(t *testing.T) {
	s, a, _ := newTestSDK(t, nil)
	out := s.TraceOutgoingWebRequest(context.Background(), "http://shop/cart", "GET")
	out.Start()
	header := http.Header{}
	sdk.InjectTracingHeadersTo(out, header, func(name, value string, h http.Header) { h.Set(name, value) })

	in := s.TraceIncomingWebRequest(context.Background(), testApp, "http://shop/cart", "GET")
	for name, values := range header {
		for _, v := range values {
			in.AddRequestHeader(name, v)
		}
	}
	in.Start()
	in.SetStatusCode(http.StatusNoContent)
	in.End()
	out.End()

	spans := a.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, out.StringTag(), spans[1].Options.IncomingTag.Text)
	assert.Equal(t, spans[0].ID, spans[1].ParentID)

	// an explicit tag wins over the header
	in = s.TraceIncomingWebRequest(context.Background(), testApp, "http://shop/cart", "GET")
	in.AddRequestHeader(sdk.HTTPHeaderName, out.StringTag())
	in.SetStringTag("explicit")
	in.Start()
	in.End()
	assert.Equal(t, "explicit", a.Spans()[2].Options.IncomingTag.Text)
}

func TestIncomingWebRequestHeaderTagSpellings(t *testing.T) {
	s, a, _ := newTestSDK(t, nil)
	for i := 0; i < 20; i++ {
		in := s.TraceIncomingWebRequest(context.Background(), testApp, "http://shop/cart", "GET")
		in.AddRequestHeader("x-dynatrace", "lower")
		in.AddRequestHeader("X-DYNATRACE", "upper")
		in.AddRequestHeader(sdk.HTTPHeaderName, "exact")
		in.Start()
		in.End()
	}
	for _, span := range a.Spans() {
		assert.Equal(t, "exact", span.Options.IncomingTag.Text)
	}

	// without the exact spelling, the first name in sorted order is used
	in := s.TraceIncomingWebRequest(context.Background(), testApp, "http://shop/cart", "GET")
	in.AddRequestHeader("x-dynatrace", "lower")
	in.AddRequestHeader("X-DYNATRACE", "upper")
	in.Start()
	in.End()
	spans := a.Spans()
	assert.Equal(t, "upper", spans[len(spans)-1].Options.IncomingTag.Text)
}
