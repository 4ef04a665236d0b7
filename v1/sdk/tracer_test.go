// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk_test

import (
	"context"
	"testing"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent/agenttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartEndNoWarnings(t *testing.T) {
	for name, newTracer := range tracerKinds {
		t.Run(name, func(t *testing.T) {
			s, a, cb := newTestSDK(t, nil)
			tr := newTracer(s, context.Background())
			tr.Start()
			tr.End()

			assert.Empty(t, cb.Warnings())
			require.Len(t, a.Spans(), 1)
			assert.Equal(t, 1, a.Spans()[0].EndCount())
			assert.Equal(t, name, a.Spans()[0].Options.Kind.String())
		})
	}
}

func TestDoubleStart(t *testing.T) {
	for name, newTracer := range tracerKinds {
		t.Run(name, func(t *testing.T) {
			s, a, cb := newTestSDK(t, nil)
			tr := newTracer(s, context.Background())
			assert.NotPanics(t, func() {
				tr.Start()
				tr.Start()
				tr.StartAsync()
			})
			assert.Len(t, cb.Warnings(), 2)
			assert.Len(t, a.Spans(), 1)
			tr.End()
			assert.Len(t, cb.Warnings(), 2)
		})
	}
}

func TestEndBeforeStart(t *testing.T) {
	for name, newTracer := range tracerKinds {
		t.Run(name, func(t *testing.T) {
			s, a, cb := newTestSDK(t, nil)
			tr := newTracer(s, context.Background())
			assert.NotPanics(t, tr.End)
			assert.Len(t, cb.Warnings(), 1)
			assert.Empty(t, a.Spans())

			assert.NotPanics(t, tr.Start)
			tr.End()
			assert.Len(t, cb.Warnings(), 1)
			require.Len(t, a.Spans(), 1)
			assert.True(t, a.Spans()[0].Ended())
		})
	}
}

func TestDoubleEnd(t *testing.T) {
	s, a, cb := newTestSDK(t, nil)
	tr := s.TraceSQLDatabaseRequest(context.Background(), testDB, "SELECT 1")
	tr.Start()
	tr.End()
	tr.End()
	assert.Len(t, cb.Warnings(), 1)
	assert.Equal(t, 1, a.Spans()[0].EndCount())
}

func TestErrorFirstWins(t *testing.T) {
	s, a, cb := newTestSDK(t, nil)
	tr := s.TraceSQLDatabaseRequest(context.Background(), testDB, "SELECT 1")

	tr.Error("too early")
	assert.Len(t, cb.Warnings(), 1)

	tr.Start()
	tr.Err(nil)
	tr.Error("connection refused")
	tr.Error("timeout")
	tr.End()
	tr.Error("too late")

	assert.Len(t, cb.Warnings(), 3)
	assert.Equal(t, []string{"connection refused"}, a.Spans()[0].Errors())
}

func TestPreStartFieldsFrozen(t *testing.T) {
	s, a, cb := newTestSDK(t, nil)
	tr := s.TraceIncomingWebRequest(context.Background(), testApp, "http://shop/cart?id=1", "POST")
	tr.SetRemoteAddress("10.0.0.1")
	tr.AddRequestHeader("Accept", "text/html")
	tr.AddParameter("id", "1")
	tr.Start()
	tr.SetRemoteAddress("10.0.0.2")
	tr.AddRequestHeader("Accept", "application/json")
	tr.AddParameter("id", "2")
	tr.SetStringTag("late")
	tr.End()

	assert.Len(t, cb.Warnings(), 4)
	attrs := a.Spans()[0].Options.Attributes
	assert.Equal(t, "10.0.0.1", attrs[agent.KeyRemoteAddress])
	assert.Equal(t, map[string][]string{"Accept": {"text/html"}}, attrs[agent.KeyRequestHeaders])
	assert.Equal(t, map[string][]string{"id": {"1"}}, attrs[agent.KeyParameters])
	assert.Equal(t, "POST", attrs[agent.KeyMethod])
	assert.Equal(t, "shop", attrs[agent.KeyApplicationID])
	assert.True(t, a.Spans()[0].Options.IncomingTag.IsEmpty())
}

func TestPreEndFieldsWindow(t *testing.T) {
	s, a, cb := newTestSDK(t, nil)
	tr := s.TraceSQLDatabaseRequest(context.Background(), testDB, "SELECT * FROM users")
	tr.SetRowsReturned(1)
	tr.Start()
	tr.SetRowsReturned(42)
	tr.SetRoundTripCount(3)
	tr.End()
	tr.SetRoundTripCount(4)

	assert.Len(t, cb.Warnings(), 2)
	span := a.Spans()[0]
	assert.Equal(t, agent.KVMap{agent.KeyRowsReturned: 42, agent.KeyRoundTripCount: 3}, span.EndAttributes())
	assert.Equal(t, "SELECT * FROM users", span.Options.Attributes[agent.KeyStatement])
	assert.Equal(t, sdk.DatabaseVendorPostgreSQL, span.Options.Attributes[agent.KeyDatabaseVendor])
	assert.Equal(t, "TCP_IP", span.Options.Attributes[agent.KeyChannelType])
}

func TestMessageIDs(t *testing.T) {
	s, a, cb := newTestSDK(t, nil)
	out := s.TraceOutgoingMessage(context.Background(), testQueue)
	out.Start()
	out.SetVendorMessageID("m-1")
	out.SetCorrelationID("c-1")
	tag := out.ByteTag()
	out.End()

	in := s.TraceIncomingMessageProcess(context.Background(), testQueue)
	in.SetByteTag(tag)
	in.Start()
	in.SetVendorMessageID("m-1")
	in.End()

	assert.Empty(t, cb.Warnings())
	spans := a.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, agent.KVMap{agent.KeyVendorMessageID: "m-1", agent.KeyCorrelationID: "c-1"}, spans[0].EndAttributes())
	assert.Equal(t, "TOPIC", spans[0].Options.Attributes[agent.KeyDestinationType])
	assert.Equal(t, spans[0].TraceID, spans[1].TraceID)
	assert.Equal(t, spans[0].ID, spans[1].ParentID)
}

func TestContext(t *testing.T) {
	s, a, _ := newTestSDK(t, nil)
	ctx := context.WithValue(context.Background(), struct{}{}, "v")
	tr := s.TraceIncomingRemoteCall(ctx, "Get", "UserService", "users:8080")
	assert.Equal(t, ctx, tr.Context())

	tr.Start()
	child := s.TraceSQLDatabaseRequest(tr.Context(), testDB, "SELECT 1")
	child.Start()
	child.End()
	tr.End()

	spans := a.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[0].ID, spans[1].ParentID)
	assert.Equal(t, "v", tr.Context().Value(struct{}{}))
}

func TestFaultyAgentIsContained(t *testing.T) {
	s, _, cb := newTestSDK(t, []agenttest.Option{agenttest.WithPanics()})
	tr := s.TraceOutgoingRemoteCall(context.Background(), "Get", "UserService", "users:8080", sdk.ChannelTCPIP, "")
	called := false
	assert.NotPanics(t, func() {
		err := tr.Trace(func() error {
			called = true
			assert.Equal(t, "", tr.StringTag())
			assert.NotNil(t, tr.ByteTag())
			return nil
		})
		assert.NoError(t, err)
	})
	assert.True(t, called)
	assert.Len(t, cb.Errors(), 1)
	assert.Empty(t, cb.Warnings())
}

func TestCallbackReplaced(t *testing.T) {
	s, _, cb := newTestSDK(t, nil)
	tr := s.TraceSQLDatabaseRequest(context.Background(), testDB, "SELECT 1")
	tr.End()
	assert.Len(t, cb.Warnings(), 1)

	other := &callback{}
	s.SetLoggingCallback(other)
	tr.End()
	assert.Len(t, cb.Warnings(), 1)
	assert.Len(t, other.Warnings(), 1)

	s.SetLoggingCallback(nil)
	assert.NotPanics(t, tr.End)
	assert.Len(t, other.Warnings(), 1)
}
