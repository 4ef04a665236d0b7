// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"context"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
)

// NewDummy returns the no-op SDK. Its tracers have no side effects beyond
// running the work given to Trace, and its state is StatePermanentlyInactive.
func NewDummy() SDK { return newDummy(AgentInfo{}) }

func newDummy(info AgentInfo) SDK { return &dummySDK{info: info} }

// A dummySDK is not tracing.
type dummySDK struct {
	metricFactory
	info AgentInfo
}

func (d *dummySDK) TraceIncomingRemoteCall(ctx context.Context, _, _, _ string) IncomingRemoteCallTracer {
	return dummyTracer{ctx}
}

func (d *dummySDK) TraceOutgoingRemoteCall(ctx context.Context, _, _, _ string, _ ChannelType, _ string) OutgoingRemoteCallTracer {
	return dummyTracer{ctx}
}

func (d *dummySDK) TraceSQLDatabaseRequest(ctx context.Context, _ DatabaseInfo, _ string) DatabaseRequestTracer {
	return dummyTracer{ctx}
}

func (d *dummySDK) TraceOutgoingMessage(ctx context.Context, _ MessagingSystemInfo) OutgoingMessageTracer {
	return dummyTracer{ctx}
}

func (d *dummySDK) TraceIncomingMessageReceive(ctx context.Context, _ MessagingSystemInfo) IncomingMessageReceiveTracer {
	return dummyTracer{ctx}
}

func (d *dummySDK) TraceIncomingMessageProcess(ctx context.Context, _ MessagingSystemInfo) IncomingMessageProcessTracer {
	return dummyTracer{ctx}
}

func (d *dummySDK) TraceIncomingWebRequest(ctx context.Context, _ WebApplicationInfo, _, _ string) IncomingWebRequestTracer {
	return dummyTracer{ctx}
}

func (d *dummySDK) TraceOutgoingWebRequest(ctx context.Context, _, _ string) OutgoingWebRequestTracer {
	return dummyTracer{ctx}
}

func (d *dummySDK) CreateInProcessLink(context.Context) InProcessLink { return InProcessLink{} }

func (d *dummySDK) TraceInProcessLink(ctx context.Context, _ InProcessLink) InProcessLinkTracer {
	return dummyTracer{ctx}
}

func (d *dummySDK) AddCustomRequestAttributeString(context.Context, string, string) {}
func (d *dummySDK) AddCustomRequestAttributeInt(context.Context, string, int64)     {}
func (d *dummySDK) AddCustomRequestAttributeFloat(context.Context, string, float64) {}
func (d *dummySDK) TraceContextInfo(context.Context) TraceContextInfo               { return invalidTraceContextInfo }
func (d *dummySDK) CurrentState() State                                             { return StatePermanentlyInactive }
func (d *dummySDK) AgentInfo() AgentInfo                                            { return d.info }
func (d *dummySDK) SetLoggingCallback(LoggingCallback)                              {}

// A dummyTracer implements every tracer interface without side effects.
type dummyTracer struct{ ctx context.Context }

func (t dummyTracer) Start()                                    {}
func (t dummyTracer) StartAsync()                               {}
func (t dummyTracer) Error(string)                              {}
func (t dummyTracer) Err(error)                                 {}
func (t dummyTracer) End()                                      {}
func (t dummyTracer) Trace(fn func() error) error               { return Trace(t, fn) }
func (t dummyTracer) StringTag() string                         { return "" }
func (t dummyTracer) ByteTag() []byte                           { return []byte{} }
func (t dummyTracer) SetStringTag(string)                       {}
func (t dummyTracer) SetByteTag([]byte)                         {}
func (t dummyTracer) SetProtocolName(string)                    {}
func (t dummyTracer) SetRowsReturned(int)                       {}
func (t dummyTracer) SetRoundTripCount(int)                     {}
func (t dummyTracer) SetVendorMessageID(string)                 {}
func (t dummyTracer) SetCorrelationID(string)                   {}
func (t dummyTracer) SetRemoteAddress(string)                   {}
func (t dummyTracer) AddRequestHeader(string, string)           {}
func (t dummyTracer) AddParameter(string, string)               {}
func (t dummyTracer) AddResponseHeader(string, string)          {}
func (t dummyTracer) SetStatusCode(int)                         {}
func (t dummyTracer) InjectTracingHeaders(func(string, string)) {}

func (t dummyTracer) Context() context.Context {
	if t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}

// A nullSpan stands in for a span the agent failed to create.
type nullSpan struct{ ctx context.Context }

func (s nullSpan) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s nullSpan) StringTag() string          { return "" }
func (s nullSpan) ByteTag() []byte            { return []byte{} }
func (s nullSpan) Headers() map[string]string { return nil }
func (s nullSpan) Error(string)               {}
func (s nullSpan) End(agent.KVMap)            {}
