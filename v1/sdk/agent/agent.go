// Copyright (C) 2017 Librato, Inc. All rights reserved.

// Package agent defines the contract between the SDK and the host agent that
// actually captures and transmits trace data. The SDK turns every tracer
// lifecycle call into a notification on these interfaces; implementations
// live in the subpackages (OpenTelemetry, OpenTracing, an in-memory recorder
// for tests) or in the application.
package agent

import (
	"context"
)

// KVMap is a map of key-value pairs describing a traced operation. Values are
// strings, ints, int64s, float64s, bools, []string or map[string][]string.
type KVMap = map[string]interface{}

// Kind identifies the kind of operation a tracer measures.
type Kind uint8

// Tracer kinds
const (
	KindIncomingRemoteCall Kind = iota + 1
	KindOutgoingRemoteCall
	KindDatabaseRequest
	KindOutgoingMessage
	KindIncomingMessageReceive
	KindIncomingMessageProcess
	KindIncomingWebRequest
	KindOutgoingWebRequest
	KindInProcessLink
)

var kindNames = map[Kind]string{
	KindIncomingRemoteCall:     "IncomingRemoteCall",
	KindOutgoingRemoteCall:     "OutgoingRemoteCall",
	KindDatabaseRequest:        "DatabaseRequest",
	KindOutgoingMessage:        "OutgoingMessage",
	KindIncomingMessageReceive: "IncomingMessageReceive",
	KindIncomingMessageProcess: "IncomingMessageProcess",
	KindIncomingWebRequest:     "IncomingWebRequest",
	KindOutgoingWebRequest:     "OutgoingWebRequest",
	KindInProcessLink:          "InProcessLink",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Outgoing reports whether tracers of this kind hand a tag to a callee.
func (k Kind) Outgoing() bool {
	return k == KindOutgoingRemoteCall || k == KindOutgoingMessage || k == KindOutgoingWebRequest
}

// The keys of the attributes reported with StartOptions and Span.End.
const (
	KeyServiceMethod   = "ServiceMethod"
	KeyServiceName     = "ServiceName"
	KeyServiceEndpoint = "ServiceEndpoint"
	KeyChannelType     = "ChannelType"
	KeyChannelEndpoint = "ChannelEndpoint"
	KeyProtocolName    = "ProtocolName"

	KeyDatabaseName   = "DatabaseName"
	KeyDatabaseVendor = "DatabaseVendor"
	KeyStatement      = "Statement"
	KeyRowsReturned   = "RowsReturned"
	KeyRoundTripCount = "RoundTripCount"

	KeyMessagingVendor = "MessagingVendor"
	KeyDestinationName = "DestinationName"
	KeyDestinationType = "DestinationType"
	KeyVendorMessageID = "VendorMessageID"
	KeyCorrelationID   = "CorrelationID"

	KeyWebServerName   = "WebServerName"
	KeyApplicationID   = "ApplicationID"
	KeyContextRoot     = "ContextRoot"
	KeyURL             = "URL"
	KeyMethod          = "Method"
	KeyRemoteAddress   = "RemoteAddress"
	KeyRequestHeaders  = "RequestHeaders"
	KeyResponseHeaders = "ResponseHeaders"
	KeyParameters      = "Parameters"
	KeyStatusCode      = "StatusCode"
)

// Tag is the token linking an outgoing operation to the incoming operation on
// the other side of a process or thread boundary. At most one of the two forms
// is populated when a tag is handed to an incoming tracer.
type Tag struct {
	Text   string
	Binary []byte
}

// IsEmpty reports whether neither form of the tag is set.
func (t Tag) IsEmpty() bool {
	return t.Text == "" && len(t.Binary) == 0
}

// StartOptions describes a tracer at the moment it is started.
type StartOptions struct {
	Kind Kind
	// Name is a human readable name of the operation.
	Name string
	// Async is set when the tracer was started with StartAsync.
	Async bool
	// Attributes are the fields set before Start.
	Attributes KVMap
	// IncomingTag is the tag set on an incoming taggable tracer, if any.
	IncomingTag Tag
	// Link is the data of an in-process link, for KindInProcessLink.
	Link []byte
}

// Agent is the host agent the SDK reports to.
type Agent interface {
	// Version returns the version of the agent, e.g. "1.2.0".
	Version() string
	// Active reports whether the agent currently captures traces.
	Active() bool
	// Begin notifies the agent that a tracer started. It never returns nil.
	Begin(ctx context.Context, opts StartOptions) Span
	// AddCustomRequestAttribute attaches a key-value pair to the request
	// that is currently traced in ctx.
	AddCustomRequestAttribute(ctx context.Context, key string, value interface{})
	// TraceContext returns the hex trace and span IDs of the span in ctx.
	TraceContext(ctx context.Context) (traceID, spanID string, ok bool)
	// NewLink captures the span in ctx so it can be continued elsewhere.
	NewLink(ctx context.Context) []byte
}

// ServiceNamer is implemented by agents which report a service name. The SDK
// hands them the configured one.
type ServiceNamer interface {
	SetServiceName(name string)
}

// Span is the agent side of a started tracer.
type Span interface {
	// Context returns a context carrying this span, for child operations.
	Context() context.Context
	// StringTag and ByteTag return the outgoing tag of this span. Both
	// forms decode to the same trace position.
	StringTag() string
	ByteTag() []byte
	// Headers returns the propagation headers of this span.
	Headers() map[string]string
	// Error records the failure of the traced operation.
	Error(msg string)
	// End notifies the agent that the tracer ended with the fields set
	// between Start and End.
	End(attrs KVMap)
}

// MetricKind identifies the aggregation of a metric.
type MetricKind uint8

// Metric kinds
const (
	MetricCounter MetricKind = iota + 1
	MetricGauge
	MetricStatistics
)

// MetricDesc describes a metric registered through the SDK.
type MetricDesc struct {
	Kind MetricKind
	// Float is set for the floating point variants of the metric.
	Float         bool
	Key           string
	Unit          string
	DimensionName string
}

// MetricRecorder is implemented by agents, or standalone sinks, that accept
// the metrics created through the SDK.
type MetricRecorder interface {
	Register(desc MetricDesc) error
	Record(desc MetricDesc, value float64, dimensionValue string)
	Unregister(desc MetricDesc)
}
