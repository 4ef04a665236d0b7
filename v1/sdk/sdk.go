// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"context"
	"net/url"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/internal/config"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/internal/filter"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/internal/log"
	"github.com/hashicorp/go-version"
)

// SDK is the root of the API: it creates tracers, metrics and in-process
// links. Use New to create one.
type SDK interface {
	TraceIncomingRemoteCall(ctx context.Context, serviceMethod, serviceName, serviceEndpoint string) IncomingRemoteCallTracer
	TraceOutgoingRemoteCall(ctx context.Context, serviceMethod, serviceName, serviceEndpoint string,
		channelType ChannelType, channelEndpoint string) OutgoingRemoteCallTracer

	TraceSQLDatabaseRequest(ctx context.Context, db DatabaseInfo, statement string) DatabaseRequestTracer

	TraceOutgoingMessage(ctx context.Context, info MessagingSystemInfo) OutgoingMessageTracer
	TraceIncomingMessageReceive(ctx context.Context, info MessagingSystemInfo) IncomingMessageReceiveTracer
	TraceIncomingMessageProcess(ctx context.Context, info MessagingSystemInfo) IncomingMessageProcessTracer

	TraceIncomingWebRequest(ctx context.Context, app WebApplicationInfo, url, method string) IncomingWebRequestTracer
	TraceOutgoingWebRequest(ctx context.Context, url, method string) OutgoingWebRequestTracer

	// CreateInProcessLink captures the trace position of ctx.
	CreateInProcessLink(ctx context.Context) InProcessLink
	// TraceInProcessLink traces work continuing link.
	TraceInProcessLink(ctx context.Context, link InProcessLink) InProcessLinkTracer

	// AddCustomRequestAttribute* attach a key-value pair to the request traced
	// in ctx. Adding a key several times keeps all values.
	AddCustomRequestAttributeString(ctx context.Context, key, value string)
	AddCustomRequestAttributeInt(ctx context.Context, key string, value int64)
	AddCustomRequestAttributeFloat(ctx context.Context, key string, value float64)

	// TraceContextInfo returns the IDs of the span active in ctx, or the
	// invalid sentinels if there is none.
	TraceContextInfo(ctx context.Context) TraceContextInfo

	CreateIntegerCounterMetric(key, unit, dimensionName string) IntegerCounter
	CreateFloatCounterMetric(key, unit, dimensionName string) FloatCounter
	CreateIntegerGaugeMetric(key, unit, dimensionName string) IntegerGauge
	CreateFloatGaugeMetric(key, unit, dimensionName string) FloatGauge
	CreateIntegerStatisticsMetric(key, unit, dimensionName string) IntegerStatistics
	CreateFloatStatisticsMetric(key, unit, dimensionName string) FloatStatistics

	CurrentState() State
	AgentInfo() AgentInfo
	// SetLoggingCallback replaces the callback receiving usage warnings. A nil
	// callback discards them.
	SetLoggingCallback(cb LoggingCallback)
}

// TransactionFilter is a rule for incoming web request URLs which are not
// traced. See WithTransactionFilters.
type TransactionFilter = config.TransactionFilter

type options struct {
	agent    agent.Agent
	callback LoggingCallback
	recorder agent.MetricRecorder
	cfg      []config.Option
}

// Option configures New.
type Option func(o *options)

// WithAgent sets the agent the SDK reports to. Without one New returns the
// no-op SDK.
func WithAgent(a agent.Agent) Option {
	return func(o *options) { o.agent = a }
}

// WithLoggingCallback sets the initial LoggingCallback.
func WithLoggingCallback(cb LoggingCallback) Option {
	return func(o *options) { o.callback = cb }
}

// WithMetricRecorder sets the sink of the metrics created by the SDK.
func WithMetricRecorder(r agent.MetricRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithDisabled forces the no-op SDK.
func WithDisabled(disabled bool) Option {
	return func(o *options) { o.cfg = append(o.cfg, config.WithDisabled(disabled)) }
}

// WithServiceName sets the service name handed to agents which take one.
func WithServiceName(name string) Option {
	return func(o *options) { o.cfg = append(o.cfg, config.WithServiceName(name)) }
}

// WithMinAgentVersion sets the lowest compatible agent version.
func WithMinAgentVersion(v string) Option {
	return func(o *options) { o.cfg = append(o.cfg, config.WithMinAgentVersion(v)) }
}

// WithLegacyHeader controls whether InjectTracingHeaders writes the
// HTTPHeaderName header in addition to the agent's own headers.
func WithLegacyHeader(enabled bool) Option {
	return func(o *options) { o.cfg = append(o.cfg, config.WithLegacyHeader(enabled)) }
}

// WithTransactionFilters adds rules for incoming web requests not to trace.
func WithTransactionFilters(filters ...TransactionFilter) Option {
	return func(o *options) { o.cfg = append(o.cfg, config.WithTransactionFilters(filters...)) }
}

// New creates the SDK. It returns the no-op SDK if it is disabled by the
// configuration, if no agent is given or if the agent is older than the
// minimum agent version.
func New(opts ...Option) SDK {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	cfg := config.NewConfig(o.cfg...)
	log.SetLevelFromStr(cfg.GetDebugLevel())

	if cfg.GetDisabled() {
		log.Info("SDK disabled by configuration")
		return newDummy(AgentInfo{})
	}
	if o.agent == nil {
		log.Info("no agent provided, tracing is disabled")
		return newDummy(AgentInfo{})
	}

	s := &agentSDK{
		agent:  o.agent,
		cfg:    cfg,
		usage:  &usageReporter{},
		filter: filter.NewURLFilter(cfg.GetTransactionFilters()),
	}
	s.usage.set(o.callback)
	s.metricFactory = metricFactory{rec: o.recorder, usage: s.usage}

	var agentVersion string
	s.usage.protect("Agent.Version", func() { agentVersion = o.agent.Version() })
	info := AgentInfo{AgentFound: true, Version: agentVersion}
	if !isCompatible(agentVersion, cfg.GetMinAgentVersion()) {
		s.usage.errorf("agent version %q is not compatible, %s or newer is required",
			agentVersion, cfg.GetMinAgentVersion())
		return newDummy(info)
	}
	info.AgentCompatible = true
	s.info = info

	if n, ok := o.agent.(agent.ServiceNamer); ok {
		s.usage.protect("Agent.SetServiceName", func() { n.SetServiceName(cfg.GetServiceName()) })
	}
	log.Debugf("SDK initialized with agent %s", agentVersion)
	return s
}

func isCompatible(agentVersion, minVersion string) bool {
	v, err := version.NewVersion(agentVersion)
	if err != nil {
		return false
	}
	minV, err := version.NewVersion(minVersion)
	if err != nil {
		return false
	}
	return !v.LessThan(minV)
}

// agentSDK forwards the API calls to an agent.
type agentSDK struct {
	metricFactory
	agent  agent.Agent
	cfg    *config.Config
	usage  *usageReporter
	filter *filter.URLFilter
	info   AgentInfo
}

func (s *agentSDK) active() bool {
	active := false
	s.usage.protect("Agent.Active", func() { active = s.agent.Active() })
	return active
}

func (s *agentSDK) begin(ctx context.Context, opts agent.StartOptions) agent.Span {
	var span agent.Span
	s.usage.protect("Agent.Begin", func() { span = s.agent.Begin(ctx, opts) })
	if span == nil {
		return nullSpan{ctx: ctx}
	}
	return span
}

func (s *agentSDK) legacyHeader() bool {
	return s.cfg.GetLegacyHeader()
}

func (s *agentSDK) TraceIncomingRemoteCall(ctx context.Context, serviceMethod, serviceName, serviceEndpoint string) IncomingRemoteCallTracer {
	if !s.active() {
		return dummyTracer{ctx}
	}
	t := newTracer(ctx, s, agent.KindIncomingRemoteCall, serviceMethod,
		remoteCallAttrs(serviceMethod, serviceName, serviceEndpoint))
	return &incomingRemoteCallTracer{t, incomingTaggable{t}}
}

func (s *agentSDK) TraceOutgoingRemoteCall(ctx context.Context, serviceMethod, serviceName, serviceEndpoint string,
	channelType ChannelType, channelEndpoint string) OutgoingRemoteCallTracer {
	if !s.active() {
		return dummyTracer{ctx}
	}
	attrs := remoteCallAttrs(serviceMethod, serviceName, serviceEndpoint)
	attrs[agent.KeyChannelType] = channelType.String()
	attrs[agent.KeyChannelEndpoint] = channelEndpoint
	t := newTracer(ctx, s, agent.KindOutgoingRemoteCall, serviceMethod, attrs)
	return &outgoingRemoteCallTracer{t, outgoingTaggable{t}}
}

func (s *agentSDK) TraceSQLDatabaseRequest(ctx context.Context, db DatabaseInfo, statement string) DatabaseRequestTracer {
	if !s.active() {
		return dummyTracer{ctx}
	}
	attrs := db.attributes()
	attrs[agent.KeyStatement] = statement
	return &databaseRequestTracer{newTracer(ctx, s, agent.KindDatabaseRequest, db.Name, attrs)}
}

func (s *agentSDK) TraceOutgoingMessage(ctx context.Context, info MessagingSystemInfo) OutgoingMessageTracer {
	if !s.active() {
		return dummyTracer{ctx}
	}
	t := newTracer(ctx, s, agent.KindOutgoingMessage, info.DestinationName, info.attributes())
	return &outgoingMessageTracer{t, outgoingTaggable{t}, messageIDs{t}}
}

func (s *agentSDK) TraceIncomingMessageReceive(ctx context.Context, info MessagingSystemInfo) IncomingMessageReceiveTracer {
	if !s.active() {
		return dummyTracer{ctx}
	}
	return &incomingMessageReceiveTracer{
		newTracer(ctx, s, agent.KindIncomingMessageReceive, info.DestinationName, info.attributes()),
	}
}

func (s *agentSDK) TraceIncomingMessageProcess(ctx context.Context, info MessagingSystemInfo) IncomingMessageProcessTracer {
	if !s.active() {
		return dummyTracer{ctx}
	}
	t := newTracer(ctx, s, agent.KindIncomingMessageProcess, info.DestinationName, info.attributes())
	return &incomingMessageProcessTracer{t, incomingTaggable{t}, messageIDs{t}}
}

func (s *agentSDK) TraceIncomingWebRequest(ctx context.Context, app WebApplicationInfo, rawURL, method string) IncomingWebRequestTracer {
	if !s.active() || !s.filter.ShouldTrace(urlPath(rawURL)) {
		return dummyTracer{ctx}
	}
	attrs := app.attributes()
	for k, v := range webRequestAttrs(rawURL, method) {
		attrs[k] = v
	}
	t := newTracer(ctx, s, agent.KindIncomingWebRequest, method+" "+urlPath(rawURL), attrs)
	return &incomingWebRequestTracer{t, incomingTaggable{t}}
}

func (s *agentSDK) TraceOutgoingWebRequest(ctx context.Context, rawURL, method string) OutgoingWebRequestTracer {
	if !s.active() {
		return dummyTracer{ctx}
	}
	t := newTracer(ctx, s, agent.KindOutgoingWebRequest, method+" "+rawURL, webRequestAttrs(rawURL, method))
	return &outgoingWebRequestTracer{t, outgoingTaggable{t}}
}

// urlPath returns the path of a URL for filtering, or the raw string if it
// does not parse.
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	return u.Path
}

func (s *agentSDK) CreateInProcessLink(ctx context.Context) InProcessLink {
	if !s.active() {
		return InProcessLink{}
	}
	var data []byte
	s.usage.protect("Agent.NewLink", func() { data = s.agent.NewLink(ctx) })
	return InProcessLink{data: data}
}

func (s *agentSDK) TraceInProcessLink(ctx context.Context, link InProcessLink) InProcessLinkTracer {
	if !s.active() {
		return dummyTracer{ctx}
	}
	if link.IsEmpty() {
		s.usage.warnf("TraceInProcessLink called with an empty link")
	}
	t := newTracer(ctx, s, agent.KindInProcessLink, "InProcessLink", nil)
	t.link = link.data
	return &inProcessLinkTracer{t}
}

func (s *agentSDK) addCustomRequestAttribute(ctx context.Context, key string, value interface{}) {
	if key == "" {
		s.usage.warnf("AddCustomRequestAttribute called with an empty key, ignoring")
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.usage.protect("Agent.AddCustomRequestAttribute", func() {
		s.agent.AddCustomRequestAttribute(ctx, key, value)
	})
}

func (s *agentSDK) AddCustomRequestAttributeString(ctx context.Context, key, value string) {
	s.addCustomRequestAttribute(ctx, key, value)
}

func (s *agentSDK) AddCustomRequestAttributeInt(ctx context.Context, key string, value int64) {
	s.addCustomRequestAttribute(ctx, key, value)
}

func (s *agentSDK) AddCustomRequestAttributeFloat(ctx context.Context, key string, value float64) {
	s.addCustomRequestAttribute(ctx, key, value)
}

func (s *agentSDK) TraceContextInfo(ctx context.Context) TraceContextInfo {
	if ctx == nil {
		return invalidTraceContextInfo
	}
	var info TraceContextInfo
	var ok bool
	s.usage.protect("Agent.TraceContext", func() { info.TraceID, info.SpanID, ok = s.agent.TraceContext(ctx) })
	if !ok || !info.IsValid() {
		return invalidTraceContextInfo
	}
	return info
}

func (s *agentSDK) CurrentState() State {
	if !s.active() {
		return StateTemporarilyInactive
	}
	return StateActive
}

func (s *agentSDK) AgentInfo() AgentInfo { return s.info }

func (s *agentSDK) SetLoggingCallback(cb LoggingCallback) { s.usage.set(cb) }
