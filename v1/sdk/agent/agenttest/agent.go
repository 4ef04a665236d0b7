// Copyright (C) 2017 Librato, Inc. All rights reserved.

// Package agenttest provides an in-memory agent which records the lifecycle
// notifications it receives, for testing instrumented code.
package agenttest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"go.uber.org/atomic"
)

// DefaultVersion is the version a new Agent reports.
const DefaultVersion = "1.0.0"

const tagPrefix = "agenttest"

// Agent records the spans begun through it.
type Agent struct {
	mu      sync.Mutex
	version string
	active  atomic.Bool
	panics  bool
	nextID  atomic.Uint64
	spans   []*Span
	orphans map[string][]interface{}
	service string
	onEnd   func(*Span)
}

// Option values may be passed to New.
type Option func(*Agent)

// WithVersion sets the version the agent reports.
func WithVersion(v string) Option {
	return func(a *Agent) { a.version = v }
}

// WithActive sets whether the agent is capturing.
func WithActive(active bool) Option {
	return func(a *Agent) { a.active.Store(active) }
}

// WithPanics makes every Begin panic, to test that the SDK contains faulty
// agents.
func WithPanics() Option {
	return func(a *Agent) { a.panics = true }
}

// WithOnEnd sets a function which is called when a span ends.
func WithOnEnd(fn func(*Span)) Option {
	return func(a *Agent) { a.onEnd = fn }
}

// New returns an active Agent.
func New(opts ...Option) *Agent {
	a := &Agent{version: DefaultVersion, orphans: make(map[string][]interface{})}
	a.active.Store(true)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Version implements agent.Agent.
func (a *Agent) Version() string { return a.version }

// Active implements agent.Agent.
func (a *Agent) Active() bool { return a.active.Load() }

// SetActive switches the agent on or off at runtime.
func (a *Agent) SetActive(active bool) { a.active.Store(active) }

// SetServiceName implements agent.ServiceNamer.
func (a *Agent) SetServiceName(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.service = name
}

// ServiceName returns the service name the SDK handed to the agent.
func (a *Agent) ServiceName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.service
}

type spanKey struct{}

func spanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// Begin implements agent.Agent.
func (a *Agent) Begin(ctx context.Context, opts agent.StartOptions) agent.Span {
	if a.panics {
		panic("agenttest: Begin")
	}
	id := a.nextID.Inc()
	s := &Span{
		agent:   a,
		ID:      fmt.Sprintf("%016x", id),
		TraceID: fmt.Sprintf("%032x", id),
		Options: copyOptions(opts),
		custom:  make(map[string][]interface{}),
	}

	switch {
	case opts.Kind == agent.KindInProcessLink:
		s.continueFrom(string(opts.Link))
	case !opts.IncomingTag.IsEmpty():
		if opts.IncomingTag.Text != "" {
			s.continueFrom(opts.IncomingTag.Text)
		} else {
			s.continueFrom(string(opts.IncomingTag.Binary))
		}
	default:
		if parent := spanFromContext(ctx); parent != nil {
			s.TraceID, s.ParentID = parent.TraceID, parent.ID
		}
	}
	s.ctx = context.WithValue(ctx, spanKey{}, s)

	a.mu.Lock()
	a.spans = append(a.spans, s)
	a.mu.Unlock()
	return s
}

// AddCustomRequestAttribute implements agent.Agent. Attributes added outside
// of a span are kept by the agent, see Orphans.
func (a *Agent) AddCustomRequestAttribute(ctx context.Context, key string, value interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s := spanFromContext(ctx); s != nil {
		s.custom[key] = append(s.custom[key], value)
		return
	}
	a.orphans[key] = append(a.orphans[key], value)
}

// TraceContext implements agent.Agent.
func (a *Agent) TraceContext(ctx context.Context) (string, string, bool) {
	s := spanFromContext(ctx)
	if s == nil {
		return "", "", false
	}
	return s.TraceID, s.ID, true
}

// NewLink implements agent.Agent.
func (a *Agent) NewLink(ctx context.Context) []byte {
	s := spanFromContext(ctx)
	if s == nil {
		return nil
	}
	return []byte(s.tag())
}

// Spans returns the spans begun so far, in order.
func (a *Agent) Spans() []*Span {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Span(nil), a.spans...)
}

// Orphans returns the custom request attributes added outside of a span.
func (a *Agent) Orphans() map[string][]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := make(map[string][]interface{}, len(a.orphans))
	for k, v := range a.orphans {
		m[k] = append([]interface{}(nil), v...)
	}
	return m
}

// Reset forgets all recorded spans.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spans = nil
	a.orphans = make(map[string][]interface{})
}

func copyOptions(opts agent.StartOptions) agent.StartOptions {
	attrs := make(agent.KVMap, len(opts.Attributes))
	for k, v := range opts.Attributes {
		attrs[k] = v
	}
	opts.Attributes = attrs
	return opts
}

// Span is a span recorded by Agent.
type Span struct {
	agent *Agent
	ctx   context.Context

	ID       string
	TraceID  string
	ParentID string
	// LinkedTag is the tag or link this span continues, if any.
	LinkedTag string
	Options   agent.StartOptions

	errors   []string
	endAttrs agent.KVMap
	endCount int
	custom   map[string][]interface{}
}

func (s *Span) tag() string {
	return strings.Join([]string{tagPrefix, s.TraceID, s.ID}, ";")
}

// continueFrom links the span to the one a tag was taken from. Unknown tags
// start a new trace.
func (s *Span) continueFrom(tag string) {
	s.LinkedTag = tag
	parts := strings.Split(tag, ";")
	if len(parts) != 3 || parts[0] != tagPrefix {
		return
	}
	s.TraceID, s.ParentID = parts[1], parts[2]
}

// Context implements agent.Span.
func (s *Span) Context() context.Context { return s.ctx }

// StringTag implements agent.Span.
func (s *Span) StringTag() string { return s.tag() }

// ByteTag implements agent.Span.
func (s *Span) ByteTag() []byte { return []byte(s.tag()) }

// Headers implements agent.Span.
func (s *Span) Headers() map[string]string {
	return map[string]string{"traceparent": fmt.Sprintf("00-%s-%s-01", s.TraceID, s.ID)}
}

// Error implements agent.Span.
func (s *Span) Error(msg string) {
	s.agent.mu.Lock()
	defer s.agent.mu.Unlock()
	s.errors = append(s.errors, msg)
}

// End implements agent.Span.
func (s *Span) End(attrs agent.KVMap) {
	s.agent.mu.Lock()
	s.endCount++
	s.endAttrs = make(agent.KVMap, len(attrs))
	for k, v := range attrs {
		s.endAttrs[k] = v
	}
	onEnd := s.agent.onEnd
	s.agent.mu.Unlock()
	if onEnd != nil {
		onEnd(s)
	}
}

// Errors returns the errors recorded on the span.
func (s *Span) Errors() []string {
	s.agent.mu.Lock()
	defer s.agent.mu.Unlock()
	return append([]string(nil), s.errors...)
}

// EndCount returns the number of times End was called on the span.
func (s *Span) EndCount() int {
	s.agent.mu.Lock()
	defer s.agent.mu.Unlock()
	return s.endCount
}

// Ended reports whether the span ended.
func (s *Span) Ended() bool { return s.EndCount() > 0 }

// EndAttributes returns the attributes reported with End.
func (s *Span) EndAttributes() agent.KVMap {
	s.agent.mu.Lock()
	defer s.agent.mu.Unlock()
	return s.endAttrs
}

// CustomAttributes returns the custom request attributes added to the span.
func (s *Span) CustomAttributes() map[string][]interface{} {
	s.agent.mu.Lock()
	defer s.agent.mu.Unlock()
	return s.custom
}
