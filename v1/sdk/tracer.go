// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"context"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"go.uber.org/atomic"
)

// Tracer measures one traced operation. It moves from created to started
// with Start or StartAsync, and from started to ended with End. Error may be
// called once while the tracer is started.
//
// A Tracer is meant to be driven by a single flow of control. Calls which
// violate the lifecycle are ignored and reported to the LoggingCallback.
type Tracer interface {
	// Start starts the measurement.
	Start()
	// StartAsync starts the measurement of an operation which completes on
	// another goroutine, e.g. one awaited through a Future.
	StartAsync()
	// Error records the failure of the traced operation. Only the first
	// error is kept; combine messages before calling if needed.
	Error(msg string)
	// Err is Error for Go errors. A nil err is ignored.
	Err(err error)
	// End ends the measurement.
	End()
	// Trace runs fn between Start and End. See the package level Trace.
	Trace(fn func() error) error
	// Context returns a context carrying the span of this tracer once it
	// was started, or the context it was created with before that.
	Context() context.Context
}

// OutgoingTaggable is implemented by tracers which hand a tag to a callee.
// The tags are valid once the tracer was started; before that they are empty.
// Neither method ever returns nil.
type OutgoingTaggable interface {
	StringTag() string
	ByteTag() []byte
}

// IncomingTaggable is implemented by tracers which continue a trace from a
// tag received from a caller. The tag must be set before Start. An empty tag
// clears a previously set one, and only the most recently set tag is kept.
type IncomingTaggable interface {
	SetStringTag(tag string)
	SetByteTag(tag []byte)
}

const (
	stateCreated uint32 = iota
	stateStarted
	stateEnded
)

var stateNames = [...]string{"created", "started", "ended"}

// tracer implements the lifecycle shared by all tracer kinds.
type tracer struct {
	sdk  *agentSDK
	kind agent.Kind
	name string
	ctx  context.Context

	state   atomic.Uint32
	errored atomic.Bool
	span    agent.Span

	attrs    agent.KVMap
	endAttrs agent.KVMap
	inTag    agent.Tag
	link     []byte
}

func newTracer(ctx context.Context, s *agentSDK, kind agent.Kind, name string, attrs agent.KVMap) *tracer {
	if ctx == nil {
		ctx = context.Background()
	}
	if attrs == nil {
		attrs = agent.KVMap{}
	}
	return &tracer{
		sdk:      s,
		kind:     kind,
		name:     name,
		ctx:      ctx,
		attrs:    attrs,
		endAttrs: agent.KVMap{},
	}
}

func (t *tracer) Start()      { t.start(false) }
func (t *tracer) StartAsync() { t.start(true) }

func (t *tracer) start(async bool) {
	if !t.state.CAS(stateCreated, stateStarted) {
		t.warnf("Start called on a tracer which is already %s", stateNames[t.state.Load()])
		return
	}
	opts := agent.StartOptions{
		Kind:        t.kind,
		Name:        t.name,
		Async:       async,
		Attributes:  t.attrs,
		IncomingTag: t.inTag,
		Link:        t.link,
	}
	t.span = t.sdk.begin(t.ctx, opts)
}

func (t *tracer) Error(msg string) { t.setError(msg, true) }

// errorOnce records msg unless the tracer already has an error. It is used
// by the Trace helpers for errors the traced function may have recorded.
func (t *tracer) errorOnce(msg string) { t.setError(msg, false) }

func (t *tracer) setError(msg string, warnTwice bool) {
	if !t.isStarted("Error") {
		return
	}
	if !t.errored.CAS(false, true) {
		if warnTwice {
			t.warnf("Error called more than once, dropping %q", msg)
		}
		return
	}
	t.sdk.usage.protect("Span.Error", func() { t.span.Error(msg) })
}

func (t *tracer) Err(err error) {
	if err == nil {
		return
	}
	t.Error(err.Error())
}

func (t *tracer) End() {
	if !t.state.CAS(stateStarted, stateEnded) {
		if t.state.Load() == stateCreated {
			t.warnf("End called before Start")
		} else {
			t.warnf("End called more than once")
		}
		return
	}
	t.sdk.usage.protect("Span.End", func() { t.span.End(t.endAttrs) })
}

func (t *tracer) Trace(fn func() error) error {
	return Trace(t, fn)
}

func (t *tracer) Context() context.Context {
	if t.state.Load() == stateCreated || t.span == nil {
		return t.ctx
	}
	var ctx context.Context
	t.sdk.usage.protect("Span.Context", func() { ctx = t.span.Context() })
	if ctx == nil {
		return t.ctx
	}
	return ctx
}

func (t *tracer) warnf(format string, args ...interface{}) {
	t.sdk.usage.warnf(t.kind.String()+"Tracer: "+format, args...)
}

// isStarted reports whether the tracer is between Start and End, warning
// about the call op otherwise.
func (t *tracer) isStarted(op string) bool {
	if st := t.state.Load(); st != stateStarted {
		t.warnf("%s called on a tracer which is %s", op, stateNames[st])
		return false
	}
	return true
}

// preStart guards fields which are frozen by Start.
func (t *tracer) preStart(field string) bool {
	if t.state.Load() != stateCreated {
		t.warnf("%s must be set before Start, ignoring", field)
		return false
	}
	return true
}

// preEnd guards fields which are reported with End.
func (t *tracer) preEnd(field string) bool {
	if t.state.Load() != stateStarted {
		t.warnf("%s must be set between Start and End, ignoring", field)
		return false
	}
	return true
}

func (t *tracer) setAttr(field, key string, value interface{}) {
	if t.preStart(field) {
		t.attrs[key] = value
	}
}

func (t *tracer) setEndAttr(field, key string, value interface{}) {
	if t.preEnd(field) {
		t.endAttrs[key] = value
	}
}

// addMulti appends to a multi-valued attribute such as a header map.
func addMulti(m agent.KVMap, key, name, value string) {
	values, _ := m[key].(map[string][]string)
	if values == nil {
		values = make(map[string][]string)
		m[key] = values
	}
	values[name] = append(values[name], value)
}

type outgoingTaggable struct{ t *tracer }

func (o outgoingTaggable) StringTag() string {
	if !o.t.hasSpan("StringTag") {
		return ""
	}
	var tag string
	o.t.sdk.usage.protect("Span.StringTag", func() { tag = o.t.span.StringTag() })
	return tag
}

func (o outgoingTaggable) ByteTag() []byte {
	if !o.t.hasSpan("ByteTag") {
		return []byte{}
	}
	var tag []byte
	o.t.sdk.usage.protect("Span.ByteTag", func() { tag = o.t.span.ByteTag() })
	if tag == nil {
		return []byte{}
	}
	return tag
}

// hasSpan reports whether the tags of the tracer are available. They stay
// available after End so a late reader still gets a consistent value.
func (t *tracer) hasSpan(op string) bool {
	if t.state.Load() == stateCreated {
		t.warnf("%s called before Start", op)
		return false
	}
	return t.span != nil
}

type incomingTaggable struct{ t *tracer }

func (i incomingTaggable) SetStringTag(tag string) {
	if i.t.preStart("StringTag") {
		i.t.inTag = agent.Tag{Text: tag}
	}
}

func (i incomingTaggable) SetByteTag(tag []byte) {
	if i.t.preStart("ByteTag") {
		var b []byte
		if len(tag) > 0 {
			b = append(b, tag...)
		}
		i.t.inTag = agent.Tag{Binary: b}
	}
}
