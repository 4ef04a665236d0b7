// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"sort"
	"strings"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
)

// IncomingWebRequestTracer traces a web request served by the application.
//
// If no tag is set explicitly, a request header named HTTPHeaderName added
// with AddRequestHeader is used as the incoming tag. Agents may also pick up
// their own propagation headers, e.g. traceparent, from the request headers.
type IncomingWebRequestTracer interface {
	Tracer
	IncomingTaggable
	// SetRemoteAddress sets the address of the client. It must be called
	// before Start.
	SetRemoteAddress(addr string)
	// AddRequestHeader adds a request header. Repeated names keep all values.
	// It must be called before Start.
	AddRequestHeader(name, value string)
	// AddParameter adds a form or query parameter. Repeated names keep all
	// values. It must be called before Start.
	AddParameter(name, value string)
	// AddResponseHeader adds a response header. Repeated names keep all
	// values. It must be called between Start and End.
	AddResponseHeader(name, value string)
	// SetStatusCode sets the HTTP status code of the response. It must be
	// called between Start and End.
	SetStatusCode(code int)
}

// OutgoingWebRequestTracer traces a web request sent by the application.
type OutgoingWebRequestTracer interface {
	Tracer
	OutgoingTaggable
	// AddRequestHeader adds a request header. It must be called before Start.
	AddRequestHeader(name, value string)
	// AddResponseHeader adds a response header. It must be called between
	// Start and End.
	AddResponseHeader(name, value string)
	// SetStatusCode sets the HTTP status code of the response. It must be
	// called between Start and End.
	SetStatusCode(code int)
	// InjectTracingHeaders calls setter once for each header needed to link
	// the request to its server side. The setter is expected to replace any
	// existing header of the same name. It must be called between Start and
	// End.
	InjectTracingHeaders(setter func(name, value string))
}

// InjectTracingHeadersTo is InjectTracingHeaders with a setter receiving the
// carrier, e.g.
//
//	sdk.InjectTracingHeadersTo(t, req.Header, func(name, value string, h http.Header) {
//		h.Set(name, value)
//	})
func InjectTracingHeadersTo[C any](t OutgoingWebRequestTracer, carrier C, setter func(name, value string, carrier C)) {
	var s func(name, value string)
	if setter != nil {
		s = func(name, value string) { setter(name, value, carrier) }
	}
	t.InjectTracingHeaders(s)
}

type incomingWebRequestTracer struct {
	*tracer
	incomingTaggable
}

func (t *incomingWebRequestTracer) SetRemoteAddress(addr string) {
	t.setAttr("RemoteAddress", agent.KeyRemoteAddress, addr)
}

func (t *incomingWebRequestTracer) AddRequestHeader(name, value string) {
	if t.preStart("RequestHeader") {
		addMulti(t.attrs, agent.KeyRequestHeaders, name, value)
	}
}

func (t *incomingWebRequestTracer) AddParameter(name, value string) {
	if t.preStart("Parameter") {
		addMulti(t.attrs, agent.KeyParameters, name, value)
	}
}

func (t *incomingWebRequestTracer) AddResponseHeader(name, value string) {
	if t.preEnd("ResponseHeader") {
		addMulti(t.endAttrs, agent.KeyResponseHeaders, name, value)
	}
}

func (t *incomingWebRequestTracer) SetStatusCode(code int) {
	t.setEndAttr("StatusCode", agent.KeyStatusCode, code)
}

func (t *incomingWebRequestTracer) Start() {
	t.useHeaderTag()
	t.tracer.Start()
}

func (t *incomingWebRequestTracer) StartAsync() {
	t.useHeaderTag()
	t.tracer.StartAsync()
}

func (t *incomingWebRequestTracer) Trace(fn func() error) error {
	return Trace(t, fn)
}

// useHeaderTag falls back to the tag header of the request. Header names are
// matched case-insensitively since HTTP stacks canonicalize them. A header
// spelled exactly HTTPHeaderName wins, then the other spellings in sorted
// order.
func (t *incomingWebRequestTracer) useHeaderTag() {
	if t.state.Load() != stateCreated || !t.inTag.IsEmpty() {
		return
	}
	headers, _ := t.attrs[agent.KeyRequestHeaders].(map[string][]string)
	if values := headers[HTTPHeaderName]; len(values) > 0 {
		t.inTag = agent.Tag{Text: values[0]}
		return
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		if strings.EqualFold(name, HTTPHeaderName) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if values := headers[name]; len(values) > 0 {
			t.inTag = agent.Tag{Text: values[0]}
			return
		}
	}
}

type outgoingWebRequestTracer struct {
	*tracer
	outgoingTaggable
}

func (t *outgoingWebRequestTracer) AddRequestHeader(name, value string) {
	if t.preStart("RequestHeader") {
		addMulti(t.attrs, agent.KeyRequestHeaders, name, value)
	}
}

func (t *outgoingWebRequestTracer) AddResponseHeader(name, value string) {
	if t.preEnd("ResponseHeader") {
		addMulti(t.endAttrs, agent.KeyResponseHeaders, name, value)
	}
}

func (t *outgoingWebRequestTracer) SetStatusCode(code int) {
	t.setEndAttr("StatusCode", agent.KeyStatusCode, code)
}

func (t *outgoingWebRequestTracer) InjectTracingHeaders(setter func(name, value string)) {
	if setter == nil {
		t.warnf("InjectTracingHeaders called with a nil setter")
		return
	}
	if !t.isStarted("InjectTracingHeaders") {
		return
	}
	headers := t.tracingHeaders()
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		setter(name, headers[name])
	}
}

func (t *outgoingWebRequestTracer) tracingHeaders() map[string]string {
	headers := make(map[string]string)
	t.sdk.usage.protect("Span.Headers", func() {
		for k, v := range t.span.Headers() {
			headers[k] = v
		}
	})
	if t.sdk.legacyHeader() {
		if tag := t.StringTag(); tag != "" {
			headers[HTTPHeaderName] = tag
		}
	}
	return headers
}

func webRequestAttrs(url, method string) agent.KVMap {
	return agent.KVMap{
		agent.KeyURL:    url,
		agent.KeyMethod: method,
	}
}
