// Copyright (C) 2016 Librato, Inc. All rights reserved.

package sdkhttp

import (
	"net/http"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
)

// Transport is an http.RoundTripper tracing each request with an outgoing
// web request tracer. The tracing headers are added to a clone of the
// request, so the caller's request is left untouched.
//
//	client := &http.Client{Transport: sdkhttp.NewTransport(s, nil)}
type Transport struct {
	sdk  sdk.SDK
	base http.RoundTripper
}

// NewTransport returns a Transport sending requests through base. A nil base
// means http.DefaultTransport.
func NewTransport(s sdk.SDK, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{sdk: s, base: base}
}

// Client returns an http.Client using a Transport over c's transport. A nil
// c means http.DefaultClient.
func Client(s sdk.SDK, c *http.Client) *http.Client {
	if c == nil {
		c = http.DefaultClient
	}
	traced := *c
	traced.Transport = NewTransport(s, c.Transport)
	return &traced
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tr := t.sdk.TraceOutgoingWebRequest(req.Context(), req.URL.String(), req.Method)
	for name, values := range req.Header {
		for _, v := range values {
			tr.AddRequestHeader(name, v)
		}
	}
	tr.Start()
	defer tr.End()

	out := req.Clone(tr.Context())
	sdk.InjectTracingHeadersTo(tr, out.Header, func(name, value string, h http.Header) {
		h.Set(name, value)
	})

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		tr.Err(err)
		return nil, err
	}
	for name, values := range resp.Header {
		for _, v := range values {
			tr.AddResponseHeader(name, v)
		}
	}
	tr.SetStatusCode(resp.StatusCode)
	return resp, nil
}
