// Copyright (C) 2016 Librato, Inc. All rights reserved.

// Package sdkhttp instruments net/http servers and clients with the SDK's web
// request tracers.
package sdkhttp

import (
	"net/http"
	"reflect"
	"runtime"
	"strings"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
)

// Custom request attributes naming the wrapped handler function
const (
	AttrController = "Controller"
	AttrAction     = "Action"
)

// Handler wraps h so that every request it serves is traced by an incoming
// web request tracer. The tracer's context is the context of the request
// handed to h.
//
//	http.Handle("/cart", sdkhttp.Handler(s, app, cartHandler))
func Handler(s sdk.SDK, app sdk.WebApplicationInfo, h http.Handler) http.Handler {
	return &handler{sdk: s, app: app, next: h}
}

// HandlerFunc is Handler for a handler function. The package and name of fn
// are added to each request as the Controller and Action attributes.
//
//	http.HandleFunc("/cart", sdkhttp.HandlerFunc(s, app, cart))
func HandlerFunc(s sdk.SDK, app sdk.WebApplicationInfo, fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	h := &handler{sdk: s, app: app, next: http.HandlerFunc(fn)}
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		// e.g. "main.cart", "github.com/acme/shop/web.(*Server).cart-fm"
		name := f.Name()
		if parts := strings.SplitN(name[strings.LastIndex(name, "/")+1:], ".", 2); len(parts) == 2 {
			h.controller, h.action = parts[0], parts[1]
		}
	}
	return h.ServeHTTP
}

type handler struct {
	sdk                sdk.SDK
	app                sdk.WebApplicationInfo
	next               http.Handler
	controller, action string
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t := h.sdk.TraceIncomingWebRequest(r.Context(), h.app, requestURL(r), r.Method)
	t.SetRemoteAddress(r.RemoteAddr)
	for name, values := range r.Header {
		for _, v := range values {
			t.AddRequestHeader(name, v)
		}
	}
	for name, values := range r.URL.Query() {
		for _, v := range values {
			t.AddParameter(name, v)
		}
	}

	_ = t.Trace(func() error {
		ctx := t.Context()
		if h.controller != "" {
			h.sdk.AddCustomRequestAttributeString(ctx, AttrController, h.controller)
			h.sdk.AddCustomRequestAttributeString(ctx, AttrAction, h.action)
		}
		rw := NewResponseWriter(w)
		defer rw.report(t)
		h.next.ServeHTTP(rw, r.WithContext(ctx))
		return nil
	})
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

// ResponseWriter observes the status code and headers of a response when
// WriteHeader or Write is called.
type ResponseWriter struct {
	Writer      http.ResponseWriter
	StatusCode  int
	WroteHeader bool
}

// NewResponseWriter wraps w. The status code is http.StatusOK until the
// handler writes another one.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{Writer: w, StatusCode: http.StatusOK}
}

func (w *ResponseWriter) Write(p []byte) (int, error) {
	if !w.WroteHeader {
		w.WriteHeader(w.StatusCode)
	}
	return w.Writer.Write(p)
}

// Header implements the http.ResponseWriter interface.
func (w *ResponseWriter) Header() http.Header { return w.Writer.Header() }

// WriteHeader implements the http.ResponseWriter interface.
func (w *ResponseWriter) WriteHeader(status int) {
	w.StatusCode = status
	w.WroteHeader = true
	w.Writer.WriteHeader(status)
}

// Flush implements http.Flusher if the wrapped writer does.
func (w *ResponseWriter) Flush() {
	if f, ok := w.Writer.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *ResponseWriter) report(t sdk.IncomingWebRequestTracer) {
	for name, values := range w.Header() {
		for _, v := range values {
			t.AddResponseHeader(name, v)
		}
	}
	t.SetStatusCode(w.StatusCode)
}
