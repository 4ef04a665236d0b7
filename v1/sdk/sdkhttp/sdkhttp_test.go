// Copyright (C) 2016 Librato, Inc. All rights reserved.

package sdkhttp_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent/agenttest"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/sdkhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var app = sdk.WebApplicationInfo{WebServerName: "test", ApplicationID: "shop", ContextRoot: "/"}

func cartHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusTeapot)
	_, _ = io.WriteString(w, "cart")
}

func newSDK(t *testing.T) (sdk.SDK, *agenttest.Agent) {
	a := agenttest.New()
	s := sdk.New(sdk.WithAgent(a))
	require.Equal(t, sdk.StateActive, s.CurrentState())
	return s, a
}

func TestClientServerLinked(t *testing.T) {
	s, a := newSDK(t)
	srv := httptest.NewServer(sdkhttp.HandlerFunc(s, app, cartHandler))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/cart?item=1&item=2", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/plain")
	resp, err := sdkhttp.Client(s, nil).Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "cart", string(body))
	assert.Empty(t, req.Header.Get(sdk.HTTPHeaderName))

	spans := a.Spans()
	require.Len(t, spans, 2)
	client, server := spans[0], spans[1]
	assert.Equal(t, agent.KindOutgoingWebRequest, client.Options.Kind)
	assert.Equal(t, agent.KindIncomingWebRequest, server.Options.Kind)
	assert.Equal(t, client.ID, server.ParentID)
	assert.Equal(t, client.TraceID, server.TraceID)

	assert.Equal(t, map[string][]string{"Accept": {"text/plain"}}, client.Options.Attributes[agent.KeyRequestHeaders])
	assert.Equal(t, http.StatusTeapot, client.EndAttributes()[agent.KeyStatusCode])

	attrs := server.Options.Attributes
	assert.Equal(t, http.MethodGet, attrs[agent.KeyMethod])
	assert.Equal(t, srv.URL+"/cart?item=1&item=2", attrs[agent.KeyURL])
	assert.Equal(t, map[string][]string{"item": {"1", "2"}}, attrs[agent.KeyParameters])
	assert.NotEmpty(t, attrs[agent.KeyRemoteAddress])
	assert.Equal(t, "shop", attrs[agent.KeyApplicationID])

	end := server.EndAttributes()
	assert.Equal(t, http.StatusTeapot, end[agent.KeyStatusCode])
	assert.Equal(t, []string{"text/plain"}, end[agent.KeyResponseHeaders].(map[string][]string)["Content-Type"])
	assert.Equal(t, map[string][]interface{}{
		sdkhttp.AttrController: {"sdkhttp_test"},
		sdkhttp.AttrAction:     {"cartHandler"},
	}, server.CustomAttributes())
}

func TestHandlerContext(t *testing.T) {
	s, a := newSDK(t)
	var info sdk.TraceContextInfo
	h := sdkhttp.Handler(s, app, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info = s.TraceContextInfo(r.Context())
		_, _ = io.WriteString(w, "ok")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))

	require.Len(t, a.Spans(), 1)
	span := a.Spans()[0]
	assert.Equal(t, span.ID, info.SpanID)
	assert.Equal(t, http.StatusOK, span.EndAttributes()[agent.KeyStatusCode])
	assert.Empty(t, span.CustomAttributes())
}

func TestHandlerPanic(t *testing.T) {
	s, a := newSDK(t)
	h := sdkhttp.HandlerFunc(s, app, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("boom")
	})
	assert.PanicsWithValue(t, "boom", func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	})

	span := a.Spans()[0]
	assert.True(t, span.Ended())
	assert.Equal(t, []string{"boom"}, span.Errors())
	assert.Equal(t, http.StatusAccepted, span.EndAttributes()[agent.KeyStatusCode])
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTransportError(t *testing.T) {
	s, a := newSDK(t)
	failure := errors.New("connection refused")
	var sent *http.Request
	tr := sdkhttp.NewTransport(s, roundTripFunc(func(r *http.Request) (*http.Response, error) {
		sent = r
		return nil, failure
	}))

	req := httptest.NewRequest(http.MethodGet, "http://backend/api", nil)
	_, err := tr.RoundTrip(req)
	assert.Equal(t, failure, err)

	span := a.Spans()[0]
	assert.Equal(t, []string{"connection refused"}, span.Errors())
	assert.True(t, span.Ended())
	assert.Equal(t, span.StringTag(), sent.Header.Get(sdk.HTTPHeaderName))
	assert.NotEmpty(t, sent.Header.Get("traceparent"))
	assert.Empty(t, req.Header.Get("traceparent"))
}

func TestDummySDKPassesThrough(t *testing.T) {
	s := sdk.NewDummy()
	rec := httptest.NewRecorder()
	sdkhttp.HandlerFunc(s, app, cartHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "cart", rec.Body.String())
}
