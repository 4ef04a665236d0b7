// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk_test

import (
	"context"
	"sync"
	"testing"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent/agenttest"
	"github.com/stretchr/testify/require"
)

// callback records what the SDK reports to the LoggingCallback.
type callback struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (c *callback) Warn(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warns = append(c.warns, msg)
}

func (c *callback) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, msg)
}

func (c *callback) Warnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.warns...)
}

func (c *callback) Errors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.errs...)
}

func newTestSDK(t *testing.T, agentOpts []agenttest.Option, opts ...sdk.Option) (sdk.SDK, *agenttest.Agent, *callback) {
	t.Helper()
	a := agenttest.New(agentOpts...)
	cb := &callback{}
	opts = append([]sdk.Option{sdk.WithAgent(a), sdk.WithLoggingCallback(cb)}, opts...)
	s := sdk.New(opts...)
	require.Equal(t, sdk.StateActive, s.CurrentState())
	return s, a, cb
}

var (
	testDB = sdk.DatabaseInfo{
		Name:            "users",
		Vendor:          sdk.DatabaseVendorPostgreSQL,
		ChannelType:     sdk.ChannelTCPIP,
		ChannelEndpoint: "db:5432",
	}
	testQueue = sdk.MessagingSystemInfo{
		VendorName:      sdk.MessagingVendorKafka,
		DestinationName: "orders",
		DestinationType: sdk.DestinationTopic,
		ChannelType:     sdk.ChannelTCPIP,
		ChannelEndpoint: "kafka:9092",
	}
	testApp = sdk.WebApplicationInfo{
		WebServerName: "web-1",
		ApplicationID: "shop",
		ContextRoot:   "/",
	}
)

// tracerKinds creates one tracer of every kind.
var tracerKinds = map[string]func(s sdk.SDK, ctx context.Context) sdk.Tracer{
	"IncomingRemoteCall": func(s sdk.SDK, ctx context.Context) sdk.Tracer {
		return s.TraceIncomingRemoteCall(ctx, "Get", "UserService", "users:8080")
	},
	"OutgoingRemoteCall": func(s sdk.SDK, ctx context.Context) sdk.Tracer {
		return s.TraceOutgoingRemoteCall(ctx, "Get", "UserService", "users:8080", sdk.ChannelTCPIP, "users:8080")
	},
	"DatabaseRequest": func(s sdk.SDK, ctx context.Context) sdk.Tracer {
		return s.TraceSQLDatabaseRequest(ctx, testDB, "SELECT 1")
	},
	"OutgoingMessage": func(s sdk.SDK, ctx context.Context) sdk.Tracer {
		return s.TraceOutgoingMessage(ctx, testQueue)
	},
	"IncomingMessageReceive": func(s sdk.SDK, ctx context.Context) sdk.Tracer {
		return s.TraceIncomingMessageReceive(ctx, testQueue)
	},
	"IncomingMessageProcess": func(s sdk.SDK, ctx context.Context) sdk.Tracer {
		return s.TraceIncomingMessageProcess(ctx, testQueue)
	},
	"IncomingWebRequest": func(s sdk.SDK, ctx context.Context) sdk.Tracer {
		return s.TraceIncomingWebRequest(ctx, testApp, "http://shop/cart", "GET")
	},
	"OutgoingWebRequest": func(s sdk.SDK, ctx context.Context) sdk.Tracer {
		return s.TraceOutgoingWebRequest(ctx, "http://users:8080/u/1", "GET")
	},
	"InProcessLink": func(s sdk.SDK, ctx context.Context) sdk.Tracer {
		return s.TraceInProcessLink(ctx, sdk.InProcessLinkFromBytes([]byte("agenttest;1;1")))
	},
}
