// Copyright (C) 2017 Librato, Inc. All rights reserved.

/*
Package sdk is the instrumentation facade applications use to trace remote
calls, database requests, messages, web requests and work handed between
goroutines.

A single SDK handle is created at process start and passed to the code that
needs it:

	s := sdk.New(sdk.WithAgent(otelagent.New(tp)))

Without an agent (or when disabled through configuration) New returns the
no-op implementation, so instrumented code never needs to check whether
tracing is available.

Each traced operation is represented by a Tracer which moves through
Start, an optional Error and End:

	t := s.TraceOutgoingRemoteCall(ctx, "Get", "UserService", "users:8080",
		sdk.ChannelTCPIP, "users:8080")
	t.Start()
	tag := t.StringTag() // hand this to the callee
	if err := call(tag); err != nil {
		t.Err(err)
	}
	t.End()

or more conveniently

	err := t.Trace(func() error { return call(t.StringTag()) })

Misuse of a tracer (starting it twice, setting a field after Start, ...) never
panics and is never returned as an error. It is reported to the LoggingCallback
registered with SetLoggingCallback.
*/
package sdk
