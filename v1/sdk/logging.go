// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"fmt"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/internal/log"
	"go.uber.org/atomic"
)

// LoggingCallback receives the usage warnings and internal errors of the SDK.
// It is invoked synchronously from the SDK call that caused the report, from
// any goroutine, so implementations must be safe for concurrent use.
type LoggingCallback interface {
	// Warn is called for misuse of the API, e.g. ending a tracer twice.
	Warn(msg string)
	// Error is called for failures inside the SDK or the agent.
	Error(msg string)
}

// LoggingCallbackFuncs adapts a pair of functions to a LoggingCallback. A nil
// function drops the messages of its channel.
type LoggingCallbackFuncs struct {
	WarnFunc  func(msg string)
	ErrorFunc func(msg string)
}

// Warn implements LoggingCallback.
func (f LoggingCallbackFuncs) Warn(msg string) {
	if f.WarnFunc != nil {
		f.WarnFunc(msg)
	}
}

// Error implements LoggingCallback.
func (f LoggingCallbackFuncs) Error(msg string) {
	if f.ErrorFunc != nil {
		f.ErrorFunc(msg)
	}
}

// atomic.Value panics on inconsistent types and on nil, hence the box.
type callbackBox struct{ cb LoggingCallback }

// usageReporter delivers SDK usage errors to the registered callback and the
// internal log.
type usageReporter struct {
	cb atomic.Value
}

func (r *usageReporter) set(cb LoggingCallback) {
	r.cb.Store(callbackBox{cb})
}

func (r *usageReporter) callback() LoggingCallback {
	if b, ok := r.cb.Load().(callbackBox); ok {
		return b.cb
	}
	return nil
}

func (r *usageReporter) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Debug(msg)
	if cb := r.callback(); cb != nil {
		cb.Warn(msg)
	}
}

func (r *usageReporter) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Warning(msg)
	if cb := r.callback(); cb != nil {
		cb.Error(msg)
	}
}

// protect runs an agent call and turns a panic into an error report, so a
// faulty agent can never crash the host application.
func (r *usageReporter) protect(op string, fn func()) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.errorf("agent panicked in %s: %v", op, p)
			ok = false
		}
	}()
	fn()
	return true
}
