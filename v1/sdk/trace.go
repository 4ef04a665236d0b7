// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"context"
	"fmt"
)

// Trace starts t, runs fn and ends t. End runs exactly once however fn
// terminates. An error returned by fn is recorded on t and returned
// unchanged; a panic is recorded and re-raised after End. A nil fn only
// starts and ends the tracer.
func Trace(t Tracer, fn func() error) error {
	t.Start()
	defer t.End()
	if fn == nil {
		return nil
	}
	return run(t, fn)
}

// TraceValue is Trace for work which produces a value.
func TraceValue[T any](t Tracer, fn func() (T, error)) (T, error) {
	var v T
	if fn == nil {
		return v, Trace(t, nil)
	}
	err := Trace(t, func() (err error) {
		v, err = fn()
		return err
	})
	return v, err
}

func run(t Tracer, fn func() error) error {
	defer func() {
		if p := recover(); p != nil {
			recordPanic(t, p)
			panic(p)
		}
	}()
	err := fn()
	if err != nil {
		recordError(t, err.Error())
	}
	return err
}

func recordPanic(t Tracer, p interface{}) {
	if err, ok := p.(error); ok {
		recordError(t, err.Error())
		return
	}
	recordError(t, fmt.Sprint(p))
}

// recordError sets the error of t. The traced function may have set it
// already, which is not reported as a second error.
func recordError(t Tracer, msg string) {
	if o, ok := t.(interface{ errorOnce(string) }); ok {
		o.errorOnce(msg)
		return
	}
	t.Error(msg)
}

// Future is the result of a unit of work traced with TraceAsync or
// TraceAsyncValue. A nil Future is complete and holds the zero value.
type Future[T any] struct {
	done     chan struct{}
	value    T
	err      error
	panicVal interface{}
	panicked bool
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done returns a channel which is closed once the work completed and its
// tracer ended.
func (f *Future[T]) Done() <-chan struct{} {
	if f == nil {
		return closedCh
	}
	return f.done
}

// Wait blocks until the work completed and returns its result. A panic of
// the work is re-raised in the calling goroutine.
func (f *Future[T]) Wait() (T, error) {
	if f == nil {
		var zero T
		return zero, nil
	}
	<-f.done
	if f.panicked {
		panic(f.panicVal)
	}
	return f.value, f.err
}

// WaitContext is Wait which gives up when ctx is done. The work and its
// tracer are not affected by ctx.
func (f *Future[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.Done():
		return f.Wait()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TraceAsync starts t with StartAsync and runs fn on a new goroutine with the
// context of t. The tracer ends when fn returns, before the Future completes.
// A nil fn ends the tracer at once and returns a nil Future.
func TraceAsync(t Tracer, fn func(ctx context.Context) error) *Future[struct{}] {
	var wrapped func(context.Context) (struct{}, error)
	if fn != nil {
		wrapped = func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		}
	}
	return TraceAsyncValue(t, wrapped)
}

// TraceAsyncValue is TraceAsync for work which produces a value.
func TraceAsyncValue[T any](t Tracer, fn func(ctx context.Context) (T, error)) *Future[T] {
	t.StartAsync()
	if fn == nil {
		t.End()
		return nil
	}
	f := &Future[T]{done: make(chan struct{})}
	ctx := t.Context()
	go func() {
		defer close(f.done)
		defer t.End()
		defer func() {
			if p := recover(); p != nil {
				recordPanic(t, p)
				f.panicVal, f.panicked = p, true
			}
		}()
		f.value, f.err = fn(ctx)
		if f.err != nil {
			recordError(t, f.err.Error())
		}
	}()
	return f
}
