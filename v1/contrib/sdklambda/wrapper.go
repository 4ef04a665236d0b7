// Package sdklambda traces AWS Lambda handlers. API Gateway proxy events are
// traced as incoming web requests, every other event as an incoming remote
// call.
package sdklambda

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"strings"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/pkg/errors"
)

const (
	// ServiceName is the service name of the remote calls traced for
	// non-HTTP events.
	ServiceName = "AWS Lambda"
	// ProtocolName is the protocol of the remote calls traced for non-HTTP
	// events.
	ProtocolName = "Lambda Invoke"
)

// Custom request attributes added to every invocation.
const (
	AttrColdStart       = "ColdStart"
	AttrAwsRequestID    = "AwsRequestID"
	AttrFunctionVersion = "FunctionVersion"
	AttrController      = "Controller"
	AttrAction          = "Action"
)

// Wrapper is called around every invocation of a wrapped handler.
type Wrapper interface {
	Before(ctx context.Context, msg json.RawMessage, coldStart bool) context.Context
	After(result interface{}, err *typedError)
}

type traceWrapper struct {
	sdk        sdk.SDK
	controller string
	action     string

	// Lambda runs one invocation at a time per process.
	tracer sdk.Tracer
	web    sdk.IncomingWebRequestTracer
}

// incomingEvent holds the fields of an event needed to pick its tracer.
// Events which are not API Gateway proxy requests still may carry headers.
type incomingEvent struct {
	events.APIGatewayProxyRequest
}

func (e *incomingEvent) header(name string) string {
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func (w *traceWrapper) Before(ctx context.Context, msg json.RawMessage, coldStart bool) context.Context {
	evt := &incomingEvent{}
	if err := json.Unmarshal(msg, &evt.APIGatewayProxyRequest); err != nil {
		evt = &incomingEvent{}
	}

	functionName, arn := lambdacontext.FunctionName, ""
	lc, hasLC := lambdacontext.FromContext(ctx)
	if hasLC {
		arn = lc.InvokedFunctionArn
	}
	if functionName == "" {
		functionName = w.action
	}

	w.web = nil
	if evt.HTTPMethod != "" {
		w.web = w.sdk.TraceIncomingWebRequest(ctx, sdk.WebApplicationInfo{
			WebServerName: ServiceName,
			ApplicationID: functionName,
			ContextRoot:   "/" + evt.RequestContext.Stage,
		}, eventURL(evt), evt.HTTPMethod)
		if ip := evt.RequestContext.Identity.SourceIP; ip != "" {
			w.web.SetRemoteAddress(ip)
		}
		for k, v := range evt.Headers {
			w.web.AddRequestHeader(k, v)
		}
		for k, v := range evt.QueryStringParameters {
			w.web.AddParameter(k, v)
		}
		w.tracer = w.web
	} else {
		t := w.sdk.TraceIncomingRemoteCall(ctx, functionName, ServiceName, arn)
		t.SetProtocolName(ProtocolName)
		if tag := evt.header(sdk.HTTPHeaderName); tag != "" {
			t.SetStringTag(tag)
		}
		w.tracer = t
	}

	w.tracer.Start()
	ctx = w.tracer.Context()
	w.sdk.AddCustomRequestAttributeString(ctx, AttrColdStart, strconv.FormatBool(coldStart))
	if hasLC {
		w.sdk.AddCustomRequestAttributeString(ctx, AttrAwsRequestID, lc.AwsRequestID)
	}
	if lambdacontext.FunctionVersion != "" {
		w.sdk.AddCustomRequestAttributeString(ctx, AttrFunctionVersion, lambdacontext.FunctionVersion)
	}
	if w.controller != "" {
		w.sdk.AddCustomRequestAttributeString(ctx, AttrController, w.controller)
		w.sdk.AddCustomRequestAttributeString(ctx, AttrAction, w.action)
	}
	return ctx
}

// eventURL rebuilds the URL of an API Gateway request.
func eventURL(evt *incomingEvent) string {
	url := evt.Path
	if host := evt.header("Host"); host != "" {
		scheme := evt.header("X-Forwarded-Proto")
		if scheme == "" {
			scheme = "https"
		}
		url = scheme + "://" + host + url
	}
	return url
}

type typedError struct {
	typ string
	err error
}

func (w *traceWrapper) After(result interface{}, err *typedError) {
	defer w.tracer.End()
	if err != nil {
		if err.typ == "error" {
			w.tracer.Err(err.err)
		} else {
			w.tracer.Error(err.typ + ": " + err.err.Error())
		}
	}
	if w.web == nil {
		return
	}

	var rsp *events.APIGatewayProxyResponse
	switch r := result.(type) {
	case events.APIGatewayProxyResponse:
		rsp = &r
	case *events.APIGatewayProxyResponse:
		rsp = r
	}
	if rsp == nil {
		return
	}
	for k, v := range rsp.Headers {
		w.web.AddResponseHeader(k, v)
	}
	if rsp.StatusCode != 0 {
		w.web.SetStatusCode(rsp.StatusCode)
	}
}

// Wrap wraps the AWS Lambda handler and traces its invocations with s. It
// returns a new handler which can be passed into lambda.Start().
func Wrap(s sdk.SDK, handlerFunc interface{}) interface{} {
	w := &traceWrapper{sdk: s}
	if v := reflect.ValueOf(handlerFunc); v.Kind() != reflect.Func {
		return handlerFunc
	} else if f := runtime.FuncForPC(v.Pointer()); f != nil {
		// e.g. "main.slowHandler", "github.com/appoptics/appoptics-sdk-go/v1/contrib/sdklambda.handler404"
		fname := f.Name()
		if parts := strings.SplitN(fname[strings.LastIndex(fname, "/")+1:], ".", 2); len(parts) == 2 {
			w.controller, w.action = parts[0], parts[1]
		}
	}
	return HandlerWithWrapper(handlerFunc, w)
}

// HandlerWithWrapper wraps handlerFunc with w. Invalid handlers are returned
// unchanged so that lambda.Start() rejects them.
func HandlerWithWrapper(handlerFunc interface{}, w Wrapper) interface{} {
	if handlerFunc == nil {
		return handlerFunc
	}
	if err := checkSignature(reflect.TypeOf(handlerFunc)); err != nil {
		return handlerFunc
	}

	coldStart := true
	return func(ctx context.Context, msg json.RawMessage) (res interface{}, err error) {
		ctx = w.Before(ctx, msg, coldStart)
		defer func() {
			var panicErr interface{}
			var te *typedError

			if panicErr = recover(); panicErr != nil {
				te = &typedError{typ: "panic", err: fmt.Errorf("%v", panicErr)}
			} else if err != nil {
				te = &typedError{typ: "error", err: err}
			}

			w.After(res, te)
			if panicErr != nil {
				panic(panicErr)
			}
		}()

		res, err = callHandler(ctx, msg, handlerFunc)
		coldStart = false

		return res, err
	}
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func callHandler(ctx context.Context, msg json.RawMessage, handler interface{}) (interface{}, error) {
	handlerType := reflect.TypeOf(handler)
	ev, err := unmarshalEvent(msg, handlerType)
	if err != nil {
		return nil, err
	}

	// the arguments to call the handler
	var args []reflect.Value
	if handlerType.NumIn() == 1 {
		if handlerType.In(0).Implements(contextType) {
			args = []reflect.Value{reflect.ValueOf(ctx)}
		} else {
			args = []reflect.Value{ev.Elem()}
		}
	} else if handlerType.NumIn() == 2 {
		args = []reflect.Value{reflect.ValueOf(ctx), ev.Elem()}
	}

	ret := reflect.ValueOf(handler).Call(args)

	var rsp interface{}
	if len(ret) > 0 {
		if errVal, ok := ret[len(ret)-1].Interface().(error); ok {
			err = errVal
		}
	}
	if len(ret) > 1 {
		rsp = ret[0].Interface()
	}
	return rsp, err
}

func unmarshalEvent(ev json.RawMessage, handlerType reflect.Type) (reflect.Value, error) {
	if handlerType.NumIn() == 0 {
		return reflect.ValueOf(nil), nil
	}
	if handlerType.NumIn() == 1 && handlerType.In(0).Implements(contextType) {
		return reflect.ValueOf(nil), nil
	}

	newMessage := reflect.New(handlerType.In(handlerType.NumIn() - 1))
	if err := json.Unmarshal(ev, newMessage.Interface()); err != nil {
		return reflect.ValueOf(nil), errors.Wrap(err, "cannot decode the event")
	}
	return newMessage, nil
}

func checkSignature(handler reflect.Type) error {
	if handler.Kind() != reflect.Func {
		return errors.Errorf("handler kind %s is not %s", handler.Kind(), reflect.Func)
	}

	if handler.NumIn() > 2 {
		return errors.Errorf("handler takes too many arguments: %d", handler.NumIn())
	}
	if handler.NumIn() == 2 && !handler.In(0).Implements(contextType) {
		return errors.New("context should be the first argument")
	}

	if handler.NumOut() > 2 {
		return errors.Errorf("handler returns too many values: %d", handler.NumOut())
	}
	if handler.NumOut() > 0 && !handler.Out(handler.NumOut()-1).Implements(errorType) {
		return errors.New("handler should return error as the last value")
	}
	return nil
}
