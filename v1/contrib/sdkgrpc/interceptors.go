// Package sdkgrpc traces gRPC calls with the SDK's remote call tracers. The
// client interceptors pass the outgoing tag to the server in the metadata
// key MetadataKey.
package sdkgrpc

import (
	"context"
	"fmt"
	"io"
	fp "path/filepath"
	"strings"
	"sync"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// MetadataKey is the gRPC metadata key carrying the string tag.
	MetadataKey = "x-dynatrace"
	// ProtocolName is reported as the protocol of outgoing calls.
	ProtocolName = "gRPC"
)

// Custom request attributes added to failed server calls
const (
	AttrErrorClass = "ErrorClass"
	AttrStatusCode = "GRPCStatusCode"
)

func actionFromMethod(method string) string {
	mParts := strings.Split(method, "/")

	return mParts[len(mParts)-1]
}

// StackTracer is a copy of the stackTracer interface of pkg/errors.
//
// This may be fragile as stackTracer is not imported, just try our best though.
type StackTracer interface {
	StackTrace() errors.StackTrace
}

func getErrClass(err error) string {
	if st, ok := err.(StackTracer); ok {
		pkg, e := getTopFramePkg(st)
		if e == nil {
			return pkg
		}
	}
	// seems we cannot do anything else, so just return the fallback value
	return "error"
}

var (
	errNilStackTracer  = errors.New("nil stackTracer pointer")
	errEmptyStackTrace = errors.New("empty stack trace")
	errGetTopFramePkg  = errors.New("failed to get top frame package name")
)

func getTopFramePkg(st StackTracer) (string, error) {
	if st == nil {
		return "", errNilStackTracer
	}
	trace := st.StackTrace()
	if len(trace) == 0 {
		return "", errEmptyStackTrace
	}
	fs := fmt.Sprintf("%+s", trace[0])
	// see the %+s verb of errors.Frame
	frames := strings.Split(fs, "\n\t")
	if len(frames) != 2 {
		return "", errGetTopFramePkg
	}
	return fp.Base(fp.Dir(frames[1])), nil
}

// incomingTracer starts the tracer of a server call, continuing the trace of
// the client if its tag is in the metadata.
func incomingTracer(ctx context.Context, s sdk.SDK, serviceName, fullMethod string) sdk.IncomingRemoteCallTracer {
	t := s.TraceIncomingRemoteCall(ctx, actionFromMethod(fullMethod), serviceName, fullMethod)
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if tags := md.Get(MetadataKey); len(tags) > 0 {
			t.SetStringTag(tags[0])
		}
	}
	return t
}

func reportServerError(ctx context.Context, s sdk.SDK, err error) {
	if err == nil {
		return
	}
	s.AddCustomRequestAttributeString(ctx, AttrErrorClass, getErrClass(err))
	s.AddCustomRequestAttributeString(ctx, AttrStatusCode, status.Code(err).String())
}

// UnaryServerInterceptor returns an interceptor that traces unary server RPCs.
// If the client is using UnaryClientInterceptor, the distributed trace's
// context will be read from the client.
func UnaryServerInterceptor(s sdk.SDK, serviceName string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		var resp interface{}
		t := incomingTracer(ctx, s, serviceName, info.FullMethod)
		err := t.Trace(func() error {
			var err error
			resp, err = handler(t.Context(), req)
			reportServerError(t.Context(), s, err)
			return err
		})
		return resp, err
	}
}

// wrappedServerStream from the grpc_middleware project
type wrappedServerStream struct {
	grpc.ServerStream
	WrappedContext context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.WrappedContext
}

func wrapServerStream(stream grpc.ServerStream) *wrappedServerStream {
	if existing, ok := stream.(*wrappedServerStream); ok {
		return existing
	}
	return &wrappedServerStream{ServerStream: stream, WrappedContext: stream.Context()}
}

// StreamServerInterceptor returns an interceptor that traces streaming server
// RPCs. Each tracer ends when the handler returns.
func StreamServerInterceptor(s sdk.SDK, serviceName string) grpc.StreamServerInterceptor {
	return func(srv interface{}, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		t := incomingTracer(stream.Context(), s, serviceName, info.FullMethod)
		return t.Trace(func() error {
			wrappedStream := wrapServerStream(stream)
			wrappedStream.WrappedContext = t.Context()
			err := handler(srv, wrappedStream)
			if err == io.EOF {
				return nil
			}
			reportServerError(t.Context(), s, err)
			return err
		})
	}
}

// outgoingTracer starts the tracer of a client call and returns the context
// carrying its tag to the server.
func outgoingTracer(ctx context.Context, s sdk.SDK, serviceName, target, method string) (context.Context, sdk.OutgoingRemoteCallTracer) {
	t := s.TraceOutgoingRemoteCall(ctx, actionFromMethod(method), serviceName, target, sdk.ChannelTCPIP, target)
	t.SetProtocolName(ProtocolName)
	t.Start()
	ctx = t.Context()
	if tag := t.StringTag(); tag != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, MetadataKey, tag)
	}
	return ctx, t
}

// UnaryClientInterceptor returns an interceptor that traces a unary RPC from a
// gRPC client to a server, by propagating the distributed trace's context from
// client to server using gRPC metadata.
func UnaryClientInterceptor(s sdk.SDK, target string, serviceName string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, resp interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, t := outgoingTracer(ctx, s, serviceName, target, method)
		defer t.End()
		err := invoker(ctx, method, req, resp, cc, opts...)
		t.Err(err)
		return err
	}
}

// StreamClientInterceptor returns an interceptor that traces a streaming RPC
// from a gRPC client to a server, by propagating the distributed trace's
// context from client to server using gRPC metadata. The client tracer ends
// when the stream fails or all response messages have been received.
func StreamClientInterceptor(s sdk.SDK, target string, serviceName string) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		ctx, t := outgoingTracer(ctx, s, serviceName, target, method)
		clientStream, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			endTracer(t, err)
			return nil, err
		}
		return &tracedClientStream{ClientStream: clientStream, tracer: t}, nil
	}
}

type tracedClientStream struct {
	grpc.ClientStream
	mu     sync.Mutex
	closed bool
	tracer sdk.OutgoingRemoteCallTracer
}

func (s *tracedClientStream) Header() (metadata.MD, error) {
	h, err := s.ClientStream.Header()
	if err != nil {
		s.end(err)
	}
	return h, err
}

func (s *tracedClientStream) SendMsg(m interface{}) error {
	err := s.ClientStream.SendMsg(m)
	if err != nil {
		s.end(err)
	}
	return err
}

func (s *tracedClientStream) CloseSend() error {
	err := s.ClientStream.CloseSend()
	if err != nil {
		s.end(err)
	}
	return err
}

func (s *tracedClientStream) RecvMsg(m interface{}) error {
	err := s.ClientStream.RecvMsg(m)
	if err != nil {
		s.end(err)
	}
	return err
}

func (s *tracedClientStream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		endTracer(s.tracer, err)
		s.closed = true
	}
}

func endTracer(t sdk.Tracer, err error) {
	if err != nil && err != io.EOF {
		t.Err(err)
	}
	t.End()
}
