// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"context"
)

// InProcessLink captures a position in a trace so that work handed to other
// goroutines can continue it. A link is immutable and may be used by any
// number of InProcessLinkTracers, concurrently.
type InProcessLink struct {
	data []byte
}

// InProcessLinkFromBytes restores a link from the result of Bytes.
func InProcessLinkFromBytes(b []byte) InProcessLink {
	return InProcessLink{data: append([]byte(nil), b...)}
}

// Bytes returns a copy of the link data.
func (l InProcessLink) Bytes() []byte {
	return append([]byte{}, l.data...)
}

// IsEmpty reports whether the link carries no trace position, e.g. because
// it was created by the no-op SDK or outside of a trace.
func (l InProcessLink) IsEmpty() bool {
	return len(l.data) == 0
}

// InProcessLinkTracer traces the work continuing an InProcessLink.
type InProcessLinkTracer interface {
	Tracer
}

type inProcessLinkTracer struct {
	*tracer
}

type linkKey struct{}

// ContextWithLink returns a copy of ctx carrying link.
func ContextWithLink(ctx context.Context, link InProcessLink) context.Context {
	return context.WithValue(ctx, linkKey{}, link)
}

// LinkFromContext returns the link stored in ctx by ContextWithLink.
func LinkFromContext(ctx context.Context) (InProcessLink, bool) {
	link, ok := ctx.Value(linkKey{}).(InProcessLink)
	return link, ok
}
