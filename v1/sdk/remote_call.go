// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
)

// OutgoingRemoteCallTracer traces a call to a remote service, e.g. an RPC.
type OutgoingRemoteCallTracer interface {
	Tracer
	OutgoingTaggable
	// SetProtocolName sets the name of the remoting protocol, e.g. "gRPC".
	// It must be called before Start.
	SetProtocolName(name string)
}

// IncomingRemoteCallTracer traces the server side of a remote call.
type IncomingRemoteCallTracer interface {
	Tracer
	IncomingTaggable
	// SetProtocolName sets the name of the remoting protocol. It must be
	// called before Start.
	SetProtocolName(name string)
}

type outgoingRemoteCallTracer struct {
	*tracer
	outgoingTaggable
}

func (t *outgoingRemoteCallTracer) SetProtocolName(name string) {
	t.setAttr("ProtocolName", agent.KeyProtocolName, name)
}

type incomingRemoteCallTracer struct {
	*tracer
	incomingTaggable
}

func (t *incomingRemoteCallTracer) SetProtocolName(name string) {
	t.setAttr("ProtocolName", agent.KeyProtocolName, name)
}

func remoteCallAttrs(method, service, endpoint string) agent.KVMap {
	return agent.KVMap{
		agent.KeyServiceMethod:   method,
		agent.KeyServiceName:     service,
		agent.KeyServiceEndpoint: endpoint,
	}
}
