// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
)

// OutgoingMessageTracer traces sending a message. The tag is meant to travel
// with the message in the MessagePropertyName property.
type OutgoingMessageTracer interface {
	Tracer
	OutgoingTaggable
	// SetVendorMessageID sets the ID the messaging system assigned to the
	// message. It must be called between Start and End.
	SetVendorMessageID(id string)
	// SetCorrelationID sets the application correlation ID of the message.
	// It must be called between Start and End.
	SetCorrelationID(id string)
}

// IncomingMessageReceiveTracer traces waiting for and receiving messages.
// The processing of each received message is traced separately with an
// IncomingMessageProcessTracer.
type IncomingMessageReceiveTracer interface {
	Tracer
}

// IncomingMessageProcessTracer traces processing one received message.
type IncomingMessageProcessTracer interface {
	Tracer
	IncomingTaggable
	SetVendorMessageID(id string)
	SetCorrelationID(id string)
}

type messageIDs struct{ t *tracer }

func (m messageIDs) SetVendorMessageID(id string) {
	m.t.setEndAttr("VendorMessageID", agent.KeyVendorMessageID, id)
}

func (m messageIDs) SetCorrelationID(id string) {
	m.t.setEndAttr("CorrelationID", agent.KeyCorrelationID, id)
}

type outgoingMessageTracer struct {
	*tracer
	outgoingTaggable
	messageIDs
}

type incomingMessageReceiveTracer struct {
	*tracer
}

type incomingMessageProcessTracer struct {
	*tracer
	incomingTaggable
	messageIDs
}
