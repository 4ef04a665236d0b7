// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
)

// AgentInfo describes the agent the SDK found at construction time.
type AgentInfo struct {
	AgentFound      bool
	AgentCompatible bool
	Version         string
}

// TraceContextInfo holds the W3C-style IDs of the span active in a context.
type TraceContextInfo struct {
	TraceID string
	SpanID  string
}

// IsValid reports whether both IDs differ from the all-zero sentinels.
func (i TraceContextInfo) IsValid() bool {
	return isValidID(i.TraceID, InvalidTraceID) && isValidID(i.SpanID, InvalidSpanID)
}

func isValidID(id, sentinel string) bool {
	return len(id) == len(sentinel) && id != sentinel
}

var invalidTraceContextInfo = TraceContextInfo{TraceID: InvalidTraceID, SpanID: InvalidSpanID}

// DatabaseInfo describes a database tracers report requests to.
type DatabaseInfo struct {
	Name            string
	Vendor          string
	ChannelType     ChannelType
	ChannelEndpoint string
}

func (d DatabaseInfo) attributes() agent.KVMap {
	return agent.KVMap{
		agent.KeyDatabaseName:    d.Name,
		agent.KeyDatabaseVendor:  d.Vendor,
		agent.KeyChannelType:     d.ChannelType.String(),
		agent.KeyChannelEndpoint: d.ChannelEndpoint,
	}
}

// MessagingSystemInfo describes a messaging system and destination.
type MessagingSystemInfo struct {
	VendorName      string
	DestinationName string
	DestinationType MessageDestinationType
	ChannelType     ChannelType
	ChannelEndpoint string
}

func (m MessagingSystemInfo) attributes() agent.KVMap {
	return agent.KVMap{
		agent.KeyMessagingVendor: m.VendorName,
		agent.KeyDestinationName: m.DestinationName,
		agent.KeyDestinationType: m.DestinationType.String(),
		agent.KeyChannelType:     m.ChannelType.String(),
		agent.KeyChannelEndpoint: m.ChannelEndpoint,
	}
}

// WebApplicationInfo describes the web application serving incoming requests.
type WebApplicationInfo struct {
	WebServerName string
	ApplicationID string
	ContextRoot   string
}

func (w WebApplicationInfo) attributes() agent.KVMap {
	return agent.KVMap{
		agent.KeyWebServerName: w.WebServerName,
		agent.KeyApplicationID: w.ApplicationID,
		agent.KeyContextRoot:   w.ContextRoot,
	}
}
