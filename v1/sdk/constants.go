// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

const (
	// HTTPHeaderName is the HTTP header carrying the string tag in the
	// single-tag propagation format. It is case-sensitive and must match on
	// both sides of the call.
	HTTPHeaderName = "X-dynaTrace"

	// MessagePropertyName is the message property carrying the tag.
	MessagePropertyName = "dtdTraceTagInfo"
)

// The sentinel IDs returned by TraceContextInfo when no trace is active.
const (
	InvalidTraceID = "00000000000000000000000000000000"
	InvalidSpanID  = "0000000000000000"
)

// State is the state of the SDK.
type State int

// SDK states
const (
	// StateActive means the SDK is connected to an agent that captures traces.
	StateActive State = iota
	// StateTemporarilyInactive means the agent is present but currently not
	// capturing, e.g. because it was disabled at runtime.
	StateTemporarilyInactive
	// StatePermanentlyInactive means no compatible agent is present.
	StatePermanentlyInactive
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateTemporarilyInactive:
		return "TEMPORARILY_INACTIVE"
	default:
		return "PERMANENTLY_INACTIVE"
	}
}

// ChannelType is the type of the transport channel of a remote call.
type ChannelType int

// Channel types
const (
	ChannelOther ChannelType = iota
	ChannelTCPIP
	ChannelUnixDomainSocket
	ChannelNamedPipe
	ChannelInProcess
)

func (c ChannelType) String() string {
	switch c {
	case ChannelTCPIP:
		return "TCP_IP"
	case ChannelUnixDomainSocket:
		return "UNIX_DOMAIN_SOCKET"
	case ChannelNamedPipe:
		return "NAMED_PIPE"
	case ChannelInProcess:
		return "IN_PROCESS"
	default:
		return "OTHER"
	}
}

// MessageDestinationType is the type of a message destination.
type MessageDestinationType int

// Message destination types
const (
	DestinationQueue MessageDestinationType = iota
	DestinationTopic
)

func (d MessageDestinationType) String() string {
	if d == DestinationTopic {
		return "TOPIC"
	}
	return "QUEUE"
}

// Well-known database vendor names for CreateDatabaseInfo.
const (
	DatabaseVendorApacheHive    = "ApacheHive"
	DatabaseVendorCassandra     = "Cassandra"
	DatabaseVendorCouchbase     = "Couchbase"
	DatabaseVendorDB2           = "DB2"
	DatabaseVendorDerbyClient   = "Derby Client"
	DatabaseVendorDerbyEmbedded = "Derby Embedded"
	DatabaseVendorFirebird      = "Firebird"
	DatabaseVendorH2            = "H2"
	DatabaseVendorHanaDB        = "HanaDB"
	DatabaseVendorHSQLDB        = "HSQLDB"
	DatabaseVendorInformix      = "Informix"
	DatabaseVendorMariaDB       = "MariaDB"
	DatabaseVendorMySQL         = "MySQL"
	DatabaseVendorOracle        = "Oracle"
	DatabaseVendorPostgreSQL    = "PostgreSQL"
	DatabaseVendorRedshift      = "Amazon Redshift"
	DatabaseVendorSQLServer     = "SQL Server"
	DatabaseVendorSQLite        = "sqlite"
	DatabaseVendorSybase        = "Sybase"
	DatabaseVendorTeradata      = "Teradata"
	DatabaseVendorVertica       = "Vertica"
)

// Well-known messaging system vendor names for CreateMessagingSystemInfo.
const (
	MessagingVendorActiveMQ    = "ActiveMQ"
	MessagingVendorArtemis     = "Artemis"
	MessagingVendorAWSSNS      = "AWS SNS"
	MessagingVendorAWSSQS      = "AWS SQS"
	MessagingVendorHornetQ     = "HornetQ"
	MessagingVendorKafka       = "Kafka"
	MessagingVendorMQSeries    = "MQSeries"
	MessagingVendorMQSeriesJMS = "MQSeries JMS"
	MessagingVendorRabbitMQ    = "RabbitMQ"
	MessagingVendorTibco       = "Tibco"
	MessagingVendorWebSphere   = "WebSphere"
)
