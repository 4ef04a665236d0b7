// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
)

// DatabaseRequestTracer traces a request to a database.
type DatabaseRequestTracer interface {
	Tracer
	// SetRowsReturned sets the number of rows the request returned. It must
	// be called between Start and End.
	SetRowsReturned(n int)
	// SetRoundTripCount sets the number of round trips to the database. It
	// must be called between Start and End.
	SetRoundTripCount(n int)
}

type databaseRequestTracer struct {
	*tracer
}

func (t *databaseRequestTracer) SetRowsReturned(n int) {
	t.setEndAttr("RowsReturned", agent.KeyRowsReturned, n)
}

func (t *databaseRequestTracer) SetRoundTripCount(n int) {
	t.setEndAttr("RoundTripCount", agent.KeyRoundTripCount, n)
}
