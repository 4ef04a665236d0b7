// Copyright (C) 2017 Librato, Inc. All rights reserved.

// Command sdk-sample runs the SDK usage samples against one of the bundled
// agents and logs what the agent records.
//
//	sdk-sample list
//	sdk-sample run --agent otel database-sync web
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
