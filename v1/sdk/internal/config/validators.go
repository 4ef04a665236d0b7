// Copyright (C) 2017 Librato, Inc. All rights reserved.

package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

// InvalidEnv returns a string indicating invalid environment variables
func InvalidEnv(env string, val string) string {
	return fmt.Sprintf("invalid env, discarded - %s: \"%s\"", env, val)
}

func toBool(s string) (bool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "yes" || s == "true" {
		return true, nil
	} else if s == "no" || s == "false" {
		return false, nil
	}
	return false, errors.New("cannot convert input to bool")
}

// IsValidVersion checks if the string is a semantic version.
func IsValidVersion(v string) bool {
	_, err := version.NewVersion(v)
	return err == nil
}

// IsValidTransactionFilter checks if the filter defines exactly one matching
// rule and a known tracing mode.
func IsValidTransactionFilter(f TransactionFilter) bool {
	mode := strings.ToLower(strings.TrimSpace(f.Tracing))
	if mode != Enabled && mode != Disabled {
		return false
	}
	if (f.RegEx == "") == (len(f.Extensions) == 0) {
		return false
	}
	if f.RegEx != "" {
		if _, err := regexp.Compile(f.RegEx); err != nil {
			return false
		}
	}
	return true
}
