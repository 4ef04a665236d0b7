// Copyright (C) 2017 Librato, Inc. All rights reserved.

package otagent

import (
	"net/url"
	"strings"

	ot "github.com/opentracing/opentracing-go"
)

// The string tag is the TextMap form of a span context in URL query encoding.
// The byte tag is the tracer's Binary form.

func encodeStringTag(carrier ot.TextMapCarrier) string {
	if len(carrier) == 0 {
		return ""
	}
	v := url.Values{}
	for k, val := range carrier {
		v.Set(k, val)
	}
	return v.Encode()
}

func decodeStringTag(tag string) ot.TextMapCarrier {
	carrier := ot.TextMapCarrier{}
	v, err := url.ParseQuery(tag)
	if err != nil {
		return carrier
	}
	for k := range v {
		carrier[k] = v.Get(k)
	}
	return carrier
}

// flatten turns header maps into one tag per header name, since OpenTracing
// tags are scalar.
func flatten(attrs map[string]interface{}) map[string]interface{} {
	tags := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		switch v := v.(type) {
		case map[string][]string:
			for name, values := range v {
				tags[k+"."+name] = joinValues(values)
			}
		case []string:
			tags[k] = joinValues(v)
		default:
			tags[k] = v
		}
	}
	return tags
}

func joinValues(values []string) string {
	return strings.Join(values, ", ")
}
