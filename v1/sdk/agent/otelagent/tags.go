// Copyright (C) 2021 Librato, Inc. All rights reserved.

package otelagent

import (
	"fmt"
	"net/url"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"gopkg.in/mgo.v2/bson"
)

// The string tag is the propagation fields in URL query encoding, e.g.
// "traceparent=00-4bf9...-01&tracestate=...". The byte tag is the same
// fields as a BSON document, so both forms convert into each other.

func encodeStringTag(carrier propagation.MapCarrier) string {
	if len(carrier) == 0 {
		return ""
	}
	v := url.Values{}
	for k, val := range carrier {
		v.Set(k, val)
	}
	return v.Encode()
}

func decodeStringTag(tag string) propagation.MapCarrier {
	v, err := url.ParseQuery(tag)
	if err != nil {
		return nil
	}
	carrier := propagation.MapCarrier{}
	for k := range v {
		carrier[k] = v.Get(k)
	}
	return carrier
}

func encodeByteTag(carrier propagation.MapCarrier) []byte {
	if len(carrier) == 0 {
		return []byte{}
	}
	keys := carrier.Keys()
	sort.Strings(keys)
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.DocElem{Name: k, Value: carrier[k]})
	}
	b, err := bson.Marshal(doc)
	if err != nil {
		return []byte{}
	}
	return b
}

func decodeByteTag(tag []byte) propagation.MapCarrier {
	if len(tag) == 0 {
		return nil
	}
	m := map[string]string{}
	if err := bson.Unmarshal(tag, &m); err != nil {
		return nil
	}
	return propagation.MapCarrier(m)
}

// StringTagFromBytes converts a byte tag into the equivalent string tag.
func StringTagFromBytes(tag []byte) string {
	return encodeStringTag(decodeByteTag(tag))
}

// BytesTagFromString converts a string tag into the equivalent byte tag.
func BytesTagFromString(tag string) []byte {
	return encodeByteTag(decodeStringTag(tag))
}

func toAttributes(m map[string]interface{}) []attribute.KeyValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]attribute.KeyValue, 0, len(m))
	for _, k := range keys {
		switch v := m[k].(type) {
		case map[string][]string:
			names := make([]string, 0, len(v))
			for name := range v {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				kvs = append(kvs, attribute.StringSlice(k+"."+name, v[name]))
			}
		default:
			kvs = append(kvs, toAttribute(k, v))
		}
	}
	return kvs
}

func toAttribute(k string, v interface{}) attribute.KeyValue {
	switch v := v.(type) {
	case string:
		return attribute.String(k, v)
	case int:
		return attribute.Int(k, v)
	case int64:
		return attribute.Int64(k, v)
	case float64:
		return attribute.Float64(k, v)
	case bool:
		return attribute.Bool(k, v)
	case []string:
		return attribute.StringSlice(k, v)
	default:
		return attribute.String(k, fmt.Sprint(v))
	}
}
