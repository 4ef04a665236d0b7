// Copyright (C) 2017 Librato, Inc. All rights reserved.

package main

import (
	"context"
	"fmt"

	basictracer "github.com/opentracing/basictracer-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	keyEvent      = "event"
	keyStatusCode = "status.code"
	keyStatusDesc = "status.description"
)

func fromAttributeValue(attributeValue attribute.Value) interface{} {
	switch attributeValue.Type() {
	case attribute.STRING:
		return attributeValue.AsString()
	case attribute.INT64:
		return attributeValue.AsInt64()
	case attribute.FLOAT64:
		return attributeValue.AsFloat64()
	case attribute.BOOL:
		return attributeValue.AsBool()
	case attribute.STRINGSLICE:
		return attributeValue.AsStringSlice()
	case attribute.INT64SLICE:
		return attributeValue.AsInt64Slice()
	case attribute.FLOAT64SLICE:
		return attributeValue.AsFloat64Slice()
	case attribute.BOOLSLICE:
		return attributeValue.AsBoolSlice()
	default:
		return nil
	}
}

func attributeFields(kvs []attribute.KeyValue) logrus.Fields {
	fields := make(logrus.Fields, len(kvs))
	for _, kv := range kvs {
		fields[string(kv.Key)] = fromAttributeValue(kv.Value)
	}
	return fields
}

// spanFields returns the fields of a finished OpenTelemetry span.
func spanFields(span sdktrace.ReadOnlySpan) logrus.Fields {
	fields := attributeFields(span.Attributes())
	fields["trace_id"] = span.SpanContext().TraceID().String()
	fields["span_id"] = span.SpanContext().SpanID().String()
	if span.Parent().IsValid() {
		fields["parent_id"] = span.Parent().SpanID().String()
	}
	fields["kind"] = span.SpanKind().String()
	fields["duration"] = span.EndTime().Sub(span.StartTime())

	if status := span.Status(); status.Code == codes.Error {
		// the description is only kept by the SDK for errors
		fields[keyStatusCode] = status.Code.String()
		fields[keyStatusDesc] = status.Description
	}
	return fields
}

// logExporter is an OpenTelemetry span exporter writing one log line per span
// and one per span event.
type logExporter struct {
	log *logrus.Logger
}

func newLogExporter(logger *logrus.Logger) *logExporter {
	return &logExporter{log: logger}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		entry := e.log.WithFields(spanFields(s))
		for _, event := range s.Events() {
			entry.WithFields(attributeFields(event.Attributes)).
				WithField(keyEvent, event.Name).Debug("span event")
		}
		entry.Info(s.Name())
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *logExporter) Shutdown(ctx context.Context) error { return nil }

// logRecorder is a basictracer span recorder writing one log line per span
// and one per span log.
type logRecorder struct {
	log *logrus.Logger
}

func newLogRecorder(logger *logrus.Logger) *logRecorder {
	return &logRecorder{log: logger}
}

// RecordSpan implements basictracer.SpanRecorder.
func (r *logRecorder) RecordSpan(span basictracer.RawSpan) {
	fields := make(logrus.Fields, len(span.Tags)+4)
	for k, v := range span.Tags {
		fields[k] = v
	}
	fields["trace_id"] = fmt.Sprintf("%016x", span.Context.TraceID)
	fields["span_id"] = fmt.Sprintf("%016x", span.Context.SpanID)
	if span.ParentSpanID != 0 {
		fields["parent_id"] = fmt.Sprintf("%016x", span.ParentSpanID)
	}
	fields["duration"] = span.Duration

	entry := r.log.WithFields(fields)
	for _, l := range span.Logs {
		logFields := make(logrus.Fields, len(l.Fields))
		for _, f := range l.Fields {
			logFields[f.Key()] = f.Value()
		}
		entry.WithFields(logFields).Debug("span log")
	}
	entry.Info(span.Operation)
}
