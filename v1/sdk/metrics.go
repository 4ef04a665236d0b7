// Copyright (C) 2017 Librato, Inc. All rights reserved.

package sdk

import (
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"go.uber.org/atomic"
)

// Metric is the common part of the metric handles. Close unregisters the
// metric; values recorded afterwards are dropped.
type Metric interface {
	Close()
}

// IntegerCounter sums up integer values.
type IntegerCounter interface {
	Metric
	// IncreaseBy adds value to the counter. dimensionValue is ignored if the
	// metric was created without a dimension name.
	IncreaseBy(value int64, dimensionValue string)
}

// FloatCounter sums up floating point values.
type FloatCounter interface {
	Metric
	IncreaseBy(value float64, dimensionValue string)
}

// IntegerGauge samples an integer value.
type IntegerGauge interface {
	Metric
	SetValue(value int64, dimensionValue string)
}

// FloatGauge samples a floating point value.
type FloatGauge interface {
	Metric
	SetValue(value float64, dimensionValue string)
}

// IntegerStatistics summarizes integer observations.
type IntegerStatistics interface {
	Metric
	AddValue(value int64, dimensionValue string)
}

// FloatStatistics summarizes floating point observations.
type FloatStatistics interface {
	Metric
	AddValue(value float64, dimensionValue string)
}

type metric struct {
	desc   agent.MetricDesc
	rec    agent.MetricRecorder
	usage  *usageReporter
	closed atomic.Bool
}

func (m *metric) record(value float64, dimensionValue string) {
	if m.rec == nil {
		return
	}
	if m.closed.Load() {
		m.usage.warnf("metric %q used after Close", m.desc.Key)
		return
	}
	if m.desc.DimensionName == "" {
		dimensionValue = ""
	}
	m.usage.protect("MetricRecorder.Record", func() { m.rec.Record(m.desc, value, dimensionValue) })
}

func (m *metric) Close() {
	if m.rec == nil || !m.closed.CAS(false, true) {
		return
	}
	m.usage.protect("MetricRecorder.Unregister", func() { m.rec.Unregister(m.desc) })
}

type intCounter struct{ *metric }

func (c intCounter) IncreaseBy(v int64, dim string) { c.record(float64(v), dim) }

type floatCounter struct{ *metric }

func (c floatCounter) IncreaseBy(v float64, dim string) { c.record(v, dim) }

type intGauge struct{ *metric }

func (g intGauge) SetValue(v int64, dim string) { g.record(float64(v), dim) }

type floatGauge struct{ *metric }

func (g floatGauge) SetValue(v float64, dim string) { g.record(v, dim) }

type intStatistics struct{ *metric }

func (s intStatistics) AddValue(v int64, dim string) { s.record(float64(v), dim) }

type floatStatistics struct{ *metric }

func (s floatStatistics) AddValue(v float64, dim string) { s.record(v, dim) }

// newMetric registers desc with rec. A nil rec, an empty key or a failed
// registration yields a metric which drops all values.
func newMetric(rec agent.MetricRecorder, usage *usageReporter, desc agent.MetricDesc) *metric {
	m := &metric{desc: desc, usage: usage}
	if rec == nil {
		return m
	}
	if desc.Key == "" {
		usage.warnf("metric created with an empty key, dropping its values")
		return m
	}
	var err error
	usage.protect("MetricRecorder.Register", func() { err = rec.Register(desc) })
	if err != nil {
		usage.errorf("failed to register metric %q: %v", desc.Key, err)
		return m
	}
	m.rec = rec
	return m
}

// metricFactory creates the metric handles of an SDK.
type metricFactory struct {
	rec   agent.MetricRecorder
	usage *usageReporter
}

func (f metricFactory) new(kind agent.MetricKind, float bool, key, unit, dim string) *metric {
	return newMetric(f.rec, f.usage, agent.MetricDesc{
		Kind: kind, Float: float, Key: key, Unit: unit, DimensionName: dim,
	})
}

func (f metricFactory) CreateIntegerCounterMetric(key, unit, dimensionName string) IntegerCounter {
	return intCounter{f.new(agent.MetricCounter, false, key, unit, dimensionName)}
}

func (f metricFactory) CreateFloatCounterMetric(key, unit, dimensionName string) FloatCounter {
	return floatCounter{f.new(agent.MetricCounter, true, key, unit, dimensionName)}
}

func (f metricFactory) CreateIntegerGaugeMetric(key, unit, dimensionName string) IntegerGauge {
	return intGauge{f.new(agent.MetricGauge, false, key, unit, dimensionName)}
}

func (f metricFactory) CreateFloatGaugeMetric(key, unit, dimensionName string) FloatGauge {
	return floatGauge{f.new(agent.MetricGauge, true, key, unit, dimensionName)}
}

func (f metricFactory) CreateIntegerStatisticsMetric(key, unit, dimensionName string) IntegerStatistics {
	return intStatistics{f.new(agent.MetricStatistics, false, key, unit, dimensionName)}
}

func (f metricFactory) CreateFloatStatisticsMetric(key, unit, dimensionName string) FloatStatistics {
	return floatStatistics{f.new(agent.MetricStatistics, true, key, unit, dimensionName)}
}
