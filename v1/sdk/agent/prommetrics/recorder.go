// Copyright (C) 2017 Librato, Inc. All rights reserved.

// Package prommetrics exports the metrics created through the SDK as
// Prometheus collectors. A Recorder is handed to the SDK with
// sdk.WithMetricRecorder.
package prommetrics

import (
	"strings"
	"sync"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/internal/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements agent.MetricRecorder with Prometheus counter, gauge and
// summary vectors. The dimension of a metric becomes its only label.
type Recorder struct {
	reg       prometheus.Registerer
	namespace string

	mu         sync.Mutex
	collectors map[string]*collector
}

type collector struct {
	desc    agent.MetricDesc
	counter *prometheus.CounterVec
	gauge   *prometheus.GaugeVec
	summary *prometheus.SummaryVec
}

func (c *collector) vec() prometheus.Collector {
	switch {
	case c.counter != nil:
		return c.counter
	case c.gauge != nil:
		return c.gauge
	default:
		return c.summary
	}
}

// Option values may be passed to New.
type Option func(*Recorder)

// WithNamespace prefixes every metric name with ns.
func WithNamespace(ns string) Option {
	return func(r *Recorder) { r.namespace = sanitize(ns) }
}

// New returns a Recorder registering its collectors with reg. A nil reg means
// the default Prometheus registerer.
func New(reg prometheus.Registerer, opts ...Option) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{reg: reg, collectors: map[string]*collector{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register implements agent.MetricRecorder.
func (r *Recorder) Register(desc agent.MetricDesc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collectors[desc.Key]; ok {
		return errors.Errorf("metric %q is already registered", desc.Key)
	}

	var labels []string
	if desc.DimensionName != "" {
		labels = []string{sanitize(desc.DimensionName)}
	}
	name, help := sanitize(desc.Key), helpText(desc)

	c := &collector{desc: desc}
	switch desc.Kind {
	case agent.MetricCounter:
		c.counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace, Name: name + "_total", Help: help,
		}, labels)
	case agent.MetricGauge:
		c.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: r.namespace, Name: name, Help: help,
		}, labels)
	case agent.MetricStatistics:
		c.summary = prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: r.namespace, Name: name, Help: help,
		}, labels)
	default:
		return errors.Errorf("metric %q has unknown kind %d", desc.Key, desc.Kind)
	}

	if err := r.reg.Register(c.vec()); err != nil {
		return errors.Wrapf(err, "register metric %q", desc.Key)
	}
	r.collectors[desc.Key] = c
	return nil
}

// Record implements agent.MetricRecorder.
func (r *Recorder) Record(desc agent.MetricDesc, value float64, dimensionValue string) {
	r.mu.Lock()
	c, ok := r.collectors[desc.Key]
	r.mu.Unlock()
	if !ok {
		log.Debugf("prommetrics: dropping value of unregistered metric %q", desc.Key)
		return
	}

	var lvs []string
	if c.desc.DimensionName != "" {
		lvs = []string{dimensionValue}
	}
	switch {
	case c.counter != nil:
		if value < 0 {
			log.Warningf("prommetrics: counter %q cannot decrease by %v", desc.Key, -value)
			return
		}
		c.counter.WithLabelValues(lvs...).Add(value)
	case c.gauge != nil:
		c.gauge.WithLabelValues(lvs...).Set(value)
	default:
		c.summary.WithLabelValues(lvs...).Observe(value)
	}
}

// Unregister implements agent.MetricRecorder.
func (r *Recorder) Unregister(desc agent.MetricDesc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collectors[desc.Key]
	if !ok {
		return
	}
	r.reg.Unregister(c.vec())
	delete(r.collectors, desc.Key)
}

func helpText(desc agent.MetricDesc) string {
	if desc.Unit == "" {
		return desc.Key
	}
	return desc.Key + " in " + desc.Unit
}

// sanitize maps a metric key like "cache.hit-rate" onto the Prometheus name
// alphabet.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, s)
}
