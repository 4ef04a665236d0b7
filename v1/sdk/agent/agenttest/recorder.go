// Copyright (C) 2017 Librato, Inc. All rights reserved.

package agenttest

import (
	"sync"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"github.com/pkg/errors"
)

// Sample is a value recorded by Recorder.
type Sample struct {
	Key       string
	Value     float64
	Dimension string
}

// Recorder is an agent.MetricRecorder keeping everything in memory.
type Recorder struct {
	mu         sync.Mutex
	registered map[string]agent.MetricDesc
	samples    []Sample
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{registered: make(map[string]agent.MetricDesc)}
}

// ErrDuplicateMetric is returned when a key is registered twice.
var ErrDuplicateMetric = errors.New("metric already registered")

// Register implements agent.MetricRecorder.
func (r *Recorder) Register(desc agent.MetricDesc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registered[desc.Key]; ok {
		return errors.Wrap(ErrDuplicateMetric, desc.Key)
	}
	r.registered[desc.Key] = desc
	return nil
}

// Record implements agent.MetricRecorder.
func (r *Recorder) Record(desc agent.MetricDesc, value float64, dimensionValue string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, Sample{Key: desc.Key, Value: value, Dimension: dimensionValue})
}

// Unregister implements agent.MetricRecorder.
func (r *Recorder) Unregister(desc agent.MetricDesc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, desc.Key)
}

// Registered returns the descriptor of a registered metric.
func (r *Recorder) Registered(key string) (agent.MetricDesc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.registered[key]
	return d, ok
}

// Samples returns the recorded values in order.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...)
}
