// Copyright (C) 2017 Librato, Inc. All rights reserved.

package prommetrics_test

import (
	"strings"
	"testing"

	"github.com/appoptics/appoptics-sdk-go/v1/sdk"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent/agenttest"
	"github.com/appoptics/appoptics-sdk-go/v1/sdk/agent/prommetrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSDKMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := sdk.New(sdk.WithAgent(agenttest.New()),
		sdk.WithMetricRecorder(prommetrics.New(reg, prommetrics.WithNamespace("sdk"))))

	requests := s.CreateIntegerCounterMetric("http.requests", "count", "route")
	requests.IncreaseBy(2, "/cart")
	requests.IncreaseBy(1, "/cart")
	requests.IncreaseBy(5, "/pay")
	latency := s.CreateFloatStatisticsMetric("latency", "ms", "")
	latency.AddValue(12.5, "ignored")
	latency.AddValue(7.5, "")
	queue := s.CreateFloatGaugeMetric("queue-depth", "", "")
	queue.SetValue(4, "")
	queue.SetValue(3, "")

	expected := `
# HELP sdk_http_requests_total http.requests in count
# TYPE sdk_http_requests_total counter
sdk_http_requests_total{route="/cart"} 3
sdk_http_requests_total{route="/pay"} 5
# HELP sdk_latency latency in ms
# TYPE sdk_latency summary
sdk_latency_sum 20
sdk_latency_count 2
# HELP sdk_queue_depth queue-depth
# TYPE sdk_queue_depth gauge
sdk_queue_depth 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))

	requests.Close()
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 2)
}

func TestDuplicateAndUnknown(t *testing.T) {
	r := prommetrics.New(prometheus.NewRegistry())
	desc := agent.MetricDesc{Kind: agent.MetricGauge, Key: "g"}
	require.NoError(t, r.Register(desc))
	assert.Error(t, r.Register(desc))
	assert.Error(t, r.Register(agent.MetricDesc{Kind: 42, Key: "x"}))

	// the same name from another recorder collides in the registry
	reg := prometheus.NewRegistry()
	require.NoError(t, prommetrics.New(reg).Register(desc))
	assert.Error(t, prommetrics.New(reg).Register(desc))
}

func TestCounterNeverDecreases(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := prommetrics.New(reg)
	desc := agent.MetricDesc{Kind: agent.MetricCounter, Key: "c"}
	require.NoError(t, r.Register(desc))
	r.Record(desc, 2, "")
	assert.NotPanics(t, func() { r.Record(desc, -1, "") })
	r.Record(agent.MetricDesc{Key: "unknown"}, 1, "")

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP c_total c
# TYPE c_total counter
c_total 2
`)))

	r.Unregister(desc)
	r.Unregister(desc)
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}
