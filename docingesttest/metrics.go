// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package docingesttest

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/metric/metricdata/metricdatatest"
)

// CollectMetrics collects the metrics of rdr, returning those of the
// single instrumentation scope.
func CollectMetrics(t testing.TB, rdr sdkmetric.Reader) []metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, rdr.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	return rm.ScopeMetrics[0].Metrics
}

// AssertOTelMetrics calls assertMetric for every metric in ms.
func AssertOTelMetrics(t testing.TB, ms []metricdata.Metrics, assertMetric func(m metricdata.Metrics)) {
	t.Helper()
	require.NotEmpty(t, ms)
	for _, m := range ms {
		assertMetric(m)
	}
}

// NewAssertCounter returns a function asserting that an int64 counter
// metric has a single data point with the given value and attributes.
// asserted is incremented on every call.
func NewAssertCounter(t testing.TB, asserted *atomic.Int64) func(metric metricdata.Metrics, count int64, attrs attribute.Set) {
	return func(metric metricdata.Metrics, count int64, attrs attribute.Set) {
		t.Helper()
		asserted.Add(1)
		counter, ok := metric.Data.(metricdata.Sum[int64])
		if !assert.True(t, ok, "%s is not an int64 sum", metric.Name) {
			return
		}
		if !assert.Len(t, counter.DataPoints, 1, metric.Name) {
			return
		}
		dp := counter.DataPoints[0]
		assert.Equal(t, count, dp.Value, metric.Name)
		metricdatatest.AssertHasAttributes[metricdata.DataPoint[int64]](t, dp, attrs.ToSlice()...)
	}
}

// SumByStatus returns the values of an int64 counter keyed by the "status"
// attribute.
func SumByStatus(t testing.TB, metric metricdata.Metrics) map[string]int64 {
	t.Helper()
	counter, ok := metric.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", metric.Name)
	values := make(map[string]int64)
	for _, dp := range counter.DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		values[status.AsString()] += dp.Value
	}
	return values
}
