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

package docingest

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	flushDuration    metric.Float64Histogram
	dispatchDuration metric.Float64Histogram
	bulkRequests     metric.Int64Counter
	requests         metric.Int64Counter
	docsBuilt        metric.Int64Counter
	docsDispatched   metric.Int64Counter
	bytesTotal       metric.Int64Counter

	attrs metric.MeasurementOption
}

type histogramMetric struct {
	name        string
	description string
	unit        string
	p           *metric.Float64Histogram
}

type counterMetric struct {
	name        string
	description string
	unit        string
	p           *metric.Int64Counter
}

func newMetrics(cfg Config) (*metrics, error) {
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	meter := cfg.MeterProvider.Meter("github.com/elastic/go-docingest")
	ms := metrics{attrs: metric.WithAttributeSet(cfg.MetricAttributes)}
	histograms := []histogramMetric{
		{
			name:        "elasticsearch.flushed.latency",
			description: "The amount of time a _bulk request took, in seconds.",
			unit:        "s",
			p:           &ms.flushDuration,
		},
		{
			name:        "docingest.dispatch.latency",
			description: "The amount of time a message took to dispatch, in seconds.",
			unit:        "s",
			p:           &ms.dispatchDuration,
		},
	}
	for _, m := range histograms {
		if err := newFloat64Histogram(meter, m); err != nil {
			return nil, err
		}
	}

	counters := []counterMetric{
		{
			name:        "elasticsearch.bulk_requests.count",
			description: "The number of bulk requests completed.",
			p:           &ms.bulkRequests,
		},
		{
			name:        "elasticsearch.requests.count",
			description: "The number of single document requests completed.",
			p:           &ms.requests,
		},
		{
			name:        "docingest.documents.built",
			description: "The number of documents read from message payloads.",
			p:           &ms.docsBuilt,
		},
		{
			name:        "docingest.documents.dispatched",
			description: "The number of documents written to Elasticsearch. The status attribute reports success or failure.",
			p:           &ms.docsDispatched,
		},
		{
			name:        "elasticsearch.flushed.bytes",
			description: "The total number of bytes written to the request body",
			unit:        "by",
			p:           &ms.bytesTotal,
		},
	}
	for _, m := range counters {
		if err := newInt64Counter(meter, m); err != nil {
			return nil, err
		}
	}
	return &ms, nil
}

// dispatched records n documents with the given status.
func (ms *metrics) dispatched(n int64, status string) {
	if n == 0 {
		return
	}
	ms.docsDispatched.Add(context.Background(), n, ms.attrs,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

func newInt64Counter(meter metric.Meter, c counterMetric) error {
	unit := c.unit
	if unit == "" {
		unit = "1"
	}
	m, err := meter.Int64Counter(
		c.name,
		metric.WithUnit(unit),
		metric.WithDescription(c.description),
	)

	if err != nil {
		return fmt.Errorf(
			"failed creating %s metric: %w", c.name, err,
		)
	}
	*c.p = m
	return nil
}

func newFloat64Histogram(meter metric.Meter, h histogramMetric) error {
	m, err := meter.Float64Histogram(
		h.name,
		metric.WithUnit(h.unit),
		metric.WithDescription(h.description),
	)

	if err != nil {
		return fmt.Errorf(
			"failed creating %s metric: %w", h.name, err,
		)
	}
	*h.p = m
	return nil
}
