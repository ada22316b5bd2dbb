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
	"time"

	"go.elastic.co/apm/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultBatchWindow is the number of operations per bulk request used when
// BulkConfig.BatchWindow is zero.
const DefaultBatchWindow = 10000

// Config holds configuration shared by the dispatchers.
type Config struct {
	// Logger holds an optional Logger to use for logging dispatch requests.
	//
	// All Elasticsearch errors will be logged at error level, so in cases
	// where large payloads are dispatched, it is recommended that a
	// rate-limited logger is used.
	//
	// If Logger is nil, logging will be disabled.
	Logger *zap.Logger

	// Tracer holds an optional apm.Tracer to use for tracing bulk requests
	// to Elasticsearch. Each bulk request is traced as a transaction.
	//
	// If Tracer is nil, requests will not be traced with APM.
	Tracer *apm.Tracer

	// TracerProvider holds an optional OTel TracerProvider. It is only used
	// when Tracer is nil or not recording.
	//
	// If TracerProvider is nil, requests will not be traced with OTel.
	TracerProvider trace.TracerProvider

	// MeterProvider holds the OTel MeterProvider to be used to create and
	// record dispatcher metrics.
	//
	// If unset, the global OTel MeterProvider will be used, if that is unset,
	// no metrics will be recorded.
	MeterProvider metric.MeterProvider

	// MetricAttributes holds any extra attributes to set in the recorded
	// metrics.
	MetricAttributes attribute.Set

	// ActionResolver resolves the write action of documents which do not
	// carry one.
	//
	// If ActionResolver is nil, every document is indexed.
	ActionResolver ActionResolver

	// Refresh holds the refresh policy of write requests: "true", "false"
	// or "wait_for".
	//
	// If Refresh is empty, the cluster default is used.
	Refresh string

	// FlushTimeout holds the timeout of a single Elasticsearch request.
	//
	// If FlushTimeout is zero, no timeout will be used.
	FlushTimeout time.Duration
}

func (cfg *Config) setDefaults() {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ActionResolver == nil {
		cfg.ActionResolver = ConfiguredAction{}
	}
}

// BulkConfig holds configuration for BulkDispatcher.
type BulkConfig struct {
	Config

	// BatchWindow holds the maximum number of operations sent in one bulk
	// request.
	//
	// If BatchWindow is zero, DefaultBatchWindow is used. Negative values
	// are invalid.
	BatchWindow int

	// CompressionLevel holds the gzip compression level, from 0 (gzip.NoCompression)
	// to 9 (gzip.BestCompression). Higher values provide greater compression, at a
	// greater cost of CPU. The special value -1 (gzip.DefaultCompression) selects the
	// default compression level.
	CompressionLevel int
}

// DispatchStats holds the outcome of a Dispatch call.
type DispatchStats struct {
	// Documents holds the number of documents read from the source.
	Documents int64

	// Requests holds the number of requests sent to Elasticsearch.
	Requests int64

	// Indexed holds the number of successful write operations.
	Indexed int64

	// Failed holds the number of failed write operations.
	Failed int64

	// Took holds the total time Elasticsearch reported for bulk requests.
	Took time.Duration
}
