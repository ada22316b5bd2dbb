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
	"errors"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.elastic.co/apm/module/apmzap/v2"
	"go.elastic.co/apm/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// dispatcher holds the state shared by BulkDispatcher and SingleDispatcher.
type dispatcher struct {
	client  esapi.Transport
	config  Config
	metrics *metrics
	tracer  trace.Tracer
}

func newDispatcher(client esapi.Transport, cfg Config) (dispatcher, error) {
	if client == nil {
		return dispatcher{}, errors.New("client is nil")
	}
	cfg.setDefaults()
	ms, err := newMetrics(cfg)
	if err != nil {
		return dispatcher{}, err
	}
	d := dispatcher{client: client, config: cfg, metrics: ms}
	if cfg.TracerProvider != nil {
		d.tracer = cfg.TracerProvider.Tracer("github.com/elastic/go-docingest")
	}
	return d, nil
}

// startTrace starts an APM transaction, or an OTel span when no APM tracer
// is recording, for a request carrying n documents. The returned logger
// carries the trace IDs. The returned function ends the trace, recording
// err if it is non-nil.
func (d *dispatcher) startTrace(ctx context.Context, logger *zap.Logger, name, index string, n int) (context.Context, *zap.Logger, func(err error)) {
	if d.tracingEnabled() {
		tx := d.config.Tracer.StartTransaction(name, "output")
		tx.Context.SetLabel("documents", n)
		tx.Context.SetLabel("index", index)
		ctx = apm.ContextWithTransaction(ctx, tx)

		// Add trace IDs to logger, to associate any per-item errors
		// below with the trace.
		logger = logger.With(apmzap.TraceContext(ctx)...)
		return ctx, logger, func(err error) {
			if err != nil {
				apm.CaptureError(ctx, err).Send()
				tx.Outcome = "failure"
			} else {
				tx.Outcome = "success"
			}
			tx.End()
		}
	}
	if d.otelTracingEnabled() {
		var span trace.Span
		ctx, span = d.tracer.Start(ctx, name, trace.WithAttributes(
			attribute.Int("documents", n),
			attribute.String("index", index),
		))
		logger = logger.With(
			zap.String("traceId", span.SpanContext().TraceID().String()),
			zap.String("spanId", span.SpanContext().SpanID().String()),
		)
		return ctx, logger, func(err error) {
			if span.IsRecording() {
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				} else {
					span.SetStatus(codes.Ok, "")
				}
			}
			span.End()
		}
	}
	return ctx, logger, func(error) {}
}

// requestContext applies the configured FlushTimeout to ctx.
func (d *dispatcher) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config.FlushTimeout != 0 {
		return context.WithTimeout(ctx, d.config.FlushTimeout)
	}
	return ctx, func() {}
}

// tracingEnabled checks whether we should be doing tracing
func (d *dispatcher) tracingEnabled() bool {
	return d.config.Tracer != nil && d.config.Tracer.Recording()
}

// otelTracingEnabled checks whether we should be doing tracing
// using otel tracer.
func (d *dispatcher) otelTracingEnabled() bool {
	return d.tracer != nil && !d.tracingEnabled()
}
