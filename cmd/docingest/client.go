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

package main

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/elastic-transport-go/v8/elastictransport"
	"github.com/elastic/go-elasticsearch/v8"
	"go.elastic.co/apm/module/apmelasticsearch/v2"
	"go.uber.org/zap"
)

// clientLogger implements elastictransport.Logger, logging every round trip
// of the Elasticsearch client.
type clientLogger zap.Logger

var _ elastictransport.Logger = (*clientLogger)(nil)

func (cl *clientLogger) LogRoundTrip(requ *http.Request, resp *http.Response, clientErr error, _ time.Time, dur time.Duration) error {
	zl := (*zap.Logger)(cl)
	switch {
	case clientErr == nil && resp != nil:
		zl.Debug(
			"Request roundtrip completed.",
			zap.String("path", requ.URL.Path),
			zap.String("method", requ.Method),
			zap.Duration("duration", dur),
			zap.String("status", resp.Status),
		)
	case clientErr != nil:
		zl.Error(
			"Request failed.",
			zap.String("path", requ.URL.Path),
			zap.String("method", requ.Method),
			zap.Duration("duration", dur),
			zap.NamedError("reason", clientErr),
		)
	}
	return nil
}

func (*clientLogger) RequestBodyEnabled() bool  { return false }
func (*clientLogger) ResponseBodyEnabled() bool { return false }

func newElasticsearchClient(cfg elasticsearchConfig, logger *zap.Logger) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		APIKey:       cfg.APIKey,
		Transport:    apmelasticsearch.WrapRoundTripper(http.DefaultTransport),
		DisableRetry: cfg.DisableRetry,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: newBackoffFunc(
			time.Duration(cfg.RetryInitialInterval),
			time.Duration(cfg.RetryMaxInterval),
		),
		Logger: (*clientLogger)(logger),
	})
}

// newBackoffFunc returns an exponential backoff for the client retries.
// Each call replays a fresh backoff up to attempts, so concurrent requests
// retrying at the same time do not share state.
func newBackoffFunc(initial, maxInterval time.Duration) func(int) time.Duration {
	if initial <= 0 {
		return nil
	}
	return func(attempts int) time.Duration {
		expBackoff := backoff.NewExponentialBackOff()
		expBackoff.InitialInterval = initial
		if maxInterval > 0 {
			expBackoff.MaxInterval = maxInterval
		}
		expBackoff.MaxElapsedTime = 0
		expBackoff.Reset()

		var d time.Duration
		for i := 0; i < max(attempts, 1); i++ {
			d = expBackoff.NextBackOff()
		}
		return d
	}
}
