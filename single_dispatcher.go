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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/elastic/go-docingest/message"
)

// SingleDispatcher writes the documents of a Source to Elasticsearch one
// request per document, strictly in source order.
//
// The first failed request aborts the dispatch. Documents written before
// the failure stay written.
type SingleDispatcher struct {
	dispatcher
}

// NewSingleDispatcher returns a new SingleDispatcher sending requests with
// client.
func NewSingleDispatcher(client esapi.Transport, cfg Config) (*SingleDispatcher, error) {
	d, err := newDispatcher(client, cfg)
	if err != nil {
		return nil, err
	}
	return &SingleDispatcher{dispatcher: d}, nil
}

// Dispatch writes every document of src to index and closes src.
func (d *SingleDispatcher) Dispatch(ctx context.Context, msg *message.Message, src Source, index string) (DispatchStats, error) {
	var stats DispatchStats
	start := time.Now()
	defer func() {
		d.metrics.dispatchDuration.Record(context.Background(),
			time.Since(start).Seconds(), d.metrics.attrs)
	}()

	logger := d.config.Logger.With(zap.String("index", index), zap.String("message_id", msg.ID()))
	err := ForEach(src, func(doc *Document) error {
		stats.Documents++
		d.metrics.docsBuilt.Add(context.Background(), 1, d.metrics.attrs)

		action, err := resolveAction(d.config.ActionResolver, msg, doc)
		if err != nil {
			return err
		}
		return d.write(ctx, logger, action, index, doc, &stats)
	})
	if err != nil {
		logger.Error("dispatch aborted", zap.Error(err), zap.Int64("documents", stats.Documents))
		return stats, err
	}
	logger.Debug("dispatch completed", zap.Int64("documents", stats.Documents))
	return stats, nil
}

// singleResponse holds the fields of a write response that are logged.
type singleResponse struct {
	ID      string `json:"_id"`
	Version int64  `json:"_version"`
	Result  string `json:"result"`
}

func (d *SingleDispatcher) write(ctx context.Context, logger *zap.Logger, action Action, index string, doc *Document, stats *DispatchStats) (err error) {
	var req interface {
		Do(context.Context, esapi.Transport) (*esapi.Response, error)
	}
	var routing string
	if doc.Routing != nil {
		routing = *doc.Routing
	}
	switch action {
	case ActionIndex, ActionUpdate, ActionUpsert:
		source, err := doc.Source()
		if err != nil {
			return err
		}
		switch action {
		case ActionIndex:
			req = esapi.IndexRequest{
				Index:      index,
				DocumentID: doc.ID,
				Body:       bytes.NewReader(source),
				Routing:    routing,
				Refresh:    d.config.Refresh,
			}
		case ActionUpdate:
			req = esapi.UpdateRequest{
				Index:      index,
				DocumentID: doc.ID,
				Body:       updateBody(source, false),
				Routing:    routing,
				Refresh:    d.config.Refresh,
			}
		default:
			req = esapi.UpdateRequest{
				Index:      index,
				DocumentID: doc.ID,
				Body:       updateBody(source, true),
				Routing:    routing,
				Refresh:    d.config.Refresh,
			}
		}
	case ActionDelete:
		req = esapi.DeleteRequest{
			Index:      index,
			DocumentID: doc.ID,
			Routing:    routing,
			Refresh:    d.config.Refresh,
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, action)
	}

	ctx, logger, end := d.startTrace(ctx, logger, "docingest.request", index, 1)
	defer func() { end(err) }()

	reqCtx, cancel := d.requestContext(ctx)
	defer cancel()

	res, err := req.Do(reqCtx, d.client)
	stats.Requests++
	d.metrics.requests.Add(context.Background(), 1, d.metrics.attrs)
	defer func() {
		if err != nil {
			stats.Failed++
			d.metrics.dispatched(1, "Failed")
		} else {
			stats.Indexed++
			d.metrics.dispatched(1, "Success")
		}
	}()
	if err != nil {
		logger.Error("request failed", zap.Error(err), zap.Stringer("action", action))
		return fmt.Errorf("failed to execute the request: %w", err)
	}
	defer res.Body.Close()

	if action == ActionDelete && res.StatusCode == http.StatusNotFound {
		logger.Debug("document not found", zap.String("id", doc.ID))
		return nil
	}
	if res.IsError() {
		err := fmt.Errorf("%s of document %q failed: %s", action, doc.ID, res.String())
		logger.Error("request failed", zap.Error(err), zap.Stringer("action", action))
		return err
	}

	var resp singleResponse
	if err := jsoniter.NewDecoder(res.Body).Decode(&resp); err != nil && err != io.EOF {
		return fmt.Errorf("error decoding response: %w", err)
	}
	logger.Debug("request completed",
		zap.Stringer("action", action),
		zap.String("id", resp.ID),
		zap.Int64("version", resp.Version),
		zap.String("result", resp.Result),
	)
	return nil
}

// updateBody wraps source in a partial document update.
func updateBody(source []byte, upsert bool) io.Reader {
	var buf bytes.Buffer
	buf.Grow(len(source) + 32)
	buf.WriteString(`{"doc":`)
	buf.Write(source)
	if upsert {
		buf.WriteString(`,"doc_as_upsert":true`)
	}
	buf.WriteByte('}')
	return &buf
}
