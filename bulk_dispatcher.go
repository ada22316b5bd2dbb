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
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/elastic/go-docingest/message"
)

// BulkDispatcher writes the documents of a Source to Elasticsearch with
// _bulk requests of at most BatchWindow operations.
//
// Dispatch is all or nothing per request: the first bulk response that
// reports a failed operation aborts the dispatch with a *BulkFailureError.
// Operations sent by earlier requests are not rolled back.
//
// A BulkDispatcher is safe for concurrent use; every Dispatch call uses
// its own request buffer.
type BulkDispatcher struct {
	dispatcher
	batchWindow      int
	compressionLevel int
}

// NewBulkDispatcher returns a new BulkDispatcher sending requests with client.
func NewBulkDispatcher(client esapi.Transport, cfg BulkConfig) (*BulkDispatcher, error) {
	if cfg.BatchWindow < 0 {
		return nil, fmt.Errorf("expected BatchWindow >= 0, got %d", cfg.BatchWindow)
	}
	if cfg.BatchWindow == 0 {
		cfg.BatchWindow = DefaultBatchWindow
	}
	if cfg.CompressionLevel < -1 || cfg.CompressionLevel > 9 {
		return nil, fmt.Errorf(
			"expected CompressionLevel in range [-1,9], got %d",
			cfg.CompressionLevel,
		)
	}
	d, err := newDispatcher(client, cfg.Config)
	if err != nil {
		return nil, err
	}
	return &BulkDispatcher{
		dispatcher:       d,
		batchWindow:      cfg.BatchWindow,
		compressionLevel: cfg.CompressionLevel,
	}, nil
}

// Dispatch writes every document of src to index and closes src.
//
// The write action of each document is resolved with the configured
// ActionResolver. An unresolvable or unsupported action aborts the
// dispatch without sending the operations buffered so far.
func (d *BulkDispatcher) Dispatch(ctx context.Context, msg *message.Message, src Source, index string) (DispatchStats, error) {
	var stats DispatchStats
	start := time.Now()
	defer func() {
		d.metrics.dispatchDuration.Record(context.Background(),
			time.Since(start).Seconds(), d.metrics.attrs)
	}()

	indexer, err := NewBulkIndexer(BulkIndexerConfig{
		Client:           d.client,
		CompressionLevel: d.compressionLevel,
		Refresh:          d.config.Refresh,
	})
	if err != nil {
		src.Close()
		return stats, err
	}

	logger := d.config.Logger.With(zap.String("index", index), zap.String("message_id", msg.ID()))
	err = ForEach(src, func(doc *Document) error {
		stats.Documents++
		d.metrics.docsBuilt.Add(context.Background(), 1, d.metrics.attrs)

		action, err := resolveAction(d.config.ActionResolver, msg, doc)
		if err != nil {
			return err
		}
		item := BulkIndexerItem{
			Action:     action,
			Index:      index,
			DocumentID: doc.ID,
			Routing:    doc.Routing,
		}
		if action != ActionDelete {
			source, err := doc.Source()
			if err != nil {
				return err
			}
			item.Body = bytes.NewReader(source)
		}
		if err := indexer.Add(item); err != nil {
			return fmt.Errorf("failed to add document %q: %w", doc.ID, err)
		}
		if indexer.Items() >= d.batchWindow {
			return d.flush(ctx, logger, indexer, index, &stats)
		}
		return nil
	})
	if err == nil {
		err = d.flush(ctx, logger, indexer, index, &stats)
	}
	if err != nil {
		logger.Error("dispatch aborted", zap.Error(err), zap.Int64("documents", stats.Documents))
		return stats, err
	}
	logger.Debug("dispatch completed",
		zap.Int64("documents", stats.Documents),
		zap.Int64("requests", stats.Requests),
	)
	return stats, nil
}

// failureKey groups failed operations for logging.
type failureKey struct {
	index, errorType, reason string
}

func (d *BulkDispatcher) flush(ctx context.Context, logger *zap.Logger, indexer *BulkIndexer, index string, stats *DispatchStats) (err error) {
	n := indexer.Items()
	if n == 0 {
		return nil
	}

	ctx, logger, end := d.startTrace(ctx, logger, "docingest.flush", index, n)
	defer func() { end(err) }()

	flushCtx, cancel := d.requestContext(ctx)
	defer cancel()

	start := time.Now()
	resp, err := indexer.Flush(flushCtx)
	took := time.Since(start)

	stats.Requests++
	d.metrics.bulkRequests.Add(context.Background(), 1, d.metrics.attrs)
	d.metrics.flushDuration.Record(context.Background(), took.Seconds(), d.metrics.attrs)
	if flushed := indexer.BytesFlushed(); flushed > 0 {
		d.metrics.bytesTotal.Add(context.Background(), int64(flushed), d.metrics.attrs)
	}

	if err != nil {
		stats.Failed += int64(n)
		d.metrics.dispatched(int64(n), "Failed")
		logger.Error("bulk indexing request failed", zap.Error(err))
		return err
	}

	stats.Took += resp.Took
	stats.Indexed += resp.Indexed
	stats.Failed += int64(len(resp.FailedDocs))
	d.metrics.dispatched(resp.Indexed, "Success")
	d.metrics.dispatched(int64(len(resp.FailedDocs)), "Failed")
	logger.Debug(
		"bulk request completed",
		zap.Int64("docs_indexed", resp.Indexed),
		zap.Int("docs_failed", len(resp.FailedDocs)),
		zap.Duration("took", resp.Took),
	)
	if len(resp.FailedDocs) == 0 {
		return nil
	}

	failedCount := make(map[failureKey]int)
	for _, item := range resp.FailedDocs {
		failedCount[failureKey{item.Index, item.Error.Type, item.Error.Reason}]++
	}
	for key, count := range failedCount {
		logger.Error(fmt.Sprintf("failed to index documents in '%s' (%s): %s",
			key.index, key.errorType, key.reason,
		), zap.Int("documents", count))
	}
	return &BulkFailureError{Index: index, Failed: resp.FailedDocs}
}
