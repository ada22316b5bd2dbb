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
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unsafe"

	"github.com/klauspost/compress/gzip"
	"go.elastic.co/fastjson"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	jsoniter "github.com/json-iterator/go"
)

// BulkIndexerConfig holds configuration for BulkIndexer.
type BulkIndexerConfig struct {
	// Client holds the Elasticsearch client.
	Client esapi.Transport

	// CompressionLevel holds the gzip compression level, from 0 (gzip.NoCompression)
	// to 9 (gzip.BestCompression). Higher values provide greater compression, at a
	// greater cost of CPU. The special value -1 (gzip.DefaultCompression) selects the
	// default compression level.
	CompressionLevel int

	// Refresh holds the refresh policy of bulk requests: "true", "false"
	// or "wait_for".
	//
	// If Refresh is empty, the cluster default is used.
	Refresh string
}

// BulkIndexer accumulates write operations into a single _bulk request
// body. Operations are encoded as they are added.
//
// A BulkIndexer is not safe for concurrent use.
type BulkIndexer struct {
	config       BulkIndexerConfig
	itemsAdded   int
	bytesFlushed int
	jsonw        fastjson.Writer
	writer       io.Writer
	gzipw        *gzip.Writer
	buf          bytes.Buffer
}

// BulkIndexerResponseStat holds the outcome of a bulk request.
type BulkIndexerResponseStat struct {
	// Took holds the time Elasticsearch spent processing the request.
	Took time.Duration
	// Indexed holds the number of successful operations.
	Indexed int64
	// FailedDocs holds the failed operations.
	FailedDocs []BulkIndexerResponseItem
}

// BulkIndexerResponseItem represents the Elasticsearch response item.
type BulkIndexerResponseItem struct {
	Action     string
	Index      string `json:"_index"`
	DocumentID string `json:"_id"`
	Status     int    `json:"status"`

	Position int

	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

// failed reports whether the item is a failed operation. Deleting a missing
// document is not a failure.
func (item BulkIndexerResponseItem) failed() bool {
	if item.Error.Type != "" {
		return true
	}
	if item.Action == "delete" && item.Status == http.StatusNotFound {
		return false
	}
	return item.Status > 299
}

func init() {
	jsoniter.RegisterTypeDecoderFunc("docingest.BulkIndexerResponseStat", func(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
		stat := (*BulkIndexerResponseStat)(ptr)
		iter.ReadObjectCB(func(i *jsoniter.Iterator, s string) bool {
			switch s {
			case "took":
				stat.Took = time.Duration(i.ReadInt64()) * time.Millisecond
			case "items":
				var idx int
				i.ReadArrayCB(func(i *jsoniter.Iterator) bool {
					return i.ReadMapCB(func(i *jsoniter.Iterator, action string) bool {
						item := BulkIndexerResponseItem{Action: action}
						i.ReadObjectCB(func(i *jsoniter.Iterator, s string) bool {
							switch s {
							case "_index":
								item.Index = i.ReadString()
							case "_id":
								item.DocumentID = i.ReadString()
							case "status":
								item.Status = i.ReadInt()
							case "error":
								i.ReadObjectCB(func(i *jsoniter.Iterator, s string) bool {
									switch s {
									case "type":
										item.Error.Type = i.ReadString()
									case "reason":
										// Match Elasticsearch field mapper field value:
										// failed to parse field [%s] of type [%s] in %s. Preview of field's value: '%s'
										item.Error.Reason, _, _ = strings.Cut(
											i.ReadString(), ". Preview",
										)
									default:
										i.Skip()
									}
									return true
								})
							default:
								i.Skip()
							}
							return true
						})
						item.Position = idx
						idx++
						if item.failed() {
							stat.FailedDocs = append(stat.FailedDocs, item)
						} else {
							stat.Indexed++
						}
						return true
					})
				})
			default:
				i.Skip()
			}
			return true
		})
	})
}

// NewBulkIndexer returns a bulk indexer that issues bulk requests to Elasticsearch.
// It is only tested with v8 go-elasticsearch client. Use other clients at your own risk.
func NewBulkIndexer(cfg BulkIndexerConfig) (*BulkIndexer, error) {
	if cfg.Client == nil {
		return nil, errors.New("client is nil")
	}

	if cfg.CompressionLevel < -1 || cfg.CompressionLevel > 9 {
		return nil, fmt.Errorf(
			"expected CompressionLevel in range [-1,9], got %d",
			cfg.CompressionLevel,
		)
	}

	b := &BulkIndexer{config: cfg}
	if cfg.CompressionLevel != gzip.NoCompression {
		b.gzipw, _ = gzip.NewWriterLevel(&b.buf, cfg.CompressionLevel)
		b.writer = b.gzipw
	} else {
		b.writer = &b.buf
	}
	return b, nil
}

func (b *BulkIndexer) resetBuf() {
	b.itemsAdded = 0
	b.buf.Reset()
	if b.gzipw != nil {
		b.gzipw.Reset(&b.buf)
	}
}

// Items returns the number of buffered items.
func (b *BulkIndexer) Items() int {
	return b.itemsAdded
}

// Len returns the number of buffered bytes.
func (b *BulkIndexer) Len() int {
	return b.buf.Len()
}

// BytesFlushed returns the number of bytes sent by the last flush.
func (b *BulkIndexer) BytesFlushed() int {
	return b.bytesFlushed
}

// BulkIndexerItem is a single write operation.
type BulkIndexerItem struct {
	Action     Action
	Index      string
	DocumentID string
	Routing    *string

	// Body holds the document source. It is ignored for ActionDelete.
	Body io.WriterTo
}

// Add encodes an item in the buffer. ActionIndex is encoded as an index
// operation, ActionUpdate as an update with a partial document, ActionUpsert
// as an update with doc_as_upsert, and ActionDelete as a delete.
func (b *BulkIndexer) Add(item BulkIndexerItem) error {
	var op, prefix, suffix string
	switch item.Action {
	case ActionIndex:
		op = "index"
	case ActionUpdate:
		op, prefix, suffix = "update", `{"doc":`, "}"
	case ActionUpsert:
		op, prefix, suffix = "update", `{"doc":`, `,"doc_as_upsert":true}`
	case ActionDelete:
		op = "delete"
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, item.Action)
	}
	if err := b.writeMeta(op, item.Index, item.DocumentID, item.Routing); err != nil {
		return fmt.Errorf("failed to write bulk indexer item: %w", err)
	}
	if item.Action != ActionDelete {
		if _, err := io.WriteString(b.writer, prefix); err != nil {
			return fmt.Errorf("failed to write bulk indexer item: %w", err)
		}
		if _, err := item.Body.WriteTo(b.writer); err != nil {
			return fmt.Errorf("failed to write bulk indexer item: %w", err)
		}
		if _, err := io.WriteString(b.writer, suffix+"\n"); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}
	b.itemsAdded++
	return nil
}

func (b *BulkIndexer) writeMeta(op, index, documentID string, routing *string) error {
	b.jsonw.RawString(`{"`)
	b.jsonw.RawString(op)
	b.jsonw.RawString(`":{`)
	first := true
	field := func(name, value string) {
		if !first {
			b.jsonw.RawByte(',')
		}
		first = false
		b.jsonw.String(name)
		b.jsonw.RawByte(':')
		b.jsonw.String(value)
	}
	if documentID != "" {
		field("_id", documentID)
	}
	if index != "" {
		field("_index", index)
	}
	if routing != nil {
		field("routing", *routing)
	}
	b.jsonw.RawString("}}\n")
	_, err := b.writer.Write(b.jsonw.Bytes())
	b.jsonw.Reset()
	return err
}

// Flush executes a bulk request if there are any items buffered, and clears out the buffer.
func (b *BulkIndexer) Flush(ctx context.Context) (BulkIndexerResponseStat, error) {
	b.bytesFlushed = 0
	if b.itemsAdded == 0 {
		return BulkIndexerResponseStat{}, nil
	}

	if b.gzipw != nil {
		if err := b.gzipw.Close(); err != nil {
			return BulkIndexerResponseStat{}, fmt.Errorf("failed closing the gzip writer: %w", err)
		}
	}

	req := esapi.BulkRequest{
		Body:   &b.buf,
		Header: make(http.Header),
		FilterPath: []string{
			"took",
			"items.*._index", "items.*._id", "items.*.status",
			"items.*.error.type", "items.*.error.reason",
		},
		Refresh: b.config.Refresh,
	}
	if b.gzipw != nil {
		req.Header.Set("Content-Encoding", "gzip")
	}

	bytesFlushed := b.buf.Len()
	res, err := req.Do(ctx, b.config.Client)
	if err != nil {
		b.resetBuf()
		return BulkIndexerResponseStat{}, fmt.Errorf("failed to execute the request: %w", err)
	}
	defer res.Body.Close()

	b.resetBuf()

	// Record the number of flushed bytes only when err == nil. The body may
	// not have been sent otherwise.
	b.bytesFlushed = bytesFlushed
	var resp BulkIndexerResponseStat
	if res.IsError() {
		return resp, fmt.Errorf("flush failed: %s", res.String())
	}

	if err := jsoniter.NewDecoder(res.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("error decoding bulk response: %w", err)
	}
	return resp, nil
}
