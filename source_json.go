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
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"

	"github.com/elastic/go-docingest/message"
)

const jsonReadBufferSize = 4096

var defaultUniqueIDPath = MustCompileJSONPath("$.uniqueid")

// jsonRecordReader reads JSON arrays of objects, or JSON Lines, one object
// at a time.
type jsonRecordReader struct {
	iter           *jsoniter.Iterator
	payload        io.Reader
	style          JSONStyle
	started        bool
	records        int
	idPath         JSONPath
	routingPath    JSONPath
	timestampField string
}

func newJSONArraySource(r io.Reader, cfg SourceConfig) (Source, error) {
	rr := &jsonRecordReader{
		iter:           jsoniter.Parse(jsoniter.ConfigDefault, r, jsonReadBufferSize),
		payload:        r,
		style:          cfg.JSONStyle,
		idPath:         defaultUniqueIDPath,
		timestampField: cfg.TimestampField,
	}
	if cfg.UniqueIDJSONPath != "" {
		path, err := CompileJSONPath(cfg.UniqueIDJSONPath)
		if err != nil {
			return nil, fmt.Errorf("invalid unique id path: %w", err)
		}
		rr.idPath = path
	}
	if cfg.RoutingJSONPath != "" {
		path, err := CompileJSONPath(cfg.RoutingJSONPath)
		if err != nil {
			return nil, fmt.Errorf("invalid routing path: %w", err)
		}
		rr.routingPath = path
	}
	return newSource[*Document](rr), nil
}

// read builds the next document. The unique ID path is expected to hold
// for every record, so failing to resolve it ends the iteration.
func (r *jsonRecordReader) read() (*Document, error) {
	record := r.records
	raw, err := r.nextObject()
	if err != nil {
		return nil, err
	}
	body, err := parseJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", record, err)
	}
	if r.timestampField != "" {
		body.Set(r.timestampField, timestamp())
	}
	doc := &Document{Body: body}
	source, err := doc.Source()
	if err != nil {
		return nil, err
	}
	if doc.ID, err = r.idPath.LookupString(source); err != nil {
		return nil, fmt.Errorf("failed to resolve unique id of record %d: %w", record, err)
	}
	if !r.routingPath.IsZero() {
		if res, ok := r.routingPath.Lookup(source); ok {
			routing := res.String()
			doc.Routing = &routing
		}
	}
	return doc, nil
}

func (r *jsonRecordReader) build(doc *Document) (*Document, error) {
	return doc, nil
}

func (r *jsonRecordReader) close() error {
	return closeReader(r.payload)
}

// nextObject returns the raw bytes of the next object, or io.EOF.
func (r *jsonRecordReader) nextObject() ([]byte, error) {
	switch r.style {
	case JSONStyleArray:
		if !r.started {
			r.started = true
			next := r.iter.WhatIsNext()
			if next == jsoniter.InvalidValue && r.iter.Error == io.EOF {
				return nil, io.EOF
			}
			if next != jsoniter.ArrayValue {
				return nil, fmt.Errorf("expected a JSON array, found %s", valueTypeName(next))
			}
		}
		more := r.iter.ReadArray()
		if err := r.iterError(); err != nil {
			return nil, err
		}
		if !more {
			return nil, io.EOF
		}
	case JSONStyleLines:
		if r.iter.WhatIsNext() == jsoniter.InvalidValue && r.iter.Error == io.EOF {
			return nil, io.EOF
		}
	default:
		return nil, fmt.Errorf("unknown json style %d", r.style)
	}
	if next := r.iter.WhatIsNext(); next != jsoniter.ObjectValue {
		if err := r.iterError(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("record %d: expected a JSON object, found %s", r.records, valueTypeName(next))
	}
	raw := r.iter.SkipAndReturnBytes()
	if err := r.iterError(); err != nil {
		return nil, fmt.Errorf("record %d: %w", r.records, err)
	}
	r.records++
	return raw, nil
}

func (r *jsonRecordReader) iterError() error {
	if r.iter.Error != nil && r.iter.Error != io.EOF {
		return fmt.Errorf("failed to parse JSON: %w", r.iter.Error)
	}
	return nil
}

func newJSONObjectSource(msg *message.Message, r io.Reader, cfg SourceConfig) (Source, error) {
	rr := &documentReader{payload: r}
	iter := jsoniter.Parse(jsoniter.ConfigDefault, r, jsonReadBufferSize)
	if next := iter.WhatIsNext(); next != jsoniter.ObjectValue {
		closeReader(r)
		return nil, fmt.Errorf("expected the start of a JSON object, found %s", valueTypeName(next))
	}
	raw := iter.SkipAndReturnBytes()
	if iter.Error != nil && iter.Error != io.EOF {
		closeReader(r)
		return nil, fmt.Errorf("failed to parse JSON: %w", iter.Error)
	}
	body, err := parseJSONObject(raw)
	if err != nil {
		closeReader(r)
		return nil, err
	}
	if cfg.TimestampField != "" {
		body.Set(cfg.TimestampField, timestamp())
	}
	rr.doc = &Document{ID: msg.ID(), Body: body}
	if cfg.RoutingExpression != "" {
		if routing := msg.Resolve(cfg.RoutingExpression); routing != "" {
			rr.doc.Routing = &routing
		}
	}
	return newSource[*Document](rr), nil
}

// parseJSONObject returns the top-level fields of a JSON object in order,
// with each value kept as raw JSON.
func parseJSONObject(raw []byte) (Body, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("invalid JSON object")
	}
	var body Body
	iter := jsoniter.ParseBytes(jsoniter.ConfigDefault, raw)
	iter.ReadObjectCB(func(iter *jsoniter.Iterator, field string) bool {
		body.Set(field, RawJSON(iter.SkipAndReturnBytes()))
		return true
	})
	if iter.Error != nil && iter.Error != io.EOF {
		return nil, fmt.Errorf("failed to parse JSON object: %w", iter.Error)
	}
	return body, nil
}

func valueTypeName(t jsoniter.ValueType) string {
	switch t {
	case jsoniter.StringValue:
		return "string"
	case jsoniter.NumberValue:
		return "number"
	case jsoniter.NilValue:
		return "null"
	case jsoniter.BoolValue:
		return "boolean"
	case jsoniter.ArrayValue:
		return "array"
	case jsoniter.ObjectValue:
		return "object"
	}
	return "invalid value"
}
