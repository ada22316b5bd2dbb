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
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elastic/go-docingest/csvreader"
	"github.com/elastic/go-docingest/message"
)

// Source is a single-pass, lazily evaluated sequence of documents built
// from one message.
//
// A Source owns the reader over the message payload. Close releases it, and
// must be called whether or not iteration completed. Close may be called
// more than once.
type Source interface {
	// Iterator returns the iterator over the source. It may be called once;
	// later calls return ErrAlreadyIterating, even after Close. A source
	// closed before iteration returns ErrSourceClosed.
	Iterator() (Iterator, error)

	// Close releases the underlying reader.
	Close() error
}

// Iterator iterates over the documents of a Source.
type Iterator interface {
	// HasNext reports whether another document is available, reading at
	// most one record ahead.
	HasNext() (bool, error)

	// Next returns the next document. It returns io.EOF when the source is
	// exhausted.
	Next() (*Document, error)
}

// SourceKind selects how a message payload is turned into documents.
type SourceKind int

const (
	// SourceCSV builds one document per CSV record.
	SourceCSV SourceKind = iota
	// SourceCSVGeo builds one document per CSV record, folding latitude
	// and longitude columns into a geo_point field.
	SourceCSVGeo
	// SourceJSONObject builds one document from a single JSON object.
	SourceJSONObject
	// SourceJSONArray builds one document per object of a JSON array, or
	// per line of JSON Lines input.
	SourceJSONArray
	// SourceSimple builds one document holding the payload text and the
	// message metadata.
	SourceSimple
)

var sourceKindNames = [...]string{
	SourceCSV:        "csv",
	SourceCSVGeo:     "csv_geo",
	SourceJSONObject: "json_object",
	SourceJSONArray:  "json_array",
	SourceSimple:     "simple",
}

func (k SourceKind) String() string {
	if k >= 0 && int(k) < len(sourceKindNames) {
		return sourceKindNames[k]
	}
	return fmt.Sprintf("SourceKind(%d)", int(k))
}

// ParseSourceKind parses a SourceKind name. Names are matched
// case-insensitively and "-" is treated as "_".
func ParseSourceKind(s string) (SourceKind, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch key {
	case "json":
		return SourceJSONObject, nil
	case "json_lines", "jsonl", "ndjson":
		return SourceJSONArray, nil
	}
	for i, name := range sourceKindNames {
		if key == name {
			return SourceKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown source kind %q", s)
}

// JSONStyle selects the framing of SourceJSONArray input.
type JSONStyle int

const (
	// JSONStyleArray is a single JSON array of objects.
	JSONStyleArray JSONStyle = iota
	// JSONStyleLines is a sequence of JSON objects separated by whitespace,
	// usually one per line.
	JSONStyleLines
)

// ParseJSONStyle parses "array" or "lines".
func ParseJSONStyle(s string) (JSONStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "array", "json_array":
		return JSONStyleArray, nil
	case "lines", "json_lines", "jsonl", "ndjson":
		return JSONStyleLines, nil
	}
	return 0, fmt.Errorf("unknown json style %q", s)
}

// SourceConfig holds configuration for BuildDocuments.
type SourceConfig struct {
	// Kind selects the document builder.
	Kind SourceKind

	// Logger holds an optional Logger.
	//
	// If Logger is nil, logging will be disabled.
	Logger *zap.Logger

	// FieldNameMapper maps CSV-derived field names.
	//
	// If FieldNameMapper is nil, names are used as is.
	FieldNameMapper FieldNameMapper

	// TimestampField, if non-empty, adds a field with this name holding the
	// time each document was built, in epoch milliseconds.
	TimestampField string

	// Dialect describes the CSV format.
	//
	// If Dialect is the zero value, csvreader.Default is used.
	Dialect csvreader.Dialect

	// NoHeaderRecord disables reading the first CSV record as the header.
	// Fields are then named field_0, field_1 and so on. SourceCSVGeo
	// always reads a header.
	NoHeaderRecord bool

	// UniqueIDField holds the zero-based CSV column of the document ID.
	UniqueIDField int

	// LatitudeFieldNames holds the comma-separated, case-insensitive
	// header names accepted as the latitude column.
	//
	// If LatitudeFieldNames is empty, "latitude,lat" is used.
	LatitudeFieldNames string

	// LongitudeFieldNames holds the comma-separated, case-insensitive
	// header names accepted as the longitude column.
	//
	// If LongitudeFieldNames is empty, "longitude,lon" is used.
	LongitudeFieldNames string

	// LocationFieldName holds the name of the geo_point field.
	//
	// If LocationFieldName is empty, "location" is used.
	LocationFieldName string

	// JSONStyle selects array or JSON Lines framing for SourceJSONArray.
	JSONStyle JSONStyle

	// UniqueIDJSONPath holds the path of the document ID within each JSON
	// record.
	//
	// If UniqueIDJSONPath is empty, "$.uniqueid" is used.
	UniqueIDJSONPath string

	// RoutingJSONPath, if non-empty, holds the path of the routing value
	// within each JSON record.
	RoutingJSONPath string

	// RoutingExpression, if non-empty, is resolved against the message to
	// give the routing value for SourceJSONObject.
	RoutingExpression string
}

// BuildDocuments returns a Source over the documents in msg.
//
// Configuration errors are returned immediately. Errors for individual
// records are returned during iteration.
func BuildDocuments(msg *message.Message, cfg SourceConfig) (Source, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.FieldNameMapper == nil {
		cfg.FieldNameMapper = IdentityFieldNameMapper
	}
	if cfg.Dialect == (csvreader.Dialect{}) {
		cfg.Dialect = csvreader.Default
	}
	if cfg.UniqueIDField < 0 {
		return nil, fmt.Errorf("expected UniqueIDField >= 0, got %d", cfg.UniqueIDField)
	}
	r, err := msg.Reader()
	if err != nil {
		return nil, err
	}
	cfg.Logger.Debug("building documents",
		zap.String("kind", cfg.Kind.String()),
		zap.String("message.id", msg.ID()),
	)
	switch cfg.Kind {
	case SourceCSV:
		return newCSVSource(r, cfg, false)
	case SourceCSVGeo:
		return newCSVSource(r, cfg, true)
	case SourceJSONObject:
		return newJSONObjectSource(msg, r, cfg)
	case SourceJSONArray:
		return newJSONArraySource(r, cfg)
	case SourceSimple:
		return newSimpleSource(msg, cfg)
	}
	return nil, fmt.Errorf("unknown source kind %s", cfg.Kind)
}

// ForEach iterates over src, calling fn for each document, and closes src.
// Iteration stops at the first error.
func ForEach(src Source, fn func(*Document) error) (err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close source: %w", cerr)
		}
	}()
	it, err := src.Iterator()
	if err != nil {
		return err
	}
	for {
		ok, err := it.HasNext()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		doc, err := it.Next()
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}

type sourceState int

const (
	stateNotStarted sourceState = iota
	stateIterating
	stateClosed
)

// recordReader reads raw records of type T and builds documents from them.
// read is called by HasNext and build by Next, so errors from build only
// affect one record while errors from read end the iteration.
type recordReader[T any] interface {
	read() (T, error)
	build(T) (*Document, error)
	close() error
}

// source implements Source and Iterator over a recordReader, with one
// record of lookahead.
type source[T any] struct {
	state    sourceState
	iterated bool
	reader   recordReader[T]
	pending  T
	buffered bool
	done     bool
	err      error
}

func newSource[T any](r recordReader[T]) *source[T] {
	return &source[T]{reader: r}
}

func (s *source[T]) Iterator() (Iterator, error) {
	switch {
	case s.iterated:
		return nil, ErrAlreadyIterating
	case s.state == stateClosed:
		return nil, ErrSourceClosed
	}
	s.state = stateIterating
	s.iterated = true
	return s, nil
}

func (s *source[T]) HasNext() (bool, error) {
	switch {
	case s.state == stateClosed:
		return false, ErrSourceClosed
	case s.err != nil:
		return false, s.err
	case s.buffered:
		return true, nil
	case s.done:
		return false, nil
	}
	rec, err := s.reader.read()
	if errors.Is(err, io.EOF) {
		s.done = true
		return false, nil
	} else if err != nil {
		s.err = err
		return false, err
	}
	s.pending, s.buffered = rec, true
	return true, nil
}

func (s *source[T]) Next() (*Document, error) {
	ok, err := s.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, io.EOF
	}
	rec := s.pending
	var zero T
	s.pending, s.buffered = zero, false
	return s.reader.build(rec)
}

func (s *source[T]) Close() error {
	if s.state == stateClosed {
		return nil
	}
	s.state = stateClosed
	s.buffered = false
	return s.reader.close()
}

// documentReader yields a single document built up front.
type documentReader struct {
	doc     *Document
	payload io.Reader
}

func (r *documentReader) read() (*Document, error) {
	if r.doc == nil {
		return nil, io.EOF
	}
	doc := r.doc
	r.doc = nil
	return doc, nil
}

func (r *documentReader) build(doc *Document) (*Document, error) {
	return doc, nil
}

func (r *documentReader) close() error {
	return closeReader(r.payload)
}

// timestamp returns the current time in epoch milliseconds.
func timestamp() int64 {
	return time.Now().UnixMilli()
}

func closeReader(r io.Reader) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
