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
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/elastic/go-docingest/csvreader"
)

type csvRecordReader struct {
	logger         *zap.Logger
	csv            *csvreader.Reader
	mapper         FieldNameMapper
	header         []string
	uniqueIDField  int
	timestampField string
	geo            *geoPointAssembler
}

func newCSVSource(r io.Reader, cfg SourceConfig, withGeoPoint bool) (Source, error) {
	rr := &csvRecordReader{
		logger:         cfg.Logger,
		csv:            csvreader.NewReader(r, cfg.Dialect),
		mapper:         cfg.FieldNameMapper,
		uniqueIDField:  cfg.UniqueIDField,
		timestampField: cfg.TimestampField,
	}
	if withGeoPoint || !cfg.NoHeaderRecord {
		names, err := rr.csv.ReadHeader()
		if err != nil && err != io.EOF {
			rr.csv.Close()
			return nil, fmt.Errorf("failed to read CSV header: %w", err)
		}
		for i, name := range names {
			names[i] = headerFieldName(name)
		}
		if withGeoPoint {
			rr.geo = newGeoPointAssembler(names,
				cfg.LatitudeFieldNames, cfg.LongitudeFieldNames,
				rr.mapper.MapFieldName(defaultString(cfg.LocationFieldName, "location")),
			)
		}
		rr.header = make([]string, len(names))
		for i, name := range names {
			rr.header[i] = rr.mapper.MapFieldName(name)
		}
	}
	return newSource[[]csvreader.Field](rr), nil
}

func (r *csvRecordReader) read() ([]csvreader.Field, error) {
	return r.csv.Read()
}

func (r *csvRecordReader) build(row []csvreader.Field) (*Document, error) {
	if r.uniqueIDField >= len(row) {
		return nil, fmt.Errorf(
			"%w: unique id field %d, record ending on line %d has %d fields",
			ErrFieldIndexOutOfRange, r.uniqueIDField, r.csv.Line(), len(row),
		)
	}
	doc := &Document{
		ID:   row[r.uniqueIDField].Value,
		Body: make(Body, 0, len(row)+2),
	}
	// Fields are appended so repeated names are all kept.
	if r.timestampField != "" {
		doc.Body = append(doc.Body, Field{Name: r.timestampField, Value: timestamp()})
	}
	for i, field := range row {
		if r.geo != nil && r.geo.excludes(i) {
			continue
		}
		// null values are written as empty strings, so Value is used as is.
		doc.Body = append(doc.Body, Field{Name: r.fieldName(i), Value: field.Value})
	}
	if r.geo != nil {
		if p, ok := r.geo.point(row); ok {
			doc.Body = append(doc.Body, Field{Name: r.geo.field, Value: p})
		} else {
			r.logger.Debug("no geo point for document", zap.String("document.id", doc.ID))
		}
	}
	return doc, nil
}

func (r *csvRecordReader) fieldName(i int) string {
	if i < len(r.header) {
		return r.header[i]
	}
	return r.mapper.MapFieldName("field_" + strconv.Itoa(i))
}

func (r *csvRecordReader) close() error {
	return r.csv.Close()
}

// headerFieldName normalizes a header value: blank values become empty,
// surrounding whitespace is trimmed and spaces become underscores.
func headerFieldName(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
