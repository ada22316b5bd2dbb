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

	"go.elastic.co/fastjson"
)

// Document is a single document built from a message payload, ready to be
// written to Elasticsearch. Documents are immutable once yielded by an
// Iterator.
type Document struct {
	// ID holds the document _id. IDs are not checked for uniqueness, so a
	// repeated ID overwrites the earlier document.
	ID string

	// Routing holds an optional shard routing value.
	Routing *string

	// Action holds an optional write action. When set it takes precedence
	// over the dispatcher's ActionResolver.
	Action *Action

	// Body holds the document fields in order.
	Body Body
}

// Source returns the JSON encoding of the document body.
func (d *Document) Source() ([]byte, error) {
	var w fastjson.Writer
	if err := d.Body.MarshalFastJSON(&w); err != nil {
		return nil, fmt.Errorf("failed to encode document %q: %w", d.ID, err)
	}
	return w.Bytes(), nil
}

// Field is a named value in a Body.
//
// Value may be a string, bool, any integer or float type, a nested Body, a
// GeoPoint or RawJSON.
type Field struct {
	Name  string
	Value any
}

// Body is an ordered list of fields. Body is encoded as a JSON object with
// the fields in order. Names may repeat when fields are appended directly;
// Get and Set act on the first match.
type Body []Field

// Get returns the value of the named field.
func (b Body) Get(name string) (any, bool) {
	if i := b.index(name); i >= 0 {
		return b[i].Value, true
	}
	return nil, false
}

// Set replaces the value of the named field in place, or appends the field
// if it does not exist.
func (b *Body) Set(name string, value any) {
	if i := b.index(name); i >= 0 {
		(*b)[i].Value = value
		return
	}
	*b = append(*b, Field{Name: name, Value: value})
}

// Len returns the number of fields.
func (b Body) Len() int {
	return len(b)
}

// Names returns the field names in order.
func (b Body) Names() []string {
	names := make([]string, len(b))
	for i, f := range b {
		names[i] = f.Name
	}
	return names
}

func (b Body) index(name string) int {
	for i, f := range b {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// MarshalFastJSON implements fastjson.Marshaler.
func (b Body) MarshalFastJSON(w *fastjson.Writer) error {
	var firstErr error
	w.RawByte('{')
	for i, f := range b {
		if i > 0 {
			w.RawByte(',')
		}
		w.String(f.Name)
		w.RawByte(':')
		if err := fastjson.Marshal(w, f.Value); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	w.RawByte('}')
	return firstErr
}

// GeoPoint is an Elasticsearch geo_point in object form.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// MarshalFastJSON implements fastjson.Marshaler.
func (p GeoPoint) MarshalFastJSON(w *fastjson.Writer) error {
	w.RawString(`{"lat":`)
	w.Float64(p.Lat)
	w.RawString(`,"lon":`)
	w.Float64(p.Lon)
	w.RawByte('}')
	return nil
}

// RawJSON is a verbatim JSON value.
type RawJSON []byte

// AppendJSON implements fastjson.Appender.
func (r RawJSON) AppendJSON(b []byte) []byte {
	if len(r) == 0 {
		return append(b, "null"...)
	}
	return append(b, r...)
}
