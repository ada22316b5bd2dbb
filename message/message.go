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

// Package message holds the unit of work handed to docingest: a payload,
// its character encoding, string metadata and a caller-assigned unique
// identifier.
package message

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// UniqueIDKey is the reserved key which resolves to the message ID in
// expressions, e.g. "%message{%uniqueId}".
const UniqueIDKey = "%uniqueId"

// Message is a payload plus metadata. Messages are not safe for concurrent
// mutation, but may be read concurrently once built.
type Message struct {
	id       string
	payload  []byte
	encoding string
	metadata map[string]string
}

// Option configures a Message created with New.
type Option func(*Message)

// WithID sets the message unique identifier.
//
// If unset, a random UUID is used.
func WithID(id string) Option {
	return func(m *Message) { m.id = id }
}

// WithEncoding sets the character encoding of the payload, for example
// "UTF-8" or "ISO-8859-1". Names are resolved using the WHATWG encoding
// index.
//
// If unset, the payload is assumed to be UTF-8.
func WithEncoding(enc string) Option {
	return func(m *Message) { m.encoding = enc }
}

// WithMetadata adds each key/value pair to the message metadata.
func WithMetadata(kv map[string]string) Option {
	return func(m *Message) {
		for k, v := range kv {
			m.metadata[k] = v
		}
	}
}

// New returns a new Message holding payload.
func New(payload []byte, opts ...Option) *Message {
	m := &Message{
		payload:  payload,
		metadata: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.id == "" {
		m.id = uuid.NewString()
	}
	return m
}

// ID returns the message unique identifier.
func (m *Message) ID() string { return m.id }

// Payload returns the raw payload bytes.
func (m *Message) Payload() []byte { return m.payload }

// Encoding returns the configured payload encoding, which may be empty.
func (m *Message) Encoding() string { return m.encoding }

// Metadata returns the metadata value for key, or "" if it is not set.
func (m *Message) Metadata(key string) string { return m.metadata[key] }

// HasMetadata reports whether key is set.
func (m *Message) HasMetadata(key string) bool {
	_, ok := m.metadata[key]
	return ok
}

// SetMetadata sets the metadata value for key.
func (m *Message) SetMetadata(key, value string) { m.metadata[key] = value }

// MetadataKeys returns the metadata keys in sorted order.
func (m *Message) MetadataKeys() []string {
	return slices.Sorted(maps.Keys(m.metadata))
}

// Reader returns a reader over the payload, decoded to UTF-8.
func (m *Message) Reader() (io.Reader, error) {
	r := io.Reader(bytes.NewReader(m.payload))
	if m.encoding == "" {
		return r, nil
	}
	enc, err := htmlindex.Get(m.encoding)
	if err != nil {
		return nil, fmt.Errorf("unsupported payload encoding %q: %w", m.encoding, err)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// Text returns the payload decoded to a UTF-8 string.
func (m *Message) Text() (string, error) {
	r, err := m.Reader()
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode payload: %w", err)
	}
	return string(b), nil
}

// Resolve expands "%message{key}" placeholders in expr with the matching
// metadata values. "%message{%uniqueId}" expands to the message ID, and
// missing keys expand to the empty string. Text outside placeholders,
// including unterminated placeholders, is returned verbatim.
func (m *Message) Resolve(expr string) string {
	const prefix = "%message{"
	if !strings.Contains(expr, prefix) {
		return expr
	}
	var sb strings.Builder
	for {
		start := strings.Index(expr, prefix)
		if start < 0 {
			break
		}
		end := strings.IndexByte(expr[start+len(prefix):], '}')
		if end < 0 {
			break
		}
		sb.WriteString(expr[:start])
		key := expr[start+len(prefix) : start+len(prefix)+end]
		if key == UniqueIDKey {
			sb.WriteString(m.id)
		} else {
			sb.WriteString(m.metadata[key])
		}
		expr = expr[start+len(prefix)+end+1:]
	}
	sb.WriteString(expr)
	return sb.String()
}
