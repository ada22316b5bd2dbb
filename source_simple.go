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
	"strings"
	"time"

	"github.com/elastic/go-docingest/message"
)

// TimestampFormat holds the time format for formatting timestamps according
// to Elasticsearch's strict_date_optional_time date format, which includes
// a fractional seconds component.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// newSimpleSource builds a single document holding the payload text under
// "content", the message metadata under "metadata" and the build time under
// "date". Metadata keys containing '.' are dropped, since Elasticsearch
// would expand them into objects.
func newSimpleSource(msg *message.Message, cfg SourceConfig) (Source, error) {
	content, err := msg.Text()
	if err != nil {
		return nil, err
	}
	var metadata Body
	for _, key := range msg.MetadataKeys() {
		if strings.Contains(key, ".") {
			continue
		}
		metadata = append(metadata, Field{Name: key, Value: msg.Metadata(key)})
	}
	body := Body{
		{Name: "content", Value: content},
		{Name: "metadata", Value: metadata},
		{Name: "date", Value: time.Now().UTC().Format(TimestampFormat)},
	}
	if cfg.TimestampField != "" {
		body.Set(cfg.TimestampField, timestamp())
	}
	return newSource[*Document](&documentReader{
		doc: &Document{ID: msg.ID(), Body: body},
	}), nil
}
