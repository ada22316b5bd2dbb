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

// Package docingest turns semi-structured message payloads into
// Elasticsearch documents and writes them with single document or _bulk
// requests.
//
// BuildDocuments parses a message.Message payload (CSV, CSV with geo-point
// columns, a JSON object, a JSON array, JSON lines or free text) into a
// lazy, single pass Source. A SingleDispatcher or BulkDispatcher then
// writes the documents of a Source to an index. The write action of each
// document is chosen by an ActionResolver.
//
// This package is not intended to cover search, index management or
// cluster administration.
package docingest
