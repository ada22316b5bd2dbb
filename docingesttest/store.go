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

package docingesttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// Store is an in-memory document store that applies bulk and single
// document write requests the way Elasticsearch does: update of a missing
// document fails with document_missing_exception unless doc_as_upsert is
// set, and partial updates merge top-level fields.
type Store struct {
	mu      sync.Mutex
	indices map[string]map[string]json.RawMessage
	version map[string]int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		indices: make(map[string]map[string]json.RawMessage),
		version: make(map[string]int64),
	}
}

// Get returns the source of the document id in index.
func (s *Store) Get(index, id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.indices[index][id]
	if !ok {
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic(err)
	}
	return doc, true
}

// IDs returns the sorted IDs of the documents in index.
func (s *Store) IDs(index string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.indices[index]))
	for id := range s.indices[index] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Put stores source as the document id in index.
func (s *Store) Put(index, id string, source []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(index, id, source)
}

// BulkHandler returns an http.HandlerFunc serving /_bulk requests.
func (s *Store) BulkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ops, _ := DecodeBulkRequest(r)
		var result esutil.BulkIndexerResponse
		s.mu.Lock()
		for _, op := range ops {
			status, errType, reason := s.apply(op.Action, op.Index, op.ID, op.Source)
			item := esutil.BulkIndexerResponseItem{
				Index:      op.Index,
				DocumentID: op.ID,
				Status:     status,
			}
			if errType != "" {
				result.HasErrors = true
				item.Error.Type = errType
				item.Error.Reason = reason
			}
			result.Items = append(result.Items, map[string]esutil.BulkIndexerResponseItem{op.Action: item})
		}
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// DocumentHandler returns an http.HandlerFunc serving single document
// index, update and delete requests.
func (s *Store) DocumentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := DecodeDocumentRequest(r)
		if !ok {
			WriteError(w, http.StatusBadRequest, "illegal_argument_exception",
				fmt.Sprintf("unexpected request %s %s", r.Method, r.URL.Path))
			return
		}
		s.mu.Lock()
		status, errType, reason := s.apply(req.Action, req.Index, req.ID, req.Body)
		version := s.version[req.Index+"/"+req.ID]
		s.mu.Unlock()
		switch {
		case errType != "":
			WriteError(w, status, errType, reason)
		case req.Action == "delete" && status == http.StatusNotFound:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{
				"_index": req.Index, "_id": req.ID, "result": "not_found",
			})
		case req.Action == "delete":
			WriteDocumentResponse(w, req, version, "deleted")
		case status == http.StatusCreated:
			WriteDocumentResponse(w, req, version, "created")
		default:
			WriteDocumentResponse(w, req, version, "updated")
		}
	}
}

type updateRequest struct {
	Doc         json.RawMessage `json:"doc"`
	DocAsUpsert bool            `json:"doc_as_upsert"`
}

// apply applies a write operation, returning the response status and, for
// failures, the error type and reason. s.mu must be held.
func (s *Store) apply(action, index, id string, body []byte) (int, string, string) {
	_, exists := s.indices[index][id]
	switch action {
	case "index", "create":
		if action == "create" && exists {
			return http.StatusConflict, "version_conflict_engine_exception",
				fmt.Sprintf("[%s]: version conflict, document already exists", id)
		}
		s.put(index, id, body)
		if exists {
			return http.StatusOK, "", ""
		}
		return http.StatusCreated, "", ""
	case "update":
		var req updateRequest
		if err := json.Unmarshal(body, &req); err != nil || req.Doc == nil {
			return http.StatusBadRequest, "x_content_parse_exception", "failed to parse update request"
		}
		if !exists {
			if !req.DocAsUpsert {
				return http.StatusNotFound, "document_missing_exception",
					fmt.Sprintf("[%s]: document missing", id)
			}
			s.put(index, id, req.Doc)
			return http.StatusCreated, "", ""
		}
		var current, partial map[string]json.RawMessage
		if err := json.Unmarshal(s.indices[index][id], &current); err != nil {
			panic(err)
		}
		if err := json.Unmarshal(req.Doc, &partial); err != nil {
			return http.StatusBadRequest, "x_content_parse_exception", "failed to parse partial document"
		}
		for k, v := range partial {
			current[k] = v
		}
		merged, err := json.Marshal(current)
		if err != nil {
			panic(err)
		}
		s.put(index, id, merged)
		return http.StatusOK, "", ""
	case "delete":
		if !exists {
			return http.StatusNotFound, "", ""
		}
		delete(s.indices[index], id)
		s.version[index+"/"+id]++
		return http.StatusOK, "", ""
	}
	return http.StatusBadRequest, "illegal_argument_exception",
		fmt.Sprintf("unknown action %q", action)
}

func (s *Store) put(index, id string, source []byte) {
	docs, ok := s.indices[index]
	if !ok {
		docs = make(map[string]json.RawMessage)
		s.indices[index] = docs
	}
	docs[id] = append(json.RawMessage(nil), source...)
	s.version[index+"/"+id]++
}
