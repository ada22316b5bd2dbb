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

// Package docingesttest provides a mock Elasticsearch for testing
// dispatchers.
package docingesttest

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.elastic.co/apm/module/apmelasticsearch/v2"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// BulkOperation is a decoded _bulk operation.
type BulkOperation struct {
	// Action holds the operation type: "index", "create", "update" or "delete".
	Action string

	Index   string
	ID      string
	Routing string

	// Source holds the source line. It is nil for delete operations.
	Source []byte
}

type bulkMeta struct {
	Index   string `json:"_index"`
	ID      string `json:"_id"`
	Routing string `json:"routing"`
}

// DecodeBulkRequest decodes a /_bulk request's body, returning the decoded
// operations and a response body reporting every operation as successful.
func DecodeBulkRequest(r *http.Request) ([]BulkOperation, esutil.BulkIndexerResponse) {
	body := r.Body
	switch r.Header.Get("Content-Encoding") {
	case "gzip":
		r, err := gzip.NewReader(body)
		if err != nil {
			panic(err)
		}
		defer r.Close()
		body = r
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var ops []BulkOperation
	var result esutil.BulkIndexerResponse
	for scanner.Scan() {
		action := make(map[string]bulkMeta)
		if err := json.NewDecoder(strings.NewReader(scanner.Text())).Decode(&action); err != nil {
			panic(err)
		}
		if len(action) != 1 {
			panic(fmt.Errorf("expected one action, got %s", scanner.Text()))
		}
		var op BulkOperation
		for actionType, meta := range action {
			op = BulkOperation{
				Action:  actionType,
				Index:   meta.Index,
				ID:      meta.ID,
				Routing: meta.Routing,
			}
		}
		if op.Index == "" {
			op.Index = strings.Trim(strings.TrimSuffix(r.URL.Path, "/_bulk"), "/")
		}
		status := http.StatusCreated
		if op.Action != "delete" {
			if !scanner.Scan() {
				panic("expected source")
			}
			op.Source = append([]byte{}, scanner.Bytes()...)
			if !json.Valid(op.Source) {
				panic(fmt.Errorf("invalid JSON: %s", op.Source))
			}
			if op.Action == "update" {
				status = http.StatusOK
			}
		} else {
			status = http.StatusOK
		}
		ops = append(ops, op)

		item := esutil.BulkIndexerResponseItem{
			Index:      op.Index,
			DocumentID: op.ID,
			Status:     status,
		}
		result.Items = append(result.Items, map[string]esutil.BulkIndexerResponseItem{op.Action: item})
	}
	if err := scanner.Err(); err != nil {
		panic(err)
	}
	return ops, result
}

// DocumentRequest is a decoded single document request.
type DocumentRequest struct {
	// Action holds the request type: "index", "update" or "delete".
	Action string

	Index   string
	ID      string
	Routing string
	Refresh string
	Body    []byte
}

// DecodeDocumentRequest decodes an index, update or delete request. It
// returns false if r is not a single document request.
func DecodeDocumentRequest(r *http.Request) (DocumentRequest, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		return DocumentRequest{}, false
	}
	req := DocumentRequest{
		Index:   parts[0],
		ID:      parts[2],
		Routing: r.URL.Query().Get("routing"),
		Refresh: r.URL.Query().Get("refresh"),
	}
	switch {
	case parts[1] == "_doc" && r.Method == http.MethodDelete:
		req.Action = "delete"
	case parts[1] == "_doc" && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		req.Action = "index"
	case parts[1] == "_update" && r.Method == http.MethodPost:
		req.Action = "update"
	default:
		return DocumentRequest{}, false
	}
	if req.Action != "delete" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			panic(err)
		}
		if !json.Valid(body) {
			panic(fmt.Errorf("invalid JSON: %s", body))
		}
		req.Body = body
	}
	return req, true
}

// WriteDocumentResponse writes a successful response for req.
func WriteDocumentResponse(w http.ResponseWriter, req DocumentRequest, version int64, result string) {
	status := http.StatusOK
	if result == "created" {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"_index":   req.Index,
		"_id":      req.ID,
		"_version": version,
		"result":   result,
	})
}

// WriteError writes an Elasticsearch error response.
func WriteError(w http.ResponseWriter, status int, errorType, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"type":   errorType,
			"reason": reason,
		},
		"status": status,
	})
}

// NewMockElasticsearchClient returns an elasticsearch.Client which sends /_bulk requests to bulkHandler.
func NewMockElasticsearchClient(t testing.TB, bulkHandler http.HandlerFunc) *elasticsearch.Client {
	config := NewMockElasticsearchClientConfig(t, bulkHandler, nil)
	client, err := elasticsearch.NewClient(config)
	require.NoError(t, err)
	return client
}

// NewMockDocumentClient returns an elasticsearch.Client which sends single
// document requests to documentHandler.
func NewMockDocumentClient(t testing.TB, documentHandler http.HandlerFunc) *elasticsearch.Client {
	config := NewMockElasticsearchClientConfig(t, nil, documentHandler)
	client, err := elasticsearch.NewClient(config)
	require.NoError(t, err)
	return client
}

// NewMockElasticsearchClientConfig starts an httptest.Server, and returns an elasticsearch.Config which
// sends /_bulk requests to bulkHandler and any other request to documentHandler. Nil handlers respond
// with 404. The httptest.Server will be closed via t.Cleanup.
func NewMockElasticsearchClientConfig(t testing.TB, bulkHandler, documentHandler http.HandlerFunc) elasticsearch.Config {
	mux := http.NewServeMux()
	if bulkHandler != nil {
		HandleBulk(mux, bulkHandler)
	}
	if documentHandler != nil {
		HandleDocuments(mux, documentHandler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	config := elasticsearch.Config{}
	config.Addresses = []string{srv.URL}
	config.DisableRetry = true
	config.Transport = apmelasticsearch.WrapRoundTripper(http.DefaultTransport)

	return config
}

// HandleBulk registers bulkHandler with mux for handling /_bulk requests,
// wrapping bulkHandler to conform with go-elasticsearch version checking.
func HandleBulk(mux *http.ServeMux, bulkHandler http.HandlerFunc) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		bulkHandler.ServeHTTP(w, r)
	}
	mux.HandleFunc("/_bulk", handler)
	mux.HandleFunc("/{index}/_bulk", handler)
}

// HandleDocuments registers documentHandler with mux for handling every
// request not handled by a more specific pattern.
func HandleDocuments(mux *http.ServeMux, documentHandler http.HandlerFunc) {
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		documentHandler.ServeHTTP(w, r)
	})
}
