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

package docingest_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.elastic.co/apm/v2/apmtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/elastic/go-docingest"
	"github.com/elastic/go-docingest/docingesttest"
	"github.com/elastic/go-docingest/message"
)

func TestSingleDispatcher(t *testing.T) {
	store := docingesttest.NewStore()
	store.Put("idx", "2", []byte(`{"v":"old","keep":1}`))
	store.Put("idx", "4", []byte(`{"v":"gone"}`))

	var requests []docingesttest.DocumentRequest
	handler := store.DocumentHandler()
	client := docingesttest.NewMockDocumentClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		r.Body = io.NopCloser(bytes.NewReader(body))
		req, ok := docingesttest.DecodeDocumentRequest(r)
		r.Body = io.NopCloser(bytes.NewReader(body))
		if ok {
			requests = append(requests, docingesttest.DocumentRequest{
				Action: req.Action, Index: req.Index, ID: req.ID,
				Routing: req.Routing, Refresh: req.Refresh,
			})
		}
		handler(w, r)
	})

	core, observed := observer.New(zap.NewAtomicLevelAt(zapcore.DebugLevel))
	d, err := docingest.NewSingleDispatcher(client, docingest.Config{
		Logger:         zap.New(core),
		ActionResolver: docingest.JSONPathAction{Path: docingest.MustCompileJSONPath("$.op")},
		Refresh:        "true",
	})
	require.NoError(t, err)

	payload := `[
		{"uniqueid": "1", "op": "INDEX", "v": "one", "tenant": "a"},
		{"uniqueid": "2", "op": "UPDATE", "v": "two", "tenant": "a"},
		{"uniqueid": "3", "op": "UPSERT", "v": "three", "tenant": "b"},
		{"uniqueid": "4", "op": "DELETE", "tenant": "b"},
		{"uniqueid": "5", "op": "DELETE", "tenant": "b"}
	]`
	msg := message.New([]byte(payload))
	src, err := docingest.BuildDocuments(msg, docingest.SourceConfig{
		Kind:            docingest.SourceJSONArray,
		RoutingJSONPath: "$.tenant",
	})
	require.NoError(t, err)

	stats, err := d.Dispatch(context.Background(), msg, src, "idx")
	require.NoError(t, err)
	assert.Equal(t, docingest.DispatchStats{Documents: 5, Requests: 5, Indexed: 5}, stats)

	assert.Equal(t, []docingesttest.DocumentRequest{
		{Action: "index", Index: "idx", ID: "1", Routing: "a", Refresh: "true"},
		{Action: "update", Index: "idx", ID: "2", Routing: "a", Refresh: "true"},
		{Action: "update", Index: "idx", ID: "3", Routing: "b", Refresh: "true"},
		{Action: "delete", Index: "idx", ID: "4", Routing: "b", Refresh: "true"},
		{Action: "delete", Index: "idx", ID: "5", Routing: "b", Refresh: "true"},
	}, requests)

	assert.Equal(t, []string{"1", "2", "3"}, store.IDs("idx"))
	doc, _ := store.Get("idx", "2")
	assert.Equal(t, map[string]any{
		"uniqueid": "2", "op": "UPDATE", "v": "two", "tenant": "a", "keep": float64(1),
	}, doc)

	completed := observed.FilterMessage("request completed").All()
	require.Len(t, completed, 4)
	assert.Equal(t, "1", completed[0].ContextMap()["id"])
	assert.Equal(t, int64(1), completed[0].ContextMap()["version"])
	assert.Equal(t, "created", completed[0].ContextMap()["result"])
	assert.Equal(t, int64(2), completed[1].ContextMap()["version"])
	assert.Len(t, observed.FilterMessage("document not found").All(), 1)
}

func TestSingleDispatcherAbortsOnError(t *testing.T) {
	store := docingesttest.NewStore()
	client := docingesttest.NewMockDocumentClient(t, store.DocumentHandler())
	d, err := docingest.NewSingleDispatcher(client, docingest.Config{
		ActionResolver: docingest.MetadataAction{},
	})
	require.NoError(t, err)

	// Updating a missing document fails, the first document stays written
	// and the third is never sent.
	msg, src := jsonLinesSource(t, jsonLines(3))
	msg.SetMetadata("action", "update")
	store.Put("idx", "0", []byte(`{}`))

	stats, err := d.Dispatch(context.Background(), msg, src, "idx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `UPDATE of document "1" failed: [404 Not Found]`)
	assert.Contains(t, err.Error(), "document_missing_exception")
	assert.Equal(t, docingest.DispatchStats{Documents: 2, Requests: 2, Indexed: 1, Failed: 1}, stats)

	doc, ok := store.Get("idx", "0")
	require.True(t, ok)
	assert.Equal(t, "0", doc["uniqueid"])
	assert.Equal(t, []string{"0"}, store.IDs("idx"))
}

func TestSingleDispatcherUnsupportedAction(t *testing.T) {
	store := docingesttest.NewStore()
	client := docingesttest.NewMockDocumentClient(t, store.DocumentHandler())
	d, err := docingest.NewSingleDispatcher(client, docingest.Config{
		ActionResolver: docingest.ConfiguredAction{Action: "NONE"},
	})
	require.NoError(t, err)

	msg, src := jsonLinesSource(t, jsonLines(2))
	stats, err := d.Dispatch(context.Background(), msg, src, "idx")
	assert.ErrorIs(t, err, docingest.ErrUnsupportedAction)
	assert.Equal(t, docingest.DispatchStats{Documents: 1}, stats)
	assert.Empty(t, store.IDs("idx"))
}

func TestSingleDispatcherTracing(t *testing.T) {
	store := docingesttest.NewStore()
	client := docingesttest.NewMockDocumentClient(t, store.DocumentHandler())
	tracer := apmtest.NewRecordingTracer()
	defer tracer.Close()
	d, err := docingest.NewSingleDispatcher(client, docingest.Config{Tracer: tracer.Tracer})
	require.NoError(t, err)

	msg, src := jsonLinesSource(t, jsonLines(2))
	_, err = d.Dispatch(context.Background(), msg, src, "idx")
	require.NoError(t, err)

	tracer.Flush(nil)
	payloads := tracer.Payloads()
	require.Len(t, payloads.Transactions, 2)
	for _, tx := range payloads.Transactions {
		assert.Equal(t, "docingest.request", tx.Name)
		assert.Equal(t, "output", tx.Type)
		assert.Equal(t, "success", tx.Outcome)
	}
	assert.Len(t, payloads.Spans, 2)
}

func TestSingleDispatcherConfig(t *testing.T) {
	_, err := docingest.NewSingleDispatcher(nil, docingest.Config{})
	assert.EqualError(t, err, "client is nil")
}
