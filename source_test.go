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
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/go-docingest"
	"github.com/elastic/go-docingest/csvreader"
	"github.com/elastic/go-docingest/message"
)

// collect returns every document of src, failing the test on error.
func collect(t testing.TB, src docingest.Source) []*docingest.Document {
	t.Helper()
	var docs []*docingest.Document
	require.NoError(t, docingest.ForEach(src, func(doc *docingest.Document) error {
		docs = append(docs, doc)
		return nil
	}))
	return docs
}

func decodeSource(t testing.TB, doc *docingest.Document) map[string]any {
	t.Helper()
	source, err := doc.Source()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(source, &m))
	return m
}

func buildDocuments(t testing.TB, payload string, cfg docingest.SourceConfig, opts ...message.Option) docingest.Source {
	t.Helper()
	src, err := docingest.BuildDocuments(message.New([]byte(payload), opts...), cfg)
	require.NoError(t, err)
	return src
}

func TestCSVSource(t *testing.T) {
	payload := "id,first name , Last Name\nUID-1,ann,smith\nUID-2,bob,jones\n"
	src := buildDocuments(t, payload, docingest.SourceConfig{Kind: docingest.SourceCSV})
	docs := collect(t, src)
	require.Len(t, docs, 2)

	assert.Equal(t, "UID-1", docs[0].ID)
	assert.Equal(t, []string{"id", "first_name", "Last_Name"}, docs[0].Body.Names())
	assert.Equal(t, map[string]any{
		"id": "UID-1", "first_name": "ann", "Last_Name": "smith",
	}, decodeSource(t, docs[0]))
	assert.Equal(t, "UID-2", docs[1].ID)
	assert.Nil(t, docs[1].Routing)
	assert.Nil(t, docs[1].Action)
}

func TestCSVSourceFieldNameMapper(t *testing.T) {
	src := buildDocuments(t, "Name,Code\nx,1\n", docingest.SourceConfig{
		Kind:            docingest.SourceCSV,
		FieldNameMapper: docingest.UpperCaseFieldNameMapper,
		UniqueIDField:   1,
	})
	docs := collect(t, src)
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0].ID)
	assert.Equal(t, []string{"NAME", "CODE"}, docs[0].Body.Names())
}

func TestCSVSourceNoHeader(t *testing.T) {
	src := buildDocuments(t, "a,b,c\nd,e\n", docingest.SourceConfig{
		Kind:            docingest.SourceCSV,
		NoHeaderRecord:  true,
		FieldNameMapper: docingest.UpperCaseFieldNameMapper,
	})
	docs := collect(t, src)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, map[string]any{"FIELD_0": "a", "FIELD_1": "b", "FIELD_2": "c"}, decodeSource(t, docs[0]))
	assert.Equal(t, map[string]any{"FIELD_0": "d", "FIELD_1": "e"}, decodeSource(t, docs[1]))
}

func TestCSVSourceExtraColumns(t *testing.T) {
	src := buildDocuments(t, "id\n1,2\n", docingest.SourceConfig{Kind: docingest.SourceCSV})
	docs := collect(t, src)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"id", "field_1"}, docs[0].Body.Names())
}

func TestCSVSourceTimestamp(t *testing.T) {
	before := time.Now().UnixMilli()
	src := buildDocuments(t, "id,v\n1,x\n", docingest.SourceConfig{
		Kind:           docingest.SourceCSV,
		TimestampField: "@timestamp",
	})
	docs := collect(t, src)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"@timestamp", "id", "v"}, docs[0].Body.Names())
	ts, ok := docs[0].Body.Get("@timestamp")
	require.True(t, ok)
	assert.GreaterOrEqual(t, ts.(int64), before)
	assert.LessOrEqual(t, ts.(int64), time.Now().UnixMilli())
}

func TestCSVSourceMySQLNull(t *testing.T) {
	src := buildDocuments(t, "id\tname\n1\t\\N\n", docingest.SourceConfig{
		Kind:    docingest.SourceCSV,
		Dialect: csvreader.MySQL,
	})
	docs := collect(t, src)
	require.Len(t, docs, 1)
	assert.Equal(t, map[string]any{"id": "1", "name": ""}, decodeSource(t, docs[0]))
}

func TestCSVSourceUniqueIDOutOfRange(t *testing.T) {
	src := buildDocuments(t, "a,b\n1,2\n3\n", docingest.SourceConfig{
		Kind:          docingest.SourceCSV,
		UniqueIDField: 1,
	})
	it, err := src.Iterator()
	require.NoError(t, err)

	ok, err := it.HasNext()
	require.NoError(t, err)
	require.True(t, ok)
	doc, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "2", doc.ID)

	ok, err = it.HasNext()
	require.NoError(t, err)
	require.True(t, ok)
	_, err = it.Next()
	assert.ErrorIs(t, err, docingest.ErrFieldIndexOutOfRange)
	require.NoError(t, src.Close())
}

func TestCSVSourceUniqueIDOutOfRangeLine(t *testing.T) {
	src := buildDocuments(t, "a,b\n1,2\n3\n", docingest.SourceConfig{
		Kind:          docingest.SourceCSV,
		UniqueIDField: 1,
	})
	err := docingest.ForEach(src, func(*docingest.Document) error { return nil })
	assert.ErrorIs(t, err, docingest.ErrFieldIndexOutOfRange)
	assert.ErrorContains(t, err, "record ending on line 3 has 1 fields")
}

func TestCSVSourceRepeatedFieldNames(t *testing.T) {
	for name, tc := range map[string]struct {
		payload string
		cfg     docingest.SourceConfig
		names   []string
	}{
		"blank_headers": {
			payload: "id,,\n1,a,b\n",
			cfg:     docingest.SourceConfig{Kind: docingest.SourceCSV},
			names:   []string{"id", "", ""},
		},
		"mapped_collision": {
			payload: "id,Name,NAME\n1,a,b\n",
			cfg: docingest.SourceConfig{
				Kind:            docingest.SourceCSV,
				FieldNameMapper: docingest.LowerCaseFieldNameMapper,
			},
			names: []string{"id", "name", "name"},
		},
		"timestamp_column": {
			payload: "id,ts\n1,from-csv\n",
			cfg:     docingest.SourceConfig{Kind: docingest.SourceCSV, TimestampField: "ts"},
			names:   []string{"ts", "id", "ts"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			docs := collect(t, buildDocuments(t, tc.payload, tc.cfg))
			require.Len(t, docs, 1)
			assert.Equal(t, 3, docs[0].Body.Len())
			assert.Equal(t, tc.names, docs[0].Body.Names())
		})
	}

	docs := collect(t, buildDocuments(t, "id,,\n1,a,b\n", docingest.SourceConfig{Kind: docingest.SourceCSV}))
	require.Len(t, docs, 1)
	source, err := docs[0].Source()
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1","":"a","":"b"}`, string(source))
}

func TestCSVSourceNegativeUniqueID(t *testing.T) {
	_, err := docingest.BuildDocuments(message.New([]byte("a\n1\n")), docingest.SourceConfig{
		Kind:          docingest.SourceCSV,
		UniqueIDField: -1,
	})
	assert.EqualError(t, err, "expected UniqueIDField >= 0, got -1")
}

func TestCSVSourceParseError(t *testing.T) {
	src := buildDocuments(t, "a\n\"1\n", docingest.SourceConfig{Kind: docingest.SourceCSV})
	it, err := src.Iterator()
	require.NoError(t, err)
	_, err = it.HasNext()
	var perr *csvreader.ParseError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, csvreader.ErrUnterminatedQuote)
	// The error is sticky.
	_, err = it.HasNext()
	assert.ErrorIs(t, err, csvreader.ErrUnterminatedQuote)
}

func TestCSVGeoSource(t *testing.T) {
	payload := "id,name,Lat,LON,alt\n1,a,52.5,13.4,30\n2,b,,13.4,31\n3,c,north,13.4,32\n"
	src := buildDocuments(t, payload, docingest.SourceConfig{Kind: docingest.SourceCSVGeo})
	docs := collect(t, src)
	require.Len(t, docs, 3)

	assert.Equal(t, []string{"id", "name", "alt", "location"}, docs[0].Body.Names())
	assert.Equal(t, map[string]any{
		"id": "1", "name": "a", "alt": "30",
		"location": map[string]any{"lat": 52.5, "lon": 13.4},
	}, decodeSource(t, docs[0]))

	// Missing or unparsable coordinates omit the location, and the
	// coordinate columns stay excluded.
	assert.Equal(t, []string{"id", "name", "alt"}, docs[1].Body.Names())
	assert.Equal(t, []string{"id", "name", "alt"}, docs[2].Body.Names())
}

func TestCSVGeoSourceCustomNames(t *testing.T) {
	payload := "id,y,x,latitude\n1,10,20,99\n"
	src := buildDocuments(t, payload, docingest.SourceConfig{
		Kind:                docingest.SourceCSVGeo,
		LatitudeFieldNames:  "Y",
		LongitudeFieldNames: "x",
		LocationFieldName:   "point",
		FieldNameMapper:     docingest.UpperCaseFieldNameMapper,
	})
	docs := collect(t, src)
	require.Len(t, docs, 1)
	assert.Equal(t, map[string]any{
		"ID": "1", "LATITUDE": "99",
		"POINT": map[string]any{"lat": 10.0, "lon": 20.0},
	}, decodeSource(t, docs[0]))
}

func TestCSVGeoSourceLastMatchWins(t *testing.T) {
	payload := "id,lat,latitude,lon\n1,1,2,3\n"
	src := buildDocuments(t, payload, docingest.SourceConfig{Kind: docingest.SourceCSVGeo})
	docs := collect(t, src)
	require.Len(t, docs, 1)
	assert.Equal(t, map[string]any{
		"id":       "1",
		"location": map[string]any{"lat": 2.0, "lon": 3.0},
	}, decodeSource(t, docs[0]))
}

func TestCSVGeoSourceAlwaysReadsHeader(t *testing.T) {
	src := buildDocuments(t, "id,lat,lon\n1,1,2\n", docingest.SourceConfig{
		Kind:           docingest.SourceCSVGeo,
		NoHeaderRecord: true,
	})
	docs := collect(t, src)
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0].ID)
}

func TestJSONArraySource(t *testing.T) {
	payload := `[
		{"uniqueid": "0001", "name": "a", "tags": ["x", "y"], "user": {"id": "u1"}},
		{"uniqueid": "0002", "name": "b", "user": {"id": "u2"}},
		{"uniqueid": "0003", "name": "c"},
		{"uniqueid": "0004", "name": "d", "user": {"id": "u4"}}
	]`
	src := buildDocuments(t, payload, docingest.SourceConfig{
		Kind:            docingest.SourceJSONArray,
		RoutingJSONPath: "$.user.id",
		TimestampField:  "@timestamp",
	})
	docs := collect(t, src)
	require.Len(t, docs, 4)

	var ids []string
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	assert.Equal(t, []string{"0001", "0002", "0003", "0004"}, ids)

	assert.Equal(t, []string{"uniqueid", "name", "tags", "user", "@timestamp"}, docs[0].Body.Names())
	source := decodeSource(t, docs[0])
	assert.Equal(t, []any{"x", "y"}, source["tags"])
	assert.Equal(t, map[string]any{"id": "u1"}, source["user"])

	require.NotNil(t, docs[0].Routing)
	assert.Equal(t, "u1", *docs[0].Routing)
	assert.Nil(t, docs[2].Routing)
}

func TestJSONArraySourceEmpty(t *testing.T) {
	for _, payload := range []string{"", "[]", " [ ] "} {
		src := buildDocuments(t, payload, docingest.SourceConfig{Kind: docingest.SourceJSONArray})
		assert.Empty(t, collect(t, src), "payload %q", payload)
	}
}

func TestJSONLinesSource(t *testing.T) {
	payload := "{\"uniqueid\":\"1\"}\n{\"uniqueid\":\"2\",\"v\":true}\n\n{\"uniqueid\":\"3\"}\n"
	src := buildDocuments(t, payload, docingest.SourceConfig{
		Kind:      docingest.SourceJSONArray,
		JSONStyle: docingest.JSONStyleLines,
	})
	docs := collect(t, src)
	require.Len(t, docs, 3)
	assert.Equal(t, "3", docs[2].ID)
	assert.Equal(t, map[string]any{"uniqueid": "2", "v": true}, decodeSource(t, docs[1]))
}

func TestJSONArraySourceCustomIDPath(t *testing.T) {
	src := buildDocuments(t, `[{"meta":{"ids":[7,8]}}]`, docingest.SourceConfig{
		Kind:             docingest.SourceJSONArray,
		UniqueIDJSONPath: "$.meta.ids[1]",
	})
	docs := collect(t, src)
	require.Len(t, docs, 1)
	assert.Equal(t, "8", docs[0].ID)
}

func TestJSONArraySourceMissingID(t *testing.T) {
	src := buildDocuments(t, `[{"id":"1"},{"id":"2"}]`, docingest.SourceConfig{
		Kind: docingest.SourceJSONArray,
	})
	it, err := src.Iterator()
	require.NoError(t, err)

	ok, err := it.HasNext()
	assert.False(t, ok)
	assert.ErrorIs(t, err, docingest.ErrPathNotFound)

	_, err = it.Next()
	assert.ErrorIs(t, err, docingest.ErrPathNotFound)
	require.NoError(t, src.Close())
}

func TestJSONArraySourceInvalid(t *testing.T) {
	for name, payload := range map[string]string{
		"not_an_array":  `{"uniqueid":"1"}`,
		"not_an_object": `[{"uniqueid":"1"}, 2]`,
		"truncated":     `[{"uniqueid":"1"}, {"uniqueid":`,
	} {
		t.Run(name, func(t *testing.T) {
			src := buildDocuments(t, payload, docingest.SourceConfig{Kind: docingest.SourceJSONArray})
			err := docingest.ForEach(src, func(*docingest.Document) error { return nil })
			assert.Error(t, err)
		})
	}
}

func TestJSONArraySourceRecordNumbers(t *testing.T) {
	for name, tc := range map[string]struct {
		payload string
		err     string
	}{
		"missing_id":    {`[{"uniqueid":"1"},{"id":"2"}]`, "failed to resolve unique id of record 1"},
		"not_an_object": {`[{"uniqueid":"1"},2]`, "record 1: expected a JSON object"},
	} {
		t.Run(name, func(t *testing.T) {
			src := buildDocuments(t, tc.payload, docingest.SourceConfig{Kind: docingest.SourceJSONArray})
			var n int
			err := docingest.ForEach(src, func(*docingest.Document) error {
				n++
				return nil
			})
			assert.Equal(t, 1, n)
			assert.ErrorContains(t, err, tc.err)
		})
	}
}

func TestJSONArraySourceInvalidPath(t *testing.T) {
	_, err := docingest.BuildDocuments(message.New([]byte("[]")), docingest.SourceConfig{
		Kind:             docingest.SourceJSONArray,
		UniqueIDJSONPath: "uniqueid",
	})
	assert.Error(t, err)
}

func TestJSONObjectSource(t *testing.T) {
	msg := message.New([]byte(`{"a": 1, "b": {"c": [true]}, "@timestamp": "old"}`),
		message.WithID("msg-1"),
		message.WithMetadata(map[string]string{"tenant": "acme"}),
	)
	src, err := docingest.BuildDocuments(msg, docingest.SourceConfig{
		Kind:              docingest.SourceJSONObject,
		TimestampField:    "@timestamp",
		RoutingExpression: "%message{tenant}",
	})
	require.NoError(t, err)
	docs := collect(t, src)
	require.Len(t, docs, 1)

	assert.Equal(t, "msg-1", docs[0].ID)
	require.NotNil(t, docs[0].Routing)
	assert.Equal(t, "acme", *docs[0].Routing)
	assert.Equal(t, []string{"a", "b", "@timestamp"}, docs[0].Body.Names())
	ts, _ := docs[0].Body.Get("@timestamp")
	assert.IsType(t, int64(0), ts)
}

func TestJSONObjectSourceEmptyRouting(t *testing.T) {
	src := buildDocuments(t, `{}`, docingest.SourceConfig{
		Kind:              docingest.SourceJSONObject,
		RoutingExpression: "%message{missing}",
	})
	docs := collect(t, src)
	require.Len(t, docs, 1)
	assert.Nil(t, docs[0].Routing)
}

func TestJSONObjectSourceNotAnObject(t *testing.T) {
	for _, payload := range []string{`[{"a":1}]`, `"a"`, ``, `{"a":`} {
		_, err := docingest.BuildDocuments(message.New([]byte(payload)), docingest.SourceConfig{
			Kind: docingest.SourceJSONObject,
		})
		assert.Error(t, err, "payload %q", payload)
	}
}

func TestSimpleSource(t *testing.T) {
	msg := message.New([]byte("hello world"),
		message.WithID("m-1"),
		message.WithMetadata(map[string]string{"b": "2", "a": "1", "x.y": "dropped"}),
	)
	src, err := docingest.BuildDocuments(msg, docingest.SourceConfig{Kind: docingest.SourceSimple})
	require.NoError(t, err)
	docs := collect(t, src)
	require.Len(t, docs, 1)

	assert.Equal(t, "m-1", docs[0].ID)
	source, err := docs[0].Source()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(source),
		`{"content":"hello world","metadata":{"a":"1","b":"2"},"date":"`), string(source))

	date, _ := docs[0].Body.Get("date")
	_, err = time.Parse(docingest.TimestampFormat, date.(string))
	assert.NoError(t, err)
}

func TestSourceIterationState(t *testing.T) {
	for name, cfg := range map[string]struct {
		payload string
		cfg     docingest.SourceConfig
	}{
		"csv":         {"id\n1\n", docingest.SourceConfig{Kind: docingest.SourceCSV}},
		"csv_geo":     {"id,lat,lon\n1,1,1\n", docingest.SourceConfig{Kind: docingest.SourceCSVGeo}},
		"json_object": {`{"a":1}`, docingest.SourceConfig{Kind: docingest.SourceJSONObject}},
		"json_array":  {`[{"uniqueid":"1"}]`, docingest.SourceConfig{Kind: docingest.SourceJSONArray}},
		"json_lines": {`{"uniqueid":"1"}`, docingest.SourceConfig{
			Kind: docingest.SourceJSONArray, JSONStyle: docingest.JSONStyleLines,
		}},
		"simple": {"text", docingest.SourceConfig{Kind: docingest.SourceSimple}},
	} {
		t.Run(name, func(t *testing.T) {
			src := buildDocuments(t, cfg.payload, cfg.cfg)
			it, err := src.Iterator()
			require.NoError(t, err)

			_, err = src.Iterator()
			assert.ErrorIs(t, err, docingest.ErrAlreadyIterating)

			ok, err := it.HasNext()
			require.NoError(t, err)
			require.True(t, ok)
			// HasNext does not consume.
			ok, err = it.HasNext()
			require.NoError(t, err)
			require.True(t, ok)

			doc, err := it.Next()
			require.NoError(t, err)
			require.NotNil(t, doc)

			ok, err = it.HasNext()
			require.NoError(t, err)
			assert.False(t, ok)
			_, err = it.Next()
			assert.ErrorIs(t, err, io.EOF)

			require.NoError(t, src.Close())
			require.NoError(t, src.Close())
			_, err = it.HasNext()
			assert.ErrorIs(t, err, docingest.ErrSourceClosed)
			_, err = src.Iterator()
			assert.ErrorIs(t, err, docingest.ErrAlreadyIterating)
		})
	}
}

func TestForEachStopsOnError(t *testing.T) {
	src := buildDocuments(t, "id\n1\n2\n3\n", docingest.SourceConfig{Kind: docingest.SourceCSV})
	stop := errors.New("stop")
	var n int
	err := docingest.ForEach(src, func(*docingest.Document) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)
	_, err = src.Iterator()
	assert.ErrorIs(t, err, docingest.ErrAlreadyIterating)
}

func TestSourceClosedBeforeIteration(t *testing.T) {
	src := buildDocuments(t, "id\n1\n", docingest.SourceConfig{Kind: docingest.SourceCSV})
	require.NoError(t, src.Close())
	_, err := src.Iterator()
	assert.ErrorIs(t, err, docingest.ErrSourceClosed)
}

func TestParseSourceKind(t *testing.T) {
	for s, want := range map[string]docingest.SourceKind{
		"csv":         docingest.SourceCSV,
		"CSV_GEO":     docingest.SourceCSVGeo,
		"json_object": docingest.SourceJSONObject,
		"json":        docingest.SourceJSONObject,
		"json_array":  docingest.SourceJSONArray,
		"ndjson":      docingest.SourceJSONArray,
		"simple":      docingest.SourceSimple,
	} {
		kind, err := docingest.ParseSourceKind(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, kind, s)
	}
	_, err := docingest.ParseSourceKind("xml")
	assert.Error(t, err)
}
