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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/go-docingest"
)

func TestBodyEncoding(t *testing.T) {
	var body docingest.Body
	body.Set("s", "x\"y")
	body.Set("i", int64(-3))
	body.Set("f", 1.5)
	body.Set("b", true)
	body.Set("raw", docingest.RawJSON(`[1,{"a":null}]`))
	body.Set("empty", docingest.RawJSON(nil))
	body.Set("geo", docingest.GeoPoint{Lat: 1.25, Lon: -2})
	body.Set("nested", docingest.Body{{Name: "k", Value: "v"}})
	body.Set("s", "replaced")

	assert.Equal(t, []string{"s", "i", "f", "b", "raw", "empty", "geo", "nested"}, body.Names())
	assert.Equal(t, 8, body.Len())
	v, ok := body.Get("s")
	require.True(t, ok)
	assert.Equal(t, "replaced", v)
	_, ok = body.Get("missing")
	assert.False(t, ok)

	doc := docingest.Document{ID: "1", Body: body}
	source, err := doc.Source()
	require.NoError(t, err)
	assert.Equal(t,
		`{"s":"replaced","i":-3,"f":1.5,"b":true,"raw":[1,{"a":null}],"empty":null,`+
			`"geo":{"lat":1.25,"lon":-2},"nested":{"k":"v"}}`,
		string(source),
	)
}

func TestBodyEncodingEmpty(t *testing.T) {
	doc := docingest.Document{}
	source, err := doc.Source()
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(source))
}
