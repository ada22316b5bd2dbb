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
	"github.com/elastic/go-docingest/message"
)

func TestParseAction(t *testing.T) {
	for s, want := range map[string]docingest.Action{
		"INDEX":   docingest.ActionIndex,
		"index":   docingest.ActionIndex,
		"Update":  docingest.ActionUpdate,
		"delete":  docingest.ActionDelete,
		" upsert": docingest.ActionUpsert,
		"NONE":    docingest.ActionNone,
	} {
		action, err := docingest.ParseAction(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, action, s)
	}
	for _, s := range []string{"", "IDX", "create"} {
		_, err := docingest.ParseAction(s)
		assert.ErrorIs(t, err, docingest.ErrUnsupportedAction, s)
	}
	assert.Equal(t, "UPSERT", docingest.ActionUpsert.String())
}

func TestActionResolvers(t *testing.T) {
	msg := message.New(nil, message.WithMetadata(map[string]string{
		"action": "delete",
		"op":     "UPDATE",
	}))
	doc := &docingest.Document{Body: docingest.Body{
		{Name: "action", Value: "upsert"},
		{Name: "meta", Value: docingest.RawJSON(`{"op":"IDX"}`)},
	}}

	for name, tc := range map[string]struct {
		resolver docingest.ActionResolver
		want     string
	}{
		"configured_default":  {docingest.ConfiguredAction{}, "INDEX"},
		"configured":          {docingest.ConfiguredAction{Action: "DELETE"}, "DELETE"},
		"configured_metadata": {docingest.ConfiguredAction{Action: "%message{op}"}, "UPDATE"},
		"metadata_default":    {docingest.MetadataAction{}, "delete"},
		"metadata":            {docingest.MetadataAction{Key: "op"}, "UPDATE"},
		"jsonpath_default":    {docingest.JSONPathAction{}, "upsert"},
		"jsonpath": {docingest.JSONPathAction{
			Path: docingest.MustCompileJSONPath("$.meta.op"),
		}, "IDX"},
		"mapped": {docingest.MappedAction{
			Resolver: docingest.JSONPathAction{Path: docingest.MustCompileJSONPath("$.meta.op")},
			Mappings: map[string]string{"IDX": "INDEX"},
		}, "INDEX"},
		"mapped_passthrough": {docingest.MappedAction{
			Resolver: docingest.MetadataAction{Key: "op"},
			Mappings: map[string]string{"IDX": "INDEX"},
		}, "UPDATE"},
		"mapped_default_resolver": {docingest.MappedAction{
			Mappings: map[string]string{"INDEX": "UPSERT"},
		}, "UPSERT"},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := tc.resolver.ResolveAction(msg, doc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestJSONPathActionMissing(t *testing.T) {
	_, err := docingest.JSONPathAction{}.ResolveAction(message.New(nil), &docingest.Document{})
	assert.ErrorIs(t, err, docingest.ErrPathNotFound)
}

func TestActionConfig(t *testing.T) {
	msg := message.New(nil, message.WithMetadata(map[string]string{"kind": "x"}))
	doc := &docingest.Document{Body: docingest.Body{{Name: "op", Value: "DELETE"}}}

	for name, tc := range map[string]struct {
		cfg  docingest.ActionConfig
		want string
	}{
		"default":    {docingest.ActionConfig{}, "INDEX"},
		"configured": {docingest.ActionConfig{Type: "configured", Action: "upsert"}, "upsert"},
		"metadata": {docingest.ActionConfig{
			Type: "metadata", MetadataKey: "kind", Mappings: map[string]string{"x": "UPDATE"},
		}, "UPDATE"},
		"jsonpath": {docingest.ActionConfig{Type: "JSONPath", JSONPath: "$.op"}, "DELETE"},
	} {
		t.Run(name, func(t *testing.T) {
			resolver, err := tc.cfg.Resolver()
			require.NoError(t, err)
			got, err := resolver.ResolveAction(msg, doc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := docingest.ActionConfig{Type: "script"}.Resolver()
	assert.Error(t, err)
	_, err = docingest.ActionConfig{Type: "jsonpath", JSONPath: "op"}.Resolver()
	assert.Error(t, err)
}
