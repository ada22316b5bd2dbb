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
	"strings"

	"github.com/elastic/go-docingest/message"
)

// Action is a document write action.
type Action int

const (
	// ActionIndex creates or replaces the document.
	ActionIndex Action = iota
	// ActionUpdate partially updates an existing document.
	ActionUpdate
	// ActionDelete deletes the document.
	ActionDelete
	// ActionUpsert partially updates the document, creating it if it does
	// not exist.
	ActionUpsert
	// ActionNone is a recognised action which no dispatcher writes.
	ActionNone
)

var actionNames = [...]string{
	ActionIndex:  "INDEX",
	ActionUpdate: "UPDATE",
	ActionDelete: "DELETE",
	ActionUpsert: "UPSERT",
	ActionNone:   "NONE",
}

func (a Action) String() string {
	if a >= 0 && int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction parses s case-insensitively. Unknown actions return an error
// wrapping ErrUnsupportedAction.
func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAction, s)
}

// ActionResolver returns the raw write action for a document.
type ActionResolver interface {
	ResolveAction(msg *message.Message, doc *Document) (string, error)
}

// ConfiguredAction resolves to a fixed action. The action may reference
// message metadata, e.g. "%message{action}".
type ConfiguredAction struct {
	// Action holds the action expression.
	//
	// If Action is empty, "INDEX" is used.
	Action string
}

// ResolveAction implements ActionResolver.
func (a ConfiguredAction) ResolveAction(msg *message.Message, _ *Document) (string, error) {
	if a.Action == "" {
		return ActionIndex.String(), nil
	}
	return msg.Resolve(a.Action), nil
}

// MetadataAction resolves to the value of a message metadata key.
type MetadataAction struct {
	// Key holds the metadata key.
	//
	// If Key is empty, "action" is used.
	Key string
}

// ResolveAction implements ActionResolver.
func (a MetadataAction) ResolveAction(msg *message.Message, _ *Document) (string, error) {
	key := a.Key
	if key == "" {
		key = "action"
	}
	return msg.Metadata(key), nil
}

// JSONPathAction resolves to a value within the document body.
type JSONPathAction struct {
	// Path holds the JSON path of the action.
	//
	// If Path is zero, "$.action" is used.
	Path JSONPath
}

var defaultActionPath = MustCompileJSONPath("$.action")

// ResolveAction implements ActionResolver.
func (a JSONPathAction) ResolveAction(_ *message.Message, doc *Document) (string, error) {
	path := a.Path
	if path.IsZero() {
		path = defaultActionPath
	}
	source, err := doc.Source()
	if err != nil {
		return "", err
	}
	return path.LookupString(source)
}

// MappedAction translates the output of another resolver through a lookup
// table. Values without a mapping are returned unchanged.
type MappedAction struct {
	Resolver ActionResolver
	Mappings map[string]string
}

// ResolveAction implements ActionResolver.
func (a MappedAction) ResolveAction(msg *message.Message, doc *Document) (string, error) {
	var resolver ActionResolver = ConfiguredAction{}
	if a.Resolver != nil {
		resolver = a.Resolver
	}
	raw, err := resolver.ResolveAction(msg, doc)
	if err != nil {
		return "", err
	}
	if mapped, ok := a.Mappings[raw]; ok {
		return mapped, nil
	}
	return raw, nil
}

// resolveAction returns the action for doc. An action set on the document
// wins over the resolver.
func resolveAction(resolver ActionResolver, msg *message.Message, doc *Document) (Action, error) {
	if doc.Action != nil {
		return *doc.Action, nil
	}
	raw, err := resolver.ResolveAction(msg, doc)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve action for document %q: %w", doc.ID, err)
	}
	return ParseAction(raw)
}

// ActionConfig describes an ActionResolver in configuration.
type ActionConfig struct {
	// Type selects the resolver: "configured" (the default), "metadata" or
	// "jsonpath".
	Type string `toml:"type"`

	// Action holds the action expression for the "configured" type.
	Action string `toml:"action"`

	// MetadataKey holds the metadata key for the "metadata" type.
	MetadataKey string `toml:"metadata_key"`

	// JSONPath holds the path for the "jsonpath" type.
	JSONPath string `toml:"json_path"`

	// Mappings, if non-empty, wraps the resolver in a MappedAction.
	Mappings map[string]string `toml:"mappings"`
}

// Resolver returns the ActionResolver described by c.
func (c ActionConfig) Resolver() (ActionResolver, error) {
	var resolver ActionResolver
	switch strings.ToLower(c.Type) {
	case "", "configured":
		resolver = ConfiguredAction{Action: c.Action}
	case "metadata":
		resolver = MetadataAction{Key: c.MetadataKey}
	case "jsonpath", "json_path":
		a := JSONPathAction{}
		if c.JSONPath != "" {
			path, err := CompileJSONPath(c.JSONPath)
			if err != nil {
				return nil, err
			}
			a.Path = path
		}
		resolver = a
	default:
		return nil, fmt.Errorf("unknown action resolver type %q", c.Type)
	}
	if len(c.Mappings) > 0 {
		resolver = MappedAction{Resolver: resolver, Mappings: c.Mappings}
	}
	return resolver, nil
}
