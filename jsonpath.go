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
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// JSONPath is a compiled JSON path expression in dot or bracket notation,
// such as "$.order.id", "$['order']['id']" or "$.lines[0].sku". The
// wildcard "[*]" selects every element of an array. Recursive descent and
// filter expressions are not supported.
type JSONPath struct {
	expr string
	path string
}

// CompileJSONPath parses expr.
func CompileJSONPath(expr string) (JSONPath, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "$") {
		return JSONPath{}, fmt.Errorf("invalid json path %q: must start with '$'", expr)
	}
	var components []string
	for i := 1; i < len(expr); {
		switch expr[i] {
		case '.':
			i++
			if i < len(expr) && expr[i] == '.' {
				return JSONPath{}, fmt.Errorf("invalid json path %q: recursive descent is not supported", expr)
			}
			end := i
			for end < len(expr) && expr[end] != '.' && expr[end] != '[' {
				end++
			}
			name := expr[i:end]
			switch name {
			case "":
				return JSONPath{}, fmt.Errorf("invalid json path %q: empty name at offset %d", expr, i)
			case "*":
				return JSONPath{}, fmt.Errorf("invalid json path %q: object wildcards are not supported", expr)
			}
			components = append(components, gjson.Escape(name))
			i = end
		case '[':
			component, n, err := parseBracket(expr[i:])
			if err != nil {
				return JSONPath{}, fmt.Errorf("invalid json path %q: %w", expr, err)
			}
			components = append(components, component)
			i += n
		default:
			return JSONPath{}, fmt.Errorf("invalid json path %q: unexpected %q at offset %d", expr, expr[i], i)
		}
	}
	path := "@this"
	if len(components) > 0 {
		path = strings.Join(components, ".")
	}
	return JSONPath{expr: expr, path: path}, nil
}

// parseBracket parses a bracket selector at the start of s, returning the
// equivalent gjson path component and the number of bytes consumed.
func parseBracket(s string) (string, int, error) {
	end := strings.IndexByte(s, ']')
	if len(s) > 1 && (s[1] == '\'' || s[1] == '"') {
		quote := s[1]
		var sb strings.Builder
		for i := 2; i < len(s); i++ {
			switch c := s[i]; {
			case c == '\\' && i+1 < len(s):
				i++
				sb.WriteByte(s[i])
			case c == quote:
				if i+1 >= len(s) || s[i+1] != ']' {
					return "", 0, fmt.Errorf("expected ']' after quoted name")
				}
				return gjson.Escape(sb.String()), i + 2, nil
			default:
				sb.WriteByte(c)
			}
		}
		return "", 0, fmt.Errorf("unterminated quoted name")
	}
	if end < 0 {
		return "", 0, fmt.Errorf("unterminated '['")
	}
	sel := strings.TrimSpace(s[1:end])
	if sel == "*" {
		return "#", end + 1, nil
	}
	if n, err := strconv.Atoi(sel); err == nil && n >= 0 {
		return strconv.Itoa(n), end + 1, nil
	}
	return "", 0, fmt.Errorf("unsupported selector [%s]", sel)
}

// MustCompileJSONPath is like CompileJSONPath but panics if expr cannot be
// parsed.
func MustCompileJSONPath(expr string) JSONPath {
	p, err := CompileJSONPath(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source expression.
func (p JSONPath) String() string {
	return p.expr
}

// IsZero reports whether p is the zero JSONPath.
func (p JSONPath) IsZero() bool {
	return p.path == ""
}

// Lookup evaluates the path against json. It returns false if the path
// does not exist or resolves to null.
func (p JSONPath) Lookup(json []byte) (gjson.Result, bool) {
	r := gjson.GetBytes(json, p.path)
	if !r.Exists() || r.Type == gjson.Null {
		return r, false
	}
	return r, true
}

// LookupString evaluates the path against json and returns the value as a
// string. Non-string values are returned in their JSON encoding. It
// returns an error wrapping ErrPathNotFound if the path does not resolve.
func (p JSONPath) LookupString(json []byte) (string, error) {
	r, ok := p.Lookup(json)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPathNotFound, p.expr)
	}
	return r.String(), nil
}
