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
)

// FieldNameMapper maps derived field names, such as CSV header values, to
// the names written to Elasticsearch.
type FieldNameMapper interface {
	MapFieldName(name string) string
}

// FieldNameMapperFunc is a function that implements FieldNameMapper.
type FieldNameMapperFunc func(string) string

// MapFieldName calls f(name).
func (f FieldNameMapperFunc) MapFieldName(name string) string {
	return f(name)
}

var (
	// IdentityFieldNameMapper returns names unchanged.
	IdentityFieldNameMapper FieldNameMapper = FieldNameMapperFunc(func(s string) string { return s })

	// UpperCaseFieldNameMapper upper cases names.
	UpperCaseFieldNameMapper FieldNameMapper = FieldNameMapperFunc(strings.ToUpper)

	// LowerCaseFieldNameMapper lower cases names.
	LowerCaseFieldNameMapper FieldNameMapper = FieldNameMapperFunc(strings.ToLower)
)

// ParseFieldNameMapper returns the FieldNameMapper with the given
// configuration name: "identity" (or "noop", or empty), "upper" or "lower".
func ParseFieldNameMapper(name string) (FieldNameMapper, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "identity", "noop", "none":
		return IdentityFieldNameMapper, nil
	case "upper", "uppercase":
		return UpperCaseFieldNameMapper, nil
	case "lower", "lowercase":
		return LowerCaseFieldNameMapper, nil
	}
	return nil, fmt.Errorf("unknown field name mapper %q", name)
}
