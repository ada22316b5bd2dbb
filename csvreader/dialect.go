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

// Package csvreader provides a configurable reader for delimited text.
//
// Unlike encoding/csv, the quote, escape and comment characters, the record
// separator and whitespace handling are all described by a Dialect, so that
// the common MySQL, Excel, RFC 4180 and tab-delimited variants can be read
// with one implementation.
package csvreader

import "strings"

// Dialect describes a delimited text format.
type Dialect struct {
	// Delimiter separates fields within a record.
	//
	// If Delimiter is zero, ',' is used.
	Delimiter rune

	// Quote encloses fields that contain delimiters, quotes or record
	// separators. A doubled quote inside a quoted field is a literal quote.
	//
	// If Quote is zero, quoting is disabled.
	Quote rune

	// Escape makes the following character literal. The sequences \r, \n,
	// \t, \b and \f (with the configured escape character) are unescaped to
	// their control characters, and an escape before any other
	// non-special character is kept verbatim.
	//
	// If Escape is zero, escaping is disabled.
	Escape rune

	// Comment marks a line as a comment when it is the first character of
	// a record.
	//
	// If Comment is zero, comments are disabled.
	Comment rune

	// RecordSeparator terminates records. "\r\n" (and the empty string)
	// also accept a bare "\n" or "\r", as most producers are inconsistent
	// about line endings. Any other value must match exactly.
	RecordSeparator string

	// NullString is the unquoted field value which is read as a null field,
	// for example `\N` for MySQL.
	//
	// If NullString is empty, no field is ever null.
	NullString string

	// IgnoreEmptyLines skips lines which contain no characters. When false,
	// an empty line is read as a record with a single empty field.
	IgnoreEmptyLines bool

	// IgnoreSurroundingSpaces trims spaces and tabs around unquoted fields
	// and around the quotes of quoted fields.
	IgnoreSurroundingSpaces bool
}

var (
	// Default is RFC 4180 that ignores empty lines.
	Default = Dialect{
		Delimiter:        ',',
		Quote:            '"',
		RecordSeparator:  "\r\n",
		IgnoreEmptyLines: true,
	}

	// Excel is the format written by Microsoft Excel with its baseline
	// (comma) delimiter.
	Excel = Dialect{
		Delimiter:       ',',
		Quote:           '"',
		RecordSeparator: "\r\n",
	}

	// MySQL is the format used by SELECT INTO OUTFILE and LOAD DATA INFILE.
	MySQL = Dialect{
		Delimiter:       '\t',
		Escape:          '\\',
		RecordSeparator: "\n",
		NullString:      `\N`,
	}

	// RFC4180 is the format described by RFC 4180.
	RFC4180 = Dialect{
		Delimiter:       ',',
		Quote:           '"',
		RecordSeparator: "\r\n",
	}

	// TabDelimited is Default with tab delimiters and surrounding spaces
	// ignored.
	TabDelimited = Dialect{
		Delimiter:               '\t',
		Quote:                   '"',
		RecordSeparator:         "\r\n",
		IgnoreEmptyLines:        true,
		IgnoreSurroundingSpaces: true,
	}
)

// DialectByName returns the preset dialect with the given name. Names are
// matched case-insensitively, and "-" or "_" separators are ignored, so
// "tab-delimited" and "TAB_DELIMITED" both select TabDelimited.
func DialectByName(name string) (Dialect, bool) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name))
	switch key {
	case "", "default":
		return Default, true
	case "excel":
		return Excel, true
	case "mysql":
		return MySQL, true
	case "rfc4180":
		return RFC4180, true
	case "tab", "tabdelimited", "tdf":
		return TabDelimited, true
	}
	return Dialect{}, false
}
