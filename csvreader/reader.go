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

package csvreader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnterminatedQuote is returned when the input ends inside a quoted
	// field.
	ErrUnterminatedQuote = errors.New("unterminated quoted field")

	// ErrTrailingQuote is returned when a quoted field is followed by
	// something other than a delimiter, a record separator or whitespace.
	ErrTrailingQuote = errors.New("invalid character between quoted field and delimiter")

	// ErrTrailingEscape is returned when the input ends with an escape
	// character.
	ErrTrailingEscape = errors.New("input ends with an escape character")

	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("reader closed")
)

// ParseError is returned for parsing errors. Line numbers are 1-based and
// refer to the line on which the failing record starts.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record on line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Field is a single value within a record.
type Field struct {
	Value string
	// Null is true when the unquoted value matched Dialect.NullString.
	Null bool
}

// Reader reads records from delimited text. A Reader is not safe for
// concurrent use.
type Reader struct {
	dialect Dialect
	br      *bufio.Reader
	closer  io.Closer
	closed  bool

	// one rune of pushback; bufio.Reader.UnreadRune is invalidated by Peek.
	pending    rune
	hasPending bool

	line  int
	value strings.Builder
}

// NewReader returns a Reader reading from r. If r implements io.Closer it
// is closed by Reader.Close.
func NewReader(r io.Reader, d Dialect) *Reader {
	if d.Delimiter == 0 {
		d.Delimiter = ','
	}
	rd := &Reader{dialect: d, br: bufio.NewReader(r)}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	return rd
}

// Line returns the number of lines consumed so far.
func (r *Reader) Line() int {
	return r.line
}

// ReadHeader reads the next record and returns its values. Null fields are
// returned as empty strings. At end of input it returns io.EOF.
func (r *Reader) ReadHeader() ([]string, error) {
	fields, err := r.Read()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Value
	}
	return names, nil
}

// Read reads the next record. At end of input it returns io.EOF.
func (r *Reader) Read() ([]Field, error) {
	if r.closed {
		return nil, ErrClosed
	}
	for {
		c, err := r.readRune()
		if err != nil {
			return nil, err
		}
		if r.dialect.Comment != 0 && c == r.dialect.Comment {
			if err := r.skipLine(); err != nil {
				return nil, err
			}
			continue
		}
		sep, err := r.isSeparator(c)
		if err != nil {
			return nil, err
		}
		if sep {
			r.line++
			if r.dialect.IgnoreEmptyLines {
				continue
			}
			return []Field{{}}, nil
		}
		r.unreadRune(c)
		return r.readRecord()
	}
}

// Close closes the underlying reader if it implements io.Closer. Calling
// Close more than once is a no-op.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Reader) readRecord() ([]Field, error) {
	startLine := r.line + 1
	var fields []Field
	for {
		f, end, err := r.readField()
		if err != nil {
			return nil, &ParseError{Line: startLine, Err: err}
		}
		fields = append(fields, f)
		if end {
			r.line++
			return fields, nil
		}
	}
}

// readField reads one field, reporting whether it was the last field of
// the record.
func (r *Reader) readField() (Field, bool, error) {
	r.value.Reset()
	c, err := r.readRune()
	if r.dialect.IgnoreSurroundingSpaces {
		for err == nil && r.isSpace(c) {
			c, err = r.readRune()
		}
	}
	if err == io.EOF {
		return r.unquotedField(), true, nil
	} else if err != nil {
		return Field{}, false, err
	}
	if r.dialect.Quote != 0 && c == r.dialect.Quote {
		return r.readQuoted()
	}
	for {
		switch {
		case c == r.dialect.Delimiter:
			return r.unquotedField(), false, nil
		case r.dialect.Escape != 0 && c == r.dialect.Escape:
			if err := r.readEscape(c); err != nil {
				return Field{}, false, err
			}
		default:
			sep, err := r.isSeparator(c)
			if err != nil {
				return Field{}, false, err
			}
			if sep {
				return r.unquotedField(), true, nil
			}
			r.value.WriteRune(c)
		}
		c, err = r.readRune()
		if err == io.EOF {
			return r.unquotedField(), true, nil
		} else if err != nil {
			return Field{}, false, err
		}
	}
}

func (r *Reader) readQuoted() (Field, bool, error) {
	for {
		c, err := r.readRune()
		if err == io.EOF {
			return Field{}, false, ErrUnterminatedQuote
		} else if err != nil {
			return Field{}, false, err
		}
		switch {
		case r.dialect.Escape != 0 && c == r.dialect.Escape && c != r.dialect.Quote:
			if err := r.readEscape(c); err != nil {
				return Field{}, false, err
			}
		case c == r.dialect.Quote:
			next, err := r.readRune()
			if err == nil && next == r.dialect.Quote {
				r.value.WriteRune(c)
				continue
			}
			return r.afterQuote(next, err)
		default:
			if c == '\n' {
				r.line++
			}
			r.value.WriteRune(c)
		}
	}
}

// afterQuote consumes everything between a closing quote and the end of the
// field.
func (r *Reader) afterQuote(c rune, err error) (Field, bool, error) {
	f := Field{Value: r.value.String()}
	for {
		if err == io.EOF {
			return f, true, nil
		} else if err != nil {
			return Field{}, false, err
		}
		if c == r.dialect.Delimiter {
			return f, false, nil
		}
		sep, err := r.isSeparator(c)
		if err != nil {
			return Field{}, false, err
		}
		if sep {
			return f, true, nil
		}
		if !r.isSpace(c) {
			return Field{}, false, fmt.Errorf("%w: %q", ErrTrailingQuote, c)
		}
		c, err = r.readRune()
	}
}

func (r *Reader) readEscape(esc rune) error {
	c, err := r.readRune()
	if err == io.EOF {
		return ErrTrailingEscape
	} else if err != nil {
		return err
	}
	switch c {
	case 'r':
		r.value.WriteByte('\r')
	case 'n':
		r.value.WriteByte('\n')
	case 't':
		r.value.WriteByte('\t')
	case 'b':
		r.value.WriteByte('\b')
	case 'f':
		r.value.WriteByte('\f')
	case '\r', '\n', r.dialect.Delimiter, r.dialect.Quote, esc:
		r.value.WriteRune(c)
	default:
		r.value.WriteRune(esc)
		r.value.WriteRune(c)
	}
	return nil
}

func (r *Reader) unquotedField() Field {
	v := r.value.String()
	if r.dialect.IgnoreSurroundingSpaces {
		v = strings.TrimRight(v, " \t")
	}
	if r.dialect.NullString != "" && v == r.dialect.NullString {
		return Field{Null: true}
	}
	return Field{Value: v}
}

func (r *Reader) skipLine() error {
	for {
		c, err := r.readRune()
		if err != nil {
			return err
		}
		sep, err := r.isSeparator(c)
		if err != nil {
			return err
		}
		if sep {
			r.line++
			return nil
		}
	}
}

// isSeparator reports whether c starts a record separator, consuming the
// remainder of the separator if so.
func (r *Reader) isSeparator(c rune) (bool, error) {
	switch sep := r.dialect.RecordSeparator; sep {
	case "", "\r\n":
		if c == '\n' {
			return true, nil
		}
		if c != '\r' {
			return false, nil
		}
		next, err := r.readRune()
		if err == io.EOF {
			return true, nil
		} else if err != nil {
			return false, err
		}
		if next != '\n' {
			r.unreadRune(next)
		}
		return true, nil
	default:
		first, size := utf8.DecodeRuneInString(sep)
		if c != first {
			return false, nil
		}
		rest := sep[size:]
		if rest == "" {
			return true, nil
		}
		b, err := r.br.Peek(len(rest))
		if err != nil && err != io.EOF {
			return false, err
		}
		if string(b) != rest {
			return false, nil
		}
		_, err = r.br.Discard(len(rest))
		return true, err
	}
}

func (r *Reader) readRune() (rune, error) {
	if r.hasPending {
		r.hasPending = false
		return r.pending, nil
	}
	c, _, err := r.br.ReadRune()
	return c, err
}

func (r *Reader) unreadRune(c rune) {
	r.pending = c
	r.hasPending = true
}

func (r *Reader) isSpace(c rune) bool {
	return (c == ' ' || c == '\t') && c != r.dialect.Delimiter
}
