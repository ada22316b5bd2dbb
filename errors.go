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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyIterating is returned when a second iterator is requested
	// from a Source. Sources are single pass.
	ErrAlreadyIterating = errors.New("source is already being iterated")

	// ErrSourceClosed is returned when a closed Source is used.
	ErrSourceClosed = errors.New("source is closed")

	// ErrUnsupportedAction is returned when an action string does not name
	// a supported write action.
	ErrUnsupportedAction = errors.New("unsupported action")

	// ErrPathNotFound is returned when a JSON path does not resolve against
	// a document.
	ErrPathNotFound = errors.New("json path not found")

	// ErrFieldIndexOutOfRange is returned when the unique ID column of a CSV
	// record does not exist.
	ErrFieldIndexOutOfRange = errors.New("field index out of range")
)

// BulkFailureError is returned by BulkDispatcher.Dispatch when a bulk
// response reports failed operations. Earlier bulk requests of the same
// dispatch are not rolled back.
type BulkFailureError struct {
	// Index is the target index of the failed request.
	Index string

	// Failed holds the failed operations of the bulk request.
	Failed []BulkIndexerResponseItem
}

func (e *BulkFailureError) Error() string {
	return "bulk request failed: " + e.FailureMessage()
}

// FailureMessage returns a summary of all failed operations, one per
// line.
func (e *BulkFailureError) FailureMessage() string {
	var sb strings.Builder
	sb.WriteString("failure in bulk execution:")
	for _, item := range e.Failed {
		fmt.Fprintf(&sb, "\n[%d]: index [%s], id [%s], status [%d], message [%s: %s]",
			item.Position, item.Index, item.DocumentID, item.Status,
			item.Error.Type, item.Error.Reason,
		)
	}
	return sb.String()
}
