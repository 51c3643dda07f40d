/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package app

import (
	"fmt"

	"github.com/pkg/errors"
)

type appError string

func (e appError) Error() string {
	return string(e)
}

var (
	// ErrNotFound is an error for a record that does not exist or has been
	// deleted
	ErrNotFound appError = "not found"
	// ErrTypeMismatch is an error for a uuid taken by a record of another type
	ErrTypeMismatch appError = "the uuid belongs to a record of another type"
	// ErrInvalidUUID is an error for a malformed record uuid
	ErrInvalidUUID appError = "the uuid is not valid"
	// ErrInvalidType is an error for a malformed record type
	ErrInvalidType appError = "the type must start with a lowercase letter and contain only lowercase letters, digits and underscores"
	// ErrDataNotObject is an error for record data that is not a JSON object
	ErrDataNotObject appError = "the data must be a JSON object"
	// ErrInvalidPagination is an error for a malformed changes query
	ErrInvalidPagination appError = "page and per_page must be positive and since must not be negative"
)

// ValidationError is a record rejected by the rules of its type
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// IsValidationError reports whether any error in the chain is a
// ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
