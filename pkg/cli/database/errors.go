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

package database

import (
	"fmt"

	"github.com/pkg/errors"
)

// StorageError is a failure of the local database. It is fatal to the
// operation it occurred in but leaves the stored data consistent, because
// every multi-row change runs in a transaction.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap annotates the given error as a StorageError. It returns nil if err is nil
// and leaves errors that are already storage errors untouched.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	if IsStorageError(err) {
		return err
	}

	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether any error in the chain is a StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
