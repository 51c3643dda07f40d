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

// Package validate provides validation rules for local record writes
package validate

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ErrEntityTypeEmpty is an error for an empty entity type
var ErrEntityTypeEmpty = errors.New("The entity type is empty")

// ErrEntityTypeInvalid is an error for a malformed entity type
var ErrEntityTypeInvalid = errors.New("The entity type must start with a lowercase letter and contain only lowercase letters, digits and underscores, up to 32 characters")

// ErrEntityTypeUnknown is an error for an entity type that is not configured
var ErrEntityTypeUnknown = errors.New("The entity type is not configured")

// ErrPayloadNotObject is an error for a payload that is not a JSON object
var ErrPayloadNotObject = errors.New("The data must be a JSON object")

// ErrPatchEmpty is an error for an update without any field
var ErrPatchEmpty = errors.New("The update does not change any field")

// ErrEntityIDInvalid is an error for a malformed entity id
var ErrEntityIDInvalid = errors.New("The id is not a valid UUID")

var entityTypeRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// EntityTypeName validates the format of an entity type
func EntityTypeName(name string) error {
	if name == "" {
		return ErrEntityTypeEmpty
	}

	if !entityTypeRegex.MatchString(name) {
		return ErrEntityTypeInvalid
	}

	return nil
}

// EntityType validates an entity type against the format and the
// configured entity types
func EntityType(name string, configured []string) error {
	if err := EntityTypeName(name); err != nil {
		return err
	}

	for _, t := range configured {
		if t == name {
			return nil
		}
	}

	return ErrEntityTypeUnknown
}

// Payload validates that the data is a JSON object
func Payload(data string) error {
	if !gjson.Valid(data) {
		return ErrPayloadNotObject
	}

	if !gjson.Parse(data).IsObject() {
		return ErrPayloadNotObject
	}

	return nil
}

// Patch validates that the data is a JSON object with at least one field
func Patch(data string) error {
	if err := Payload(data); err != nil {
		return err
	}

	empty := true
	gjson.Parse(data).ForEach(func(key, value gjson.Result) bool {
		empty = false
		return false
	})
	if empty {
		return ErrPatchEmpty
	}

	return nil
}

// EntityID validates that the id is a UUID
func EntityID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrEntityIDInvalid
	}

	return nil
}
