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
	"github.com/dnote/herplog/pkg/cli/validate"
	"github.com/dnote/herplog/pkg/jsonmerge"
	"github.com/dnote/herplog/pkg/server/helpers"
	"github.com/tidwall/gjson"
)

// rule checks a field of the record data
type rule func(data gjson.Result) *ValidationError

func requireString(field string) rule {
	return func(data gjson.Result) *ValidationError {
		v := data.Get(gjson.Escape(field))
		if v.Type != gjson.String || v.String() == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}

		return nil
	}
}

func positiveNumber(field string) rule {
	return func(data gjson.Result) *ValidationError {
		v := data.Get(gjson.Escape(field))
		if v.Type != gjson.Number || v.Float() <= 0 {
			return &ValidationError{Field: field, Message: "must be a positive number"}
		}

		return nil
	}
}

// typeRules are the rules of the known record types. Records of other types
// only need to be JSON objects.
var typeRules = map[string][]rule{
	"reptile": {requireString("name")},
	"feeding": {requireString("reptile_id")},
	"weight":  {requireString("reptile_id"), positiveNumber("grams")},
	"shed":    {requireString("reptile_id")},
}

func validateType(recordType string) error {
	if err := validate.EntityTypeName(recordType); err != nil {
		return ErrInvalidType
	}

	return nil
}

func validateUUID(uuid string) error {
	if !helpers.ValidateUUID(uuid) {
		return ErrInvalidUUID
	}

	return nil
}

// validateData checks the data of a record against the rules of its type
func validateData(recordType, data string) error {
	if !jsonmerge.IsObject(data) {
		return ErrDataNotObject
	}

	parsed := gjson.Parse(data)
	for _, r := range typeRules[recordType] {
		if err := r(parsed); err != nil {
			return err
		}
	}

	return nil
}
