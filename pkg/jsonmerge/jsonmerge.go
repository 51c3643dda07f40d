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

// Package jsonmerge applies shallow merge patches to JSON objects
package jsonmerge

import (
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrNotObject is returned when a document is not a JSON object
var ErrNotObject = errors.New("not a JSON object")

// IsObject reports whether s is a valid JSON object
func IsObject(s string) bool {
	return gjson.Valid(s) && gjson.Parse(s).IsObject()
}

// Merge applies the top-level fields of patch to the JSON object data.
// A null field removes the key. Nested objects are replaced, not merged.
func Merge(data, patch string) (string, error) {
	if data == "" {
		data = "{}"
	}
	if !IsObject(data) || !IsObject(patch) {
		return "", ErrNotObject
	}

	ret := data
	var err error

	gjson.Parse(patch).ForEach(func(key, value gjson.Result) bool {
		p := gjson.Escape(key.String())

		if value.Type == gjson.Null {
			ret, err = sjson.Delete(ret, p)
		} else {
			ret, err = sjson.SetRaw(ret, p, value.Raw)
		}

		return err == nil
	})
	if err != nil {
		return "", errors.Wrap(err, "applying patch")
	}

	return ret, nil
}
