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

package utils

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// GenerateUUID returns a uuid v4 in string
func GenerateUUID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "generating uuid")
	}

	return u.String(), nil
}

// SetFields sets top-level fields given as key=value on a JSON object. A
// value that parses as JSON is set as is; any other value is set as a
// string.
func SetFields(data string, fields []string) (string, error) {
	if data == "" {
		data = "{}"
	}

	for _, f := range fields {
		parts := strings.SplitN(f, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return "", errors.Errorf("invalid field '%s'. Use key=value", f)
		}

		key := gjson.Escape(parts[0])
		val := parts[1]

		var err error
		if val != "" && gjson.Valid(val) {
			data, err = sjson.SetRaw(data, key, val)
		} else {
			data, err = sjson.Set(data, key, val)
		}
		if err != nil {
			return "", errors.Wrapf(err, "setting %s", parts[0])
		}
	}

	return data, nil
}
