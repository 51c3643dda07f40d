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

package helpers

import (
	"testing"

	"github.com/dnote/herplog/pkg/assert"
	"github.com/pkg/errors"
)

func TestValidateUUID(t *testing.T) {
	testCases := []struct {
		input    string
		expected bool
	}{
		{"a1b2c3d4-e5f6-4789-a012-3456789abcde", true},
		{"A1B2C3D4-E5F6-4789-A012-3456789ABCDE", true},
		{"urn:uuid:a1b2c3d4-e5f6-4789-a012-3456789abcde", false},
		{"{a1b2c3d4-e5f6-4789-a012-3456789abcde}", false},
		{"a1b2c3d4e5f64789a0123456789abcde", false},
		{"not-a-uuid", false},
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, ValidateUUID(tc.input), tc.expected, "result mismatch")
		})
	}
}

func TestGenUUID(t *testing.T) {
	got, err := GenUUID()
	if err != nil {
		t.Fatal(errors.Wrap(err, "generating uuid"))
	}

	assert.Equal(t, ValidateUUID(got), true, "generated uuid should be valid")
}
