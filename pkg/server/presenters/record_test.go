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

package presenters

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dnote/herplog/pkg/assert"
	"github.com/dnote/herplog/pkg/server/database"
)

func TestPresentRecord(t *testing.T) {
	createdAt := time.Date(2025, 1, 15, 10, 30, 45, 123456789, time.UTC)

	input := database.Record{
		Model: database.Model{
			ID:        1,
			CreatedAt: createdAt,
		},
		UUID:       "a1b2c3d4-e5f6-4789-a012-3456789abcde",
		Type:       "weight",
		Data:       `{"reptile_id":"r1","grams":120}`,
		ModifiedAt: 1736937045123,
	}

	got := PresentRecord(input)

	assert.Equal(t, got.UUID, "a1b2c3d4-e5f6-4789-a012-3456789abcde", "UUID mismatch")
	assert.Equal(t, got.Type, "weight", "Type mismatch")
	assert.Equal(t, string(got.Data), `{"reptile_id":"r1","grams":120}`, "Data mismatch")
	assert.Equal(t, got.ModifiedAt, int64(1736937045123), "ModifiedAt mismatch")
	assert.Equal(t, got.Deleted, false, "Deleted mismatch")
	assert.Equal(t, got.CreatedAt, formatTS(createdAt), "CreatedAt mismatch")

	b, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshaling: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	data, ok := decoded["data"].(map[string]interface{})
	assert.Equal(t, ok, true, "data should be an object")
	assert.Equal(t, data["grams"], float64(120), "grams mismatch")
}

func TestPresentRecords(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got := PresentRecords(nil)

		b, err := json.Marshal(got)
		if err != nil {
			t.Fatalf("marshaling: %v", err)
		}
		assert.Equal(t, string(b), "[]", "empty records should be an array")
	})

	t.Run("tombstone", func(t *testing.T) {
		got := PresentRecords([]database.Record{
			{UUID: "u1", Type: "shed", Data: "", Deleted: true, ModifiedAt: 5},
		})

		assert.Equal(t, len(got), 1, "length mismatch")
		assert.Equal(t, string(got[0].Data), "{}", "data mismatch")
		assert.Equal(t, got[0].Deleted, true, "deleted mismatch")
	})
}
