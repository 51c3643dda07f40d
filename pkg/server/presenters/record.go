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
	"time"

	"github.com/dnote/herplog/pkg/server/database"
)

// formatTS keeps the timestamps of the responses in UTC with a microsecond
// precision, which is what postgres stores
func formatTS(ts time.Time) time.Time {
	return ts.UTC().Round(time.Microsecond)
}

// Record is a result of PresentRecord
type Record struct {
	UUID       string          `json:"uuid"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	ModifiedAt int64           `json:"modified_at"`
	Deleted    bool            `json:"deleted"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PresentRecord presents record
func PresentRecord(r database.Record) Record {
	data := r.Data
	if data == "" {
		data = "{}"
	}

	return Record{
		UUID:       r.UUID,
		Type:       r.Type,
		Data:       json.RawMessage(data),
		ModifiedAt: r.ModifiedAt,
		Deleted:    r.Deleted,
		CreatedAt:  formatTS(r.CreatedAt),
	}
}

// PresentRecords presents records
func PresentRecords(records []database.Record) []Record {
	ret := []Record{}

	for _, r := range records {
		ret = append(ret, PresentRecord(r))
	}

	return ret
}
