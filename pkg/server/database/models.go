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
	"time"
)

// Model is the base model definition
type Model struct {
	ID        int       `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record is a synchronized record of any type. Deleted records are kept as
// tombstones so that clients fetching changes learn about the deletion.
type Record struct {
	Model
	UUID string `json:"uuid" gorm:"uniqueIndex;type:text;not null"`
	Type string `json:"type" gorm:"index;not null"`
	// Data is the JSON object holding the fields of the record
	Data string `json:"data" gorm:"type:text;not null"`
	// ModifiedAt is the server time of the last change in milliseconds. It is
	// strictly increasing across all records.
	ModifiedAt int64 `json:"modified_at" gorm:"index;not null"`
	Deleted    bool  `json:"deleted" gorm:"default:false"`
}

// IdempotencyKey remembers a write that has been applied so that a retried
// request is not applied twice
type IdempotencyKey struct {
	Model
	Key        string `gorm:"uniqueIndex;not null"`
	RecordUUID string `gorm:"index;not null"`
}
