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
	"strconv"

	"github.com/dnote/herplog/pkg/cli/consts"
	"github.com/pkg/errors"
)

func checkpointKey(entityType string) string {
	return consts.SystemCheckpointPrefix + entityType
}

// GetCheckpoint returns the pull checkpoint of the given entity type in
// server milliseconds. It is 0 if the entity type has never been pulled.
func GetCheckpoint(db *DB, entityType string) (int64, error) {
	return GetSystemInt64(db, checkpointKey(entityType))
}

// AdvanceCheckpoint moves the pull checkpoint of the given entity type to
// ts if ts is ahead of the stored value. It reports whether it moved.
func AdvanceCheckpoint(db *DB, entityType string, ts int64) (bool, error) {
	current, err := GetCheckpoint(db, entityType)
	if err != nil {
		return false, errors.Wrap(err, "getting the current checkpoint")
	}
	if ts <= current {
		return false, nil
	}

	if err := UpsertSystem(db, checkpointKey(entityType), strconv.FormatInt(ts, 10)); err != nil {
		return false, errors.Wrap(err, "saving the checkpoint")
	}

	return true, nil
}
