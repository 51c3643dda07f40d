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
	"database/sql"
	"strconv"

	"github.com/pkg/errors"
)

// GetSystem scans the value of the given system key into dest. It returns
// sql.ErrNoRows if the key is not set.
func GetSystem(db *DB, key string, dest interface{}) error {
	err := db.QueryRow("SELECT value FROM system WHERE key = ?", key).Scan(dest)
	if err == sql.ErrNoRows {
		return err
	} else if err != nil {
		return errors.Wrapf(err, "finding system key %s", key)
	}

	return nil
}

// UpsertSystem sets the value of the given system key
func UpsertSystem(db *DB, key, val string) error {
	_, err := db.Exec(`INSERT INTO system (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, val)
	if err != nil {
		return errors.Wrapf(err, "setting system key %s", key)
	}

	return nil
}

// DeleteSystem removes the given system key
func DeleteSystem(db *DB, key string) error {
	if _, err := db.Exec("DELETE FROM system WHERE key = ?", key); err != nil {
		return errors.Wrapf(err, "deleting system key %s", key)
	}

	return nil
}

// GetSystemInt64 returns the integer value of the given system key, or 0
// if the key is not set
func GetSystemInt64(db *DB, key string) (int64, error) {
	var val string
	err := GetSystem(db, key, &val)
	if err == sql.ErrNoRows {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	ret, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing system key %s", key)
	}

	return ret, nil
}
