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

	"github.com/pkg/errors"
)

// ErrConflictNotFound is an error for a missing conflict
var ErrConflictNotFound = errors.New("conflict not found")

// Conflict is an operation that the server definitively rejected. It is
// kept until the user acknowledges it.
type Conflict struct {
	UUID       string
	EntityType string
	EntityID   string
	Operation  string
	Payload    string
	StatusCode int
	Reason     string
	DetectedAt int64
}

const conflictColumns = `uuid, entity_type, entity_id, operation, payload, status_code, reason, detected_at`

func scanConflict(s scanner) (Conflict, error) {
	var c Conflict
	err := s.Scan(&c.UUID, &c.EntityType, &c.EntityID, &c.Operation, &c.Payload, &c.StatusCode, &c.Reason, &c.DetectedAt)

	return c, err
}

// Insert inserts the conflict
func (c Conflict) Insert(db *DB) error {
	_, err := db.Exec(`INSERT INTO conflicts (`+conflictColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UUID, c.EntityType, c.EntityID, c.Operation, c.Payload, c.StatusCode, c.Reason, c.DetectedAt)
	if err != nil {
		return errors.Wrapf(err, "inserting conflict %s", c.UUID)
	}

	return nil
}

// GetConflict returns the conflict with the given uuid
func GetConflict(db *DB, uuid string) (Conflict, error) {
	c, err := scanConflict(db.QueryRow("SELECT "+conflictColumns+" FROM conflicts WHERE uuid = ?", uuid))
	if err == sql.ErrNoRows {
		return c, ErrConflictNotFound
	} else if err != nil {
		return c, errors.Wrapf(err, "finding conflict %s", uuid)
	}

	return c, nil
}

// ListConflicts returns all unacknowledged conflicts, oldest first
func ListConflicts(db *DB) ([]Conflict, error) {
	rows, err := db.Query("SELECT " + conflictColumns + " FROM conflicts ORDER BY detected_at ASC, uuid ASC")
	if err != nil {
		return nil, errors.Wrap(err, "querying conflicts")
	}
	defer rows.Close()

	ret := []Conflict{}
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning a conflict")
		}

		ret = append(ret, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating conflicts")
	}

	return ret, nil
}

// CountConflicts returns the number of unacknowledged conflicts
func CountConflicts(db *DB) (int, error) {
	var count int
	if err := db.QueryRow("SELECT count(*) FROM conflicts").Scan(&count); err != nil {
		return 0, errors.Wrap(err, "counting conflicts")
	}

	return count, nil
}

// CountEntityConflicts returns the number of unacknowledged conflicts of an entity
func CountEntityConflicts(db *DB, entityID string) (int, error) {
	var count int
	if err := db.QueryRow("SELECT count(*) FROM conflicts WHERE entity_id = ?", entityID).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "counting conflicts of %s", entityID)
	}

	return count, nil
}

// DeleteConflict removes the conflict
func DeleteConflict(db *DB, uuid string) error {
	if _, err := db.Exec("DELETE FROM conflicts WHERE uuid = ?", uuid); err != nil {
		return errors.Wrapf(err, "deleting conflict %s", uuid)
	}

	return nil
}

// ResolveConflictID returns the full uuid of the conflict whose uuid is or
// starts with the given string
func ResolveConflictID(db *DB, prefix string) (string, error) {
	return resolveID(db, "conflicts", prefix, ErrConflictNotFound)
}
