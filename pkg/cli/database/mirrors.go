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
	"strings"

	"github.com/pkg/errors"
)

// ErrMirrorNotFound is an error for a missing entity mirror
var ErrMirrorNotFound = errors.New("record not found")

// Mirror is a cached, possibly stale, copy of a server entity. Data holds
// the entity fields as a JSON object with every outstanding local operation
// applied. ServerData is the last copy confirmed by the server, empty if the
// server has never confirmed the entity.
type Mirror struct {
	UUID           string
	EntityType     string
	Data           string
	ServerData     string
	ModifiedAt     int64
	Deleted        bool
	PendingSync    bool
	Conflicted     bool
	ConflictReason string
	UpdatedAt      int64
}

const mirrorColumns = `uuid, entity_type, data, server_data, modified_at, deleted, pending_sync, conflicted, conflict_reason, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMirror(s scanner) (Mirror, error) {
	var m Mirror
	err := s.Scan(&m.UUID, &m.EntityType, &m.Data, &m.ServerData, &m.ModifiedAt, &m.Deleted, &m.PendingSync, &m.Conflicted, &m.ConflictReason, &m.UpdatedAt)

	return m, err
}

// Insert inserts a new mirror
func (m Mirror) Insert(db *DB) error {
	_, err := db.Exec(`INSERT INTO mirrors (`+mirrorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UUID, m.EntityType, m.Data, m.ServerData, m.ModifiedAt, m.Deleted, m.PendingSync, m.Conflicted, m.ConflictReason, m.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "inserting mirror %s", m.UUID)
	}

	return nil
}

// Update updates every column of the mirror with the given uuid
func (m Mirror) Update(db *DB) error {
	_, err := db.Exec(`UPDATE mirrors
		SET entity_type = ?, data = ?, server_data = ?, modified_at = ?, deleted = ?, pending_sync = ?, conflicted = ?, conflict_reason = ?, updated_at = ?
		WHERE uuid = ?`,
		m.EntityType, m.Data, m.ServerData, m.ModifiedAt, m.Deleted, m.PendingSync, m.Conflicted, m.ConflictReason, m.UpdatedAt, m.UUID)
	if err != nil {
		return errors.Wrapf(err, "updating mirror %s", m.UUID)
	}

	return nil
}

// Upsert inserts the mirror or overwrites the existing one with the same uuid
func (m Mirror) Upsert(db *DB) error {
	_, err := db.Exec(`INSERT INTO mirrors (`+mirrorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			entity_type = excluded.entity_type,
			data = excluded.data,
			server_data = excluded.server_data,
			modified_at = excluded.modified_at,
			deleted = excluded.deleted,
			pending_sync = excluded.pending_sync,
			conflicted = excluded.conflicted,
			conflict_reason = excluded.conflict_reason,
			updated_at = excluded.updated_at`,
		m.UUID, m.EntityType, m.Data, m.ServerData, m.ModifiedAt, m.Deleted, m.PendingSync, m.Conflicted, m.ConflictReason, m.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "upserting mirror %s", m.UUID)
	}

	return nil
}

// Expunge hard-deletes the mirror from the database
func (m Mirror) Expunge(db *DB) error {
	if _, err := db.Exec("DELETE FROM mirrors WHERE uuid = ?", m.UUID); err != nil {
		return errors.Wrapf(err, "expunging mirror %s", m.UUID)
	}

	return nil
}

// GetMirror returns the mirror with the given uuid. It returns
// ErrMirrorNotFound if no such mirror exists.
func GetMirror(db *DB, uuid string) (Mirror, error) {
	row := db.QueryRow("SELECT "+mirrorColumns+" FROM mirrors WHERE uuid = ?", uuid)

	m, err := scanMirror(row)
	if err == sql.ErrNoRows {
		return m, ErrMirrorNotFound
	} else if err != nil {
		return m, errors.Wrapf(err, "finding mirror %s", uuid)
	}

	return m, nil
}

// ListMirrorsParams is the parameters for listing mirrors
type ListMirrorsParams struct {
	// EntityType narrows down the result to a single entity type if not empty
	EntityType     string
	IncludeDeleted bool
}

// ListMirrors returns mirrors ordered by entity type and local update time
func ListMirrors(db *DB, p ListMirrorsParams) ([]Mirror, error) {
	query := "SELECT " + mirrorColumns + " FROM mirrors WHERE 1 = 1"
	args := []interface{}{}

	if p.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, p.EntityType)
	}
	if !p.IncludeDeleted {
		query += " AND deleted = ?"
		args = append(args, false)
	}
	query += " ORDER BY entity_type ASC, updated_at ASC, uuid ASC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying mirrors")
	}
	defer rows.Close()

	ret := []Mirror{}
	for rows.Next() {
		m, err := scanMirror(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning a mirror")
		}

		ret = append(ret, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating mirrors")
	}

	return ret, nil
}

// MarkConflicted flags the mirror as conflicted with the given reason
func MarkConflicted(db *DB, uuid, reason string) error {
	if _, err := db.Exec("UPDATE mirrors SET conflicted = ?, conflict_reason = ? WHERE uuid = ?", true, reason, uuid); err != nil {
		return errors.Wrapf(err, "flagging mirror %s as conflicted", uuid)
	}

	return nil
}

// ClearConflicted removes the conflicted flag from the mirror
func ClearConflicted(db *DB, uuid string) error {
	if _, err := db.Exec("UPDATE mirrors SET conflicted = ?, conflict_reason = '' WHERE uuid = ?", false, uuid); err != nil {
		return errors.Wrapf(err, "clearing conflict of mirror %s", uuid)
	}

	return nil
}

// SetPendingSync sets the pending_sync flag of the mirror
func SetPendingSync(db *DB, uuid string, pending bool) error {
	if _, err := db.Exec("UPDATE mirrors SET pending_sync = ? WHERE uuid = ?", pending, uuid); err != nil {
		return errors.Wrapf(err, "setting pending_sync of mirror %s", uuid)
	}

	return nil
}

// ErrAmbiguousID is an error for an id prefix that matches more than one row
var ErrAmbiguousID = errors.New("the id prefix matches more than one record")

// resolveID returns the full uuid of the row of the table whose uuid is or
// starts with the given prefix
func resolveID(db *DB, table, prefix string, notFound error) (string, error) {
	if prefix == "" || strings.ContainsAny(prefix, "%_") {
		return "", notFound
	}

	rows, err := db.Query("SELECT uuid FROM "+table+" WHERE uuid LIKE ? LIMIT 2", prefix+"%")
	if err != nil {
		return "", errors.Wrapf(err, "querying %s ids", table)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", errors.Wrap(err, "scanning an id")
		}

		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", errors.Wrapf(err, "iterating %s ids", table)
	}

	switch len(ids) {
	case 0:
		return "", notFound
	case 1:
		return ids[0], nil
	}

	for _, id := range ids {
		if id == prefix {
			return id, nil
		}
	}

	return "", ErrAmbiguousID
}

// ResolveMirrorID returns the full uuid of the mirror whose uuid is or
// starts with the given string
func ResolveMirrorID(db *DB, prefix string) (string, error) {
	return resolveID(db, "mirrors", prefix, ErrMirrorNotFound)
}

// SetServerCopy records a newer server copy of the mirror without touching
// its locally applied data
func SetServerCopy(db *DB, uuid, data string, modifiedAt int64) error {
	if _, err := db.Exec("UPDATE mirrors SET server_data = ?, modified_at = ? WHERE uuid = ?", data, modifiedAt, uuid); err != nil {
		return errors.Wrapf(err, "setting server copy of mirror %s", uuid)
	}

	return nil
}
