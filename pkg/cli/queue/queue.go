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

// Package queue implements the durable log of local mutations that the
// remote has not confirmed yet. Operations of one entity leave the queue in
// the order they were enqueued.
package queue

import (
	"strings"

	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/utils"
	"github.com/dnote/herplog/pkg/clock"
	"github.com/pkg/errors"
)

// MaxOperationRetries is the default number of failed send attempts after
// which an operation stops being dequeued until it is retried manually
const MaxOperationRetries = 5

const (
	// OpCreate creates an entity with a full payload
	OpCreate = "create"
	// OpUpdate applies a partial patch to an entity
	OpUpdate = "update"
	// OpDelete deletes an entity
	OpDelete = "delete"
)

const (
	// StatusPending is an operation waiting to be sent
	StatusPending = "pending"
	// StatusInFlight is an operation claimed by a sync pass
	StatusInFlight = "in_flight"
	// StatusFailed is an operation whose last send attempt failed
	StatusFailed = "failed"
)

// Operation is an unconfirmed local mutation of one entity
type Operation struct {
	Seq        int64
	UUID       string
	EntityType string
	EntityID   string
	Operation  string
	Payload    string
	Status     string
	RetryCount int
	LastError  string
	CreatedAt  int64
}

// New returns a pending operation with a fresh id, stamped with the
// current time of the given clock
func New(c clock.Clock, entityType, entityID, operation, payload string) (Operation, error) {
	id, err := utils.GenerateUUID()
	if err != nil {
		return Operation{}, errors.Wrap(err, "generating operation id")
	}

	return Operation{
		UUID:       id,
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Payload:    payload,
		Status:     StatusPending,
		CreatedAt:  c.Now().UnixNano(),
	}, nil
}

const columns = "seq, uuid, entity_type, entity_id, operation, payload, status, retry_count, last_error, created_at"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(s scanner) (Operation, error) {
	var op Operation
	err := s.Scan(&op.Seq, &op.UUID, &op.EntityType, &op.EntityID, &op.Operation, &op.Payload, &op.Status, &op.RetryCount, &op.LastError, &op.CreatedAt)

	return op, err
}

func query(db *database.DB, q string, args ...interface{}) ([]Operation, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying operations")
	}
	defer rows.Close()

	ret := []Operation{}
	for rows.Next() {
		op, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning an operation")
		}

		ret = append(ret, op)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating operations")
	}

	return ret, nil
}

// Enqueue persists the operation. Callers that change a mirror along with
// it pass the transaction so that both are written or neither is.
func Enqueue(db *database.DB, op Operation) (Operation, error) {
	if op.Status == "" {
		op.Status = StatusPending
	}

	res, err := db.Exec(`INSERT INTO pending_operations
		(uuid, entity_type, entity_id, operation, payload, status, retry_count, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.UUID, op.EntityType, op.EntityID, op.Operation, op.Payload, op.Status, op.RetryCount, op.LastError, op.CreatedAt)
	if err != nil {
		return op, errors.Wrapf(err, "inserting operation %s", op.UUID)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return op, errors.Wrap(err, "getting the sequence number")
	}
	op.Seq = seq

	return op, nil
}

// eligible reports whether the operation can be claimed by a pass
func eligible(op Operation, maxRetries int) bool {
	switch op.Status {
	case StatusPending:
		return true
	case StatusFailed:
		return op.RetryCount < maxRetries
	}

	return false
}

// selectHeads returns the earliest outstanding operation of up to limit
// entities whose earliest operation can be claimed, ordered by seq
func selectHeads(tx *database.DB, limit, maxRetries int, skip map[string]bool) ([]Operation, error) {
	q := "SELECT " + columns + ` FROM pending_operations AS p
		WHERE p.seq = (SELECT MIN(h.seq) FROM pending_operations AS h WHERE h.entity_id = p.entity_id)
		AND (p.status = ? OR (p.status = ? AND p.retry_count < ?))`
	args := []interface{}{StatusPending, StatusFailed, maxRetries}

	if len(skip) > 0 {
		marks := make([]string, 0, len(skip))
		for id := range skip {
			marks = append(marks, "?")
			args = append(args, id)
		}

		q += " AND p.entity_id NOT IN (" + strings.Join(marks, ", ") + ")"
	}

	q += " ORDER BY p.seq ASC LIMIT ?"
	args = append(args, limit)

	return query(tx, q, args...)
}

// DequeueNextBatch claims up to limit operations and marks them in flight.
// Entities are ordered by their earliest outstanding operation and the
// operations of one entity are contiguous, in the order they were enqueued.
// An entity is considered from its earliest outstanding operation only, so
// an entity whose head is in flight or has failed maxRetries times yields
// nothing, and an entity contributes operations up to the first one that
// cannot be claimed. Entities in skip are excluded. A maxRetries below 1
// means MaxOperationRetries.
func DequeueNextBatch(db *database.DB, limit, maxRetries int, skip map[string]bool) ([]Operation, error) {
	if limit <= 0 {
		return []Operation{}, nil
	}
	if maxRetries < 1 {
		maxRetries = MaxOperationRetries
	}

	var ret []Operation

	err := database.RunInTx(db, func(tx *database.DB) error {
		// every entity contributes at least its head, so limit heads suffice
		heads, err := selectHeads(tx, limit, maxRetries, skip)
		if err != nil {
			return err
		}

		ret = []Operation{}
		for _, head := range heads {
			if len(ret) == limit {
				break
			}

			ops, err := ListOutstanding(tx, head.EntityID)
			if err != nil {
				return err
			}

			for _, op := range ops {
				if len(ret) == limit || !eligible(op, maxRetries) {
					break
				}

				ret = append(ret, op)
			}
		}

		for i := range ret {
			if _, err := tx.Exec("UPDATE pending_operations SET status = ? WHERE uuid = ?", StatusInFlight, ret[i].UUID); err != nil {
				return errors.Wrapf(err, "claiming operation %s", ret[i].UUID)
			}
			ret[i].Status = StatusInFlight
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "dequeueing operations")
	}

	return ret, nil
}

// MarkSucceeded removes the operation confirmed by the remote
func MarkSucceeded(db *database.DB, id string) error {
	if _, err := db.Exec("DELETE FROM pending_operations WHERE uuid = ?", id); err != nil {
		return errors.Wrapf(err, "deleting operation %s", id)
	}

	return nil
}

// MarkFailed records a failed send attempt of the operation
func MarkFailed(db *database.DB, id string, reason string) error {
	_, err := db.Exec(`UPDATE pending_operations
		SET status = ?, retry_count = retry_count + 1, last_error = ?
		WHERE uuid = ?`, StatusFailed, reason, id)
	if err != nil {
		return errors.Wrapf(err, "marking operation %s as failed", id)
	}

	return nil
}

// Release returns an in-flight operation to pending without counting an attempt
func Release(db *database.DB, id string) error {
	_, err := db.Exec("UPDATE pending_operations SET status = ? WHERE uuid = ? AND status = ?", StatusPending, id, StatusInFlight)
	if err != nil {
		return errors.Wrapf(err, "releasing operation %s", id)
	}

	return nil
}

// Discard removes an operation that the remote definitively rejected
func Discard(db *database.DB, id string) error {
	if _, err := db.Exec("DELETE FROM pending_operations WHERE uuid = ?", id); err != nil {
		return errors.Wrapf(err, "discarding operation %s", id)
	}

	return nil
}

// CountPending returns the number of operations waiting to be sent or being sent
func CountPending(db *database.DB) (int, error) {
	var count int
	err := db.QueryRow("SELECT count(*) FROM pending_operations WHERE status IN (?, ?)", StatusPending, StatusInFlight).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "counting pending operations")
	}

	return count, nil
}

// CountFailed returns the number of operations whose last attempt failed
func CountFailed(db *database.DB) (int, error) {
	var count int
	err := db.QueryRow("SELECT count(*) FROM pending_operations WHERE status = ?", StatusFailed).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "counting failed operations")
	}

	return count, nil
}

// RetryAllFailed resets every failed operation to pending with a fresh
// retry budget and returns the number of operations reset
func RetryAllFailed(db *database.DB) (int64, error) {
	res, err := db.Exec(`UPDATE pending_operations
		SET status = ?, retry_count = 0, last_error = ''
		WHERE status = ?`, StatusPending, StatusFailed)
	if err != nil {
		return 0, errors.Wrap(err, "resetting failed operations")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting reset operations")
	}

	return n, nil
}

// RecoverInFlight returns operations left in flight by an interrupted
// process to pending and returns the number of operations recovered
func RecoverInFlight(db *database.DB) (int64, error) {
	res, err := db.Exec("UPDATE pending_operations SET status = ? WHERE status = ?", StatusPending, StatusInFlight)
	if err != nil {
		return 0, errors.Wrap(err, "recovering in-flight operations")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting recovered operations")
	}

	return n, nil
}

// HasOutstanding reports whether the entity has any unconfirmed operation
func HasOutstanding(db *database.DB, entityID string) (bool, error) {
	var count int
	if err := db.QueryRow("SELECT count(*) FROM pending_operations WHERE entity_id = ?", entityID).Scan(&count); err != nil {
		return false, errors.Wrapf(err, "counting operations of %s", entityID)
	}

	return count > 0, nil
}

// ListOutstanding returns the unconfirmed operations of the entity in the
// order they were enqueued. created_at comes from the wall clock and can go
// backward, so the order follows seq.
func ListOutstanding(db *database.DB, entityID string) ([]Operation, error) {
	return query(db, "SELECT "+columns+" FROM pending_operations WHERE entity_id = ? ORDER BY seq ASC", entityID)
}

// List returns every unconfirmed operation in the order they were enqueued
func List(db *database.DB) ([]Operation, error) {
	return query(db, "SELECT "+columns+" FROM pending_operations ORDER BY seq ASC")
}
