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

// Package records implements optimistic local writes. A write updates the
// local mirror and enqueues the matching operation in one transaction.
package records

import (
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/dnote/herplog/pkg/cli/utils"
	"github.com/dnote/herplog/pkg/cli/validate"
	"github.com/dnote/herplog/pkg/clock"
	"github.com/pkg/errors"
)

// Writer performs local record writes
type Writer struct {
	DB          *database.DB
	Clock       clock.Clock
	EntityTypes []string
}

// New returns a new writer
func New(db *database.DB, c clock.Clock, entityTypes []string) *Writer {
	return &Writer{
		DB:          db,
		Clock:       c,
		EntityTypes: entityTypes,
	}
}

// write runs mutate against the current mirror and persists the result
// along with the operation in one transaction
func (w *Writer) write(operation string, mutate func(tx *database.DB) (database.Mirror, string, error)) (database.Mirror, error) {
	var m database.Mirror

	err := database.RunInTx(w.DB, func(tx *database.DB) error {
		var payload string
		var err error

		m, payload, err = mutate(tx)
		if err != nil {
			return err
		}

		op, err := queue.New(w.Clock, m.EntityType, m.UUID, operation, payload)
		if err != nil {
			return err
		}

		m.PendingSync = true
		m.UpdatedAt = w.Clock.Now().UnixNano()

		if operation == queue.OpCreate {
			err = m.Insert(tx)
		} else {
			err = m.Update(tx)
		}
		if err != nil {
			return database.Wrap(err, "writing mirror")
		}

		if _, err := queue.Enqueue(tx, op); err != nil {
			return database.Wrap(err, "enqueueing operation")
		}

		return nil
	})
	if err != nil {
		return database.Mirror{}, err
	}

	return m, nil
}

// Create creates a record of the given entity type with a client
// generated id and returns its mirror
func (w *Writer) Create(entityType, data string) (database.Mirror, error) {
	if err := validate.EntityType(entityType, w.EntityTypes); err != nil {
		return database.Mirror{}, invalid("type", err)
	}
	if err := validate.Payload(data); err != nil {
		return database.Mirror{}, invalid("data", err)
	}

	id, err := utils.GenerateUUID()
	if err != nil {
		return database.Mirror{}, errors.Wrap(err, "generating record id")
	}

	return w.write(queue.OpCreate, func(tx *database.DB) (database.Mirror, string, error) {
		m := database.Mirror{
			UUID:       id,
			EntityType: entityType,
			Data:       data,
		}

		return m, data, nil
	})
}

func getTarget(db *database.DB, id string) (database.Mirror, error) {
	m, err := database.GetMirror(db, id)
	if err == database.ErrMirrorNotFound {
		return m, invalid("id", ErrRecordNotFound)
	} else if err != nil {
		return m, database.Wrap(err, "finding record")
	}

	if m.Deleted {
		return m, invalid("id", ErrRecordDeleted)
	}

	return m, nil
}

// Update applies the patch to the record and returns the updated mirror
func (w *Writer) Update(id, patch string) (database.Mirror, error) {
	if err := validate.Patch(patch); err != nil {
		return database.Mirror{}, invalid("data", err)
	}

	return w.write(queue.OpUpdate, func(tx *database.DB) (database.Mirror, string, error) {
		m, err := getTarget(tx, id)
		if err != nil {
			return m, "", err
		}

		data, err := MergePatch(m.Data, patch)
		if err != nil {
			return m, "", invalid("data", err)
		}
		m.Data = data

		return m, patch, nil
	})
}

// Delete marks the record as deleted
func (w *Writer) Delete(id string) (database.Mirror, error) {
	return w.write(queue.OpDelete, func(tx *database.DB) (database.Mirror, string, error) {
		m, err := getTarget(tx, id)
		if err != nil {
			return m, "", err
		}

		m.Deleted = true

		return m, "", nil
	})
}
