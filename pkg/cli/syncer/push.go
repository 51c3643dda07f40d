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

package syncer

import (
	"context"

	"github.com/dnote/herplog/pkg/cli/client"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/dnote/herplog/pkg/cli/records"
	"github.com/dnote/herplog/pkg/log"
	"github.com/pkg/errors"
)

// push sends queued operations until the queue yields nothing or the pass
// reaches its operation cap. An entity whose operation fails transiently is
// skipped for the rest of the pass so that its later operations are not
// sent out of order.
func (s *Syncer) push(ctx context.Context, result *Result) error {
	skip := map[string]bool{}
	processed := 0

	for processed < s.config.MaxOperationsPerPass {
		limit := s.config.BatchSize
		if rest := s.config.MaxOperationsPerPass - processed; rest < limit {
			limit = rest
		}

		batch, err := queue.DequeueNextBatch(s.db, limit, s.config.MaxOperationRetries, skip)
		if err != nil {
			return database.Wrap(err, "dequeueing operations")
		}
		if len(batch) == 0 {
			break
		}

		n, err := s.pushBatch(ctx, batch, skip, result)
		processed += n
		if err != nil {
			return err
		}
	}

	return nil
}

// pushBatch sends the claimed operations in order and returns the number of
// operations sent. Claimed operations that were not sent are released.
func (s *Syncer) pushBatch(ctx context.Context, batch []queue.Operation, skip map[string]bool, result *Result) (int, error) {
	sent := 0

	for i, op := range batch {
		if skip[op.EntityID] {
			if err := queue.Release(s.db, op.UUID); err != nil {
				s.releaseAll(batch[i:])
				return sent, database.Wrap(err, "releasing operation")
			}

			continue
		}

		if err := ctx.Err(); err != nil {
			s.releaseAll(batch[i:])
			return sent, errors.Wrap(err, "pushing operations")
		}

		sent++
		log.WithFields(log.Fields{
			"operationId": op.UUID,
			"entityType":  op.EntityType,
			"entityId":    op.EntityID,
			"operation":   op.Operation,
		}).Debug("sending operation")

		entity, sendErr := s.gateway.SendOperation(ctx, op)

		var err error
		switch {
		case sendErr == nil:
			err = s.applySuccess(op, entity)
			if err == nil {
				result.Pushed++
			}
		case client.IsRejection(sendErr):
			var rejection Rejection
			rejection, err = s.applyRejection(op, sendErr)
			if err == nil {
				result.Rejections = append(result.Rejections, rejection)
			}
		default:
			err = s.applyFailure(op, sendErr)
			skip[op.EntityID] = true
			result.Failed++
		}

		if err != nil {
			s.releaseAll(batch[i+1:])
			return sent, err
		}

		s.queueChanged()
	}

	return sent, nil
}

// releaseAll returns claimed operations to pending on a best effort basis.
// Anything left in flight is recovered at the next startup.
func (s *Syncer) releaseAll(ops []queue.Operation) {
	for _, op := range ops {
		if err := queue.Release(s.db, op.UUID); err != nil {
			log.WithFields(log.Fields{"operationId": op.UUID}).ErrorWrap(err, "releasing operation")
		}
	}
}

// rebase rebuilds the locally applied data of a mirror from a server copy
// and the outstanding operations of the entity
func rebase(m *database.Mirror, serverData string, serverDeleted bool, remaining []queue.Operation) error {
	if serverData == "" {
		serverData = "{}"
	}

	m.Data = serverData
	m.Deleted = serverDeleted
	for _, op := range remaining {
		if err := records.Apply(m, op); err != nil {
			return err
		}
	}
	m.PendingSync = len(remaining) > 0

	return nil
}

func (s *Syncer) applySuccess(op queue.Operation, entity client.Entity) error {
	err := database.RunInTx(s.db, func(tx *database.DB) error {
		if err := queue.MarkSucceeded(tx, op.UUID); err != nil {
			return err
		}

		remaining, err := queue.ListOutstanding(tx, op.EntityID)
		if err != nil {
			return err
		}

		m, err := database.GetMirror(tx, op.EntityID)
		if err == database.ErrMirrorNotFound {
			m = database.Mirror{UUID: op.EntityID, UpdatedAt: s.clock.Now().UnixNano()}
		} else if err != nil {
			return err
		}

		serverData := string(entity.Data)
		if len(entity.Data) == 0 || serverData == "null" {
			serverData = "{}"
		}

		m.EntityType = op.EntityType
		m.ServerData = serverData
		m.ModifiedAt = entity.ModifiedAt
		if err := rebase(&m, serverData, entity.Deleted, remaining); err != nil {
			return err
		}

		if m.Deleted && len(remaining) == 0 {
			return m.Expunge(tx)
		}

		return m.Upsert(tx)
	})
	if err != nil {
		return database.Wrap(err, "applying a confirmed operation")
	}

	return nil
}

func (s *Syncer) applyFailure(op queue.Operation, sendErr error) error {
	log.WithFields(log.Fields{
		"operationId": op.UUID,
		"entityId":    op.EntityID,
		"retryCount":  op.RetryCount + 1,
	}).Warn(sendErr.Error())

	if err := queue.MarkFailed(s.db, op.UUID, sendErr.Error()); err != nil {
		return database.Wrap(err, "marking operation as failed")
	}

	return nil
}

// applyRejection discards a rejected operation and surfaces it as a
// conflict. The server wins: a mirror the server has confirmed before is
// rebuilt from the last server copy and the remaining local operations.
func (s *Syncer) applyRejection(op queue.Operation, sendErr error) (Rejection, error) {
	rejection := Rejection{
		OperationID: op.UUID,
		EntityType:  op.EntityType,
		EntityID:    op.EntityID,
		Operation:   op.Operation,
		Reason:      sendErr.Error(),
	}
	if ge, ok := client.AsGatewayError(sendErr); ok {
		rejection.StatusCode = ge.StatusCode
		rejection.Reason = ge.Reason()
	}

	err := database.RunInTx(s.db, func(tx *database.DB) error {
		if err := queue.Discard(tx, op.UUID); err != nil {
			return err
		}

		c := database.Conflict{
			UUID:       op.UUID,
			EntityType: op.EntityType,
			EntityID:   op.EntityID,
			Operation:  op.Operation,
			Payload:    op.Payload,
			StatusCode: rejection.StatusCode,
			Reason:     rejection.Reason,
			DetectedAt: s.clock.Now().UnixNano(),
		}
		if err := c.Insert(tx); err != nil {
			return err
		}

		m, err := database.GetMirror(tx, op.EntityID)
		if err == database.ErrMirrorNotFound {
			return nil
		} else if err != nil {
			return err
		}

		remaining, err := queue.ListOutstanding(tx, op.EntityID)
		if err != nil {
			return err
		}

		if m.ModifiedAt > 0 {
			if err := rebase(&m, m.ServerData, false, remaining); err != nil {
				return err
			}
		} else {
			m.PendingSync = len(remaining) > 0
		}

		m.Conflicted = true
		m.ConflictReason = rejection.Reason

		return m.Update(tx)
	})
	if err != nil {
		return rejection, database.Wrap(err, "recording a rejected operation")
	}

	return rejection, nil
}
