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
	"github.com/dnote/herplog/pkg/log"
	"github.com/pkg/errors"
)

// pull merges remote changes of every configured entity type. A failed
// fetch does not stop the other entity types; a storage failure does.
func (s *Syncer) pull(ctx context.Context, result *Result) error {
	var firstErr error

	for _, entityType := range s.config.EntityTypes {
		err := s.pullType(ctx, entityType, result)
		if err == nil {
			continue
		}

		if database.IsStorageError(err) {
			return err
		}

		log.WithFields(log.Fields{"entityType": entityType}).ErrorWrap(err, "pulling changes")
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// pullType fetches and merges the changes of one entity type. The merge and
// the checkpoint move together in one transaction.
func (s *Syncer) pullType(ctx context.Context, entityType string, result *Result) error {
	since, err := database.GetCheckpoint(s.db, entityType)
	if err != nil {
		return database.Wrap(err, "getting checkpoint")
	}

	changes, err := s.gateway.FetchChangesSince(ctx, entityType, since)
	if err != nil {
		return errors.Wrapf(err, "fetching %s changes", entityType)
	}

	var merged, expunged, deferred int

	err = database.RunInTx(s.db, func(tx *database.DB) error {
		var maxModifiedAt int64

		for _, e := range changes.Records {
			if e.ModifiedAt > maxModifiedAt {
				maxModifiedAt = e.ModifiedAt
			}

			ok, err := s.mergeEntity(tx, entityType, e)
			if err != nil {
				return errors.Wrapf(err, "merging %s", e.UUID)
			}

			switch {
			case !ok:
				deferred++
			case e.Deleted:
				expunged++
			default:
				merged++
			}
		}

		if len(changes.Records) == 0 {
			return nil
		}

		checkpoint := maxModifiedAt
		if changes.ServerTime > 0 && changes.ServerTime < checkpoint {
			checkpoint = changes.ServerTime
		}
		if _, err := database.AdvanceCheckpoint(tx, entityType, checkpoint); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return database.Wrap(err, "merging changes")
	}

	result.Merged += merged
	result.Expunged += expunged
	result.Deferred += deferred

	log.WithFields(log.Fields{
		"entityType": entityType,
		"since":      since,
		"received":   len(changes.Records),
		"deferred":   deferred,
	}).Debug("pulled changes")

	return nil
}

// mergeEntity overwrites the mirror with the server copy. It reports false
// if the entity has outstanding local operations, in which case only the
// server copy kept for rebasing is refreshed.
func (s *Syncer) mergeEntity(tx *database.DB, entityType string, e client.Entity) (bool, error) {
	data := string(e.Data)
	if len(e.Data) == 0 || data == "null" {
		data = "{}"
	}

	outstanding, err := queue.HasOutstanding(tx, e.UUID)
	if err != nil {
		return false, err
	}
	if outstanding {
		if !e.Deleted {
			if err := database.SetServerCopy(tx, e.UUID, data, e.ModifiedAt); err != nil {
				return false, err
			}
		}

		return false, nil
	}

	if e.Deleted {
		return true, database.Mirror{UUID: e.UUID}.Expunge(tx)
	}

	m := database.Mirror{
		UUID:       e.UUID,
		EntityType: entityType,
		Data:       data,
		ServerData: data,
		ModifiedAt: e.ModifiedAt,
		UpdatedAt:  s.clock.Now().UnixNano(),
	}

	return true, m.Upsert(tx)
}
