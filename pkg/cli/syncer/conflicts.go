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
	"net/http"

	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/pkg/errors"
)

// Acknowledge dismisses a surfaced conflict. Once an entity has no
// conflicts left its mirror is no longer flagged. A mirror that the server
// does not know about, and that has no outstanding operation, is removed.
func Acknowledge(db *database.DB, conflictID string) error {
	err := database.RunInTx(db, func(tx *database.DB) error {
		c, err := database.GetConflict(tx, conflictID)
		if err != nil {
			return err
		}

		if err := database.DeleteConflict(tx, c.UUID); err != nil {
			return err
		}

		remaining, err := database.CountEntityConflicts(tx, c.EntityID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		m, err := database.GetMirror(tx, c.EntityID)
		if err == database.ErrMirrorNotFound {
			return nil
		} else if err != nil {
			return err
		}

		outstanding, err := queue.HasOutstanding(tx, c.EntityID)
		if err != nil {
			return err
		}

		gone := c.StatusCode == http.StatusNotFound || c.StatusCode == http.StatusGone
		if !outstanding && (m.ModifiedAt == 0 || gone) {
			return m.Expunge(tx)
		}

		return database.ClearConflicted(tx, c.EntityID)
	})
	if err != nil {
		return errors.Wrapf(err, "acknowledging conflict %s", conflictID)
	}

	return nil
}
