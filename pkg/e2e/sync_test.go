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

package e2e

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/dnote/herplog/pkg/assert"
	cliDatabase "github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/dnote/herplog/pkg/server/database"
	"github.com/pkg/errors"
	"pgregory.net/rapid"
)

func countServerRecords(t *testing.T, ts testServer) int64 {
	var count int64
	if err := ts.DB.Model(&database.Record{}).Count(&count).Error; err != nil {
		t.Fatal(errors.Wrap(err, "counting server records"))
	}

	return count
}

func TestSync_CreateAndPull(t *testing.T) {
	ts := setupServer(t, "")
	a := setupDevice(t, ts, "")
	b := setupDevice(t, ts, "")

	r := a.create(t, "reptile", `{"name": "Noodle", "species": "ball python"}`)
	a.create(t, "weight", fmt.Sprintf(`{"reptile_id": "%s", "grams": 1250}`, r.UUID))

	result := a.sync(t)
	assert.Equal(t, result.Pushed, 2, "pushed mismatch")
	assert.Equal(t, countServerRecords(t, ts), int64(2), "server record count mismatch")

	pending, err := queue.CountPending(a.DB)
	if err != nil {
		t.Fatal(errors.Wrap(err, "counting pending"))
	}
	assert.Equal(t, pending, 0, "pending mismatch")

	result = b.sync(t)
	assert.Equal(t, result.Merged, 2, "merged mismatch")
	assertConverged(t, a.DB, b.DB)

	got, err := cliDatabase.GetMirror(b.DB, r.UUID)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting mirror"))
	}
	assert.Equal(t, got.EntityType, "reptile", "entityType mismatch")
	assert.Equal(t, got.PendingSync, false, "pendingSync mismatch")
}

func TestSync_UpdateAndDelete(t *testing.T) {
	ts := setupServer(t, "")
	a := setupDevice(t, ts, "")
	b := setupDevice(t, ts, "")

	r := a.create(t, "reptile", `{"name": "Noodle", "morph": "pastel"}`)
	s := a.create(t, "shed", fmt.Sprintf(`{"reptile_id": "%s", "complete": true}`, r.UUID))
	a.sync(t)
	b.sync(t)

	t.Run("update", func(t *testing.T) {
		if _, err := b.Writer.Update(r.UUID, `{"morph": null, "name": "Noodle II"}`); err != nil {
			t.Fatal(errors.Wrap(err, "updating"))
		}
		b.sync(t)
		a.sync(t)

		got, err := snapshot(a.DB)
		if err != nil {
			t.Fatal(errors.Wrap(err, "taking snapshot"))
		}
		assert.DeepEqual(t, got[r.UUID], map[string]interface{}{"name": "Noodle II"}, "data mismatch")
		assertConverged(t, a.DB, b.DB)
	})

	t.Run("delete", func(t *testing.T) {
		if _, err := a.Writer.Delete(s.UUID); err != nil {
			t.Fatal(errors.Wrap(err, "deleting"))
		}
		a.sync(t)
		result := b.sync(t)
		assert.Equal(t, result.Expunged, 1, "expunged mismatch")

		_, err := cliDatabase.GetMirror(b.DB, s.UUID)
		assert.Equal(t, err, cliDatabase.ErrMirrorNotFound, "mirror should be expunged")
		assertConverged(t, a.DB, b.DB)

		var rec database.Record
		if err := ts.DB.Where("uuid = ?", s.UUID).First(&rec).Error; err != nil {
			t.Fatal(errors.Wrap(err, "finding record"))
		}
		assert.Equal(t, rec.Deleted, true, "tombstone mismatch")
	})
}

func TestSync_Rejection(t *testing.T) {
	ts := setupServer(t, "")
	a := setupDevice(t, ts, "")

	m := a.create(t, "weight", `{"reptile_id": "noodle", "grams": -3}`)

	result := a.sync(t)
	assert.Equal(t, result.Pushed, 0, "pushed mismatch")
	assert.Equal(t, len(result.Rejections), 1, "rejection count mismatch")
	assert.Equal(t, result.Rejections[0].StatusCode, http.StatusUnprocessableEntity, "status code mismatch")
	assert.Equal(t, countServerRecords(t, ts), int64(0), "server record count mismatch")

	conflicts, err := cliDatabase.ListConflicts(a.DB)
	if err != nil {
		t.Fatal(errors.Wrap(err, "listing conflicts"))
	}
	assert.Equal(t, len(conflicts), 1, "conflict count mismatch")
	assert.Equal(t, conflicts[0].EntityID, m.UUID, "conflict entity mismatch")
	assert.Equal(t, strings.Contains(conflicts[0].Reason, "grams"), true, "reason should name the field")

	got, err := cliDatabase.GetMirror(a.DB, m.UUID)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting mirror"))
	}
	assert.Equal(t, got.Conflicted, true, "conflicted mismatch")
}

func TestSync_Unauthorized(t *testing.T) {
	ts := setupServer(t, "secret")
	a := setupDevice(t, ts, "wrong")

	a.create(t, "reptile", `{"name": "Noodle"}`)

	_, err := a.Syncer.PerformFullSync(context.Background())
	assert.NotEqual(t, err, nil, "error should not be nil")
	assert.Equal(t, countServerRecords(t, ts), int64(0), "server record count mismatch")

	// the operation stays queued for a later pass
	ops, err := queue.List(a.DB)
	if err != nil {
		t.Fatal(errors.Wrap(err, "listing operations"))
	}
	assert.Equal(t, len(ops), 1, "operation count mismatch")
	assert.Equal(t, ops[0].Status, queue.StatusFailed, "status mismatch")

	// a device with the right key goes through
	b := setupDevice(t, ts, "secret")
	b.create(t, "reptile", `{"name": "Pretzel"}`)
	result := b.sync(t)
	assert.Equal(t, result.Pushed, 1, "pushed mismatch")
}

func TestSync_ReplayedOperation(t *testing.T) {
	ts := setupServer(t, "")
	a := setupDevice(t, ts, "")

	m := a.create(t, "reptile", `{"name": "Noodle"}`)
	ops, err := queue.List(a.DB)
	if err != nil {
		t.Fatal(errors.Wrap(err, "listing operations"))
	}

	ctx := context.Background()
	first, err := a.Client.SendOperation(ctx, ops[0])
	if err != nil {
		t.Fatal(errors.Wrap(err, "sending"))
	}
	second, err := a.Client.SendOperation(ctx, ops[0])
	if err != nil {
		t.Fatal(errors.Wrap(err, "replaying"))
	}

	assert.Equal(t, second.UUID, m.UUID, "uuid mismatch")
	assert.Equal(t, second.ModifiedAt, first.ModifiedAt, "replay should not modify the record")
	assert.Equal(t, countServerRecords(t, ts), int64(1), "server record count mismatch")
}

func TestSync_ChangesOrder(t *testing.T) {
	ts := setupServer(t, "")
	a := setupDevice(t, ts, "")

	for i := 0; i < 5; i++ {
		a.create(t, "reptile", fmt.Sprintf(`{"name": "r%d"}`, i))
	}
	a.sync(t)

	changes, err := a.Client.FetchChangesSince(context.Background(), "reptile", 0)
	if err != nil {
		t.Fatal(errors.Wrap(err, "fetching changes"))
	}

	assert.Equal(t, len(changes.Records), 5, "record count mismatch")
	for i := 1; i < len(changes.Records); i++ {
		if changes.Records[i-1].ModifiedAt >= changes.Records[i].ModifiedAt {
			t.Errorf("changes are not strictly ordered at %d", i)
		}
	}
	last := changes.Records[len(changes.Records)-1]
	assert.Equal(t, changes.ServerTime >= last.ModifiedAt, true, "server time should cover the changes")
}

// TestSync_Convergence checks that any sequence of local writes, synced
// from one device, leaves a fresh device with the same records
func TestSync_Convergence(t *testing.T) {
	fields := []string{"prey", "note", "weight_g"}
	values := []string{`"mouse"`, `"rat"`, "12", "null", `{"live": false}`}

	rapid.Check(t, func(rt *rapid.T) {
		ts := setupServer(t, "")
		a := setupDevice(t, ts, "")
		b := setupDevice(t, ts, "")

		live := []string{}
		steps := rapid.IntRange(1, 12).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			action := rapid.IntRange(0, 3).Draw(rt, "action")

			switch {
			case action == 0 || len(live) == 0:
				m, err := a.Writer.Create("feeding", `{"reptile_id": "noodle"}`)
				if err != nil {
					rt.Fatalf("creating: %s", err)
				}
				live = append(live, m.UUID)
			case action == 3:
				idx := rapid.IntRange(0, len(live)-1).Draw(rt, "delete")
				if _, err := a.Writer.Delete(live[idx]); err != nil {
					rt.Fatalf("deleting: %s", err)
				}
				live = append(live[:idx], live[idx+1:]...)
			default:
				idx := rapid.IntRange(0, len(live)-1).Draw(rt, "update")
				field := rapid.SampledFrom(fields).Draw(rt, "field")
				value := rapid.SampledFrom(values).Draw(rt, "value")
				patch := fmt.Sprintf(`{"%s": %s}`, field, value)
				if _, err := a.Writer.Update(live[idx], patch); err != nil {
					rt.Fatalf("updating with %s: %s", patch, err)
				}
			}

			if rapid.Bool().Draw(rt, "sync") {
				if _, err := a.Syncer.PerformFullSync(context.Background()); err != nil {
					rt.Fatalf("syncing: %s", err)
				}
			}
		}

		if _, err := a.Syncer.PerformFullSync(context.Background()); err != nil {
			rt.Fatalf("syncing: %s", err)
		}
		if _, err := b.Syncer.PerformFullSync(context.Background()); err != nil {
			rt.Fatalf("pulling: %s", err)
		}

		diff, err := convergence(a.DB, b.DB)
		if err != nil {
			rt.Fatalf("comparing stores: %s", err)
		}
		if diff != "" {
			rt.Fatalf("stores did not converge (-a +b):\n%s", diff)
		}
	})
}
