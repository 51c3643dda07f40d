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
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dnote/herplog/pkg/assert"
	"github.com/dnote/herplog/pkg/cli/consts"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/pkg/errors"
)

func TestDelay(t *testing.T) {
	config := DefaultConfig(nil)

	testCases := []struct {
		failures int
		expected time.Duration
	}{
		{failures: 0, expected: time.Second},
		{failures: 1, expected: time.Second},
		{failures: 2, expected: 2 * time.Second},
		{failures: 3, expected: 4 * time.Second},
		{failures: 4, expected: 8 * time.Second},
		{failures: 9, expected: 256 * time.Second},
		{failures: 10, expected: 5 * time.Minute},
		{failures: 64, expected: 5 * time.Minute},
	}

	for _, tc := range testCases {
		assert.Equal(t, Delay(config, tc.failures), tc.expected, fmt.Sprintf("delay mismatch for %d failures", tc.failures))
	}
}

func TestOfflineCreateThenSync(t *testing.T) {
	env := setupEnv(t)

	m, err := env.writer.Create("weight", `{"reptile_id":"r1","grams":120}`)
	if err != nil {
		t.Fatal(err)
	}

	// offline
	env.gateway.sendErr = func(op queue.Operation) error {
		return transient("dial tcp: connection refused")
	}
	env.gateway.fetchErr = func(entityType string) error {
		return transient("dial tcp: connection refused")
	}

	result, err := env.syncer.PerformFullSync(context.Background())
	assert.NotEqual(t, err, nil, "offline pass should fail")
	assert.Equal(t, result.Failed, 1, "failed count mismatch")

	ops := mustListOps(t, env.db)
	assert.Equalf(t, len(ops), 1, "operation count mismatch")
	assert.Equal(t, ops[0].Status, queue.StatusFailed, "status mismatch")
	assert.Equal(t, ops[0].RetryCount, 1, "retry count mismatch")
	assert.Equal(t, ops[0].LastError, "transient: dial tcp: connection refused", "last error mismatch")

	got := mustGetMirror(t, env.db, m.UUID)
	assert.Equal(t, got.PendingSync, true, "mirror should still be pending")
	assert.Equal(t, mustCheckpoint(t, env.db, "weight"), int64(0), "checkpoint should not move")

	// online
	env.gateway.sendErr = nil
	env.gateway.fetchErr = nil

	result, err = env.syncer.PerformFullSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, result.Pushed, 1, "pushed count mismatch")
	assert.Equal(t, len(mustListOps(t, env.db)), 0, "queue should be empty")

	server, ok := env.gateway.get(m.UUID)
	assert.Equalf(t, ok, true, "server should have the record")

	got = mustGetMirror(t, env.db, m.UUID)
	assert.Equal(t, got.PendingSync, false, "pending_sync mismatch")
	assert.Equal(t, got.ModifiedAt, server.ModifiedAt, "modified_at mismatch")
	assert.Equal(t, got.Data, `{"reptile_id":"r1","grams":120}`, "data mismatch")
	assert.Equal(t, env.syncer.RetryCount(), 0, "retry count should reset after success")
	assert.Equal(t, mustCheckpoint(t, env.db, "weight"), server.ModifiedAt, "checkpoint mismatch")
}

func TestTwoQuickEdits(t *testing.T) {
	env := setupEnv(t)

	m, err := env.writer.Create("reptile", `{"name":"Noodle","morph":"normal"}`)
	if err != nil {
		t.Fatal(err)
	}
	env.clock.Add(time.Millisecond)
	if _, err := env.writer.Update(m.UUID, `{"morph":"albino"}`); err != nil {
		t.Fatal(err)
	}
	env.clock.Add(time.Millisecond)
	if _, err := env.writer.Update(m.UUID, `{"weight_class":"adult"}`); err != nil {
		t.Fatal(err)
	}

	ops := mustListOps(t, env.db)

	if _, err := env.syncer.PerformFullSync(context.Background()); err != nil {
		t.Fatal(err)
	}

	assert.DeepEqual(t, env.gateway.sentIDs(), []string{ops[0].UUID, ops[1].UUID, ops[2].UUID}, "send order mismatch")
	assert.Equal(t, env.gateway.sent[2].Payload, `{"weight_class":"adult"}`, "second edit should be sent as a patch")

	server, _ := env.gateway.get(m.UUID)
	assert.Equal(t, string(server.Data), `{"name":"Noodle","morph":"albino","weight_class":"adult"}`, "server data mismatch")

	got := mustGetMirror(t, env.db, m.UUID)
	assert.Equal(t, got.Data, string(server.Data), "mirror data mismatch")
	assert.Equal(t, got.PendingSync, false, "pending_sync mismatch")
}

func TestEditsSurviveClockStepBack(t *testing.T) {
	env := setupEnv(t)

	env.clock.SetNow(time.Unix(1000, 0))
	m, err := env.writer.Create("reptile", `{"name":"Noodle"}`)
	if err != nil {
		t.Fatal(err)
	}

	// the wall clock is corrected backward before the next edit
	env.clock.SetNow(time.Unix(900, 0))
	if _, err := env.writer.Update(m.UUID, `{"name":"Noodle2"}`); err != nil {
		t.Fatal(err)
	}

	ops := mustListOps(t, env.db)

	result, err := env.syncer.PerformFullSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, len(result.Rejections), 0, "rejection count mismatch")
	assert.DeepEqual(t, env.gateway.sentIDs(), []string{ops[0].UUID, ops[1].UUID}, "send order mismatch")
	assert.Equal(t, ops[0].Operation, queue.OpCreate, "first operation mismatch")

	server, _ := env.gateway.get(m.UUID)
	assert.Equal(t, string(server.Data), `{"name":"Noodle2"}`, "server data mismatch")
	assert.Equal(t, mustGetMirror(t, env.db, m.UUID).Data, `{"name":"Noodle2"}`, "mirror data mismatch")
}

func TestRejectedUpdate(t *testing.T) {
	env := setupEnv(t)

	m, err := env.writer.Create("weight", `{"reptile_id":"r1","grams":120}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.syncer.PerformFullSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	confirmed := mustGetMirror(t, env.db, m.UUID)

	// removed on the server behind our back, without a tombstone
	env.gateway.mu.Lock()
	delete(env.gateway.entities, m.UUID)
	env.gateway.mu.Unlock()

	if _, err := env.writer.Update(m.UUID, `{"grams":125}`); err != nil {
		t.Fatal(err)
	}

	result, err := env.syncer.PerformFullSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	assert.Equalf(t, len(result.Rejections), 1, "rejection count mismatch")
	assert.Equal(t, result.Rejections[0].EntityID, m.UUID, "rejected entity mismatch")
	assert.Equal(t, result.Rejections[0].EntityType, "weight", "rejected entity type mismatch")
	assert.Equal(t, result.Rejections[0].StatusCode, http.StatusNotFound, "status code mismatch")
	assert.Equal(t, result.Rejections[0].Reason, "record not found", "reason mismatch")
	assert.Equal(t, result.Rejections[0].Message(), fmt.Sprintf("update of weight %s was rejected by the server: record not found", m.UUID), "message mismatch")
	assert.Equal(t, len(mustListOps(t, env.db)), 0, "rejected operation should leave the queue")

	got := mustGetMirror(t, env.db, m.UUID)
	assert.Equal(t, got.Conflicted, true, "conflicted mismatch")
	assert.Equal(t, got.ConflictReason, "record not found", "conflict reason mismatch")
	assert.Equal(t, got.Data, confirmed.Data, "mirror should fall back to the server copy")
	assert.Equal(t, got.PendingSync, false, "pending_sync mismatch")

	conflicts, err := database.ListConflicts(env.db)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equalf(t, len(conflicts), 1, "conflict count mismatch")
	assert.Equal(t, conflicts[0].EntityID, m.UUID, "conflict entity mismatch")
	assert.Equal(t, conflicts[0].Payload, `{"grams":125}`, "conflict payload mismatch")
	assert.Equal(t, conflicts[0].StatusCode, http.StatusNotFound, "conflict status mismatch")
}

func TestRejectionDoesNotBlockLaterOperations(t *testing.T) {
	env := setupEnv(t)

	m, err := env.writer.Create("weight", `{"reptile_id":"r1","grams":120}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.writer.Update(m.UUID, `{"grams":-1}`); err != nil {
		t.Fatal(err)
	}
	if _, err := env.writer.Update(m.UUID, `{"grams":130}`); err != nil {
		t.Fatal(err)
	}

	env.gateway.sendErr = func(op queue.Operation) error {
		if op.Payload == `{"grams":-1}` {
			return rejection(http.StatusUnprocessableEntity, "grams must be a positive number")
		}
		return nil
	}

	result, err := env.syncer.PerformFullSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, result.Pushed, 2, "pushed count mismatch")
	assert.Equal(t, len(result.Rejections), 1, "rejection count mismatch")

	server, _ := env.gateway.get(m.UUID)
	assert.Equal(t, string(server.Data), `{"reptile_id":"r1","grams":130}`, "server data mismatch")

	got := mustGetMirror(t, env.db, m.UUID)
	assert.Equal(t, got.Data, `{"reptile_id":"r1","grams":130}`, "mirror data mismatch")
	assert.Equal(t, got.Conflicted, false, "a fresh server copy should clear the flag")

	count, err := database.CountConflicts(env.db)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, count, 1, "the conflict should be kept until acknowledged")
}

func TestTransientFailureSkipsEntity(t *testing.T) {
	env := setupEnv(t)

	a, err := env.writer.Create("reptile", `{"name":"A"}`)
	if err != nil {
		t.Fatal(err)
	}
	env.clock.Add(time.Millisecond)
	b, err := env.writer.Create("reptile", `{"name":"B"}`)
	if err != nil {
		t.Fatal(err)
	}
	env.clock.Add(time.Millisecond)
	if _, err := env.writer.Update(a.UUID, `{"name":"A2"}`); err != nil {
		t.Fatal(err)
	}

	env.gateway.sendErr = func(op queue.Operation) error {
		if op.EntityID == a.UUID {
			return transient("503 service unavailable")
		}
		return nil
	}

	result, err := env.syncer.PerformFullSync(context.Background())
	assert.Equal(t, errors.Cause(err), ErrOperationsFailed, "error mismatch")
	assert.Equal(t, result.Pushed, 1, "pushed count mismatch")
	assert.Equal(t, result.Failed, 1, "failed count mismatch")

	// only the head of a was attempted
	sent := env.gateway.sent
	assert.Equalf(t, len(sent), 2, "sent count mismatch")
	assert.Equal(t, sent[0].EntityID, a.UUID, "first sent mismatch")
	assert.Equal(t, sent[1].EntityID, b.UUID, "second sent mismatch")

	ops := mustListOps(t, env.db)
	assert.Equalf(t, len(ops), 2, "remaining operation count mismatch")
	assert.Equal(t, ops[0].Status, queue.StatusFailed, "head status mismatch")
	assert.Equal(t, ops[1].Status, queue.StatusPending, "released operation status mismatch")
	assert.Equal(t, ops[1].RetryCount, 0, "released operation should not be penalized")

	assert.Equal(t, mustGetMirror(t, env.db, b.UUID).PendingSync, false, "b should be synced")
	assert.Equal(t, mustGetMirror(t, env.db, a.UUID).Data, `{"name":"A2"}`, "a should keep its local data")
}

func TestDeleteSuccessExpungesMirror(t *testing.T) {
	env := setupEnv(t)

	m, err := env.writer.Create("shed", `{"reptile_id":"r1"}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.writer.Delete(m.UUID); err != nil {
		t.Fatal(err)
	}

	if _, err := env.syncer.PerformFullSync(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err = database.GetMirror(env.db, m.UUID)
	assert.Equal(t, err, database.ErrMirrorNotFound, "mirror should be expunged")

	server, _ := env.gateway.get(m.UUID)
	assert.Equal(t, server.Deleted, true, "server should hold a tombstone")
}

func TestBatchCap(t *testing.T) {
	env := setupEnv(t)

	for i := 0; i < 60; i++ {
		if _, err := env.writer.Create("feeding", fmt.Sprintf(`{"reptile_id":"r1","n":%d}`, i)); err != nil {
			t.Fatal(err)
		}
	}

	result, err := env.syncer.PerformFullSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, result.Pushed, 50, "pushed count mismatch")
	assert.Equal(t, len(mustListOps(t, env.db)), 10, "remaining count mismatch")

	result, err = env.syncer.PerformFullSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, result.Pushed, 10, "second pass pushed count mismatch")
	assert.Equal(t, len(mustListOps(t, env.db)), 0, "queue should be drained")
}

func TestSingleFlight(t *testing.T) {
	env := setupEnv(t)

	if _, err := env.writer.Create("reptile", `{"name":"Noodle"}`); err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	env.gateway.onSend = func(op queue.Operation) {
		close(entered)
		<-release
	}

	done := make(chan error)
	go func() {
		_, err := env.syncer.PerformFullSync(context.Background())
		done <- err
	}()

	<-entered
	assert.Equal(t, env.syncer.Running(), true, "first pass should be running")

	result, err := env.syncer.PerformFullSync(context.Background())
	assert.Equal(t, err, nil, "second call error mismatch")
	assert.Equal(t, result.Skipped, true, "second call should be skipped")

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, len(env.gateway.sentIDs()), 1, "the operation should be sent once")
	assert.Equal(t, env.syncer.Running(), false, "pass should be finished")
}

func TestRetryCounterAndSuppression(t *testing.T) {
	env := setupEnv(t)

	var delays []time.Duration
	env.syncer.SetRetryHook(func(d time.Duration) {
		delays = append(delays, d)
	})
	env.gateway.fetchErr = func(entityType string) error {
		return transient("502 bad gateway")
	}

	for i := 0; i < 5; i++ {
		if _, err := env.syncer.PerformFullSync(context.Background()); err == nil {
			t.Fatalf("pass %d should fail", i)
		}
	}

	assert.DeepEqual(t, delays, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, "backoff delays mismatch")
	assert.Equal(t, env.syncer.RetryCount(), 5, "retry count mismatch")
	assert.Equal(t, env.syncer.Suppressed(), true, "should be suppressed at the ceiling")

	var lastErr string
	if err := database.GetSystem(env.db, consts.SystemLastSyncError, &lastErr); err != nil {
		t.Fatal(err)
	}
	assert.NotEqual(t, lastErr, "", "last sync error should be saved")

	if _, err := env.syncer.RetryFailed(); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, env.syncer.Suppressed(), false, "suppression should be lifted")
	assert.Equal(t, env.syncer.RetryCount(), 0, "retry count should be reset")
}

func TestOperationRetryCeiling(t *testing.T) {
	env := setupEnv(t)

	config := DefaultConfig(consts.DefaultEntityTypes)
	config.MaxOperationRetries = 2
	env.syncer = New(env.db, env.gateway, env.clock, config)

	if _, err := env.writer.Create("reptile", `{"name":"Noodle"}`); err != nil {
		t.Fatal(err)
	}
	database.MustExec(t, "failing the operation", env.db, "UPDATE pending_operations SET status = ?, retry_count = ?", queue.StatusFailed, 2)

	if _, err := env.syncer.PerformFullSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, len(env.gateway.sentIDs()), 0, "an operation at the configured ceiling should not be sent")

	config.MaxOperationRetries = 3
	env.syncer = New(env.db, env.gateway, env.clock, config)
	if _, err := env.syncer.PerformFullSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, len(env.gateway.sentIDs()), 1, "an operation under the configured ceiling should be sent")
}

func TestRetryFailed(t *testing.T) {
	env := setupEnv(t)

	m, err := env.writer.Create("reptile", `{"name":"Noodle"}`)
	if err != nil {
		t.Fatal(err)
	}
	database.MustExec(t, "exhausting retries", env.db, "UPDATE pending_operations SET status = ?, retry_count = ?", queue.StatusFailed, queue.MaxOperationRetries)

	if _, err := env.syncer.PerformFullSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, len(env.gateway.sentIDs()), 0, "a stuck operation should not be sent")

	n, err := env.syncer.RetryFailed()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, n, int64(1), "reset count mismatch")

	if _, err := env.syncer.PerformFullSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, mustGetMirror(t, env.db, m.UUID).PendingSync, false, "record should be synced after a manual retry")
}

type recordingObserver struct {
	db       *database.DB
	started  int
	finished []Result
	// pending is the pending count seen at each queue change
	pending []int
}

func (o *recordingObserver) SyncStarted() {
	o.started++
}

func (o *recordingObserver) QueueChanged() {
	n, err := queue.CountPending(o.db)
	if err != nil {
		panic(err)
	}

	o.pending = append(o.pending, n)
}

func (o *recordingObserver) SyncFinished(result Result, err error) {
	o.finished = append(o.finished, result)
}

func TestObserver(t *testing.T) {
	env := setupEnv(t)

	o := &recordingObserver{db: env.db}
	env.syncer.SetObserver(o)

	for _, name := range []string{"Noodle", "Pretzel", "Mango"} {
		if _, err := env.writer.Create("reptile", fmt.Sprintf(`{"name":"%s"}`, name)); err != nil {
			t.Fatal(err)
		}
	}
	env.gateway.sendErr = func(op queue.Operation) error {
		if strings.Contains(op.Payload, "Mango") {
			return transient("connection reset")
		}

		return nil
	}

	if _, err := env.syncer.PerformFullSync(context.Background()); err == nil {
		t.Fatal("the pass should report the transient failure")
	}

	assert.Equal(t, o.started, 1, "started count mismatch")
	assert.Equal(t, len(o.finished), 1, "finished count mismatch")
	// the failed operation stays counted as failed, not pending
	assert.DeepEqual(t, o.pending, []int{2, 1, 0}, "pending counts at queue changes mismatch")
}

func TestObserver_LastSyncTime(t *testing.T) {
	env := setupEnv(t)

	o := &recordingObserver{db: env.db}
	env.syncer.SetObserver(o)

	if _, err := env.syncer.PerformFullSync(context.Background()); err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, len(o.pending), 0, "an empty queue should not report changes")

	lastSyncAt, err := database.GetSystemInt64(env.db, consts.SystemLastSyncAt)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, lastSyncAt, env.clock.Now().Unix(), "last sync time mismatch")
}

func TestStorageErrorAbortsPass(t *testing.T) {
	env := setupEnv(t)

	env.gateway.put("reptile", "r1", `{"name":"Remote"}`, false)
	database.MustExec(t, "breaking the queue", env.db, "DROP TABLE pending_operations")

	_, err := env.syncer.PerformFullSync(context.Background())
	assert.Equal(t, database.IsStorageError(err), true, "error should be a storage error")
	assert.Equal(t, len(env.gateway.fetched), 0, "pull should not run")
	assert.Equal(t, mustCheckpoint(t, env.db, "reptile"), int64(0), "checkpoint should not move")
}

func TestSendsClientGeneratedIDs(t *testing.T) {
	env := setupEnv(t)

	m, err := env.writer.Create("reptile", `{"name":"Noodle"}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.syncer.PerformFullSync(context.Background()); err != nil {
		t.Fatal(err)
	}

	server, ok := env.gateway.get(m.UUID)
	assert.Equalf(t, ok, true, "server should store the record under the client id")
	assert.DeepEqual(t, server.Data, json.RawMessage(`{"name":"Noodle"}`), "server data mismatch")
	assert.Equal(t, env.gateway.sent[0].EntityID, m.UUID, "entity id mismatch")
}
