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
	"net/http"
	"sort"
	"sync"
	"testing"

	"github.com/dnote/herplog/pkg/cli/client"
	"github.com/dnote/herplog/pkg/cli/consts"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/dnote/herplog/pkg/cli/records"
	"github.com/dnote/herplog/pkg/clock"
	"github.com/pkg/errors"
)

// fakeGateway is an in-memory remote that applies operations the way the
// server does
type fakeGateway struct {
	mu sync.Mutex

	entities   map[string]client.Entity
	lastMod    int64
	serverTime int64

	sent    []queue.Operation
	fetched []string

	// sendErr, if set, decides the failure of an operation before it is applied
	sendErr  func(op queue.Operation) error
	fetchErr func(entityType string) error
	// onSend is called before an operation is applied
	onSend func(op queue.Operation)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		entities: map[string]client.Entity{},
		lastMod:  1000,
	}
}

func rejection(code int, msg string) error {
	return &client.GatewayError{Kind: client.DefinitiveRejection, StatusCode: code, Message: msg}
}

func transient(msg string) error {
	return &client.GatewayError{Kind: client.Transient, Message: msg}
}

func (g *fakeGateway) nextMod() int64 {
	g.lastMod++
	return g.lastMod
}

// put stores an entity as if another client had written it
func (g *fakeGateway) put(entityType, uuid, data string, deleted bool) client.Entity {
	g.mu.Lock()
	defer g.mu.Unlock()

	e := client.Entity{UUID: uuid, Type: entityType, Data: json.RawMessage(data), ModifiedAt: g.nextMod(), Deleted: deleted}
	g.entities[uuid] = e

	return e
}

func (g *fakeGateway) get(uuid string) (client.Entity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entities[uuid]
	return e, ok
}

func (g *fakeGateway) sentIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ret := []string{}
	for _, op := range g.sent {
		ret = append(ret, op.UUID)
	}

	return ret
}

func (g *fakeGateway) SendOperation(ctx context.Context, op queue.Operation) (client.Entity, error) {
	if g.onSend != nil {
		g.onSend(op)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.sent = append(g.sent, op)

	if g.sendErr != nil {
		if err := g.sendErr(op); err != nil {
			return client.Entity{}, err
		}
	}

	e, ok := g.entities[op.EntityID]

	switch op.Operation {
	case queue.OpCreate:
		if ok {
			return e, nil
		}
		e = client.Entity{UUID: op.EntityID, Type: op.EntityType, Data: json.RawMessage(op.Payload)}
	case queue.OpUpdate:
		if !ok || e.Deleted {
			return client.Entity{}, rejection(http.StatusNotFound, "record not found")
		}
		data, err := records.MergePatch(string(e.Data), op.Payload)
		if err != nil {
			return client.Entity{}, rejection(http.StatusBadRequest, err.Error())
		}
		e.Data = json.RawMessage(data)
	case queue.OpDelete:
		if !ok {
			return client.Entity{}, rejection(http.StatusNotFound, "record not found")
		}
		if e.Deleted {
			return e, nil
		}
		e.Deleted = true
	}

	e.ModifiedAt = g.nextMod()
	g.entities[op.EntityID] = e

	return e, nil
}

func (g *fakeGateway) FetchChangesSince(ctx context.Context, entityType string, since int64) (client.Changes, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.fetched = append(g.fetched, entityType)

	if g.fetchErr != nil {
		if err := g.fetchErr(entityType); err != nil {
			return client.Changes{}, err
		}
	}

	ret := client.Changes{Records: []client.Entity{}, ServerTime: g.serverTime}
	if ret.ServerTime == 0 {
		ret.ServerTime = g.lastMod
	}

	for _, e := range g.entities {
		if e.Type == entityType && e.ModifiedAt >= since {
			ret.Records = append(ret.Records, e)
		}
	}
	sort.Slice(ret.Records, func(i, j int) bool {
		return ret.Records[i].ModifiedAt < ret.Records[j].ModifiedAt
	})

	return ret, nil
}

type testEnv struct {
	db      *database.DB
	clock   *clock.Mock
	gateway *fakeGateway
	syncer  *Syncer
	writer  *records.Writer
}

func setupEnv(t *testing.T) testEnv {
	db := database.InitTestMemoryDB(t)
	c := clock.NewMock()
	g := newFakeGateway()

	return testEnv{
		db:      db,
		clock:   c,
		gateway: g,
		syncer:  New(db, g, c, DefaultConfig(consts.DefaultEntityTypes)),
		writer:  records.New(db, c, consts.DefaultEntityTypes),
	}
}

func mustGetMirror(t *testing.T, db *database.DB, uuid string) database.Mirror {
	m, err := database.GetMirror(db, uuid)
	if err != nil {
		t.Fatal(errors.Wrapf(err, "getting mirror %s", uuid))
	}

	return m
}

func mustListOps(t *testing.T, db *database.DB) []queue.Operation {
	ops, err := queue.List(db)
	if err != nil {
		t.Fatal(errors.Wrap(err, "listing operations"))
	}

	return ops
}

func mustCheckpoint(t *testing.T, db *database.DB, entityType string) int64 {
	cp, err := database.GetCheckpoint(db, entityType)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting checkpoint"))
	}

	return cp
}

func fakeEntity(entityType, uuid string, modifiedAt int64) client.Entity {
	return client.Entity{UUID: uuid, Type: entityType, Data: json.RawMessage(`{}`), ModifiedAt: modifiedAt}
}
