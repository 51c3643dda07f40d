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
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/dnote/herplog/pkg/cli/client"
	cliDatabase "github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/records"
	"github.com/dnote/herplog/pkg/cli/syncer"
	"github.com/dnote/herplog/pkg/clock"
	"github.com/dnote/herplog/pkg/server/app"
	"github.com/dnote/herplog/pkg/server/controllers"
	apitest "github.com/dnote/herplog/pkg/server/testutils"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var entityTypes = []string{"reptile", "feeding", "weight", "shed"}

// testServer is a reference server backed by an in-memory database
type testServer struct {
	*httptest.Server
	DB *gorm.DB
}

func setupServer(t *testing.T, apiKey string) testServer {
	db := apitest.InitMemoryDB(t)

	a := app.NewTest(db)
	a.APIKey = apiKey

	return testServer{
		Server: controllers.MustNewServer(t, &a),
		DB:     db,
	}
}

// device is a client with its own local store
type device struct {
	DB     *cliDatabase.DB
	Writer *records.Writer
	Client *client.Client
	Syncer *syncer.Syncer
}

func setupDevice(t *testing.T, ts testServer, apiKey string) device {
	db := cliDatabase.InitTestMemoryDB(t)
	c := clock.New()

	gw := client.New(client.Params{
		Endpoint:   ts.URL + "/api",
		APIKey:     apiKey,
		Version:    "test",
		HTTPClient: ts.Client(),
	})

	return device{
		DB:     db,
		Writer: records.New(db, c, entityTypes),
		Client: gw,
		Syncer: syncer.New(db, gw, c, syncer.DefaultConfig(entityTypes)),
	}
}

func (d device) sync(t *testing.T) syncer.Result {
	result, err := d.Syncer.PerformFullSync(context.Background())
	if err != nil {
		t.Fatal(errors.Wrap(err, "syncing"))
	}

	return result
}

func (d device) create(t *testing.T, entityType, data string) cliDatabase.Mirror {
	m, err := d.Writer.Create(entityType, data)
	if err != nil {
		t.Fatal(errors.Wrapf(err, "creating %s", entityType))
	}

	return m
}

// snapshot maps the uuid of every live mirror to its decoded data
func snapshot(db *cliDatabase.DB) (map[string]interface{}, error) {
	mirrors, err := cliDatabase.ListMirrors(db, cliDatabase.ListMirrorsParams{})
	if err != nil {
		return nil, errors.Wrap(err, "listing mirrors")
	}

	ret := map[string]interface{}{}
	for _, m := range mirrors {
		var v interface{}
		if err := json.Unmarshal([]byte(m.Data), &v); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", m.UUID)
		}

		ret[m.UUID] = v
	}

	return ret, nil
}

// convergence returns a description of the difference between the records
// of the two stores, or an empty string if they hold the same records
func convergence(a, b *cliDatabase.DB) (string, error) {
	sa, err := snapshot(a)
	if err != nil {
		return "", err
	}
	sb, err := snapshot(b)
	if err != nil {
		return "", err
	}

	return cmp.Diff(sa, sb), nil
}

func assertConverged(t *testing.T, a, b *cliDatabase.DB) {
	diff, err := convergence(a, b)
	if err != nil {
		t.Fatal(errors.Wrap(err, "comparing stores"))
	}
	if diff != "" {
		t.Errorf("stores did not converge (-a +b):\n%s", diff)
	}
}
