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

package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dnote/herplog/pkg/assert"
	"github.com/dnote/herplog/pkg/clock"
	"github.com/dnote/herplog/pkg/server/app"
	"github.com/dnote/herplog/pkg/server/database"
	"github.com/dnote/herplog/pkg/server/testutils"
	"github.com/tidwall/gjson"
)

var serverTime = time.Date(2025, time.March, 14, 21, 15, 0, 0, time.UTC)

func setupServer(t *testing.T) (*app.App, string) {
	db := testutils.InitMemoryDB(t)

	c := clock.NewMock()
	c.SetNow(serverTime)

	a := app.NewTest(db)
	a.Clock = c
	server := MustNewServer(t, &a)

	return &a, server.URL
}

func newCreateBody(uuid, data string) string {
	return fmt.Sprintf(`{"uuid":%q,"data":%s}`, uuid, data)
}

func TestCreateRecord(t *testing.T) {
	a, url := setupServer(t)
	uuid := testutils.MustUUID(t)

	req := testutils.MakeReq(url, "POST", "/api/v1/records/reptile", newCreateBody(uuid, `{"name":"Monty"}`))
	req.Header.Set("Idempotency-Key", "op-1")
	res := testutils.HTTPDo(t, req)
	assert.StatusCodeEquals(t, res, http.StatusCreated, "status code mismatch")

	var payload RecordResp
	testutils.MustDecodeJSON(t, res, &payload)

	assert.Equal(t, payload.Record.UUID, uuid, "uuid mismatch")
	assert.Equal(t, payload.Record.Type, "reptile", "type mismatch")
	assert.Equal(t, string(payload.Record.Data), `{"name":"Monty"}`, "data mismatch")
	assert.Equal(t, payload.Record.ModifiedAt, serverTime.UnixMilli(), "modifiedAt mismatch")
	assert.Equal(t, payload.Record.Deleted, false, "deleted mismatch")

	var stored database.Record
	testutils.MustExec(t, a.DB.Where("uuid = ?", uuid).First(&stored), "finding record")
	assert.Equal(t, stored.Data, `{"name":"Monty"}`, "stored data mismatch")

	t.Run("replay", func(t *testing.T) {
		res := testutils.HTTPDo(t, testutils.MakeReq(url, "POST", "/api/v1/records/reptile", newCreateBody(uuid, `{"name":"Monty"}`)))
		assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

		var replayed RecordResp
		testutils.MustDecodeJSON(t, res, &replayed)
		assert.Equal(t, replayed.Record.ModifiedAt, payload.Record.ModifiedAt, "modifiedAt mismatch")
	})

	t.Run("uuid of another type", func(t *testing.T) {
		res := testutils.HTTPDo(t, testutils.MakeReq(url, "POST", "/api/v1/records/shed", newCreateBody(uuid, `{"reptile_id":"r1"}`)))
		defer res.Body.Close()

		assert.StatusCodeEquals(t, res, http.StatusConflict, "status code mismatch")
	})
}

func TestCreateRecord_Rejected(t *testing.T) {
	_, url := setupServer(t)

	testCases := []struct {
		recordType      string
		body            string
		expectedStatus  int
		expectedMessage string
	}{
		{
			recordType:      "weight",
			body:            newCreateBody(testutils.MustUUID(t), `{"reptile_id":"r1","grams":-5}`),
			expectedStatus:  http.StatusUnprocessableEntity,
			expectedMessage: "grams must be a positive number",
		},
		{
			recordType:      "reptile",
			body:            newCreateBody(testutils.MustUUID(t), `{"species":"ball python"}`),
			expectedStatus:  http.StatusUnprocessableEntity,
			expectedMessage: "name is required",
		},
		{
			recordType:      "reptile",
			body:            newCreateBody("not-a-uuid", `{"name":"Monty"}`),
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: app.ErrInvalidUUID.Error(),
		},
		{
			recordType:      "reptile",
			body:            newCreateBody(testutils.MustUUID(t), `["Monty"]`),
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: app.ErrDataNotObject.Error(),
		},
		{
			recordType:      "reptile",
			body:            `{"uuid":`,
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: "the request body is not valid JSON",
		},
		{
			recordType:      "Reptile",
			body:            newCreateBody(testutils.MustUUID(t), `{"name":"Monty"}`),
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: app.ErrInvalidType.Error(),
		},
	}

	for idx, tc := range testCases {
		t.Run(fmt.Sprintf("test case %d", idx), func(t *testing.T) {
			res := testutils.HTTPDo(t, testutils.MakeReq(url, "POST", "/api/v1/records/"+tc.recordType, tc.body))
			assert.StatusCodeEquals(t, res, tc.expectedStatus, "status code mismatch")

			body := testutils.MustReadBody(t, res)
			assert.Equal(t, strings.TrimSpace(body), tc.expectedMessage, "message mismatch")
		})
	}
}

func TestUpdateRecord(t *testing.T) {
	a, url := setupServer(t)
	r := testutils.SetupRecord(t, a.DB, "reptile", `{"name":"Monty","morph":"normal"}`, 100)

	path := fmt.Sprintf("/api/v1/records/reptile/%s", r.UUID)

	req := testutils.MakeReq(url, "PATCH", path, `{"data":{"morph":null,"species":"ball python"}}`)
	req.Header.Set("Idempotency-Key", "op-2")
	res := testutils.HTTPDo(t, req)
	assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

	var payload RecordResp
	testutils.MustDecodeJSON(t, res, &payload)

	data := string(payload.Record.Data)
	assert.Equal(t, gjson.Get(data, "name").String(), "Monty", "name mismatch")
	assert.Equal(t, gjson.Get(data, "species").String(), "ball python", "species mismatch")
	assert.Equal(t, gjson.Get(data, "morph").Exists(), false, "morph should be removed")
	assert.Equal(t, payload.Record.ModifiedAt, serverTime.UnixMilli(), "modifiedAt mismatch")

	t.Run("validation", func(t *testing.T) {
		res := testutils.HTTPDo(t, testutils.MakeReq(url, "PATCH", path, `{"data":{"name":""}}`))
		defer res.Body.Close()

		assert.StatusCodeEquals(t, res, http.StatusUnprocessableEntity, "status code mismatch")
	})

	t.Run("unknown", func(t *testing.T) {
		unknown := fmt.Sprintf("/api/v1/records/reptile/%s", testutils.MustUUID(t))
		res := testutils.HTTPDo(t, testutils.MakeReq(url, "PATCH", unknown, `{"data":{"name":"x"}}`))
		defer res.Body.Close()

		assert.StatusCodeEquals(t, res, http.StatusNotFound, "status code mismatch")
	})
}

func TestDeleteRecord(t *testing.T) {
	a, url := setupServer(t)
	r := testutils.SetupRecord(t, a.DB, "shed", `{"reptile_id":"r1"}`, 100)

	path := fmt.Sprintf("/api/v1/records/shed/%s", r.UUID)

	for i := 0; i < 2; i++ {
		res := testutils.HTTPDo(t, testutils.MakeReq(url, "DELETE", path, ""))
		assert.StatusCodeEquals(t, res, http.StatusOK, fmt.Sprintf("status code mismatch on delete %d", i))

		var payload RecordResp
		testutils.MustDecodeJSON(t, res, &payload)
		assert.Equal(t, payload.Record.Deleted, true, "deleted mismatch")
		assert.Equal(t, string(payload.Record.Data), "{}", "data mismatch")
	}

	t.Run("update after delete", func(t *testing.T) {
		res := testutils.HTTPDo(t, testutils.MakeReq(url, "PATCH", path, `{"data":{"reptile_id":"r2"}}`))
		defer res.Body.Close()

		assert.StatusCodeEquals(t, res, http.StatusNotFound, "status code mismatch")
	})

	t.Run("unknown", func(t *testing.T) {
		unknown := fmt.Sprintf("/api/v1/records/shed/%s", testutils.MustUUID(t))
		res := testutils.HTTPDo(t, testutils.MakeReq(url, "DELETE", unknown, ""))
		defer res.Body.Close()

		assert.StatusCodeEquals(t, res, http.StatusNotFound, "status code mismatch")
	})
}

func TestChanges(t *testing.T) {
	a, url := setupServer(t)

	r1 := testutils.SetupRecord(t, a.DB, "weight", `{"reptile_id":"r1","grams":100}`, 100)
	r2 := testutils.SetupRecord(t, a.DB, "weight", `{"reptile_id":"r1","grams":110}`, 200)
	r3 := testutils.SetupRecord(t, a.DB, "weight", `{"reptile_id":"r1","grams":120}`, 300)
	testutils.SetupRecord(t, a.DB, "reptile", `{"name":"Monty"}`, 150)

	testCases := []struct {
		query            string
		expectedUUIDs    []string
		expectedNextPage int
	}{
		{query: "", expectedUUIDs: []string{r1.UUID, r2.UUID, r3.UUID}},
		{query: "?since=200", expectedUUIDs: []string{r2.UUID, r3.UUID}},
		{query: "?since=301", expectedUUIDs: []string{}},
		{query: "?since=0&page=1&per_page=2", expectedUUIDs: []string{r1.UUID, r2.UUID}, expectedNextPage: 2},
		{query: "?since=0&page=2&per_page=2", expectedUUIDs: []string{r3.UUID}},
	}

	for idx, tc := range testCases {
		t.Run(fmt.Sprintf("test case %d", idx), func(t *testing.T) {
			res := testutils.HTTPDo(t, testutils.MakeReq(url, "GET", "/api/v1/records/weight/changes"+tc.query, ""))
			assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")

			var payload ChangesResp
			testutils.MustDecodeJSON(t, res, &payload)

			got := []string{}
			for _, r := range payload.Records {
				got = append(got, r.UUID)
			}

			assert.DeepEqual(t, got, tc.expectedUUIDs, "uuids mismatch")
			assert.Equal(t, payload.NextPage, tc.expectedNextPage, "nextPage mismatch")
			assert.Equal(t, payload.ServerTime, serverTime.UnixMilli()-1, "serverTime mismatch")
		})
	}

	t.Run("malformed query", func(t *testing.T) {
		res := testutils.HTTPDo(t, testutils.MakeReq(url, "GET", "/api/v1/records/weight/changes?since=yesterday", ""))
		defer res.Body.Close()

		assert.StatusCodeEquals(t, res, http.StatusBadRequest, "status code mismatch")
	})

	t.Run("negative since", func(t *testing.T) {
		res := testutils.HTTPDo(t, testutils.MakeReq(url, "GET", "/api/v1/records/weight/changes?since=-1", ""))
		defer res.Body.Close()

		assert.StatusCodeEquals(t, res, http.StatusBadRequest, "status code mismatch")
	})
}

func TestHealth(t *testing.T) {
	_, url := setupServer(t)

	res := testutils.HTTPDo(t, testutils.MakeReq(url, "GET", "/health", ""))
	assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")
	assert.Equal(t, testutils.MustReadBody(t, res), "ok", "body mismatch")
}
