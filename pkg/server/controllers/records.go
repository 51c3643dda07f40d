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
	"encoding/json"
	"net/http"

	"github.com/dnote/herplog/pkg/server/app"
	"github.com/dnote/herplog/pkg/server/presenters"
	"github.com/gorilla/mux"
)

// idempotencyKeyHeader is the header carrying the id of the client
// operation behind a write
const idempotencyKeyHeader = "Idempotency-Key"

// NewRecords creates a new Records controller
func NewRecords(app *app.App) *Records {
	return &Records{
		app: app,
	}
}

// Records is a record controller
type Records struct {
	app *app.App
}

// RecordResp is a response containing a single record
type RecordResp struct {
	Record presenters.Record `json:"record"`
}

// createPayload is the payload for creating a record
type createPayload struct {
	UUID string          `json:"uuid"`
	Data json.RawMessage `json:"data"`
}

// Create handles POST /v1/records/{type}. A create whose uuid exists is a
// replay and responds with 200 instead of 201.
func (rc *Records) Create(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var p createPayload
	if err := parseRequestData(r, &p); err != nil {
		handleJSONError(w, err, "parsing payload")
		return
	}

	record, created, err := rc.app.CreateRecord(app.CreateRecordParams{
		Type:           vars["type"],
		UUID:           p.UUID,
		Data:           string(p.Data),
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		handleJSONError(w, err, "creating record")
		return
	}

	statusCode := http.StatusOK
	if created {
		statusCode = http.StatusCreated
	}

	respondJSON(w, statusCode, RecordResp{Record: presenters.PresentRecord(record)})
}

// updatePayload is the payload for updating a record
type updatePayload struct {
	Data json.RawMessage `json:"data"`
}

// Update handles PATCH /v1/records/{type}/{uuid}
func (rc *Records) Update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var p updatePayload
	if err := parseRequestData(r, &p); err != nil {
		handleJSONError(w, err, "parsing payload")
		return
	}

	record, err := rc.app.UpdateRecord(app.UpdateRecordParams{
		Type:           vars["type"],
		UUID:           vars["uuid"],
		Patch:          string(p.Data),
		IdempotencyKey: r.Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		handleJSONError(w, err, "updating record")
		return
	}

	respondJSON(w, http.StatusOK, RecordResp{Record: presenters.PresentRecord(record)})
}

// Delete handles DELETE /v1/records/{type}/{uuid}
func (rc *Records) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	record, err := rc.app.DeleteRecord(vars["type"], vars["uuid"])
	if err != nil {
		handleJSONError(w, err, "deleting record")
		return
	}

	respondJSON(w, http.StatusOK, RecordResp{Record: presenters.PresentRecord(record)})
}

// Show handles GET /v1/records/{type}/{uuid}
func (rc *Records) Show(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	record, err := rc.app.GetRecord(vars["type"], vars["uuid"])
	if err != nil {
		handleJSONError(w, err, "getting record")
		return
	}

	respondJSON(w, http.StatusOK, RecordResp{Record: presenters.PresentRecord(record)})
}

// changesQuery is the query of the changes feed
type changesQuery struct {
	Since   int64 `schema:"since"`
	Page    int   `schema:"page"`
	PerPage int   `schema:"per_page"`
}

// ChangesResp is a page of the changes feed
type ChangesResp struct {
	Records    []presenters.Record `json:"records"`
	ServerTime int64               `json:"server_time"`
	NextPage   int                 `json:"next_page"`
}

// Changes handles GET /v1/records/{type}/changes
func (rc *Records) Changes(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var q changesQuery
	if err := parseQuery(r, &q); err != nil {
		handleJSONError(w, err, "parsing query")
		return
	}

	result, err := rc.app.GetChanges(app.GetChangesParams{
		Type:    vars["type"],
		Since:   q.Since,
		Page:    q.Page,
		PerPage: q.PerPage,
	})
	if err != nil {
		handleJSONError(w, err, "getting changes")
		return
	}

	respondJSON(w, http.StatusOK, ChangesResp{
		Records:    presenters.PresentRecords(result.Records),
		ServerTime: result.ServerTime,
		NextPage:   result.NextPage,
	})
}
