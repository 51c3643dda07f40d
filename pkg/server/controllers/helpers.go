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

	"github.com/dnote/herplog/pkg/log"
	"github.com/dnote/herplog/pkg/server/app"
	"github.com/gorilla/schema"
	"github.com/pkg/errors"
)

var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)

	return d
}

// errBadRequest is an error for a request that cannot be parsed
type errBadRequest struct {
	msg string
}

func (e errBadRequest) Error() string {
	return e.msg
}

func badRequest(msg string) error {
	return errBadRequest{msg: msg}
}

// parseRequestData decodes the JSON body of the request into v
func parseRequestData(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return badRequest("the request has no body")
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("the request body is not valid JSON")
	}

	return nil
}

// parseQuery decodes the query string of the request into v
func parseQuery(r *http.Request, v interface{}) error {
	if err := queryDecoder.Decode(v, r.URL.Query()); err != nil {
		return badRequest("the query is malformed")
	}

	return nil
}

func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.ErrorWrap(err, "encoding response")
	}
}

// getStatusCode maps an error to the status code of the response. The
// client retries 408, 425, 429 and 5xx, and gives up on the other 4xx.
func getStatusCode(err error) int {
	var ve *app.ValidationError
	if errors.As(err, &ve) {
		return http.StatusUnprocessableEntity
	}

	var br errBadRequest
	if errors.As(err, &br) {
		return http.StatusBadRequest
	}

	switch errors.Cause(err) {
	case app.ErrNotFound:
		return http.StatusNotFound
	case app.ErrTypeMismatch:
		return http.StatusConflict
	case app.ErrInvalidUUID, app.ErrInvalidType, app.ErrDataNotObject, app.ErrInvalidPagination:
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// handleJSONError responds with the status code of the error. The message of
// client errors is sent in the body. Server errors are logged and hidden.
func handleJSONError(w http.ResponseWriter, err error, msg string) {
	statusCode := getStatusCode(err)

	if statusCode == http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"statusCode": statusCode,
		}).ErrorWrap(err, msg)
		http.Error(w, http.StatusText(statusCode), statusCode)
		return
	}

	http.Error(w, err.Error(), statusCode)
}
