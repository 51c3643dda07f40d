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

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dnote/herplog/pkg/cli/queue"
	"github.com/pkg/errors"
)

// ChangesPerPage is the page size requested from the changes endpoint
const ChangesPerPage = 100

// Entity is a record as the remote knows it
type Entity struct {
	UUID       string          `json:"uuid"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	ModifiedAt int64           `json:"modified_at"`
	Deleted    bool            `json:"deleted"`
}

// Changes is the set of entities modified since a checkpoint
type Changes struct {
	Records []Entity
	// ServerTime is the time of the remote when the last page was served, in
	// unix milliseconds
	ServerTime int64
}

// CreatePayload is a payload for creating a record
type CreatePayload struct {
	UUID string          `json:"uuid"`
	Data json.RawMessage `json:"data"`
}

// UpdatePayload is a payload for updating a record
type UpdatePayload struct {
	Data json.RawMessage `json:"data"`
}

// RecordResp is a response containing a single record
type RecordResp struct {
	Record Entity `json:"record"`
}

// ChangesResp is a page of the changes endpoint
type ChangesResp struct {
	Records    []Entity `json:"records"`
	ServerTime int64    `json:"server_time"`
	NextPage   int      `json:"next_page"`
}

func recordPath(entityType, uuid string) string {
	if uuid == "" {
		return fmt.Sprintf("/v1/records/%s", url.PathEscape(entityType))
	}

	return fmt.Sprintf("/v1/records/%s/%s", url.PathEscape(entityType), url.PathEscape(uuid))
}

func getOperationRequest(op queue.Operation) (request, error) {
	r := request{idempotencyKey: op.UUID}

	switch op.Operation {
	case queue.OpCreate:
		b, err := json.Marshal(CreatePayload{UUID: op.EntityID, Data: json.RawMessage(op.Payload)})
		if err != nil {
			return r, errors.Wrap(err, "marshaling payload")
		}

		r.method = "POST"
		r.path = recordPath(op.EntityType, "")
		r.body = string(b)
	case queue.OpUpdate:
		b, err := json.Marshal(UpdatePayload{Data: json.RawMessage(op.Payload)})
		if err != nil {
			return r, errors.Wrap(err, "marshaling payload")
		}

		r.method = "PATCH"
		r.path = recordPath(op.EntityType, op.EntityID)
		r.body = string(b)
	case queue.OpDelete:
		r.method = "DELETE"
		r.path = recordPath(op.EntityType, op.EntityID)
	default:
		return r, errors.Errorf("unknown operation %s", op.Operation)
	}

	return r, nil
}

// SendOperation sends one queued operation to the remote and returns the
// entity as the remote stored it. The operation id is sent as the
// idempotency key so that a replayed request has no further effect.
func (c *Client) SendOperation(ctx context.Context, op queue.Operation) (Entity, error) {
	r, err := getOperationRequest(op)
	if err != nil {
		// a malformed operation can never be sent
		return Entity{}, &GatewayError{Kind: DefinitiveRejection, Message: err.Error(), Err: err}
	}

	body, err := c.do(ctx, r, true)
	if err != nil {
		return Entity{}, errors.Wrapf(err, "sending %s of %s", op.Operation, op.EntityID)
	}

	var resp RecordResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return Entity{}, classify(errors.Wrap(err, "unmarshalling the payload"))
	}

	return resp.Record, nil
}

// FetchChangesSince returns every entity of the given type modified at or
// after since. Rather than walking page numbers, which shift when records
// are modified mid-fetch, it restarts from the modification time of the last
// entity seen until the remote reports no further page.
func (c *Client) FetchChangesSince(ctx context.Context, entityType string, since int64) (Changes, error) {
	ret := Changes{Records: []Entity{}}
	seen := map[string]int64{}

	cursor := since
	for {
		resp, err := c.fetchChangesPage(ctx, entityType, cursor, 1)
		if err != nil {
			return Changes{}, err
		}

		ret.ServerTime = resp.ServerTime

		progressed := false
		for _, e := range resp.Records {
			if m, ok := seen[e.UUID]; ok && m == e.ModifiedAt {
				continue
			}

			seen[e.UUID] = e.ModifiedAt
			ret.Records = append(ret.Records, e)
			progressed = true

			if e.ModifiedAt > cursor {
				cursor = e.ModifiedAt
			}
		}

		if resp.NextPage == 0 {
			break
		}
		if !progressed {
			return Changes{}, classify(errors.Errorf("changes of %s did not advance past %d", entityType, cursor))
		}
	}

	return ret, nil
}

func (c *Client) fetchChangesPage(ctx context.Context, entityType string, since int64, page int) (ChangesResp, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(ChangesPerPage))

	r := request{
		method: "GET",
		path:   fmt.Sprintf("%s/changes?%s", recordPath(entityType, ""), q.Encode()),
	}

	body, err := c.do(ctx, r, true)
	if err != nil {
		return ChangesResp{}, errors.Wrapf(err, "fetching %s changes since %d", entityType, since)
	}

	var resp ChangesResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return ChangesResp{}, classify(errors.Wrap(err, "unmarshalling the payload"))
	}

	return resp, nil
}

// Health checks that the remote is reachable
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.do(ctx, request{method: "GET", path: "/health"}, false); err != nil {
		return errors.Wrap(err, "checking health")
	}

	return nil
}

// VerifyKey checks that the remote accepts the API key by reading a single
// change of the given entity type
func (c *Client) VerifyKey(ctx context.Context, entityType string) error {
	q := url.Values{}
	q.Set("since", "0")
	q.Set("per_page", "1")

	r := request{
		method: "GET",
		path:   fmt.Sprintf("%s/changes?%s", recordPath(entityType, ""), q.Encode()),
	}

	if _, err := c.do(ctx, r, true); err != nil {
		return errors.Wrap(err, "verifying the api key")
	}

	return nil
}
