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

package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Client talks to the status server of a running daemon
type Client struct {
	addr       string
	httpClient *http.Client
}

// NewClient returns a new client for the server listening on addr
func NewClient(addr string) *Client {
	return &Client{
		addr: addr,
		httpClient: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, dest interface{}) error {
	url := fmt.Sprintf("http://%s%s", c.addr, path)

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return errors.Wrap(err, "constructing http request")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "making http request")
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		var body errorResp
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			return errors.Errorf("status server responded with %d", res.StatusCode)
		}

		return errors.Errorf("status server responded with %d: %s", res.StatusCode, body.Error)
	}

	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		return errors.Wrap(err, "decoding response")
	}

	return nil
}

// GetState returns the sync state of the daemon
func (c *Client) GetState(ctx context.Context) (StateResp, error) {
	var ret StateResp
	err := c.do(ctx, "GET", "/v1/state", &ret)

	return ret, err
}

// TriggerSync requests a pass from the daemon
func (c *Client) TriggerSync(ctx context.Context) (SyncResp, error) {
	var ret SyncResp
	err := c.do(ctx, "POST", "/v1/sync", &ret)

	return ret, err
}

// RetryFailed asks the daemon to reset the failed operations
func (c *Client) RetryFailed(ctx context.Context) (RetryResp, error) {
	var ret RetryResp
	err := c.do(ctx, "POST", "/v1/retry", &ret)

	return ret, err
}

// Refresh asks the daemon to recompute the state from the local store
func (c *Client) Refresh(ctx context.Context) (StateResp, error) {
	var ret StateResp
	err := c.do(ctx, "POST", "/v1/refresh", &ret)

	return ret, err
}
