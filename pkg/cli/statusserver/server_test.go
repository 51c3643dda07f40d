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
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dnote/herplog/pkg/assert"
	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/cli/state"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/goleak"
)

type fakeEngine struct {
	*state.Publisher

	mu       sync.Mutex
	syncs    int
	retries  int
	retryErr error
}

func (e *fakeEngine) TriggerSync() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.syncs++
	return true
}

func (e *fakeEngine) RetryFailed() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.retryErr != nil {
		return 0, e.retryErr
	}

	e.retries++
	return 3, nil
}

func (e *fakeEngine) counts() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.syncs, e.retries
}

func (e *fakeEngine) setRetryErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.retryErr = err
}

func newFakeEngine(t *testing.T) *fakeEngine {
	db := database.InitTestMemoryDB(t)

	return &fakeEngine{Publisher: state.NewPublisher(db, nil)}
}

func TestClient(t *testing.T) {
	e := newFakeEngine(t)
	e.SetOnline(true)

	s := New(DefaultAddr, e)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	c := NewClient(ts.Listener.Addr().String())
	ctx := context.Background()

	t.Run("state", func(t *testing.T) {
		got, err := c.GetState(ctx)
		if err != nil {
			t.Fatal(errors.Wrap(err, "getting state"))
		}

		assert.Equal(t, got.IsOnline, true, "isOnline mismatch")
		assert.Equal(t, got.Indicator, state.IndicatorSynced, "indicator mismatch")
	})

	t.Run("sync", func(t *testing.T) {
		got, err := c.TriggerSync(ctx)
		if err != nil {
			t.Fatal(errors.Wrap(err, "triggering sync"))
		}

		assert.Equal(t, got.Started, true, "started mismatch")
		syncs, _ := e.counts()
		assert.Equal(t, syncs, 1, "sync count mismatch")
	})

	t.Run("retry", func(t *testing.T) {
		got, err := c.RetryFailed(ctx)
		if err != nil {
			t.Fatal(errors.Wrap(err, "retrying"))
		}

		assert.Equal(t, got.Reset, int64(3), "reset mismatch")
		_, retries := e.counts()
		assert.Equal(t, retries, 1, "retry count mismatch")
	})

	t.Run("retry error", func(t *testing.T) {
		e.setRetryErr(errors.New("disk full"))
		defer e.setRetryErr(nil)

		_, err := c.RetryFailed(ctx)
		assert.NotEqual(t, err, nil, "error should not be nil")
	})

	t.Run("refresh", func(t *testing.T) {
		got, err := c.Refresh(ctx)
		if err != nil {
			t.Fatal(errors.Wrap(err, "refreshing"))
		}

		assert.Equal(t, got.PendingCount, 0, "pendingCount mismatch")
	})
}

func TestRoutes(t *testing.T) {
	e := newFakeEngine(t)
	s := New(DefaultAddr, e)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	testCases := []struct {
		method         string
		path           string
		expectedStatus int
	}{
		{"GET", "/v1/state", http.StatusOK},
		{"POST", "/v1/state", http.StatusMethodNotAllowed},
		{"POST", "/v1/sync", http.StatusAccepted},
		{"GET", "/v1/sync", http.StatusMethodNotAllowed},
		{"POST", "/v1/retry", http.StatusAccepted},
		{"POST", "/v1/refresh", http.StatusOK},
		{"GET", "/v1/unknown", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
			if err != nil {
				t.Fatal(errors.Wrap(err, "constructing request"))
			}

			res, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(errors.Wrap(err, "making request"))
			}
			defer res.Body.Close()

			assert.StatusCodeEquals(t, res, tc.expectedStatus, "")
		})
	}
}

func TestStreamState(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	e := newFakeEngine(t)
	s := New("127.0.0.1:0", e)
	if err := s.Start(); err != nil {
		t.Fatal(errors.Wrap(err, "starting"))
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/v1/state/stream", nil)
	if err != nil {
		t.Fatal(errors.Wrap(err, "dialing"))
	}
	defer conn.Close()

	read := func() StateResp {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var ret StateResp
		if err := conn.ReadJSON(&ret); err != nil {
			t.Fatal(errors.Wrap(err, "reading state"))
		}

		return ret
	}

	first := read()
	assert.Equal(t, first.IsOnline, false, "initial isOnline mismatch")

	e.SetOnline(true)
	second := read()
	assert.Equal(t, second.IsOnline, true, "isOnline mismatch")
	assert.Equal(t, second.Indicator, state.IndicatorSynced, "indicator mismatch")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatal(errors.Wrap(err, "shutting down"))
	}

	// the server closed the stream
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.NotEqual(t, err, nil, "stream should be closed")
}
