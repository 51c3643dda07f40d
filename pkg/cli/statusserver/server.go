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

// Package statusserver exposes the sync state and the sync controls of a
// running daemon over HTTP on the loopback interface
package statusserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dnote/herplog/pkg/cli/state"
	"github.com/dnote/herplog/pkg/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// DefaultAddr is the default listen address
const DefaultAddr = "127.0.0.1:3002"

// Engine is the sync engine controlled by the server
type Engine interface {
	State() state.SyncState
	Subscribe() (<-chan state.SyncState, func())
	TriggerSync() bool
	RetryFailed() (int64, error)
	Refresh() error
}

// StateResp is the representation of a sync state
type StateResp struct {
	state.SyncState
	Indicator state.Indicator `json:"indicator"`
}

// SyncResp is the response to a sync request
type SyncResp struct {
	Started bool `json:"started"`
}

// RetryResp is the response to a retry request
type RetryResp struct {
	Reset int64 `json:"reset"`
}

type errorResp struct {
	Error string `json:"error"`
}

func presentState(s state.SyncState) StateResp {
	return StateResp{
		SyncState: s,
		Indicator: s.Indicator(),
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.ErrorWrap(err, "encoding response")
	}
}

func handleError(w http.ResponseWriter, msg string, err error) {
	log.ErrorWrap(err, msg)
	respondJSON(w, http.StatusInternalServerError, errorResp{Error: msg})
}

// Server is the status server
type Server struct {
	engine   Engine
	srv      *http.Server
	upgrader websocket.Upgrader
	listener net.Listener

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	wg    sync.WaitGroup
}

// New returns a new server for the engine
func New(addr string, e Engine) *Server {
	s := &Server{
		engine: e,
		conns:  map[*websocket.Conn]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Router returns the handler of the server
func (s *Server) Router() http.Handler {
	router := mux.NewRouter().StrictSlash(true)

	router.HandleFunc("/v1/state", s.getState).Methods("GET")
	router.HandleFunc("/v1/state/stream", s.streamState).Methods("GET")
	router.HandleFunc("/v1/sync", s.triggerSync).Methods("POST")
	router.HandleFunc("/v1/retry", s.retryFailed).Methods("POST")
	router.HandleFunc("/v1/refresh", s.refresh).Methods("POST")

	return logging(router)
}

func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		next.ServeHTTP(w, r)

		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"durationMs": time.Since(t).Milliseconds(),
		}).Debug("status request")
	})
}

// Start listens on the address and serves in the background
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.srv.Addr)
	}
	s.listener = l

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.srv.Serve(l); err != nil && err != http.ErrServerClosed {
			log.ErrorWrap(err, "serving status")
		}
	}()

	log.WithFields(log.Fields{"addr": l.Addr().String()}).Info("status server listening")

	return nil
}

// Addr returns the address the server listens on
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.srv.Addr
	}

	return s.listener.Addr().String()
}

// Shutdown stops the server and closes the state streams
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	if err != nil {
		return errors.Wrap(err, "shutting down the status server")
	}

	return nil
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, presentState(s.engine.State()))
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	started := s.engine.TriggerSync()

	respondJSON(w, http.StatusAccepted, SyncResp{Started: started})
}

func (s *Server) retryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.RetryFailed()
	if err != nil {
		handleError(w, "retrying failed operations", err)
		return
	}

	respondJSON(w, http.StatusAccepted, RetryResp{Reset: n})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Refresh(); err != nil {
		handleError(w, "refreshing the state", err)
		return
	}

	respondJSON(w, http.StatusOK, presentState(s.engine.State()))
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, conn)
}

// streamState pushes every new state to a websocket client until either
// side closes the connection
func (s *Server) streamState(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorWrap(err, "upgrading the connection")
		return
	}

	s.track(conn)
	defer s.untrack(conn)
	defer conn.Close()

	s.wg.Add(1)
	defer s.wg.Done()

	ch, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	// the reader detects the client going away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				unsubscribe()
				return
			}
		}
	}()

	for st := range ch {
		if err := conn.WriteJSON(presentState(st)); err != nil {
			log.WithFields(log.Fields{"error": err.Error()}).Debug("state stream closed")
			return
		}
	}
}
