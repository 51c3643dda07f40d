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

// Package context defines herplog context
package context

import (
	"net/http"
	"time"

	"github.com/dnote/herplog/pkg/cli/database"
	"github.com/dnote/herplog/pkg/clock"
)

// Paths contain directory definitions
type Paths struct {
	Home   string
	Config string
	Data   string
	Cache  string
	State  string
}

// SyncSettings are the tunables of the background sync
type SyncSettings struct {
	// Interval is the period of the timer trigger
	Interval time.Duration
	// ProbeInterval is the period of the network probe
	ProbeInterval time.Duration
	// RequestTimeout bounds every call to the remote
	RequestTimeout time.Duration
	// WakePollInterval is the period at which the wake spool is scanned
	WakePollInterval time.Duration
	// StatusAddr is the listen address of the daemon's status server
	StatusAddr string

	// BatchSize is the number of operations claimed from the queue at a time
	BatchSize int
	// MaxOperationsPerPass bounds the number of operations sent in one pass
	MaxOperationsPerPass int
	// MaxRetries is the number of consecutive failed passes after which
	// automatic passes are suppressed
	MaxRetries int
	// MaxOperationRetries is the number of failed send attempts after which
	// an operation waits for a manual retry
	MaxOperationRetries int
	BaseDelay           time.Duration
	MaxDelay            time.Duration
}

// HerplogCtx is a context holding the information of the current runtime
type HerplogCtx struct {
	Paths       Paths
	APIEndpoint string
	Version     string
	DB          *database.DB
	APIKey      string
	EntityTypes []string
	Sync        SyncSettings
	Clock       clock.Clock
	HTTPClient  *http.Client
}

// Redact replaces private information from the context with a set of
// placeholder values.
func Redact(ctx HerplogCtx) HerplogCtx {
	var apiKey string
	if ctx.APIKey != "" {
		apiKey = "1"
	} else {
		apiKey = "0"
	}
	ctx.APIKey = apiKey

	return ctx
}
