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

package app

import (
	"github.com/dnote/herplog/pkg/clock"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var (
	// ErrEmptyDB is an error for missing database connection in the app configuration
	ErrEmptyDB = errors.New("No database connection was provided")
	// ErrEmptyClock is an error for missing clock in the app configuration
	ErrEmptyClock = errors.New("No clock was provided")
	// ErrRateLimitInvalid is an error for a negative rate limit in the app configuration
	ErrRateLimitInvalid = errors.New("The rate limit must not be negative")
)

// App is an application context
type App struct {
	DB    *gorm.DB
	Clock clock.Clock
	// APIKey is the bearer token required by the record endpoints. Empty
	// disables authentication.
	APIKey string
	// RateLimitPerSecond is the number of requests per second accepted from
	// a single IP. Zero disables the limit.
	RateLimitPerSecond int
	RateLimitBurst     int
	Port               string
	DBPath             string
	DBURL              string
}

// Validate validates the app configuration
func (a *App) Validate() error {
	if a.Clock == nil {
		return ErrEmptyClock
	}
	if a.DB == nil {
		return ErrEmptyDB
	}
	if a.RateLimitPerSecond < 0 || a.RateLimitBurst < 0 {
		return ErrRateLimitInvalid
	}

	return nil
}
