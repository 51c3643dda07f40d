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

package middleware

import (
	"net/http"

	"github.com/dnote/herplog/pkg/server/app"
)

// Middleware wraps the handler of a route
type Middleware func(h http.HandlerFunc, rateLimit bool) http.Handler

// NewAPIMw returns the middleware of the API routes. It authenticates the
// request with the API key of the app and applies the rate limit.
func NewAPIMw(a *app.App, rl *RateLimiter) Middleware {
	return func(h http.HandlerFunc, rateLimit bool) http.Handler {
		return ApplyLimit(rl, APIKeyAuth(a.APIKey, h), rateLimit)
	}
}

// NewPublicMw returns the middleware of the routes open to everyone
func NewPublicMw(rl *RateLimiter) Middleware {
	return func(h http.HandlerFunc, rateLimit bool) http.Handler {
		return ApplyLimit(rl, h, rateLimit)
	}
}
