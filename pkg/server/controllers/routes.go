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
	"net/http"

	"github.com/dnote/herplog/pkg/server/app"
	mw "github.com/dnote/herplog/pkg/server/middleware"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// Route represents a single route
type Route struct {
	Method    string
	Pattern   string
	Handler   http.HandlerFunc
	RateLimit bool
}

// RouteConfig is the configuration for routes
type RouteConfig struct {
	Controllers *Controllers
	// PublicRoutes are served without authentication
	PublicRoutes []Route
	// APIRoutes are served under /api and require the API key if one is set
	APIRoutes []Route
}

// NewPublicRoutes returns the routes open to everyone
func NewPublicRoutes(a *app.App, c *Controllers) []Route {
	return []Route{
		{"GET", "/health", c.Health.Index, false},
		{"GET", "/api/health", c.Health.Index, false},
	}
}

// NewAPIRoutes returns a new api routes
func NewAPIRoutes(a *app.App, c *Controllers) []Route {
	return []Route{
		{"POST", "/v1/records/{type}", c.Records.Create, true},
		{"GET", "/v1/records/{type}/changes", c.Records.Changes, true},
		{"GET", "/v1/records/{type}/{uuid}", c.Records.Show, true},
		{"PATCH", "/v1/records/{type}/{uuid}", c.Records.Update, true},
		{"DELETE", "/v1/records/{type}/{uuid}", c.Records.Delete, true},
	}
}

// NewRouteConfig returns the route configuration of the app
func NewRouteConfig(a *app.App) RouteConfig {
	ctl := New(a)

	return RouteConfig{
		Controllers:  ctl,
		PublicRoutes: NewPublicRoutes(a, ctl),
		APIRoutes:    NewAPIRoutes(a, ctl),
	}
}

func registerRoutes(router *mux.Router, wrapper mw.Middleware, routes []Route) {
	for _, route := range routes {
		wrappedHandler := wrapper(route.Handler, route.RateLimit)

		router.
			Handle(route.Pattern, wrappedHandler).
			Methods(route.Method)
	}
}

func newRateLimiter(a *app.App) *mw.RateLimiter {
	if a.RateLimitPerSecond == 0 {
		return nil
	}

	return mw.NewRateLimiter(a.Clock, a.RateLimitPerSecond, a.RateLimitBurst)
}

// NewRouter creates and returns a new router
func NewRouter(app *app.App, rc RouteConfig) (http.Handler, error) {
	if err := app.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating the app parameters")
	}

	limiter := newRateLimiter(app)
	router := mux.NewRouter().StrictSlash(true)

	registerRoutes(router, mw.NewPublicMw(limiter), rc.PublicRoutes)

	apiRouter := router.PathPrefix("/api").Subrouter()
	registerRoutes(apiRouter, mw.NewAPIMw(app, limiter), rc.APIRoutes)

	return mw.Global(router), nil
}
