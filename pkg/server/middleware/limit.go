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
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dnote/herplog/pkg/clock"
	"github.com/dnote/herplog/pkg/log"
	"golang.org/x/time/rate"
)

const (
	// visitorTTL is how long a visitor is remembered after its last request
	visitorTTL = 3 * time.Minute
	// sweepInterval is the minimum time between two sweeps of the visitors
	sweepInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds the rate limiting state for visitors
type RateLimiter struct {
	clock     clock.Clock
	perSecond int
	burst     int

	mtx       sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewRateLimiter creates a new rate limiter accepting perSecond requests
// per second from each IP, with the given burst capacity
func NewRateLimiter(c clock.Clock, perSecond, burst int) *RateLimiter {
	if perSecond < 1 {
		perSecond = 1
	}
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		clock:     c,
		perSecond: perSecond,
		burst:     burst,
		visitors:  make(map[string]*visitor),
		lastSweep: c.Now(),
	}
}

// getVisitor returns a limiter for a visitor with the given identifier. It
// adds the visitor to the map if not seen before.
func (rl *RateLimiter) getVisitor(identifier string) *rate.Limiter {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	now := rl.clock.Now()
	rl.sweep(now)

	v, exists := rl.visitors[identifier]
	if !exists {
		interval := time.Second / time.Duration(rl.perSecond)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(interval), rl.burst)}
		rl.visitors[identifier] = v
	}
	v.lastSeen = now

	return v.limiter
}

// sweep deletes the visitors that have not been seen in a while. The caller
// must hold the lock.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < sweepInterval {
		return
	}

	for identifier, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, identifier)
		}
	}
	rl.lastSweep = now
}

func (rl *RateLimiter) visitorCount() int {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	return len(rl.visitors)
}

// lookupIP returns the request's IP
func lookupIP(r *http.Request) string {
	realIP := r.Header.Get("X-Real-IP")
	forwardedFor := r.Header.Get("X-Forwarded-For")

	if forwardedFor != "" {
		parts := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(parts[0])
	}

	if realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// Limit is a middleware to rate limit the handler
func (rl *RateLimiter) Limit(next http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier := lookupIP(r)
		limiter := rl.getVisitor(identifier)

		if !limiter.Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			log.WithFields(log.Fields{
				"ip": identifier,
			}).Warn("too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ApplyLimit applies the rate limit if the limiter is set and the route is
// rate limited
func ApplyLimit(rl *RateLimiter, h http.HandlerFunc, rateLimit bool) http.Handler {
	if rl == nil || !rateLimit {
		return h
	}

	return rl.Limit(h)
}
