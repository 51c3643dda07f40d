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
	"crypto/subtle"
	"net/http"

	"github.com/dnote/herplog/pkg/log"
)

// APIKeyAuth is an authentication middleware requiring the bearer API key.
// An empty key lets every request through.
func APIKeyAuth(apiKey string, next http.HandlerFunc) http.HandlerFunc {
	if apiKey == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential, err := getCredential(r)
		if err != nil {
			log.WithFields(log.Fields{
				"ip": lookupIP(r),
			}).Warn("malformed authorization header")
			RespondUnauthorized(w)
			return
		}

		if credential == "" || subtle.ConstantTimeCompare([]byte(credential), []byte(apiKey)) != 1 {
			RespondUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}
