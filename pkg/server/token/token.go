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

// Package token generates the secrets shared with the clients
package token

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
)

// apiKeyBytes is the number of random bytes in an API key
const apiKeyBytes = 32

// generateRandom generates random bits of given length
func generateRandom(bits int) (string, error) {
	b := make([]byte, bits)

	_, err := rand.Read(b)
	if err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateAPIKey returns a new random API key safe to use in a header
func GenerateAPIKey() (string, error) {
	key, err := generateRandom(apiKeyBytes)
	if err != nil {
		return "", errors.Wrap(err, "generating api key")
	}

	return key, nil
}
