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

package client

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind is the class of a gateway failure
type Kind int

const (
	// Transient failures may succeed if the same request is retried later
	Transient Kind = iota
	// DefinitiveRejection failures will fail the same way on every retry
	DefinitiveRejection
)

func (k Kind) String() string {
	if k == DefinitiveRejection {
		return "rejected"
	}

	return "transient"
}

// GatewayError is a classified failure of a call to the remote
type GatewayError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: response %d %q", e.Kind, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Reason returns a message suitable for users
func (e *GatewayError) Reason() string {
	if e.Message != "" {
		return e.Message
	}
	if e.StatusCode != 0 {
		return http.StatusText(e.StatusCode)
	}

	return e.Kind.String()
}

// statusKind maps an HTTP error status to a failure kind. Timeouts, rate
// limits, authentication and server errors can heal on their own.
func statusKind(code int) Kind {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooEarly,
		http.StatusTooManyRequests,
		http.StatusUnauthorized:
		return Transient
	}

	if code >= 500 {
		return Transient
	}

	return DefinitiveRejection
}

// classify normalizes any error produced while talking to the remote into
// a GatewayError
func classify(err error) error {
	if err == nil {
		return nil
	}

	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}

	var he *HTTPError
	if errors.As(err, &he) {
		return &GatewayError{
			Kind:       statusKind(he.StatusCode),
			StatusCode: he.StatusCode,
			Message:    he.Message,
			Err:        err,
		}
	}

	return &GatewayError{
		Kind:    Transient,
		Message: err.Error(),
		Err:     err,
	}
}

// AsGatewayError returns the GatewayError in the chain of err, if any
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}

	return nil, false
}

// IsRejection reports whether err is a definitive rejection by the remote
func IsRejection(err error) bool {
	ge, ok := AsGatewayError(err)
	return ok && ge.Kind == DefinitiveRejection
}

// IsTransient reports whether err is a transient gateway failure
func IsTransient(err error) bool {
	ge, ok := AsGatewayError(err)
	return ok && ge.Kind == Transient
}
