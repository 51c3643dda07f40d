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

// Package client is the gateway to the remote API. Every failure it returns
// is classified as either transient or a definitive rejection.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dnote/herplog/pkg/cli/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// DefaultRequestTimeout bounds a single call to the remote
const DefaultRequestTimeout = 15 * time.Second

// ErrContentTypeMismatch is an error for a response with an unexpected content type
var ErrContentTypeMismatch = errors.New("content type mismatch")

// HTTPError represents an HTTP error response from the server
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(`response %d "%s"`, e.StatusCode, e.Message)
}

var contentTypeApplicationJSON = "application/json"

const (
	// clientRateLimitPerSecond is the max requests per second the client will make
	clientRateLimitPerSecond = 50
	// clientRateLimitBurst is the burst capacity for rate limiting
	clientRateLimitBurst = 100
)

// rateLimitedTransport wraps an http.RoundTripper with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// NewRateLimitedHTTPClient creates an HTTP client with rate limiting
func NewRateLimitedHTTPClient() *http.Client {
	interval := time.Second / time.Duration(clientRateLimitPerSecond)

	transport := &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Every(interval), clientRateLimitBurst),
	}
	return &http.Client{
		Transport: transport,
	}
}

// Params is the parameters for a client
type Params struct {
	// Endpoint is the base URL of the API, without a trailing slash
	Endpoint       string
	APIKey         string
	Version        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

// Client talks to the remote API
type Client struct {
	endpoint   string
	apiKey     string
	version    string
	httpClient *http.Client
	timeout    time.Duration
}

// New returns a new client
func New(p Params) *Client {
	hc := p.HTTPClient
	if hc == nil {
		hc = NewRateLimitedHTTPClient()
	}

	timeout := p.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	return &Client{
		endpoint:   strings.TrimRight(p.Endpoint, "/"),
		apiKey:     p.APIKey,
		version:    p.Version,
		httpClient: hc,
		timeout:    timeout,
	}
}

// request is an outgoing call to the remote
type request struct {
	method         string
	path           string
	body           string
	idempotencyKey string
}

func (c *Client) getReq(ctx context.Context, r request) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s%s", c.endpoint, r.path)
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, strings.NewReader(r.body))
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}

	req.Header.Set("CLI-Version", c.version)
	if r.body != "" {
		req.Header.Set("Content-Type", contentTypeApplicationJSON)
	}
	if r.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", r.idempotencyKey)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	return req, nil
}

// checkRespErr returns an HTTPError if the response indicates an error
func checkRespErr(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "server responded with %d but client could not read the response body", res.StatusCode)
	}

	return &HTTPError{
		StatusCode: res.StatusCode,
		Message:    strings.TrimRight(string(body), "\n"),
	}
}

func checkContentType(res *http.Response) error {
	got := res.Header.Get("Content-Type")
	if !strings.HasPrefix(got, contentTypeApplicationJSON) {
		return errors.Wrapf(ErrContentTypeMismatch, "got: '%s' want: '%s'. Did you configure your endpoint correctly?", got, contentTypeApplicationJSON)
	}

	return nil
}

// do performs the request within the per-call timeout and reads the whole
// response body. Errors are classified before they are returned.
func (c *Client) do(ctx context.Context, r request, expectJSON bool) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.getReq(ctx, r)
	if err != nil {
		return nil, errors.Wrap(err, "getting request")
	}

	log.Debug("HTTP %s %s\n", r.method, r.path)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(errors.Wrap(err, "making http request"))
	}
	defer res.Body.Close()

	log.Debug("HTTP %d %s\n", res.StatusCode, res.Status)

	if err := checkRespErr(res); err != nil {
		return nil, classify(err)
	}

	if expectJSON {
		if err := checkContentType(res); err != nil {
			return nil, classify(errors.Wrap(err, "unexpected Content-Type"))
		}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, classify(errors.Wrap(err, "reading the response body"))
	}

	return body, nil
}
