// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package chttp

import (
	"net/http"
	"regexp"
	"testing"

	"gitlab.com/flimzy/testy"
)

// roundTripFunc serves requests without a network.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// stubClient returns a client for http://example.com/ whose requests are
// answered by fn.
func stubClient(t *testing.T, fn roundTripFunc, opts ...Option) *Client {
	t.Helper()
	c, err := New(&http.Client{Transport: fn}, "http://example.com/", opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// ok answers every request with an empty 200 response.
func ok(req *http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
}

// statusErrorRE is errtest.StatusErrorRE, except that an empty expected
// pattern requires a nil error.
func statusErrorRE(t *testing.T, expected string, status int, actual error) {
	t.Helper()
	if expected == "" {
		if actual != nil {
			t.Fatalf("Unexpected error: %s", actual)
		}
		return
	}
	if actual == nil {
		t.Fatalf("Expected error matching %q, got none", expected)
	}
	if !regexp.MustCompile(expected).MatchString(actual.Error()) {
		t.Errorf("Unexpected error: %s (expected %s)", actual, expected)
	}
	if got := testy.StatusCode(actual); got != status {
		t.Errorf("Unexpected status code: %d (expected %d)", got, status)
	}
	t.SkipNow()
}
