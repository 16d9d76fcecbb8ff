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


// Package errtest holds error assertions shared by the test suites.
package errtest

import (
	"testing"

	"gitlab.com/flimzy/testy"
)

// Error fails t unless actual's text equals expected. An empty expected
// string means no error. A non-nil actual ends the test with t.SkipNow.
func Error(t *testing.T, expected string, actual error) {
	t.Helper()
	if !testy.ErrorMatches(expected, actual) {
		t.Errorf("Unexpected error: %s (expected %s)", text(actual), expected)
	}
	if actual != nil {
		t.SkipNow()
	}
}

// ErrorRE is Error, with expected treated as a regular expression.
func ErrorRE(t *testing.T, expected string, actual error) {
	t.Helper()
	if !testy.ErrorMatchesRE(expected, actual) {
		t.Errorf("Unexpected error: %s (expected /%s/)", text(actual), expected)
	}
	if actual != nil {
		t.SkipNow()
	}
}

// StatusError is Error, and also compares the HTTP status embedded in
// actual. A nil error has status 0.
func StatusError(t *testing.T, expected string, status int, actual error) {
	t.Helper()
	if !testy.ErrorMatches(expected, actual) {
		t.Errorf("Unexpected error: %s (expected %s)", text(actual), expected)
	}
	checkStatus(t, status, actual)
}

// StatusErrorRE is StatusError, with expected treated as a regular
// expression.
func StatusErrorRE(t *testing.T, expected string, status int, actual error) {
	t.Helper()
	if !testy.ErrorMatchesRE(expected, actual) {
		t.Errorf("Unexpected error: %s (expected /%s/)", text(actual), expected)
	}
	checkStatus(t, status, actual)
}

func checkStatus(t *testing.T, status int, actual error) {
	t.Helper()
	if got := testy.StatusCode(actual); got != status {
		t.Errorf("Unexpected status code: %d (expected %d)", got, status)
	}
	if actual != nil {
		t.SkipNow()
	}
}

func text(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
