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
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/go-kivik/couch/errors"
)

// maxErrorBody bounds how much of an error response is read for its reason.
const maxErrorBody = 1 << 20

// HTTPError is the error body of a failed CouchDB response. It is wrapped by
// the *errors.Error that ResponseError returns.
type HTTPError struct {
	// Response is the failed response. Its body has already been closed.
	Response *http.Response `json:"-"`

	// Name is the server-supplied error name, e.g. "not_found".
	Name string `json:"error"`

	// Reason is the server-supplied error reason.
	Reason string `json:"reason"`
}

func (e *HTTPError) Error() string {
	return errors.FromStatus(e.HTTPStatus(), e.Reason).Error()
}

// HTTPStatus returns the status code of the response.
func (e *HTTPError) HTTPStatus() int {
	return e.Response.StatusCode
}

// ResponseError returns nil for a response with a status below 400.
// Otherwise it closes the body, and returns an error classified by the
// status code, carrying the server's reason when the body is a JSON error.
func ResponseError(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	defer CloseBody(resp.Body)
	body := &HTTPError{Response: resp}
	if hasErrorBody(resp) {
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(body)
	}
	err := errors.FromStatus(resp.StatusCode, body.Reason)
	err.Err = body
	return err
}

func hasErrorBody(resp *http.Response) bool {
	if resp.Body == nil || resp.ContentLength == 0 {
		return false
	}
	if resp.Request != nil && resp.Request.Method == http.MethodHead {
		return false
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return mediaType == typeJSON
}
