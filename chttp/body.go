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
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-kivik/couch/errors"
)

// CloseBody drains and closes body, so the connection can be re-used.
func CloseBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// DecodeJSON unmarshals the response body into i, and closes it. A body
// that is not valid JSON is a KindRequestFailed error.
func DecodeJSON(r *http.Response, i interface{}) error {
	defer CloseBody(r.Body)
	err := json.NewDecoder(r.Body).Decode(i)
	if err == nil {
		return nil
	}
	return &errors.Error{Kind: errors.KindRequestFailed, Status: http.StatusBadGateway, Err: err}
}

// BodyEncoder returns a function suitable for Options.GetBody, which encodes
// i anew on every call.
func BodyEncoder(i interface{}) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return EncodeBody(i), nil
	}
}

// EncodeBody returns i as a request body. Strings, byte slices and
// json.RawMessage are sent verbatim; anything else is JSON encoded. An
// encoding failure is a KindBadRequest error, returned by the first Read.
func EncodeBody(i interface{}) io.ReadCloser {
	var raw []byte
	switch t := i.(type) {
	case []byte:
		raw = t
	case json.RawMessage:
		raw = t
	case string:
		raw = []byte(t)
	default:
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(i); err != nil {
			return io.NopCloser(&errReader{err: badRequest(err)})
		}
		raw = buf.Bytes()
	}
	return io.NopCloser(bytes.NewReader(raw))
}
