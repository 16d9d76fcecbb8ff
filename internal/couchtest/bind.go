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

package couchtest

import (
	"encoding/json"
	"mime"
	"net/http"
)

const (
	typeJSON = "application/json"
	typeForm = "application/x-www-form-urlencoded"
)

// bind decodes the request body into v. JSON and form bodies are accepted,
// as by CouchDB's /_session endpoint.
func (s *Server) bind(r *http.Request, v interface{}) error {
	defer r.Body.Close() // nolint: errcheck
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case typeJSON:
		if json.NewDecoder(r.Body).Decode(v) != nil {
			return errBadRequest("invalid UTF-8 JSON")
		}
		return nil
	case typeForm:
		if err := r.ParseForm(); err != nil {
			return errBadRequest(err.Error())
		}
		return s.formDecoder.Decode(r.Form, v)
	}
	return &couchError{
		status: http.StatusUnsupportedMediaType,
		Err:    "bad_content_type",
		Reason: "Content-Type must be '" + typeForm + "' or '" + typeJSON + "'",
	}
}
