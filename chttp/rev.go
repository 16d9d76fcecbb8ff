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
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-kivik/couch/errors"
)

// ETag returns the unquoted ETag header of resp, and whether it was present.
func ETag(resp *http.Response) (string, bool) {
	if resp == nil {
		return "", false
	}
	for name, values := range resp.Header {
		if strings.EqualFold(name, "ETag") && len(values) > 0 {
			return strings.Trim(values[0], `"`), true
		}
	}
	return "", false
}

// GetRev returns the document revision of a successful response, read from
// the ETag header or, failing that, from the _rev field of the body.
func GetRev(resp *http.Response) (string, error) {
	if err := ResponseError(resp); err != nil {
		return "", err
	}
	if rev, ok := ETag(resp); ok {
		return rev, nil
	}
	return revFromBody(resp)
}

// revFromBody reads only as much of the body as it takes to find _rev, then
// restores resp.Body so the caller can decode it in full.
func revFromBody(resp *http.Response) (string, error) {
	if resp.Request == nil || resp.Request.Method == http.MethodHead || resp.Body == nil {
		return "", errors.New(errors.KindRequestFailed, "unable to determine document revision")
	}
	consumed := &bytes.Buffer{}
	rev, err := scanRev(io.TeeReader(resp.Body, consumed))
	resp.Body = replayedBody{
		Reader: io.MultiReader(consumed, resp.Body),
		Closer: resp.Body,
	}
	if err != nil {
		return "", &errors.Error{
			Kind:    errors.KindRequestFailed,
			Message: "unable to determine document revision: " + err.Error(),
			Err:     err,
		}
	}
	return rev, nil
}

type replayedBody struct {
	io.Reader
	io.Closer
}

// scanRev returns the top-level _rev of the JSON object in r. Other values
// are skipped whole, so a nested _rev is never mistaken for the document's.
func scanRev(r io.Reader) (string, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	if tok != json.Delim('{') {
		return "", fmt.Errorf("expected JSON object, found %v", tok)
	}
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return "", err
		}
		if key != "_rev" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return "", err
			}
			continue
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return "", err
		}
		rev, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("_rev is %T, not a string", value)
		}
		return rev, nil
	}
	return "", fmt.Errorf("no _rev in response body")
}
