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

package couch

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-kivik/couch/chttp"
)

type customTransport func(*http.Request) (*http.Response, error)

var _ http.RoundTripper = customTransport(nil)

func (t customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t(req)
	if resp != nil && resp.Request == nil {
		resp.Request = req
	}
	return resp, err
}

func newCustomClient(fn func(*http.Request) (*http.Response, error)) *Client {
	c, err := New("http://example.com/",
		chttp.OptionNoRequestCompression(),
		OptionHTTPClient(&http.Client{Transport: customTransport(fn)}),
	)
	if err != nil {
		panic(err)
	}
	return c
}

func newTestClient(response *http.Response, err error) *Client {
	return newCustomClient(func(req *http.Request) (*http.Response, error) {
		if e := consume(req.Body); e != nil {
			return nil, e
		}
		if err != nil {
			return nil, err
		}
		response := response
		response.Request = req
		return response, nil
	})
}

func newTestDB(response *http.Response, err error) *DB {
	return newTestClient(response, err).DB("testdb")
}

func newCustomDB(fn func(*http.Request) (*http.Response, error)) *DB {
	return newCustomClient(fn).DB("testdb")
}

// jsonResponse returns a response with a JSON body.
func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Header:        http.Header{"Content-Type": {"application/json"}},
		ContentLength: int64(len(body)),
		Body:          Body(body),
	}
}

func Body(str string) io.ReadCloser {
	if !strings.HasSuffix(str, "\n") {
		str += "\n"
	}
	return io.NopCloser(strings.NewReader(str))
}

// consume consumes and closes r or does nothing if it is nil.
func consume(r io.ReadCloser) error {
	if r == nil {
		return nil
	}
	defer r.Close() // nolint: errcheck
	_, err := io.ReadAll(r)
	return err
}

// requestJSON decodes the JSON body of req.
func requestJSON(t *testing.T, req *http.Request) map[string]interface{} {
	t.Helper()
	defer req.Body.Close() // nolint: errcheck
	var body map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body
}
