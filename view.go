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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-kivik/couch/chttp"
	"github.com/go-kivik/couch/errors"
)

// Row is a single row of a view result. Fields absent from the server's
// response are left empty; Key, Value and Doc are nil when absent, and hold
// the literal null when the server sent null.
type Row struct {
	ID    string          `json:"id"`
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
	Doc   json.RawMessage `json:"doc"`
	// Error is set for a row the server could not produce, such as a key
	// passed in keys that does not exist. It does not affect other rows.
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// ScanKey unmarshals the row's key into dest.
func (r *Row) ScanKey(dest interface{}) error {
	return scanRaw(r.Key, "key", dest)
}

// ScanValue unmarshals the row's value into dest.
func (r *Row) ScanValue(dest interface{}) error {
	return scanRaw(r.Value, "value", dest)
}

// ScanDoc unmarshals the row's document into dest. The document is only
// present when the view was queried with IncludeDocs.
func (r *Row) ScanDoc(dest interface{}) error {
	return scanRaw(r.Doc, "doc", dest)
}

func scanRaw(raw json.RawMessage, field string, dest interface{}) error {
	if raw == nil {
		return errors.Errorf(errors.KindNotFound, "couch: row has no %s", field)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &errors.Error{Kind: errors.KindBadRequest, Message: "couch: scan " + field, Err: err}
	}
	return nil
}

// ViewResult is the decoded result of a view query. Offset and TotalRows are
// nil when the server did not send them, as for an unsorted or reduced view.
type ViewResult struct {
	Rows      []Row           `json:"rows"`
	Offset    *int64          `json:"offset"`
	TotalRows *int64          `json:"total_rows"`
	UpdateSeq json.RawMessage `json:"update_seq"`
}

// DecodeViewResult decodes a view response body. Rows are returned in the
// order the server sent them.
func DecodeViewResult(r io.Reader) (*ViewResult, error) {
	var result ViewResult
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, &errors.Error{Kind: errors.KindRequestFailed, Message: "couch: invalid view result", Err: err}
	}
	if result.Rows == nil {
		result.Rows = []Row{}
	}
	return &result, nil
}

// viewPath returns the path of the named view. A name beginning with an
// underscore, such as _all_docs or _design_docs, is addressed directly.
// Otherwise the name has the form "ddoc/view".
func (db *DB) viewPath(name string) (string, error) {
	if strings.HasPrefix(name, "_") {
		return db.path(strings.Split(name, "/")...), nil
	}
	ddoc, view, ok := strings.Cut(name, "/")
	if !ok || ddoc == "" || view == "" {
		return "", errors.Errorf(errors.KindBadRequest, "couch: invalid view name %q, expected ddoc/view", name)
	}
	return db.path("_design", ddoc, "_view", view), nil
}

// View queries the named view. name is either a reserved view, such as
// "_all_docs", or "ddoc/view" for a view defined in _design/ddoc. When Keys
// is given, the keys are sent in a POST body rather than in the URL.
func (db *DB) View(ctx context.Context, name string, opts ...Option) (*ViewResult, error) {
	path, err := db.viewPath(name)
	if err != nil {
		return nil, err
	}
	params := allOptions(opts).params()
	method := http.MethodGet
	chttpOpts := &chttp.Options{}
	if keys, ok := params["keys"]; ok && keys != nil {
		delete(params, "keys")
		method = http.MethodPost
		chttpOpts.GetBody = chttp.BodyEncoder(map[string]interface{}{"keys": keys})
	}
	chttpOpts.Query, err = encodeParams(params)
	if err != nil {
		return nil, err
	}
	resp, err := db.client.DoReq(ctx, method, path, chttpOpts)
	if err != nil {
		return nil, err
	}
	defer chttp.CloseBody(resp.Body)
	if err := chttp.ResponseError(resp); err != nil {
		return nil, missingView(err)
	}
	return DecodeViewResult(resp.Body)
}
