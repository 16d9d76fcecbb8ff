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
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-kivik/couch/errors"
)

// Option is passed to New, or to any operation that accepts options. Query
// options set a parameter on the request; client options configure the
// connection. Any chttp.Option may be passed to New.
type Option interface {
	Apply(target interface{})
}

// Params is a collection of arbitrary query parameters, encoded according to
// the same rules as the typed options.
type Params map[string]interface{}

var _ Option = Params(nil)

// Apply copies the parameters into a map[string]interface{} target.
func (p Params) Apply(target interface{}) {
	if opts, ok := target.(map[string]interface{}); ok {
		for k, v := range p {
			opts[k] = v
		}
	}
}

// Param returns an option that sets a single query parameter.
func Param(key string, value interface{}) Option {
	return Params{key: value}
}

type allOptions []Option

var _ Option = (allOptions)(nil)

func (o allOptions) Apply(t interface{}) {
	for _, opt := range o {
		if opt != nil {
			opt.Apply(t)
		}
	}
}

func (o allOptions) params() map[string]interface{} {
	params := map[string]interface{}{}
	o.Apply(params)
	return params
}

// Key restricts a view to rows matching key.
func Key(key interface{}) Option { return Param("key", key) }

// Keys restricts a view to rows matching any of keys. Views queried with
// keys are sent as a POST request.
func Keys(keys ...interface{}) Option { return Param("keys", keys) }

// StartKey sets the first key of a view range.
func StartKey(key interface{}) Option { return Param("startkey", key) }

// EndKey sets the last key of a view range.
func EndKey(key interface{}) Option { return Param("endkey", key) }

// StartKeyDocID sets the document ID at which to start, among rows sharing
// the start key.
func StartKeyDocID(id string) Option { return Param("startkey_docid", id) }

// Skip skips the first n rows.
func Skip(n int) Option { return Param("skip", n) }

// Limit limits the number of rows returned.
func Limit(n int) Option { return Param("limit", n) }

// Descending reverses the order of rows.
func Descending() Option { return Param("descending", true) }

// Group groups reduce results by key.
func Group() Option { return Param("group", true) }

// GroupLevel sets the array key depth used for grouping.
func GroupLevel(n int) Option { return Param("group_level", n) }

// Reduce enables or disables the view's reduce function.
func Reduce(reduce bool) Option { return Param("reduce", reduce) }

// IncludeDocs includes each row's document. It forces reduce=false.
func IncludeDocs() Option { return Param("include_docs", true) }

// Sorted requests sorted (the default) or unsorted results. Unsorted
// results carry no offset or total_rows.
func Sorted(sorted bool) Option { return Param("sorted", sorted) }

// Update controls whether a view is brought up to date before it is read.
// Valid values are "true", "false" and "lazy".
func Update(update string) Option { return Param("update", update) }

// Rev requests a specific document revision.
func Rev(rev string) Option { return Param("rev", rev) }

// Revs includes the document's revision history.
func Revs() Option { return Param("revs", true) }

// Conflicts includes information about conflicting revisions.
func Conflicts() Option { return Param("conflicts", true) }

type batchMode struct{}

func (batchMode) Apply(target interface{}) {
	if opts, ok := target.(map[string]interface{}); ok {
		opts["batch"] = "ok"
	}
}

func (batchMode) String() string { return "[batch=ok]" }

// Batch asks the server to store the write in batch mode. The write is
// acknowledged before it is committed, and no revision is returned.
func Batch() Option { return batchMode{} }

// NewEdits controls whether the server assigns new revisions during a bulk
// update. Pass false to store the revisions supplied with each document, as
// when restoring a dump.
func NewEdits(newEdits bool) Option { return Param("new_edits", newEdits) }

// jsonKeys are always JSON encoded, even when given as a string.
var jsonKeys = map[string]bool{
	"key":       true,
	"keys":      true,
	"startkey":  true,
	"endkey":    true,
	"start_key": true,
	"end_key":   true,
	"open_revs": true,
	"doc_ids":   true,
}

var updateValues = map[string]bool{"true": true, "false": true, "lazy": true}

// encodeKey encodes a key to a view query, or similar, to be passed to
// CouchDB.
func encodeKey(i interface{}) (string, error) {
	if raw, ok := i.(json.RawMessage); ok {
		return string(raw), nil
	}
	raw, err := json.Marshal(i)
	if err != nil {
		return "", &errors.Error{Kind: errors.KindBadRequest, Status: http.StatusBadRequest, Err: err}
	}
	return string(raw), nil
}

func isTrue(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	}
	return false
}

// encodeParams converts params to a query string. Nil values are omitted.
func encodeParams(params map[string]interface{}) (url.Values, error) {
	if isTrue(params["include_docs"]) {
		params["reduce"] = false
	}
	if update, ok := params["update"]; ok {
		if s := fmt.Sprint(update); !updateValues[s] {
			return nil, errors.Errorf(errors.KindBadRequest, "couch: invalid value for update: %q", s)
		}
		params["update"] = fmt.Sprint(update)
	}
	query := url.Values{}
	for key, value := range params {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok && !jsonKeys[key] {
			query.Set(key, s)
			continue
		}
		encoded, err := encodeKey(value)
		if err != nil {
			return nil, err
		}
		query.Set(key, encoded)
	}
	return query, nil
}

func encodeOptions(opts []Option) (url.Values, error) {
	return encodeParams(allOptions(opts).params())
}

type clientOptions struct {
	httpClient *http.Client
}

type optionHTTPClient struct {
	*http.Client
}

func (o optionHTTPClient) Apply(target interface{}) {
	if opts, ok := target.(*clientOptions); ok {
		opts.httpClient = o.Client
	}
}

func (optionHTTPClient) String() string { return "custom *http.Client" }

// OptionHTTPClient may be passed to New to specify a custom *http.Client for
// all requests.
func OptionHTTPClient(client *http.Client) Option {
	return optionHTTPClient{Client: client}
}
