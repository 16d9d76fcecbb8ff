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
	"net/http"
	"strings"

	"github.com/go-kivik/couch/chttp"
	"github.com/go-kivik/couch/errors"
)

// FindResult is the result of a Mango query.
type FindResult struct {
	Docs           []Document             `json:"docs"`
	Bookmark       string                 `json:"bookmark"`
	Warning        string                 `json:"warning"`
	ExecutionStats map[string]interface{} `json:"execution_stats"`
}

// Find runs a Mango query. query may be any value that marshals to a JSON
// query object, or a JSON string.
func (db *DB) Find(ctx context.Context, query interface{}) (*FindResult, error) {
	if query == nil {
		return nil, missingArg("query")
	}
	var result FindResult
	err := db.client.DoJSON(ctx, http.MethodPost, db.path("_find"), &chttp.Options{
		GetBody: chttp.BodyEncoder(query),
	}, &result)
	if err != nil {
		return nil, missingDatabase(err)
	}
	if result.Docs == nil {
		result.Docs = []Document{}
	}
	return &result, nil
}

// QueryPlan is the query plan returned by Explain.
type QueryPlan struct {
	DBName   string                 `json:"dbname"`
	Index    map[string]interface{} `json:"index"`
	Selector map[string]interface{} `json:"selector"`
	Options  map[string]interface{} `json:"opts"`
	Limit    int64                  `json:"limit"`
	Skip     int64                  `json:"skip"`
	Fields   fields                 `json:"fields"`
	Range    map[string]interface{} `json:"range"`
}

// fields is nil when the server reports "all_fields".
type fields []interface{}

func (f *fields) UnmarshalJSON(data []byte) error {
	if string(data) == `"all_fields"` {
		return nil
	}
	var i []interface{}
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	*f = i
	return nil
}

// Explain returns the plan the server would use to run query.
func (db *DB) Explain(ctx context.Context, query interface{}) (*QueryPlan, error) {
	if query == nil {
		return nil, missingArg("query")
	}
	var plan QueryPlan
	err := db.client.DoJSON(ctx, http.MethodPost, db.path("_explain"), &chttp.Options{
		GetBody: chttp.BodyEncoder(query),
	}, &plan)
	if err != nil {
		return nil, missingDatabase(err)
	}
	return &plan, nil
}

// Index is a Mango index definition.
type Index struct {
	DesignDoc  string      `json:"ddoc"`
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	Definition interface{} `json:"def"`
}

// Indexes returns the Mango indexes of the database.
func (db *DB) Indexes(ctx context.Context) ([]Index, error) {
	var result struct {
		Indexes []Index `json:"indexes"`
	}
	if err := db.client.DoJSON(ctx, http.MethodGet, db.path("_index"), nil, &result); err != nil {
		return nil, missingDatabase(err)
	}
	return result.Indexes, nil
}

// deJSONify unmarshals a JSON string, byte slice or json.RawMessage, so it
// can be embedded in a larger request body. Other values are returned as-is.
func deJSONify(i interface{}) (interface{}, error) {
	var data []byte
	switch t := i.(type) {
	case string:
		data = []byte(t)
	case []byte:
		data = t
	case json.RawMessage:
		data = t
	default:
		return i, nil
	}
	var x interface{}
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, &errors.Error{Kind: errors.KindBadRequest, Status: http.StatusBadRequest, Err: err}
	}
	return x, nil
}

// CreateIndex creates a Mango index. ddoc and name are optional; the server
// generates them when empty.
func (db *DB) CreateIndex(ctx context.Context, ddoc, name string, index interface{}) error {
	if index == nil {
		return missingArg("index")
	}
	indexObj, err := deJSONify(index)
	if err != nil {
		return err
	}
	parameters := struct {
		Index interface{} `json:"index"`
		Ddoc  string      `json:"ddoc,omitempty"`
		Name  string      `json:"name,omitempty"`
	}{
		Index: indexObj,
		Ddoc:  ddoc,
		Name:  name,
	}
	_, err = db.client.DoError(ctx, http.MethodPost, db.path("_index"), &chttp.Options{
		GetBody: chttp.BodyEncoder(parameters),
	})
	return missingDatabase(err)
}

// DeleteIndex deletes the named Mango index of the design document ddoc,
// given with or without the _design/ prefix.
func (db *DB) DeleteIndex(ctx context.Context, ddoc, name string) error {
	ddoc = strings.TrimPrefix(ddoc, prefixDesign)
	if ddoc == "" {
		return missingArg("ddoc")
	}
	if name == "" {
		return missingArg("name")
	}
	_, err := db.client.DoError(ctx, http.MethodDelete, db.path("_index", ddoc, "json", name), nil)
	return missingDocument(err)
}
