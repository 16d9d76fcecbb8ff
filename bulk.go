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

	"github.com/go-kivik/couch/chttp"
	"github.com/go-kivik/couch/errors"
)

// BulkResult is the outcome of one document of a bulk update.
type BulkResult struct {
	ID  string
	Rev string
	// Err is nil on success. A rejected revision is an error of kind
	// KindUpdateConflict; any other per-document failure is KindUnknown.
	Err error
}

// OK reports whether the document was stored.
func (r BulkResult) OK() bool {
	return r.Err == nil
}

type bulkDocResult BulkResult

func (r *bulkDocResult) UnmarshalJSON(p []byte) error {
	var target struct {
		ID     string `json:"id"`
		Rev    string `json:"rev"`
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(p, &target); err != nil {
		return err
	}
	r.ID, r.Rev = target.ID, target.Rev
	switch target.Error {
	case "":
		// No error
	case "conflict":
		r.Err = &errors.Error{
			Kind:    errors.KindUpdateConflict,
			Status:  http.StatusConflict,
			Message: "conflict: " + target.Reason,
			Reason:  target.Reason,
		}
	default:
		r.Err = &errors.Error{
			Kind:    errors.KindUnknown,
			Message: target.Error + ": " + target.Reason,
			Reason:  target.Reason,
		}
	}
	return nil
}

// Update stores docs in a single request, and returns one result per
// document, in the same order. A failure of an individual document is
// reported in its result, not as the returned error. Each document that is
// stored successfully has its _id and _rev updated, when it is a Document,
// a map, or implements Identifiable.
//
// With NewEdits(false), the server stores the revisions supplied in the
// documents rather than generating new ones, as a replicator does.
func (db *DB) Update(ctx context.Context, docs []interface{}, opts ...Option) ([]BulkResult, error) {
	if len(docs) == 0 {
		return []BulkResult{}, nil
	}
	params := allOptions(opts).params()
	body := map[string]interface{}{"docs": docs}
	if newEdits, ok := params["new_edits"]; ok {
		delete(params, "new_edits")
		body["new_edits"] = isTrue(newEdits)
	}
	query, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	resp, err := db.client.DoReq(ctx, http.MethodPost, db.path("_bulk_docs"), &chttp.Options{
		Query:   query,
		GetBody: chttp.BodyEncoder(body),
	})
	if err != nil {
		return nil, err
	}
	defer chttp.CloseBody(resp.Body)
	// 417 means one or more documents was rejected by a validation
	// function; the body still holds the per-document results.
	if resp.StatusCode != http.StatusExpectationFailed {
		if err := chttp.ResponseError(resp); err != nil {
			return nil, missingDatabase(err)
		}
	}
	var temp []bulkDocResult
	if err := chttp.DecodeJSON(resp, &temp); err != nil {
		return nil, err
	}
	results := make([]BulkResult, len(temp))
	for i, r := range temp {
		results[i] = BulkResult(r)
		if r.Err == nil && i < len(docs) {
			setIDRev(docs[i], r.ID, r.Rev)
		}
	}
	return results, nil
}
