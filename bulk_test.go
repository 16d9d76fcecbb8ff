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
	"errors"
	"net/http"
	"testing"

	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/couch/internal/errtest"
)

func TestUpdate(t *testing.T) {
	t.Run("conflict on second document", func(t *testing.T) {
		db := newCustomDB(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/testdb/_bulk_docs" {
				t.Errorf("Unexpected path: %s", req.URL.Path)
			}
			body := requestJSON(t, req)
			expected := map[string]interface{}{
				"docs": []interface{}{
					map[string]interface{}{"type": "A"},
					map[string]interface{}{"type": "B"},
				},
			}
			if d := testy.DiffInterface(expected, body); d != nil {
				t.Error(d)
			}
			return jsonResponse(http.StatusCreated, `[
				{"ok":true,"id":"id1","rev":"1-aaa"},
				{"id":"id2","error":"conflict","reason":"Document update conflict."}
			]`), nil
		})
		docA := Document{"type": "A"}
		docB := Document{"type": "B"}
		results, err := db.Update(context.Background(), []interface{}{docA, docB})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 {
			t.Fatalf("Unexpected results: %v", results)
		}
		if !results[0].OK() || results[0].ID != "id1" || results[0].Rev != "1-aaa" {
			t.Errorf("Unexpected first result: %+v", results[0])
		}
		if results[1].OK() || results[1].ID != "id2" {
			t.Errorf("Unexpected second result: %+v", results[1])
		}
		if !errors.Is(results[1].Err, KindUpdateConflict) {
			t.Errorf("Expected update conflict, got %v", results[1].Err)
		}
		if docA.ID() != "id1" || docA.Rev() != "1-aaa" {
			t.Errorf("First doc not updated: %v", docA)
		}
		if d := testy.DiffInterface(Document{"type": "B"}, docB); d != nil {
			t.Errorf("Second doc altered: %s", d)
		}
	})
	t.Run("other per-document error", func(t *testing.T) {
		db := newTestDB(jsonResponse(http.StatusExpectationFailed, `[{"id":"x","error":"forbidden","reason":"only admins"}]`), nil)
		results, err := db.Update(context.Background(), []interface{}{map[string]interface{}{"_id": "x"}})
		if err != nil {
			t.Fatal(err)
		}
		e := results[0].Err
		if KindOf(e) != KindUnknown {
			t.Errorf("Unexpected kind: %s", KindOf(e))
		}
		if e == nil || e.Error() != "forbidden: only admins" {
			t.Errorf("Unexpected error: %v", e)
		}
	})
	t.Run("new_edits false", func(t *testing.T) {
		db := newCustomDB(func(req *http.Request) (*http.Response, error) {
			body := requestJSON(t, req)
			if body["new_edits"] != false {
				t.Errorf("Unexpected new_edits: %v", body["new_edits"])
			}
			if req.URL.RawQuery != "" {
				t.Errorf("Unexpected query: %s", req.URL.RawQuery)
			}
			return jsonResponse(http.StatusCreated, `[]`), nil
		})
		docs := []interface{}{Document{"_id": "a", "_rev": "3-zzz"}}
		results, err := db.Update(context.Background(), docs, NewEdits(false))
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 0 {
			t.Errorf("Unexpected results: %v", results)
		}
		if docs[0].(Document).Rev() != "3-zzz" {
			t.Errorf("Unexpected rev: %v", docs[0])
		}
	})
	t.Run("missing database", func(t *testing.T) {
		db := newTestDB(jsonResponse(http.StatusNotFound, `{"error":"not_found","reason":"Database does not exist."}`), nil)
		_, err := db.Update(context.Background(), []interface{}{Document{}})
		if !errors.Is(err, KindMissingDatabase) {
			t.Errorf("Unexpected error: %v", err)
		}
		errtest.StatusError(t, "Not Found: Database does not exist.", http.StatusNotFound, err)
	})
	t.Run("no documents", func(t *testing.T) {
		db := newTestDB(nil, errors.New("unexpected request"))
		results, err := db.Update(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 0 {
			t.Errorf("Unexpected results: %v", results)
		}
	})
}

type identifiable struct {
	ID    string `json:"_id,omitempty"`
	Rev   string `json:"_rev,omitempty"`
	Value int    `json:"value"`
}

func (i *identifiable) SetIDRev(id, rev string) {
	i.ID, i.Rev = id, rev
}

func TestUpdateIdentifiable(t *testing.T) {
	db := newTestDB(jsonResponse(http.StatusCreated, `[{"ok":true,"id":"s1","rev":"1-s"}]`), nil)
	doc := &identifiable{Value: 1}
	if _, err := db.Update(context.Background(), []interface{}{doc}); err != nil {
		t.Fatal(err)
	}
	if doc.ID != "s1" || doc.Rev != "1-s" {
		t.Errorf("Unexpected doc: %+v", doc)
	}
}
