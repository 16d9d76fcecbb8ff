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
	"net/http"

	"github.com/go-kivik/couch/errors"
)

// Document is a CouchDB document. The reserved keys _id and _rev hold the
// document ID and the current revision.
type Document map[string]interface{}

// ID returns the document ID, or "" if it has not been assigned.
func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// Rev returns the document revision, or "" for an unsaved document.
func (d Document) Rev() string {
	rev, _ := d["_rev"].(string)
	return rev
}

// SetIDRev records a server-assigned ID and revision. An empty rev is not
// recorded.
func (d Document) SetIDRev(id, rev string) {
	setIDRev(d, id, rev)
}

// Identifiable is implemented by document types which accept the ID and
// revision assigned by the server after a successful write.
type Identifiable interface {
	SetIDRev(id, rev string)
}

var _ Identifiable = Document(nil)

// setIDRev mutates doc in place. Values which are neither maps nor
// Identifiable are left untouched.
func setIDRev(doc interface{}, id, rev string) {
	switch t := doc.(type) {
	case Document:
		setMapIDRev(t, id, rev)
	case map[string]interface{}:
		setMapIDRev(t, id, rev)
	case *Document:
		setMapIDRev(*t, id, rev)
	case *map[string]interface{}:
		setMapIDRev(*t, id, rev)
	case Identifiable:
		t.SetIDRev(id, rev)
	}
}

func setMapIDRev(m map[string]interface{}, id, rev string) {
	if m == nil {
		return
	}
	if id != "" {
		m["_id"] = id
	}
	if rev != "" {
		m["_rev"] = rev
	}
}

// docIDRev extracts the _id and _rev of any document value: a Document, a
// map, a string ID, or any value that marshals to a JSON object.
func docIDRev(doc interface{}) (id, rev string, err error) {
	switch t := doc.(type) {
	case string:
		return t, "", nil
	case Document:
		return t.ID(), t.Rev(), nil
	case map[string]interface{}:
		return Document(t).ID(), Document(t).Rev(), nil
	}
	var meta struct {
		ID  string `json:"_id"`
		Rev string `json:"_rev"`
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", "", &errors.Error{Kind: errors.KindBadRequest, Status: http.StatusBadRequest, Err: err}
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", "", errors.Errorf(errors.KindBadRequest, "couch: document must be a JSON object: %s", err)
	}
	return meta.ID, meta.Rev, nil
}
