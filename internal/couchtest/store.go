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
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type database struct {
	name     string
	docs     map[string]*document
	seq      int
	security map[string]interface{}
	indexes  []*index
}

type document struct {
	id          string
	revs        []*revision // oldest first
	attachments map[string]*attachment
	seq         int
}

type revision struct {
	rev  string
	body map[string]interface{}
}

type attachment struct {
	contentType string
	data        []byte
	digest      string
	revpos      int
}

var validDBName = regexp.MustCompile(`^[a-z][a-z0-9_$()+/-]*$`)

func newDatabase(name string) *database {
	return &database{
		name:     name,
		docs:     map[string]*document{},
		security: map[string]interface{}{},
	}
}

func (d *document) current() *revision {
	return d.revs[len(d.revs)-1]
}

func (d *document) deleted() bool {
	deleted, _ := d.current().body["_deleted"].(bool)
	return deleted
}

func (d *document) revision(rev string) *revision {
	for _, r := range d.revs {
		if r.rev == rev {
			return r
		}
	}
	return nil
}

func isLocal(id string) bool {
	return strings.HasPrefix(id, "_local/")
}

func revGeneration(rev string) int {
	n, _ := strconv.Atoi(strings.SplitN(rev, "-", 2)[0])
	return n
}

func newAttachment(contentType string, data []byte, revpos int) *attachment {
	sum := md5.Sum(data)
	return &attachment{
		contentType: contentType,
		data:        data,
		digest:      "md5-" + base64.StdEncoding.EncodeToString(sum[:]),
		revpos:      revpos,
	}
}

func (a *attachment) stub() map[string]interface{} {
	return map[string]interface{}{
		"content_type": a.contentType,
		"digest":       a.digest,
		"length":       len(a.data),
		"revpos":       a.revpos,
		"stub":         true,
	}
}

func (db *database) counts() (docs, deleted int) {
	for id, doc := range db.docs {
		if isLocal(id) {
			continue
		}
		if doc.deleted() {
			deleted++
		} else {
			docs++
		}
	}
	return docs, deleted
}

func (db *database) updateSeq() string {
	return fmt.Sprintf("%d-g1AAAABteJzLYWBgYMpgTmHgz8tPSTV0MDQy", db.seq)
}

// ids returns the IDs of non-local documents, in collation order.
func (db *database) ids() []string {
	ids := make([]string, 0, len(db.docs))
	for id := range db.docs {
		if !isLocal(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// get returns the requested revision of a document, or the current one if
// rev is empty.
func (db *database) get(id, rev string) (*document, *revision, error) {
	doc, ok := db.docs[id]
	if !ok {
		return nil, nil, errMissingDoc("missing")
	}
	if rev == "" {
		if doc.deleted() {
			return nil, nil, errMissingDoc("deleted")
		}
		return doc, doc.current(), nil
	}
	r := doc.revision(rev)
	if r == nil {
		return nil, nil, errMissingDoc("missing")
	}
	return doc, r, nil
}

// update stores body as a new revision of the document id, based on rev.
// It returns the new revision.
func (db *database) update(id, rev string, body map[string]interface{}) (string, error) {
	doc, exists := db.docs[id]
	switch {
	case !exists && rev != "":
		return "", errConflict()
	case exists && !doc.deleted() && rev != doc.current().rev:
		return "", errConflict()
	case exists && doc.deleted() && rev != "" && rev != doc.current().rev:
		return "", errConflict()
	}
	if !exists {
		doc = &document{id: id, attachments: map[string]*attachment{}}
	}
	generation := 1
	if exists {
		generation = revGeneration(doc.current().rev) + 1
	}
	body = cleanBody(body)
	if db.name == usersDB {
		hashPassword(body)
	}
	atts, err := doc.mergeAttachments(body, generation)
	if err != nil {
		return "", err
	}
	hashed, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	prev := ""
	if exists {
		prev = doc.current().rev
	}
	sum := md5.Sum(append([]byte(prev), hashed...))
	newRev := fmt.Sprintf("%d-%x", generation, sum)
	if isLocal(id) {
		newRev = fmt.Sprintf("0-%d", generation)
	}
	doc.attachments = atts
	doc.revs = append(doc.revs, &revision{rev: newRev, body: body})
	db.seq++
	doc.seq = db.seq
	db.docs[id] = doc
	return newRev, nil
}

// force stores body with an existing revision, as replication and
// new_edits=false do. A revision the document already has is ignored.
func (db *database) force(id, rev string, body map[string]interface{}) error {
	if revGeneration(rev) < 1 {
		return errBadRequest("Invalid rev format")
	}
	doc, exists := db.docs[id]
	if exists && doc.revision(rev) != nil {
		return nil
	}
	if !exists {
		doc = &document{id: id, attachments: map[string]*attachment{}}
	}
	body = cleanBody(body)
	atts, err := doc.mergeAttachments(body, revGeneration(rev))
	if err != nil {
		return err
	}
	r := &revision{rev: rev, body: body}
	if exists && revGeneration(rev) < revGeneration(doc.current().rev) {
		// An older branch; keep the current revision as the winner.
		doc.revs = append([]*revision{r}, doc.revs...)
	} else {
		doc.attachments = atts
		doc.revs = append(doc.revs, r)
	}
	db.seq++
	doc.seq = db.seq
	db.docs[id] = doc
	return nil
}

// cleanBody returns a copy of body without the special fields that are not
// stored.
func cleanBody(body map[string]interface{}) map[string]interface{} {
	clean := make(map[string]interface{}, len(body))
	for k, v := range body {
		switch k {
		case "_id", "_rev", "_revisions", "_conflicts", "_revs_info":
			continue
		}
		clean[k] = v
	}
	return clean
}

// mergeAttachments resolves the _attachments member of body against the
// document's current attachments. Stubs keep existing attachments, and
// inline data creates new ones. body's _attachments is replaced by stubs.
func (d *document) mergeAttachments(body map[string]interface{}, revpos int) (map[string]*attachment, error) {
	atts := map[string]*attachment{}
	raw, ok := body["_attachments"].(map[string]interface{})
	if !ok {
		delete(body, "_attachments")
		return atts, nil
	}
	for name, value := range raw {
		meta, ok := value.(map[string]interface{})
		if !ok {
			return nil, errBadRequest("invalid attachment " + name)
		}
		if stub, _ := meta["stub"].(bool); stub {
			existing, ok := d.attachments[name]
			if !ok {
				return nil, &couchError{status: http.StatusPreconditionFailed, Err: "missing_stub", Reason: "Invalid attachment stub in " + d.id + " for " + name}
			}
			atts[name] = existing
			continue
		}
		data, _ := meta["data"].(string)
		content, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, errBadRequest("invalid attachment data for " + name)
		}
		ctype, _ := meta["content_type"].(string)
		if ctype == "" {
			ctype = "application/octet-stream"
		}
		atts[name] = newAttachment(ctype, content, revpos)
	}
	stubs := make(map[string]interface{}, len(atts))
	for name, att := range atts {
		stubs[name] = att.stub()
	}
	if len(stubs) == 0 {
		delete(body, "_attachments")
	} else {
		body["_attachments"] = stubs
	}
	return atts, nil
}

// render returns the JSON representation of a document revision.
func (d *document) render(r *revision, revs, inline bool) map[string]interface{} {
	out := make(map[string]interface{}, len(r.body)+2)
	for k, v := range r.body {
		out[k] = v
	}
	out["_id"] = d.id
	out["_rev"] = r.rev
	if revs {
		out["_revisions"] = d.history(r)
	}
	if inline && r == d.current() && len(d.attachments) > 0 {
		atts := make(map[string]interface{}, len(d.attachments))
		for name, att := range d.attachments {
			stub := att.stub()
			delete(stub, "stub")
			stub["data"] = base64.StdEncoding.EncodeToString(att.data)
			atts[name] = stub
		}
		out["_attachments"] = atts
	}
	return out
}

// history returns the _revisions object for r: its generation, and the
// hashes of r and its ancestors, newest first.
func (d *document) history(r *revision) map[string]interface{} {
	var ids []string
	for _, rev := range d.revs {
		if revGeneration(rev.rev) > revGeneration(r.rev) {
			break
		}
		parts := strings.SplitN(rev.rev, "-", 2)
		if len(parts) == 2 {
			ids = append([]string{parts[1]}, ids...)
		}
	}
	return map[string]interface{}{
		"start": revGeneration(r.rev),
		"ids":   ids,
	}
}
