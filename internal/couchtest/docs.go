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
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gitlab.com/flimzy/httpe"
)

// requestRev returns the revision a write is based on, from the rev query
// parameter, the If-Match header, or the document body, in that order.
func requestRev(r *http.Request, body map[string]interface{}) string {
	if rev := r.URL.Query().Get("rev"); rev != "" {
		return rev
	}
	if rev := strings.Trim(r.Header.Get("If-Match"), `"`); rev != "" {
		return rev
	}
	rev, _ := body["_rev"].(string)
	return rev
}

func serveUpdate(w http.ResponseWriter, status int, id, rev string) error {
	w.Header().Set("ETag", strconv.Quote(rev))
	return serveJSON(w, status, map[string]interface{}{
		"ok":  true,
		"id":  id,
		"rev": rev,
	})
}

func (s *Server) postDoc() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var body map[string]interface{}
		if err := s.bind(r, &body); err != nil {
			return err
		}
		id, _ := body["_id"].(string)
		if id == "" {
			id = newUUID()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		rev, err := db.update(id, requestRev(r, body), body)
		if err != nil {
			return err
		}
		status := http.StatusCreated
		if r.URL.Query().Get("batch") == "ok" {
			status = http.StatusAccepted
		}
		return serveUpdate(w, status, id, rev)
	})
}

func (s *Server) getDoc(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		doc, rev, err := db.get(docID(r, prefix), r.URL.Query().Get("rev"))
		if err != nil {
			return err
		}
		w.Header().Set("ETag", strconv.Quote(rev.rev))
		return serveJSON(w, http.StatusOK, doc.render(rev, isTrue(r.URL.Query(), "revs"), isTrue(r.URL.Query(), "attachments")))
	})
}

func (s *Server) putDoc(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var body map[string]interface{}
		if err := s.bind(r, &body); err != nil {
			return err
		}
		id := docID(r, prefix)
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		rev := requestRev(r, body)
		if r.URL.Query().Get("new_edits") == "false" {
			if err := db.force(id, rev, body); err != nil {
				return err
			}
			return serveUpdate(w, http.StatusCreated, id, rev)
		}
		rev, err = db.update(id, rev, body)
		if err != nil {
			return err
		}
		status := http.StatusCreated
		if r.URL.Query().Get("batch") == "ok" {
			status = http.StatusAccepted
		}
		return serveUpdate(w, status, id, rev)
	})
}

func (s *Server) deleteDoc(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		id := docID(r, prefix)
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		if _, _, err := db.get(id, ""); err != nil {
			return err
		}
		rev := requestRev(r, nil)
		if rev == "" {
			return errConflict()
		}
		rev, err = db.update(id, rev, map[string]interface{}{"_deleted": true})
		if err != nil {
			return err
		}
		return serveUpdate(w, http.StatusOK, id, rev)
	})
}

func (s *Server) copyDoc(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		destination := r.Header.Get("Destination")
		if destination == "" {
			return errBadRequest("Destination header is mandatory for COPY.")
		}
		destID, rawQuery, _ := strings.Cut(destination, "?")
		if unescaped, err := url.PathUnescape(destID); err == nil {
			destID = unescaped
		}
		destQuery, err := url.ParseQuery(rawQuery)
		if err != nil {
			return errBadRequest("invalid Destination header")
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		doc, rev, err := db.get(docID(r, prefix), r.URL.Query().Get("rev"))
		if err != nil {
			return err
		}
		body := doc.render(rev, false, true)
		if rev != doc.current() {
			delete(body, "_attachments")
		}
		newRev, err := db.update(destID, destQuery.Get("rev"), body)
		if err != nil {
			return err
		}
		return serveUpdate(w, http.StatusCreated, destID, newRev)
	})
}

func (s *Server) getAttachment(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		doc, _, err := db.get(docID(r, prefix), "")
		if err != nil {
			return err
		}
		att, ok := doc.attachments[param(r, "attname")]
		if !ok {
			return errMissingDoc("Document is missing attachment")
		}
		w.Header().Set("Content-Type", att.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(att.data)))
		w.Header().Set("ETag", strconv.Quote(strings.TrimPrefix(att.digest, "md5-")))
		w.WriteHeader(http.StatusOK)
		_, err = w.Write(att.data)
		return err
	})
}

// attachmentBody returns a copy of the current revision's body, with
// attachment stubs for every attachment except skip.
func attachmentBody(doc *document, skip string) map[string]interface{} {
	body := map[string]interface{}{}
	if doc == nil || doc.deleted() {
		return body
	}
	for k, v := range doc.current().body {
		body[k] = v
	}
	stubs := map[string]interface{}{}
	for name, att := range doc.attachments {
		if name != skip {
			stubs[name] = att.stub()
		}
	}
	body["_attachments"] = stubs
	return body
}

func (s *Server) putAttachment(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		content, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		ctype := r.Header.Get("Content-Type")
		if ctype == "" {
			ctype = "application/octet-stream"
		}
		id, name := docID(r, prefix), param(r, "attname")
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		body := attachmentBody(db.docs[id], name)
		stubs, _ := body["_attachments"].(map[string]interface{})
		if stubs == nil {
			stubs = map[string]interface{}{}
		}
		stubs[name] = map[string]interface{}{
			"content_type": ctype,
			"data":         base64.StdEncoding.EncodeToString(content),
		}
		body["_attachments"] = stubs
		rev, err := db.update(id, requestRev(r, nil), body)
		if err != nil {
			return err
		}
		return serveUpdate(w, http.StatusCreated, id, rev)
	})
}

func (s *Server) deleteAttachment(prefix string) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		id, name := docID(r, prefix), param(r, "attname")
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		doc, _, err := db.get(id, "")
		if err != nil {
			return err
		}
		if _, ok := doc.attachments[name]; !ok {
			return errMissingDoc("Document is missing attachment")
		}
		rev, err := db.update(id, requestRev(r, nil), attachmentBody(doc, name))
		if err != nil {
			return err
		}
		return serveUpdate(w, http.StatusOK, id, rev)
	})
}
