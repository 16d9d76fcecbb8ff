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
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"gitlab.com/flimzy/httpe"
)

// jsonParam decodes a JSON-encoded query parameter, trying each key in turn.
func jsonParam(query url.Values, keys ...string) (interface{}, bool, error) {
	for _, key := range keys {
		if _, ok := query[key]; !ok {
			continue
		}
		var v interface{}
		if err := json.Unmarshal([]byte(query.Get(key)), &v); err != nil {
			return nil, false, errBadRequest(fmt.Sprintf("Invalid value for %s", key))
		}
		return v, true, nil
	}
	return nil, false, nil
}

func intParam(query url.Values, key string, def int) (int, error) {
	v := query.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errBadRequest(fmt.Sprintf("Invalid value for integer: %q", v))
	}
	return n, nil
}

type allDocsRow struct {
	ID    string      `json:"id,omitempty"`
	Key   interface{} `json:"key"`
	Value interface{} `json:"value,omitempty"`
	Doc   interface{} `json:"doc,omitempty"`
	Error string      `json:"error,omitempty"`
}

func (s *Server) allDocs() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		query := r.URL.Query()
		var keys []interface{}
		keysParam, hasKeys, err := jsonParam(query, "keys")
		if err != nil {
			return err
		}
		if hasKeys {
			keys, _ = keysParam.([]interface{})
		}
		if r.Method == http.MethodPost {
			var body struct {
				Keys []interface{} `json:"keys"`
			}
			if err := s.bind(r, &body); err != nil {
				return err
			}
			keys = body.Keys
		}
		startKey, hasStart, err := jsonParam(query, "startkey", "start_key")
		if err != nil {
			return err
		}
		endKey, hasEnd, err := jsonParam(query, "endkey", "end_key")
		if err != nil {
			return err
		}
		limit, err := intParam(query, "limit", -1)
		if err != nil {
			return err
		}
		skip, err := intParam(query, "skip", 0)
		if err != nil {
			return err
		}
		descending := isTrue(query, "descending")
		includeDocs := isTrue(query, "include_docs")
		inclusiveEnd := query.Get("inclusive_end") != "false"

		s.mu.RLock()
		defer s.mu.RUnlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}

		rows := []allDocsRow{}
		if keys != nil {
			for _, key := range keys {
				id, _ := key.(string)
				doc, ok := db.docs[id]
				if !ok || isLocal(id) {
					rows = append(rows, allDocsRow{Key: key, Error: "not_found"})
					continue
				}
				row := allDocsRow{ID: id, Key: id}
				if doc.deleted() {
					row.Value = map[string]interface{}{"rev": doc.current().rev, "deleted": true}
				} else {
					row.Value = map[string]string{"rev": doc.current().rev}
					if includeDocs {
						row.Doc = doc.render(doc.current(), false, false)
					}
				}
				rows = append(rows, row)
			}
		} else {
			ids := db.ids()
			if descending {
				sort.Sort(sort.Reverse(sort.StringSlice(ids)))
			}
			for _, id := range ids {
				doc := db.docs[id]
				if doc.deleted() {
					continue
				}
				if hasStart {
					c := collate(id, startKey)
					if descending && c > 0 || !descending && c < 0 {
						continue
					}
				}
				if hasEnd {
					c := collate(id, endKey)
					if descending {
						c = -c
					}
					if c > 0 || c == 0 && !inclusiveEnd {
						continue
					}
				}
				row := allDocsRow{ID: id, Key: id, Value: map[string]string{"rev": doc.current().rev}}
				if includeDocs {
					row.Doc = doc.render(doc.current(), false, false)
				}
				rows = append(rows, row)
			}
		}
		offset := skip
		if skip > len(rows) {
			skip = len(rows)
		}
		rows = rows[skip:]
		if limit >= 0 && limit < len(rows) {
			rows = rows[:limit]
		}
		live, _ := db.counts()
		result := map[string]interface{}{
			"total_rows": live,
			"offset":     offset,
			"rows":       rows,
		}
		if isTrue(query, "update_seq") {
			result["update_seq"] = db.updateSeq()
		}
		return serveJSON(w, http.StatusOK, result)
	})
}

func (s *Server) bulkDocs() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Docs     []map[string]interface{} `json:"docs"`
			NewEdits *bool                    `json:"new_edits"`
		}
		if err := s.bind(r, &body); err != nil {
			return err
		}
		if body.Docs == nil {
			return errBadRequest("POST body must include `docs` parameter.")
		}
		newEdits := body.NewEdits == nil || *body.NewEdits
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		results := make([]map[string]interface{}, 0, len(body.Docs))
		for _, doc := range body.Docs {
			id, _ := doc["_id"].(string)
			rev, _ := doc["_rev"].(string)
			if id == "" {
				id = newUUID()
			}
			if !newEdits {
				if err := db.force(id, rev, doc); err != nil {
					results = append(results, bulkError(id, err))
				}
				continue
			}
			newRev, err := db.update(id, rev, doc)
			if err != nil {
				results = append(results, bulkError(id, err))
				continue
			}
			results = append(results, map[string]interface{}{
				"ok":  true,
				"id":  id,
				"rev": newRev,
			})
		}
		return serveJSON(w, http.StatusCreated, results)
	})
}

func bulkError(id string, err error) map[string]interface{} {
	result := map[string]interface{}{
		"id":     id,
		"error":  "unknown_error",
		"reason": err.Error(),
	}
	var ce *couchError
	if errors.As(err, &ce) {
		result["error"] = ce.Err
	}
	return result
}

type findRequest struct {
	Selector       map[string]interface{} `json:"selector"`
	Limit          *int                   `json:"limit"`
	Skip           int                    `json:"skip"`
	Sort           []interface{}          `json:"sort"`
	Fields         []string               `json:"fields"`
	Bookmark       string                 `json:"bookmark"`
	ExecutionStats bool                   `json:"execution_stats"`
}

const defaultFindLimit = 25

func (q *findRequest) limit() int {
	if q.Limit == nil {
		return defaultFindLimit
	}
	return *q.Limit
}

func (s *Server) bindFind(r *http.Request) (*findRequest, error) {
	var q findRequest
	if err := s.bind(r, &q); err != nil {
		return nil, err
	}
	if q.Selector == nil {
		return nil, errBadRequest("Missing required key: selector")
	}
	return &q, nil
}

func (s *Server) find() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		q, err := s.bindFind(r)
		if err != nil {
			return err
		}
		sortFields, err := parseSort(q.Sort)
		if err != nil {
			return errBadRequest(err.Error())
		}
		start := q.Skip
		if q.Bookmark != "" && q.Bookmark != "nil" {
			decoded, err := base64.RawURLEncoding.DecodeString(q.Bookmark)
			if err != nil {
				return errBadRequest("Invalid bookmark value")
			}
			if start, err = strconv.Atoi(string(decoded)); err != nil {
				return errBadRequest("Invalid bookmark value")
			}
		}

		s.mu.RLock()
		defer s.mu.RUnlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		var matched []map[string]interface{}
		examined := 0
		for _, id := range db.ids() {
			doc := db.docs[id]
			if doc.deleted() {
				continue
			}
			examined++
			body := doc.render(doc.current(), false, false)
			ok, err := match(q.Selector, body)
			if err != nil {
				return errBadRequest(err.Error())
			}
			if ok {
				matched = append(matched, body)
			}
		}
		sortDocs(matched, sortFields)
		if start > len(matched) {
			start = len(matched)
		}
		matched = matched[start:]
		if limit := q.limit(); limit < len(matched) {
			matched = matched[:limit]
		}
		docs := make([]map[string]interface{}, len(matched))
		for i, doc := range matched {
			docs[i] = project(doc, q.Fields)
		}
		result := map[string]interface{}{
			"docs":     docs,
			"bookmark": base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(start + len(docs)))),
			"warning":  "No matching index found, create an index to optimize query time.",
		}
		if q.ExecutionStats {
			result["execution_stats"] = map[string]interface{}{
				"total_keys_examined":        0,
				"total_docs_examined":        examined,
				"total_quorum_docs_examined": 0,
				"results_returned":           len(docs),
				"execution_time_ms":          0,
			}
		}
		return serveJSON(w, http.StatusOK, result)
	})
}

var allDocsIndex = map[string]interface{}{
	"ddoc": nil,
	"name": "_all_docs",
	"type": "special",
	"def": map[string]interface{}{
		"fields": []interface{}{map[string]string{"_id": "asc"}},
	},
}

func (s *Server) explain() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		q, err := s.bindFind(r)
		if err != nil {
			return err
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		var fields interface{} = "all_fields"
		if len(q.Fields) > 0 {
			fields = q.Fields
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"dbname":   db.name,
			"index":    allDocsIndex,
			"selector": q.Selector,
			"opts": map[string]interface{}{
				"use_index":       []string{},
				"bookmark":        "nil",
				"limit":           q.limit(),
				"skip":            q.Skip,
				"sort":            map[string]interface{}{},
				"fields":          fields,
				"r":               []int{49},
				"conflicts":       false,
				"execution_stats": q.ExecutionStats,
			},
			"limit":  q.limit(),
			"skip":   q.Skip,
			"fields": fields,
			"range": map[string]interface{}{
				"start_key": nil,
				"end_key":   "<MAX>",
			},
		})
	})
}

type index struct {
	ddoc string
	name string
	def  interface{}
}

func (i *index) render() map[string]interface{} {
	return map[string]interface{}{
		"ddoc": i.ddoc,
		"name": i.name,
		"type": "json",
		"def":  i.def,
	}
}

func (s *Server) indexes() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		indexes := []interface{}{allDocsIndex}
		for _, idx := range db.indexes {
			indexes = append(indexes, idx.render())
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"total_rows": len(indexes),
			"indexes":    indexes,
		})
	})
}

func (s *Server) createIndex() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var req struct {
			Index map[string]interface{} `json:"index"`
			Ddoc  string                 `json:"ddoc"`
			Name  string                 `json:"name"`
		}
		if err := s.bind(r, &req); err != nil {
			return err
		}
		if req.Index == nil {
			return errBadRequest("Missing required key: index")
		}
		if _, ok := req.Index["fields"].([]interface{}); !ok {
			return errBadRequest("Missing required key: fields")
		}
		def, _ := json.Marshal(req.Index)
		sum := fmt.Sprintf("%x", md5.Sum(def))
		if req.Ddoc == "" {
			req.Ddoc = sum
		}
		if req.Name == "" {
			req.Name = sum
		}
		ddoc := "_design/" + req.Ddoc
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		result := "created"
		for _, idx := range db.indexes {
			if idx.ddoc == ddoc && idx.name == req.Name {
				result = "exists"
			}
		}
		if result == "created" {
			db.indexes = append(db.indexes, &index{ddoc: ddoc, name: req.Name, def: req.Index})
		}
		return serveJSON(w, http.StatusOK, map[string]string{
			"result": result,
			"id":     ddoc,
			"name":   req.Name,
		})
	})
}

func (s *Server) deleteIndex() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		ddoc, name := "_design/"+param(r, "ddoc"), param(r, "name")
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		for i, idx := range db.indexes {
			if idx.ddoc == ddoc && idx.name == name {
				db.indexes = append(db.indexes[:i], db.indexes[i+1:]...)
				return serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
			}
		}
		return errMissingDoc("Index not found")
	})
}
