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
	"encoding/json"
	"net/http"
	"strings"

	"gitlab.com/flimzy/httpe"
)

// database returns the database named in the request. The caller must hold
// s.mu.
func (s *Server) database(r *http.Request) (*database, error) {
	db, ok := s.dbs[param(r, "db")]
	if !ok {
		return nil, errMissingDB()
	}
	return db, nil
}

func (s *Server) dbInfo() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		docs, deleted := db.counts()
		var size int
		for _, doc := range db.docs {
			body, _ := json.Marshal(doc.current().body)
			size += len(body)
			for _, att := range doc.attachments {
				size += len(att.data)
			}
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"db_name":             db.name,
			"doc_count":           docs,
			"doc_del_count":       deleted,
			"update_seq":          db.updateSeq(),
			"compact_running":     false,
			"instance_start_time": "0",
			"sizes": map[string]int{
				"file":     size,
				"external": size,
				"active":   size,
			},
		})
	})
}

func (s *Server) createDB() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		name := param(r, "db")
		if !validDBName.MatchString(name) && name != usersDB && name != "_replicator" {
			return &couchError{
				status: http.StatusBadRequest,
				Err:    "illegal_database_name",
				Reason: "Name: '" + name + "'. Only lowercase characters (a-z), digits (0-9), and any of the characters _, $, (, ), +, -, and / are allowed. Must begin with a letter.",
			}
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.dbs[name]; ok {
			return &couchError{status: http.StatusPreconditionFailed, Err: "file_exists", Reason: "The database could not be created, the file already exists."}
		}
		s.dbs[name] = newDatabase(name)
		w.Header().Set("Location", "/"+strings.ReplaceAll(name, "/", "%2F"))
		return serveJSON(w, http.StatusCreated, map[string]bool{"ok": true})
	})
}

func (s *Server) deleteDB() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		delete(s.dbs, db.name)
		return serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}

func (s *Server) security() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		return serveJSON(w, http.StatusOK, db.security)
	})
}

func (s *Server) setSecurity() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var sec map[string]interface{}
		if err := s.bind(r, &sec); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		db.security = sec
		return serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}

func (s *Server) purge() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var req map[string][]string
		if err := s.bind(r, &req); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		purged := make(map[string][]string, len(req))
		for id, revs := range req {
			purged[id] = []string{}
			doc, ok := db.docs[id]
			if !ok {
				continue
			}
			for _, rev := range revs {
				if doc.revision(rev) != nil {
					purged[id] = append(purged[id], rev)
				}
			}
			if len(purged[id]) > 0 {
				delete(db.docs, id)
				db.seq++
			}
		}
		return serveJSON(w, http.StatusCreated, map[string]interface{}{
			"purge_seq": nil,
			"purged":    purged,
		})
	})
}

func (s *Server) designInfo() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		db, err := s.database(r)
		if err != nil {
			return err
		}
		name := param(r, "docid")
		if _, _, err := db.get("_design/"+name, ""); err != nil {
			return err
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"name": name,
			"view_index": map[string]interface{}{
				"language":        "javascript",
				"compact_running": false,
				"updater_running": false,
				"waiting_clients": 0,
				"update_seq":      db.seq,
			},
		})
	})
}
