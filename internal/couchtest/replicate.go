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
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.com/flimzy/httpe"
)

type replicationRequest struct {
	Source       interface{} `json:"source"`
	Target       interface{} `json:"target"`
	CreateTarget bool        `json:"create_target"`
	Continuous   bool        `json:"continuous"`
	DocIDs       []string    `json:"doc_ids"`
}

// localDBName resolves a replication endpoint to the name of a database on
// this server. Endpoints may be database names, URLs, or objects with a url
// member. Only local replication is supported.
func localDBName(endpoint interface{}) (string, error) {
	var raw string
	switch t := endpoint.(type) {
	case string:
		raw = t
	case map[string]interface{}:
		raw, _ = t["url"].(string)
	}
	if raw == "" {
		return "", errBadRequest("Replication source and target are required.")
	}
	if !strings.Contains(raw, "://") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errBadRequest("Invalid replication endpoint " + raw)
	}
	path := u.EscapedPath()
	name, err := url.PathUnescape(strings.Trim(path, "/"))
	if err != nil {
		return "", errBadRequest("Invalid replication endpoint " + raw)
	}
	return name, nil
}

func (s *Server) replicate() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var req replicationRequest
		if err := s.bind(r, &req); err != nil {
			return err
		}
		sourceName, err := localDBName(req.Source)
		if err != nil {
			return err
		}
		targetName, err := localDBName(req.Target)
		if err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		source, ok := s.dbs[sourceName]
		if !ok {
			return errMissingDoc("Database does not exist.")
		}
		target, ok := s.dbs[targetName]
		if !ok {
			if !req.CreateTarget {
				return errMissingDoc("Database does not exist.")
			}
			target = newDatabase(targetName)
			s.dbs[targetName] = target
		}

		ids := req.DocIDs
		if ids == nil {
			ids = source.ids()
		}
		var read, written int
		startSeq := target.seq
		for _, id := range ids {
			doc, ok := source.docs[id]
			if !ok {
				continue
			}
			for _, rev := range doc.revs {
				read++
				current := rev == doc.current()
				body := doc.render(rev, false, current)
				if !current {
					delete(body, "_attachments")
				}
				if err := target.force(id, rev.rev, body); err != nil {
					return err
				}
			}
			written++
		}

		sessionID := newUUID()
		if req.Continuous {
			return serveJSON(w, http.StatusAccepted, map[string]interface{}{
				"ok":        true,
				"_local_id": sessionID + "+continuous",
			})
		}
		now := time.Now().UTC().Format(time.RFC1123)
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"ok":              true,
			"session_id":      sessionID,
			"source_last_seq": source.updateSeq(),
			"no_changes":      written == 0,
			"history": []map[string]interface{}{{
				"session_id":         sessionID,
				"start_time":         now,
				"end_time":           now,
				"start_last_seq":     startSeq,
				"end_last_seq":       target.seq,
				"docs_read":          read,
				"docs_written":       written,
				"doc_write_failures": 0,
			}},
		})
	})
}
