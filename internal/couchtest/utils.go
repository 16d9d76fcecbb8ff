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
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/icza/dyno"
	"gitlab.com/flimzy/httpe"
)

const uuidMaxCount = 1000

func (s *Server) root() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, _ *http.Request) error {
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"couchdb": "Welcome",
			"vendor": map[string]string{
				"name": "couchtest",
			},
			"version": Version,
		})
	})
}

func (s *Server) up() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, _ *http.Request) error {
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
		})
	})
}

func newUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *Server) uuids() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		count := 1
		if param := r.URL.Query().Get("count"); param != "" {
			var err error
			count, err = strconv.Atoi(param)
			if err != nil || count < 0 {
				return errBadRequest("count must be a positive integer")
			}
		}
		if count > uuidMaxCount {
			return errBadRequest(fmt.Sprintf("count must not exceed %d", uuidMaxCount))
		}
		uuids := make([]string, count)
		for i := range uuids {
			uuids[i] = newUUID()
		}
		return serveJSON(w, http.StatusOK, map[string][]string{"uuids": uuids})
	})
}

func (s *Server) allDBs() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, _ *http.Request) error {
		s.mu.RLock()
		dbs := make([]string, 0, len(s.dbs))
		for name := range s.dbs {
			dbs = append(dbs, name)
		}
		s.mu.RUnlock()
		sort.Strings(dbs)
		return serveJSON(w, http.StatusOK, dbs)
	})
}

func (s *Server) activeTasks() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, _ *http.Request) error {
		return serveJSON(w, http.StatusOK, []interface{}{})
	})
}

func (s *Server) allConfig() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, _ *http.Request) error {
		admins := make(map[string]string, len(s.admins))
		for name, password := range s.admins {
			salt := newUUID()
			admins[name] = fmt.Sprintf("-pbkdf2-%s,%s,%d", deriveKey(password, salt, pbkdf2Iterations), salt, pbkdf2Iterations)
		}
		return serveJSON(w, http.StatusOK, map[string]map[string]string{
			"admins": admins,
			"couchdb": {
				"max_document_size": "8000000",
				"single_node":       "true",
			},
			"uuids": {
				"algorithm": "random",
				"max_count": strconv.Itoa(uuidMaxCount),
			},
		})
	})
}

func (s *Server) stats() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.RLock()
		open := len(s.dbs)
		s.mu.RUnlock()
		stats := map[string]interface{}{
			"couchdb": map[string]interface{}{
				"open_databases": map[string]interface{}{
					"value": open,
					"type":  "counter",
					"desc":  "number of open databases",
				},
			},
		}
		var path []interface{}
		for _, segment := range strings.Split(chi.URLParam(r, "*"), "/") {
			if segment != "" {
				path = append(path, segment)
			}
		}
		stat, err := dyno.Get(stats, path...)
		if err != nil {
			return errMissingDoc("Unknown stat")
		}
		return serveJSON(w, http.StatusOK, stat)
	})
}
