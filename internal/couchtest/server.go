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

// Package couchtest provides an in-memory CouchDB HTTP server for tests. It
// implements enough of the CouchDB API to exercise the client end to end:
// databases, documents with revision history, attachments, _all_docs, bulk
// updates, a subset of Mango, cookie sessions backed by _users, and local
// replication.
package couchtest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/monoculum/formam/v3"
	"gitlab.com/flimzy/httpe"
)

func init() {
	chi.RegisterMethod("COPY")
}

// Version is the CouchDB version reported by the server.
const Version = "3.3.3"

// Server is an in-memory CouchDB server.
type Server struct {
	mux         *chi.Mux
	formDecoder *formam.Decoder
	secret      string
	admins      map[string]string

	mu  sync.RWMutex
	dbs map[string]*database
}

// New returns a new server. Without WithAdmin the server runs as an admin
// party, and every request is treated as coming from an admin.
func New(options ...Option) *Server {
	s := &Server{
		mux: chi.NewMux(),
		formDecoder: formam.NewDecoder(&formam.DecoderOptions{
			TagName: "form",
		}),
		secret: "couchtest",
		admins: map[string]string{},
		dbs:    map[string]*database{},
	}
	for _, option := range options {
		option.apply(s)
	}
	s.routes(s.mux)
	return s
}

// Start starts s on a loopback address. The server is closed when the test
// completes.
func Start(t *testing.T, options ...Option) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(options...))
	t.Cleanup(ts.Close)
	return ts
}

func (s *Server) routes(mux *chi.Mux) {
	mux.Use(
		middleware.GetHead,
		gunzip,
		httpe.ToMiddleware(s.handleErrors),
	)
	mux.Get("/", httpe.ToHandler(s.root()).ServeHTTP)
	mux.Get("/_up", httpe.ToHandler(s.up()).ServeHTTP)
	mux.Get("/_uuids", httpe.ToHandler(s.uuids()).ServeHTTP)
	mux.Post("/_session", httpe.ToHandler(s.postSession()).ServeHTTP)
	mux.Delete("/_session", httpe.ToHandler(s.deleteSession()).ServeHTTP)

	auth := mux.With(
		httpe.ToMiddleware(s.authMiddleware),
	)
	auth.Get("/_session", httpe.ToHandler(s.getSession()).ServeHTTP)

	admin := auth.With(
		httpe.ToMiddleware(adminRequired),
	)
	admin.Get("/_all_dbs", httpe.ToHandler(s.allDBs()).ServeHTTP)
	admin.Get("/_active_tasks", httpe.ToHandler(s.activeTasks()).ServeHTTP)
	admin.Get("/_node/{node-name}/_config", httpe.ToHandler(s.allConfig()).ServeHTTP)
	admin.Get("/_node/{node-name}/_stats", httpe.ToHandler(s.stats()).ServeHTTP)
	admin.Get("/_node/{node-name}/_stats/*", httpe.ToHandler(s.stats()).ServeHTTP)
	admin.Post("/_replicate", httpe.ToHandler(s.replicate()).ServeHTTP)

	// Databases
	auth.Get("/{db}", httpe.ToHandler(s.dbInfo()).ServeHTTP)
	admin.Put("/{db}", httpe.ToHandler(s.createDB()).ServeHTTP)
	admin.Delete("/{db}", httpe.ToHandler(s.deleteDB()).ServeHTTP)
	auth.Post("/{db}", httpe.ToHandler(s.postDoc()).ServeHTTP)
	auth.Get("/{db}/_all_docs", httpe.ToHandler(s.allDocs()).ServeHTTP)
	auth.Post("/{db}/_all_docs", httpe.ToHandler(s.allDocs()).ServeHTTP)
	auth.Post("/{db}/_bulk_docs", httpe.ToHandler(s.bulkDocs()).ServeHTTP)
	auth.Post("/{db}/_find", httpe.ToHandler(s.find()).ServeHTTP)
	auth.Post("/{db}/_explain", httpe.ToHandler(s.explain()).ServeHTTP)
	auth.Get("/{db}/_index", httpe.ToHandler(s.indexes()).ServeHTTP)
	auth.Post("/{db}/_index", httpe.ToHandler(s.createIndex()).ServeHTTP)
	auth.Delete("/{db}/_index/{ddoc}/json/{name}", httpe.ToHandler(s.deleteIndex()).ServeHTTP)
	admin.Post("/{db}/_compact", httpe.ToHandler(s.accepted()).ServeHTTP)
	admin.Post("/{db}/_compact/{ddoc}", httpe.ToHandler(s.accepted()).ServeHTTP)
	admin.Post("/{db}/_view_cleanup", httpe.ToHandler(s.accepted()).ServeHTTP)
	auth.Get("/{db}/_security", httpe.ToHandler(s.security()).ServeHTTP)
	admin.Put("/{db}/_security", httpe.ToHandler(s.setSecurity()).ServeHTTP)
	admin.Post("/{db}/_purge", httpe.ToHandler(s.purge()).ServeHTTP)
	auth.Get("/{db}/_changes", httpe.ToHandler(s.notImplemented()).ServeHTTP)
	auth.Get("/{db}/_design/{docid}/_view/{view}", httpe.ToHandler(s.notImplemented()).ServeHTTP)
	auth.Post("/{db}/_design/{docid}/_view/{view}", httpe.ToHandler(s.notImplemented()).ServeHTTP)
	auth.Get("/{db}/_design/{docid}/_info", httpe.ToHandler(s.designInfo()).ServeHTTP)

	// Documents. Design and local documents carry their prefix in the ID.
	for _, prefix := range []string{"", "_design/", "_local/"} {
		doc := "/{db}/" + prefix + "{docid}"
		auth.Get(doc, httpe.ToHandler(s.getDoc(prefix)).ServeHTTP)
		auth.Put(doc, httpe.ToHandler(s.putDoc(prefix)).ServeHTTP)
		auth.Delete(doc, httpe.ToHandler(s.deleteDoc(prefix)).ServeHTTP)
		auth.Method("COPY", doc, httpe.ToHandler(s.copyDoc(prefix)))
		if prefix == "_local/" {
			continue
		}
		auth.Get(doc+"/{attname}", httpe.ToHandler(s.getAttachment(prefix)).ServeHTTP)
		auth.Put(doc+"/{attname}", httpe.ToHandler(s.putAttachment(prefix)).ServeHTTP)
		auth.Delete(doc+"/{attname}", httpe.ToHandler(s.deleteAttachment(prefix)).ServeHTTP)
	}
}

func (s *Server) handleErrors(next httpe.HandlerWithError) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		if err := next.ServeHTTPWithError(w, r); err != nil {
			ce := &couchError{}
			if !errors.As(err, &ce) {
				ce = &couchError{
					status: http.StatusInternalServerError,
					Err:    "unknown_error",
					Reason: err.Error(),
				}
			}
			return serveJSON(w, ce.status, ce)
		}
		return nil
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func serveJSON(w http.ResponseWriter, status int, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", typeJSON)
	w.WriteHeader(status)
	_, err = io.Copy(w, bytes.NewReader(body))
	return err
}

func (s *Server) notImplemented() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(http.ResponseWriter, *http.Request) error {
		return errNotImplemented
	})
}

func (s *Server) accepted() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		s.mu.RLock()
		_, err := s.database(r)
		s.mu.RUnlock()
		if err != nil {
			return err
		}
		return serveJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
	})
}

// param returns the unescaped value of the named URL parameter. chi routes on
// the raw path when one is set, so escaped slashes reach the handler intact.
func param(r *http.Request, name string) string {
	value := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return value
	}
	if unescaped, err := url.PathUnescape(value); err == nil {
		return unescaped
	}
	return value
}

func docID(r *http.Request, prefix string) string {
	return prefix + param(r, "docid")
}

func isTrue(query url.Values, key string) bool {
	return strings.EqualFold(query.Get(key), "true")
}
