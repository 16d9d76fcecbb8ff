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
	"io"
	"net/http"
	"net/url"
	"testing"

	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/couch/internal/errtest"
)

func TestLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := newCustomClient(func(req *http.Request) (*http.Response, error) {
			if req.Method != http.MethodPost || req.URL.Path != "/_session" {
				t.Errorf("Unexpected request: %s %s", req.Method, req.URL.Path)
			}
			if ct := req.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
				t.Errorf("Unexpected Content-Type: %s", ct)
			}
			body, _ := io.ReadAll(req.Body)
			form, err := url.ParseQuery(string(body))
			if err != nil {
				t.Fatal(err)
			}
			if form.Get("name") != "bob" || form.Get("password") != "abc 123&" {
				t.Errorf("Unexpected form: %v", form)
			}
			resp := jsonResponse(http.StatusOK, `{"ok":true,"name":"bob","roles":[]}`)
			resp.Header.Set("Set-Cookie", "AuthSession=Ym9iOjVGNjk; Version=1; Path=/; HttpOnly")
			return resp, nil
		})
		token, err := c.Login(context.Background(), "bob", "abc 123&")
		if err != nil {
			t.Fatal(err)
		}
		if token != "Ym9iOjVGNjk" {
			t.Errorf("Unexpected token: %s", token)
		}
		if c.Jar == nil {
			t.Fatal("no cookie jar")
		}
		if cookies := c.Jar.Cookies(c.URL()); len(cookies) != 1 {
			t.Errorf("Unexpected cookies: %v", cookies)
		}
	})
	t.Run("bad credentials", func(t *testing.T) {
		c := newTestClient(jsonResponse(http.StatusUnauthorized, `{"error":"unauthorized","reason":"Name or password is incorrect."}`), nil)
		_, err := c.Login(context.Background(), "bob", "wrong")
		if !errors.Is(err, KindLoginFailed) {
			t.Errorf("Unexpected error: %v", err)
		}
		errtest.StatusError(t, "Unauthorized: Name or password is incorrect.", http.StatusUnauthorized, err)
	})
	t.Run("forbidden", func(t *testing.T) {
		c := newTestClient(jsonResponse(http.StatusForbidden, `{"error":"forbidden","reason":"nope"}`), nil)
		_, err := c.Login(context.Background(), "bob", "wrong")
		if !errors.Is(err, KindLoginFailed) {
			t.Errorf("Unexpected error: %v", err)
		}
		errtest.StatusError(t, "Forbidden: nope", http.StatusForbidden, err)
	})
}

func TestSession(t *testing.T) {
	body := `{"ok":true,"userCtx":{"name":"bob","roles":["_admin"]},"info":{"authentication_handlers":["cookie","default"],"authenticated":"cookie","authentication_db":"_users"}}`
	c := newTestClient(jsonResponse(http.StatusOK, body), nil)
	session, err := c.Session(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	expected := &Session{
		Name:                   "bob",
		Roles:                  []string{"_admin"},
		AuthenticationMethod:   "cookie",
		AuthenticationDB:       "_users",
		AuthenticationHandlers: []string{"cookie", "default"},
	}
	session.RawResponse = nil
	if d := testy.DiffInterface(expected, session); d != nil {
		t.Error(d)
	}
}

func TestLogout(t *testing.T) {
	c := newCustomClient(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodDelete || req.URL.Path != "/_session" {
			t.Errorf("Unexpected request: %s %s", req.Method, req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"ok":true}`), nil
	})
	if err := c.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestAddUser(t *testing.T) {
	t.Run("creates users database", func(t *testing.T) {
		var requests []string
		usersExist := false
		c := newCustomClient(func(req *http.Request) (*http.Response, error) {
			requests = append(requests, req.Method+" "+req.URL.Path)
			switch req.URL.Path {
			case "/_users":
				usersExist = true
				return jsonResponse(http.StatusCreated, `{"ok":true}`), nil
			case "/_users/org.couchdb.user:bob":
				if !usersExist {
					return jsonResponse(http.StatusNotFound, `{"error":"not_found","reason":"Database does not exist."}`), nil
				}
				body := requestJSON(t, req)
				expected := map[string]interface{}{
					"_id":      "org.couchdb.user:bob",
					"name":     "bob",
					"password": "secret",
					"roles":    []interface{}{"editor"},
					"type":     "user",
				}
				if d := testy.DiffInterface(expected, body); d != nil {
					t.Error(d)
				}
				return jsonResponse(http.StatusCreated, `{"ok":true,"id":"org.couchdb.user:bob","rev":"1-u"}`), nil
			}
			t.Fatalf("Unexpected path: %s", req.URL.Path)
			return nil, nil
		})
		id, rev, err := c.AddUser(context.Background(), "bob", "secret", "editor")
		if err != nil {
			t.Fatal(err)
		}
		if id != "org.couchdb.user:bob" || rev != "1-u" {
			t.Errorf("Unexpected result: %s %s", id, rev)
		}
		expected := []string{
			"PUT /_users/org.couchdb.user:bob",
			"PUT /_users",
			"PUT /_users/org.couchdb.user:bob",
		}
		if d := testy.DiffInterface(expected, requests); d != nil {
			t.Error(d)
		}
	})
	t.Run("exists", func(t *testing.T) {
		c := newTestClient(jsonResponse(http.StatusConflict, `{"error":"conflict","reason":"Document update conflict."}`), nil)
		_, _, err := c.AddUser(context.Background(), "bob", "secret")
		if !errors.Is(err, KindUpdateConflict) {
			t.Errorf("Unexpected error: %v", err)
		}
		errtest.StatusError(t, "Conflict: Document update conflict.", http.StatusConflict, err)
	})
}

func TestRemoveUser(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		c := newTestClient(&http.Response{StatusCode: http.StatusNotFound, Body: Body("")}, nil)
		err := c.RemoveUser(context.Background(), "bob")
		if !errors.Is(err, KindMissingDocument) {
			t.Errorf("Unexpected error: %v", err)
		}
		errtest.StatusError(t, "Not Found", http.StatusNotFound, err)
	})
	t.Run("success", func(t *testing.T) {
		c := newCustomClient(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/_users/org.couchdb.user:bob" {
				t.Errorf("Unexpected path: %s", req.URL.Path)
			}
			if req.Method == http.MethodHead {
				return &http.Response{StatusCode: http.StatusOK, Header: http.Header{"Etag": {`"1-u"`}}, Body: Body("")}, nil
			}
			return jsonResponse(http.StatusOK, `{"ok":true,"id":"org.couchdb.user:bob","rev":"2-u"}`), nil
		})
		if err := c.RemoveUser(context.Background(), "bob"); err != nil {
			t.Fatal(err)
		}
	})
}
