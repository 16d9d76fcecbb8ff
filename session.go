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
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/ajg/form"
	"golang.org/x/net/publicsuffix"

	"github.com/go-kivik/couch/chttp"
	"github.com/go-kivik/couch/errors"
)

const (
	typeForm = "application/x-www-form-urlencoded"

	usersDB    = "_users"
	userPrefix = "org.couchdb.user:"
)

type loginForm struct {
	Name     string `form:"name"`
	Password string `form:"password"`
}

// Login starts a cookie session for name, and returns the session token. The
// session cookie is kept by the client and sent with subsequent requests.
// Rejected credentials are an error of kind KindLoginFailed.
func (c *Client) Login(ctx context.Context, name, password string) (string, error) {
	if name == "" {
		return "", missingArg("name")
	}
	body, err := form.EncodeToString(loginForm{Name: name, Password: password})
	if err != nil {
		return "", &errors.Error{Kind: errors.KindBadRequest, Status: http.StatusBadRequest, Err: err}
	}
	if c.Jar == nil {
		// cookiejar.New never returns an error
		c.Jar, _ = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	}
	resp, err := c.DoError(ctx, http.MethodPost, "/_session", &chttp.Options{
		Body:        io.NopCloser(strings.NewReader(body)),
		ContentType: typeForm,
	})
	if err != nil {
		return "", loginFailed(err)
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == chttp.SessionCookieName {
			return cookie.Value, nil
		}
	}
	return "", nil
}

// Logout ends the current cookie session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.DoError(ctx, http.MethodDelete, "/_session", nil)
	return err
}

// Session describes the user context of the current session.
type Session struct {
	Name                   string
	Roles                  []string
	AuthenticationMethod   string
	AuthenticationDB       string
	AuthenticationHandlers []string
	// RawResponse is the unaltered response body.
	RawResponse json.RawMessage
}

type session struct {
	Data    json.RawMessage
	Info    authInfo    `json:"info"`
	UserCtx userContext `json:"userCtx"`
}

type authInfo struct {
	AuthenticationMethod   string   `json:"authenticated"`
	AuthenticationDB       string   `json:"authentication_db"`
	AuthenticationHandlers []string `json:"authentication_handlers"`
}

type userContext struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

func (s *session) UnmarshalJSON(data []byte) error {
	type alias session
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = session(a)
	s.Data = append(json.RawMessage(nil), data...)
	return nil
}

// Session returns the user context of the current session. An anonymous
// session has an empty Name.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	s := &session{}
	if err := c.DoJSON(ctx, http.MethodGet, "/_session", nil, s); err != nil {
		return nil, err
	}
	return &Session{
		RawResponse:            s.Data,
		Name:                   s.UserCtx.Name,
		Roles:                  s.UserCtx.Roles,
		AuthenticationMethod:   s.Info.AuthenticationMethod,
		AuthenticationDB:       s.Info.AuthenticationDB,
		AuthenticationHandlers: s.Info.AuthenticationHandlers,
	}, nil
}

type userDoc struct {
	ID       string   `json:"_id"`
	Name     string   `json:"name"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
	Type     string   `json:"type"`
}

// AddUser creates a user in the _users database, creating the database
// first if it does not exist. It returns the user document's ID and
// revision.
func (c *Client) AddUser(ctx context.Context, name, password string, roles ...string) (id, rev string, err error) {
	if name == "" {
		return "", "", missingArg("name")
	}
	if roles == nil {
		roles = []string{}
	}
	doc := &userDoc{
		ID:       userPrefix + name,
		Name:     name,
		Password: password,
		Roles:    roles,
		Type:     "user",
	}
	users := c.DB(usersDB)
	rev, err = users.Put(ctx, doc.ID, doc)
	if errors.IsKind(err, errors.KindMissingDatabase) {
		if _, err = c.CreateDB(ctx, usersDB); err != nil && !errors.IsKind(err, errors.KindDatabaseExists) {
			return "", "", err
		}
		rev, err = users.Put(ctx, doc.ID, doc)
	}
	if err != nil {
		return "", "", err
	}
	return doc.ID, rev, nil
}

// RemoveUser deletes the named user from the _users database. A missing
// user is an error of kind KindMissingDocument.
func (c *Client) RemoveUser(ctx context.Context, name string) error {
	if name == "" {
		return missingArg("name")
	}
	_, err := c.DB(usersDB).DeleteID(ctx, userPrefix+name)
	return err
}
