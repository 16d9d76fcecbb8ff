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
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gitlab.com/flimzy/httpe"
	"golang.org/x/crypto/pbkdf2"
)

const (
	sessionCookieName = "AuthSession"
	roleAdmin         = "_admin"
	usersDB           = "_users"
	userPrefix        = "org.couchdb.user:"

	schemePBKDF2     = "pbkdf2"
	pbkdf2Iterations = 10
	pbkdf2KeyLength  = 20

	// adminSalt salts session tokens of configured admins, who have no user
	// document.
	adminSalt = "admin"
)

type contextKey struct{ name string }

var userContextKey = &contextKey{"userCtx"}

type userContext struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	salt  string
}

func (c *userContext) hasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// MarshalJSON renders an anonymous user's name as null.
func (c *userContext) MarshalJSON() ([]byte, error) {
	var name interface{}
	if c.Name != "" {
		name = c.Name
	}
	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	return json.Marshal(map[string]interface{}{
		"name":  name,
		"roles": roles,
	})
}

func (s *Server) adminParty() bool {
	return len(s.admins) == 0
}

// hashPassword replaces a plain text password in a _users document with a
// PBKDF2 derived key, the way CouchDB does.
func hashPassword(doc map[string]interface{}) {
	password, ok := doc["password"].(string)
	if !ok {
		return
	}
	delete(doc, "password")
	salt := strings.ReplaceAll(uuid.NewString(), "-", "")
	doc["password_scheme"] = schemePBKDF2
	doc["iterations"] = float64(pbkdf2Iterations)
	doc["salt"] = salt
	doc["derived_key"] = deriveKey(password, salt, pbkdf2Iterations)
}

func deriveKey(password, salt string, iterations int) string {
	return hex.EncodeToString(pbkdf2.Key([]byte(password), []byte(salt), iterations, pbkdf2KeyLength, sha1.New))
}

// user looks up name among the configured admins, then in the _users
// database. It returns nil if there is no such user.
func (s *Server) user(name string) (*userContext, map[string]interface{}) {
	if _, ok := s.admins[name]; ok {
		return &userContext{Name: name, Roles: []string{roleAdmin}, salt: adminSalt}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.dbs[usersDB]
	if !ok {
		return nil, nil
	}
	doc, ok := db.docs[userPrefix+name]
	if !ok || doc.deleted() {
		return nil, nil
	}
	body := doc.current().body
	user := &userContext{Name: name, Roles: []string{}}
	if roles, ok := body["roles"].([]interface{}); ok {
		for _, role := range roles {
			if r, ok := role.(string); ok {
				user.Roles = append(user.Roles, r)
			}
		}
	}
	user.salt, _ = body["salt"].(string)
	return user, body
}

func (s *Server) validate(name, password string) (*userContext, error) {
	errInvalid := errUnauthorized("Name or password is incorrect.")
	if pw, ok := s.admins[name]; ok {
		if !hmac.Equal([]byte(pw), []byte(password)) {
			return nil, errInvalid
		}
		user, _ := s.user(name)
		return user, nil
	}
	user, doc := s.user(name)
	if user == nil {
		return nil, errInvalid
	}
	if scheme, _ := doc["password_scheme"].(string); scheme != schemePBKDF2 {
		return nil, errInvalid
	}
	derived, _ := doc["derived_key"].(string)
	iterations := pbkdf2Iterations
	if n, ok := doc["iterations"].(float64); ok && n > 0 {
		iterations = int(n)
	}
	key := deriveKey(password, user.salt, iterations)
	if !hmac.Equal([]byte(key), []byte(derived)) {
		return nil, errInvalid
	}
	return user, nil
}

// createAuthToken hashes a username, salt, timestamp, and the server secret
// into a session token.
func (s *Server) createAuthToken(name, salt string, created int64) string {
	sessionData := fmt.Sprintf("%s:%X", name, created)
	h := hmac.New(sha1.New, []byte(s.secret+salt))
	_, _ = h.Write([]byte(sessionData))
	return base64.RawURLEncoding.EncodeToString(append([]byte(sessionData+":"), h.Sum(nil)...))
}

func decodeCookie(cookie string) (name string, created int64, err error) {
	data, err := base64.RawURLEncoding.DecodeString(cookie)
	if err != nil {
		return "", 0, err
	}
	const partCount = 3
	parts := bytes.SplitN(data, []byte(":"), partCount)
	if len(parts) != partCount {
		return "", 0, fmt.Errorf("invalid cookie")
	}
	created, err = strconv.ParseInt(string(parts[1]), 16, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid timestamp: %w", err)
	}
	return string(parts[0]), created, nil
}

func (s *Server) validateCookie(value string) *userContext {
	name, created, err := decodeCookie(value)
	if err != nil {
		return nil
	}
	user, _ := s.user(name)
	if user == nil {
		return nil
	}
	if !hmac.Equal([]byte(s.createAuthToken(name, user.salt, created)), []byte(value)) {
		return nil
	}
	return user
}

// authMiddleware sets the user context based on the authenticated user, if
// any. Unauthenticated requests proceed as anonymous.
func (s *Server) authMiddleware(next httpe.HandlerWithError) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		user, method, err := s.authenticate(r)
		if err != nil {
			return err
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, authMethodKey, method)
		return next.ServeHTTPWithError(w, r.WithContext(ctx))
	})
}

var authMethodKey = &contextKey{"authMethod"}

func (s *Server) authenticate(r *http.Request) (*userContext, string, error) {
	if s.adminParty() {
		return &userContext{Roles: []string{roleAdmin}}, "default", nil
	}
	if name, password, ok := r.BasicAuth(); ok {
		user, err := s.validate(name, password)
		return user, "default", err
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if user := s.validateCookie(cookie.Value); user != nil {
			return user, "cookie", nil
		}
	}
	return &userContext{Roles: []string{}}, "", nil
}

// adminRequired rejects requests that are not made by a server admin.
func adminRequired(next httpe.HandlerWithError) httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		user, _ := r.Context().Value(userContextKey).(*userContext)
		if user == nil || user.Name == "" && !user.hasRole(roleAdmin) {
			return errUnauthorized("You are not a server admin.")
		}
		if !user.hasRole(roleAdmin) {
			return &couchError{status: http.StatusForbidden, Err: "forbidden", Reason: "You are not a server admin."}
		}
		return next.ServeHTTPWithError(w, r)
	})
}

func (s *Server) postSession() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		var authData struct {
			Name     *string `form:"name" json:"name"`
			Password string  `form:"password" json:"password"`
		}
		if err := s.bind(r, &authData); err != nil {
			return err
		}
		if authData.Name == nil {
			return errBadRequest("request body must contain a username")
		}
		user, err := s.validate(*authData.Name, authData.Password)
		if err != nil {
			return err
		}
		token := s.createAuthToken(user.Name, user.salt, time.Now().Unix())
		w.Header().Set("Cache-Control", "must-revalidate")
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int((10 * time.Minute).Seconds()),
			HttpOnly: true,
		})
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    true,
			"name":  user.Name,
			"roles": user.Roles,
		})
	})
}

func (s *Server) deleteSession() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, _ *http.Request) error {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		w.Header().Set("Cache-Control", "must-revalidate")
		return serveJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}

func (s *Server) getSession() httpe.HandlerWithError {
	return httpe.HandlerWithErrorFunc(func(w http.ResponseWriter, r *http.Request) error {
		user, _ := r.Context().Value(userContextKey).(*userContext)
		method, _ := r.Context().Value(authMethodKey).(string)
		info := map[string]interface{}{
			"authentication_handlers": []string{"cookie", "default"},
		}
		if method != "" {
			info["authenticated"] = method
			info["authentication_db"] = usersDB
		}
		return serveJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"userCtx": user,
			"info":    info,
		})
	})
}
