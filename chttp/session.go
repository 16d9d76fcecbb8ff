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

package chttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ajg/form"
)

// SessionCookieName is the name of the CouchDB session cookie.
const SessionCookieName = "AuthSession"

// sessionRefresh is how long before its expiry a session is renewed.
const sessionRefresh = time.Minute

// sessionAuth logs in to /_session on first use, and sends the resulting
// cookie with every request. The session is renewed shortly before it
// expires, and after the server rejects it.
type sessionAuth struct {
	username, password string

	client *Client
	next   http.RoundTripper

	mu      sync.Mutex
	value   string
	expires time.Time
}

func (a *sessionAuth) String() string {
	return fmt.Sprintf("[CookieAuth{user:%s,pass:%s}]", a.username, mask(a.password, 0))
}

func (a *sessionAuth) wrap(c *Client, next http.RoundTripper) http.RoundTripper {
	a.client = c
	a.next = next
	return a
}

// current returns the session cookie value, or "" when there is none.
func (a *sessionAuth) current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

// stale reports whether a new login is due. The caller holds a.mu.
func (a *sessionAuth) stale(now time.Time) bool {
	if a.value == "" {
		return true
	}
	return !a.expires.IsZero() && a.expires.Sub(now) < sessionRefresh
}

func (a *sessionAuth) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPost && a.client.isSessionPath(req.URL) {
		return a.next.RoundTrip(req)
	}
	value, err := a.session(req.Context())
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	withSessionCookie(out, value)
	res, err := a.next.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusUnauthorized {
		a.drop(value)
	} else {
		a.remember(res, time.Now())
	}
	return res, nil
}

// session returns a valid session cookie value, logging in if necessary.
// Concurrent callers wait for a single login.
func (a *sessionAuth) session(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.stale(time.Now()) {
		return a.value, nil
	}
	body, err := form.EncodeToString(struct {
		Name     string `form:"name"`
		Password string `form:"password"`
	}{Name: a.username, Password: a.password})
	if err != nil {
		return "", badRequest(err)
	}
	res, err := a.client.DoError(ctx, http.MethodPost, "/_session", &Options{
		Body:        io.NopCloser(strings.NewReader(body)),
		ContentType: typeForm,
	})
	if err != nil {
		return "", err
	}
	a.value = ""
	a.store(res, time.Now())
	return a.value, nil
}

// remember picks up a cookie the server refreshed in passing.
func (a *sessionAuth) remember(res *http.Response, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store(res, now)
}

// store records the session cookie set by res, if any. The caller holds
// a.mu.
func (a *sessionAuth) store(res *http.Response, now time.Time) {
	for _, cookie := range res.Cookies() {
		if cookie.Name != SessionCookieName {
			continue
		}
		a.value = cookie.Value
		switch {
		case cookie.MaxAge > 0:
			a.expires = now.Add(time.Duration(cookie.MaxAge) * time.Second)
		case !cookie.Expires.IsZero():
			a.expires = cookie.Expires
		default:
			a.expires = time.Time{}
		}
	}
}

// drop forgets the session, unless another request has already replaced it.
func (a *sessionAuth) drop(value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.value == value {
		a.value = ""
		a.expires = time.Time{}
	}
}

// withSessionCookie replaces any session cookie on req with value, keeping
// all other cookies.
func withSessionCookie(req *http.Request, value string) {
	cookies := req.Cookies()
	req.Header.Del("Cookie")
	for _, cookie := range cookies {
		if cookie.Name != SessionCookieName {
			req.AddCookie(cookie)
		}
	}
	if value != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: value})
	}
}
