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
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-kivik/couch/errors"
)

// authScheme authenticates the requests of a single client.
type authScheme interface {
	fmt.Stringer
	// wrap returns the transport that authenticates each request before
	// handing it to next.
	wrap(c *Client, next http.RoundTripper) http.RoundTripper
}

// authConfig collects the auth options passed to New.
type authConfig struct {
	schemes []authScheme
}

// choose returns the scheme to use. Without an explicit option, credentials
// in the DSN start a cookie session.
func (a *authConfig) choose(userinfo *url.Userinfo) (authScheme, error) {
	switch len(a.schemes) {
	case 0:
		if userinfo == nil {
			return nil, nil
		}
		password, _ := userinfo.Password()
		return &sessionAuth{username: userinfo.Username(), password: password}, nil
	case 1:
		return a.schemes[0], nil
	}
	names := make([]string, len(a.schemes))
	for i, s := range a.schemes {
		names[i] = s.String()
	}
	return nil, errors.Errorf(errors.KindBadRequest, "chttp: conflicting auth options: %s", strings.Join(names, ", "))
}

// authOption builds a fresh scheme for every client it is passed to, so a
// single option value may be shared.
type authOption func() authScheme

var _ Option = authOption(nil)

func (o authOption) Apply(target interface{}) {
	if cfg, ok := target.(*authConfig); ok {
		cfg.schemes = append(cfg.schemes, o())
	}
}

func (o authOption) String() string {
	return o().String()
}

// baseTransport returns the client's current transport, or the default.
func baseTransport(c *Client) http.RoundTripper {
	if c.Transport == nil {
		return http.DefaultTransport
	}
	return c.Transport
}

// decorator sends a copy of each request, modified by decorate.
type decorator struct {
	next     http.RoundTripper
	decorate func(*http.Request)
}

func (d *decorator) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	d.decorate(out)
	return d.next.RoundTrip(out)
}

func mask(s string, keep int) string {
	if len(s) <= keep {
		return s
	}
	return s[:keep] + strings.Repeat("*", len(s)-keep)
}

type basicAuth struct {
	username, password string
}

func (a *basicAuth) String() string {
	return fmt.Sprintf("[BasicAuth{user:%s,pass:%s}]", a.username, mask(a.password, 0))
}

func (a *basicAuth) wrap(_ *Client, next http.RoundTripper) http.RoundTripper {
	return &decorator{next: next, decorate: func(req *http.Request) {
		req.SetBasicAuth(a.username, a.password)
	}}
}

type bearerAuth struct {
	token string
}

func (a *bearerAuth) String() string {
	return fmt.Sprintf("[JWTAuth{token:%s}]", mask(a.token, 3)) // nolint: gomnd
}

func (a *bearerAuth) wrap(_ *Client, next http.RoundTripper) http.RoundTripper {
	return &decorator{next: next, decorate: func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}}
}

// Proxy authentication header names, as CouchDB expects them by default.
const (
	headerProxyUser  = "X-Auth-CouchDB-UserName"
	headerProxyRoles = "X-Auth-CouchDB-Roles"
	headerProxyToken = "X-Auth-CouchDB-Token"
)

type proxyAuth struct {
	username string
	secret   string
	roles    []string
	// renamed maps a default header name to the one the server is
	// configured with.
	renamed http.Header
}

func (a *proxyAuth) String() string {
	return fmt.Sprintf("[ProxyAuth{username:%s,secret:%s}]", a.username, mask(a.secret, 0))
}

func (a *proxyAuth) headerName(name string) string {
	if custom := a.renamed.Get(name); custom != "" {
		return http.CanonicalHeaderKey(custom)
	}
	return name
}

// token is the hex HMAC-SHA1 of the username, keyed by the shared secret.
// Without a secret, no token is sent.
func (a *proxyAuth) token() string {
	if a.secret == "" {
		return ""
	}
	mac := hmac.New(sha1.New, []byte(a.secret))
	_, _ = mac.Write([]byte(a.username))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *proxyAuth) wrap(_ *Client, next http.RoundTripper) http.RoundTripper {
	headers := http.Header{}
	headers.Set(a.headerName(headerProxyUser), a.username)
	headers.Set(a.headerName(headerProxyRoles), strings.Join(a.roles, ","))
	if token := a.token(); token != "" {
		headers.Set(a.headerName(headerProxyToken), token)
	}
	return &decorator{next: next, decorate: func(req *http.Request) {
		for name, values := range headers {
			req.Header[name] = values
		}
	}}
}
