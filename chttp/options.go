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
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Options are optional parameters which may be sent with a request.
type Options struct {
	// Accept sets the request's Accept header. Defaults to "application/json".
	// To specify any, use "*/*".
	Accept string

	// ContentType sets the requests's Content-Type header. Defaults to "application/json".
	ContentType string

	// ContentLength, if set, sets the ContentLength of the request
	ContentLength int64

	// Body sets the body of the request.
	Body io.ReadCloser

	// GetBody is a function to set the body, and can be used on retries. If
	// set, Body is ignored.
	GetBody func() (io.ReadCloser, error)

	// IfMatch adds the If-Match header, used for conditional attachment
	// updates.
	IfMatch string

	// Destination adds the Destination header, used by COPY.
	Destination string

	// Query is appended to the exiting url, if present. If the passed url
	// already contains query parameters, the values in Query are appended.
	// No merging takes place.
	Query url.Values

	// Header is a list of default headers to be set on the request.
	Header http.Header

	// NoGzip disables gzip compression on the request body.
	NoGzip bool
}

type optionNoRequestCompression struct{}

var _ Option = optionNoRequestCompression{}

func (optionNoRequestCompression) Apply(target interface{}) {
	switch t := target.(type) {
	case *Client:
		t.noGzip = true
	case *Options:
		t.NoGzip = true
	}
}

func (optionNoRequestCompression) String() string { return "[NoRequestCompression]" }

// OptionNoRequestCompression instructs the client not to gzip request
// bodies. When passed as a per-request option, it applies only to that
// request.
func OptionNoRequestCompression() Option {
	return optionNoRequestCompression{}
}

type optionUserAgent string

func (a optionUserAgent) Apply(target interface{}) {
	if client, ok := target.(*Client); ok {
		client.UserAgents = append(client.UserAgents, string(a))
	}
}

func (a optionUserAgent) String() string {
	return fmt.Sprintf("[UserAgent:%s]", string(a))
}

// OptionUserAgent may be passed to New to append an additional string to
// the User-Agent header of every request.
func OptionUserAgent(ua string) Option {
	return optionUserAgent(ua)
}

type optionHeader http.Header

func (h optionHeader) Apply(target interface{}) {
	if opts, ok := target.(*Options); ok {
		if opts.Header == nil {
			opts.Header = http.Header{}
		}
		for k, v := range h {
			opts.Header[k] = append(opts.Header[k], v...)
		}
	}
}

func (h optionHeader) String() string {
	return fmt.Sprintf("[Header:%v]", http.Header(h))
}

// OptionHeader adds arbitrary headers to a single request.
func OptionHeader(h http.Header) Option {
	return optionHeader(h)
}

// CookieAuth logs in to /_session with the given credentials, and
// authenticates requests with the resulting session cookie. See
// https://docs.couchdb.org/en/stable/api/server/authn.html#cookie-authentication
func CookieAuth(username, password string) Option {
	return authOption(func() authScheme {
		return &sessionAuth{username: username, password: password}
	})
}

// BasicAuth sends HTTP Basic Auth credentials with every request.
func BasicAuth(username, password string) Option {
	return authOption(func() authScheme {
		return &basicAuth{username: username, password: password}
	})
}

// JWTAuth sends token as a bearer token with every request.
func JWTAuth(token string) Option {
	return authOption(func() authScheme {
		return &bearerAuth{token: token}
	})
}

// ProxyAuth authenticates as username with roles, through CouchDB's proxy
// authentication handler. secret, if set, signs the username. headers
// optionally rename the default X-Auth-CouchDB-* headers.
func ProxyAuth(username, secret string, roles []string, headers ...map[string]string) Option {
	renamed := http.Header{}
	for _, h := range headers {
		for name, custom := range h {
			renamed.Set(name, custom)
		}
	}
	return authOption(func() authScheme {
		return &proxyAuth{
			username: username,
			secret:   secret,
			roles:    roles,
			renamed:  renamed,
		}
	})
}
