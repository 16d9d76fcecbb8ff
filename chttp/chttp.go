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

// Package chttp provides the HTTP session used to talk to CouchDB servers.
//
// A Client issues a single request per call, and converts any non-2xx
// response or transport failure into an *errors.Error. No retries are
// attempted.
package chttp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strings"

	"github.com/go-kivik/couch/errors"
)

const (
	typeJSON = "application/json"
	typeForm = "application/x-www-form-urlencoded"
)

// The default UserAgent values
const (
	UserAgent = "couch chttp"
	Version   = "1.0.0"
)

// Option configures a Client, or a single request. Apply is called with
// every target an option might affect, and ignores the ones it does not
// know.
type Option interface {
	Apply(target interface{})
}

// Client represents a client connection. It embeds an *http.Client
type Client struct {
	// UserAgents is appended to set the User-Agent header. Typically it should
	// contain pairs of product name and version.
	UserAgents []string

	*http.Client

	rawDSN   string
	dsn      *url.URL
	basePath string
	userinfo *url.Userinfo
	auth     authScheme

	// noGzip disables compression of request bodies.
	noGzip bool

	metrics *metrics
}

// New returns a connection to the CouchDB server at dsn. Credentials in the
// URL start a cookie session on first use. An explicit auth option, such as
// BasicAuth, replaces them; at most one auth option may be given.
func New(client *http.Client, dsn string, opts ...Option) (*Client, error) {
	server, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{}
	} else {
		// Auth, metrics and cookies are installed on a copy, so clients
		// sharing an *http.Client do not see each other's.
		hc := *client
		client = &hc
	}
	userinfo := server.User
	server.User = nil
	c := &Client{
		UserAgents: []string{"couch/" + Version},
		Client:     client,
		rawDSN:     dsn,
		dsn:        server,
		basePath:   strings.TrimSuffix(server.Path, "/"),
		userinfo:   userinfo,
	}

	auth := &authConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.Apply(c)
			opt.Apply(auth)
		}
	}
	scheme, err := auth.choose(userinfo)
	if err != nil {
		return nil, err
	}
	if err := c.instrument(); err != nil {
		return nil, err
	}
	if scheme != nil {
		c.auth = scheme
		c.Transport = scheme.wrap(c, baseTransport(c))
	}
	return c, nil
}

func parseDSN(dsn string) (*url.URL, error) {
	if dsn == "" {
		return nil, errors.New(errors.KindBadRequest, "no URL specified")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "http://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, badRequest(err)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

func badRequest(err error) error {
	return &errors.Error{Kind: errors.KindBadRequest, Status: http.StatusBadRequest, Err: err}
}

// DSN returns the unparsed DSN used to connect.
func (c *Client) DSN() string {
	return c.rawDSN
}

// URL returns a copy of the server's base URL, without credentials.
func (c *Client) URL() *url.URL {
	u := *c.dsn
	return &u
}

// AuthURL is URL with the credentials given in the DSN, if any. It is meant
// for URLs handed to the server itself, such as replication endpoints.
func (c *Client) AuthURL() *url.URL {
	u := c.URL()
	u.User = c.userinfo
	return u
}

// DoReq sends a request and returns the raw response. The error is non-nil
// only when no response was received; an error status such as 404 is left
// for the caller to inspect, typically with ResponseError.
func (c *Client) DoReq(ctx context.Context, method, path string, opts *Options) (*http.Response, error) {
	if method == "" {
		return nil, errors.New(errors.KindBadRequest, "chttp: method required")
	}
	body, err := opts.body()
	if err != nil {
		return nil, err
	}
	if body != nil {
		defer body.Close() // nolint: errcheck
	}
	req, err := c.NewRequest(ctx, method, path, body, opts)
	if err != nil {
		return nil, err
	}
	opts.apply(req)

	trace := ContextClientTrace(ctx)
	if trace != nil {
		trace.httpRequest(req)
		trace.httpRequestBody(req)
	}
	res, err := c.Do(req)
	if trace != nil {
		trace.httpResponse(res)
		trace.httpResponseBody(res)
	}
	return res, transportError(err)
}

// transportError classifies a failure to get a response. Errors raised by
// an auth scheme or a body encoder are already classified, and are returned
// without the *url.Error wrapping added by the http.Client.
func transportError(err error) error {
	var urlErr *url.Error
	var classified *errors.Error
	if errors.As(err, &urlErr) && errors.As(urlErr.Err, &classified) {
		return urlErr.Err
	}
	return errors.Transport(err)
}

// DoError is DoReq followed by ResponseError, for callers that need nothing
// but the status and headers. The response body is always closed.
func (c *Client) DoError(ctx context.Context, method, path string, opts *Options) (*http.Response, error) {
	res, err := c.DoReq(ctx, method, path, opts)
	if err != nil {
		return res, err
	}
	defer CloseBody(res.Body)
	return res, ResponseError(res)
}

// DoJSON is DoReq followed by ResponseError and DecodeJSON into i. The
// response body is always closed.
func (c *Client) DoJSON(ctx context.Context, method, path string, opts *Options, i interface{}) error {
	res, err := c.DoReq(ctx, method, path, opts)
	if err != nil {
		return err
	}
	defer CloseBody(res.Body)
	if err := ResponseError(res); err != nil {
		return err
	}
	return DecodeJSON(res, i)
}

func (c *Client) userAgent() string {
	agents := make([]string, 0, len(c.UserAgents)+1)
	agents = append(agents, fmt.Sprintf("%s/%s (Language=%s; Platform=%s/%s)",
		UserAgent, Version, runtime.Version(), runtime.GOARCH, runtime.GOOS))
	return strings.Join(append(agents, c.UserAgents...), " ")
}
