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
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// NewRequest returns a request for path, relative to the server's base URL.
// path must already be escaped, as by EncodePath, and may carry a query
// string. Any scheme or host in path is ignored.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader, opts *Options) (*http.Request, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, badRequest(err)
	}
	compress := c.compresses(target, body, opts)
	if compress {
		body = gzipStream(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, badRequest(err)
	}
	if compress {
		req.Header.Set("Content-Encoding", "gzip")
	}
	req.Header.Set("User-Agent", c.userAgent())
	return req, nil
}

func (c *Client) path(path string) string {
	if c.basePath == "" {
		return path
	}
	return c.basePath + "/" + strings.TrimPrefix(path, "/")
}

func (c *Client) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(c.path(path))
	if err != nil {
		return nil, err
	}
	target := *c.dsn
	target.Path = ref.Path
	target.RawPath = ref.RawPath
	target.RawQuery = ref.RawQuery
	return &target, nil
}

func (c *Client) isSessionPath(u *url.URL) bool {
	return u.Path == c.path("/_session")
}

func (c *Client) compresses(target *url.URL, body io.Reader, opts *Options) bool {
	if body == nil || c.noGzip || (opts != nil && opts.NoGzip) {
		return false
	}
	// CouchDB accepts a compressed login only from 3.2 on.
	return !c.isSessionPath(target)
}

// gzipStream compresses body on the fly. body is closed once it has been
// consumed, if it is an io.Closer.
func gzipStream(body io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		zw := gzip.NewWriter(pw)
		_, err := io.Copy(zw, body)
		if closeErr := zw.Close(); err == nil {
			err = closeErr
		}
		if closer, ok := body.(io.Closer); ok {
			_ = closer.Close()
		}
		_ = pw.CloseWithError(err)
	}()
	return pr
}

// body returns the request body, preferring GetBody over Body.
func (o *Options) body() (io.ReadCloser, error) {
	switch {
	case o == nil:
		return nil, nil
	case o.GetBody != nil:
		body, err := o.GetBody()
		if err != nil {
			return nil, err
		}
		o.Body = body
		return body, nil
	}
	return o.Body, nil
}

// apply sets the headers and query parameters described by o on req. A nil
// *Options still sets the JSON defaults for Accept and Content-Type.
func (o *Options) apply(req *http.Request) {
	req.Header.Set("Accept", typeJSON)
	req.Header.Set("Content-Type", typeJSON)
	if o == nil {
		return
	}
	set := map[string]string{
		"Accept":       o.Accept,
		"Content-Type": o.ContentType,
		"If-Match":     o.IfMatch,
		"Destination":  o.Destination,
	}
	for name, value := range set {
		if value != "" {
			req.Header.Set(name, value)
		}
	}
	for name, values := range o.Header {
		if _, exists := req.Header[name]; !exists {
			req.Header[name] = values
		}
	}
	compressed := req.Header.Get("Content-Encoding") != ""
	if o.ContentLength != 0 && !compressed {
		req.ContentLength = o.ContentLength
	}
	if len(o.Query) > 0 {
		query := o.Query.Encode()
		if req.URL.RawQuery != "" {
			query = req.URL.RawQuery + "&" + query
		}
		req.URL.RawQuery = query
	}
	if !compressed {
		req.GetBody = o.GetBody
	}
}
