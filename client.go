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
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-kivik/couch/chttp"
	"github.com/go-kivik/couch/errors"
)

// DefaultURL is the server URL used by NewFromEnv when EnvURL is not set.
const DefaultURL = "http://localhost:5984/"

// EnvURL is the environment variable consulted by NewFromEnv.
const EnvURL = "COUCHDB_URL"

// Client is a connection to a CouchDB server. It is safe for concurrent use.
type Client struct {
	*chttp.Client

	versionMU   sync.Mutex
	versionInfo []int
}

// New returns a client for the server at dsn. Credentials embedded in dsn
// are used for cookie authentication. Options may include any chttp.Option,
// such as chttp.BasicAuth or chttp.OptionMetrics, and OptionHTTPClient.
func New(dsn string, opts ...Option) (*Client, error) {
	co := &clientOptions{}
	allOptions(opts).Apply(co)
	chttpOpts := make([]chttp.Option, 0, len(opts))
	for _, opt := range opts {
		if opt != nil {
			chttpOpts = append(chttpOpts, opt)
		}
	}
	httpClient := co.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c, err := chttp.New(httpClient, dsn, chttpOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{Client: c}, nil
}

// NewFromEnv returns a client for the server named by the COUCHDB_URL
// environment variable, or DefaultURL.
func NewFromEnv(opts ...Option) (*Client, error) {
	return New(envURL(), opts...)
}

func envURL() string {
	if dsn := os.Getenv(EnvURL); dsn != "" {
		return dsn
	}
	return DefaultURL
}

// Ping reports whether the server responds. An HTTP error response yields
// false, and a nil error; a transport failure is returned.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	_, err := c.DoError(ctx, http.MethodHead, "/", nil)
	if errors.IsKind(err, errors.KindHTTP) {
		return false, nil
	}
	return err == nil, err
}

// Version returns the server's version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var result struct {
		Version string `json:"version"`
	}
	if err := c.DoJSON(ctx, http.MethodGet, "/", nil, &result); err != nil {
		return "", err
	}
	return result.Version, nil
}

// VersionInfo returns the server version as a slice of integers, such as
// [3 3 2]. The version is fetched once, and cached for the lifetime of the
// client.
func (c *Client) VersionInfo(ctx context.Context) ([]int, error) {
	c.versionMU.Lock()
	defer c.versionMU.Unlock()
	if c.versionInfo != nil {
		return c.versionInfo, nil
	}
	version, err := c.Version(ctx)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(version, ".")
	info := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, &errors.Error{Kind: errors.KindRequestFailed, Message: "couch: invalid server version " + strconv.Quote(version), Err: err}
		}
		info[i] = n
	}
	c.versionInfo = info
	return info, nil
}

// AllDBs returns the names of all databases on the server.
func (c *Client) AllDBs(ctx context.Context, opts ...Option) ([]string, error) {
	query, err := encodeOptions(opts)
	if err != nil {
		return nil, err
	}
	var allDBs []string
	err = c.DoJSON(ctx, http.MethodGet, "/_all_dbs", &chttp.Options{Query: query}, &allDBs)
	return allDBs, err
}

// Len returns the number of databases on the server.
func (c *Client) Len(ctx context.Context) (int, error) {
	allDBs, err := c.AllDBs(ctx)
	return len(allDBs), err
}

// DBExists reports whether the named database exists.
func (c *Client) DBExists(ctx context.Context, dbName string) (bool, error) {
	if dbName == "" {
		return false, missingArg("dbName")
	}
	_, err := c.DoError(ctx, http.MethodHead, chttp.EncodePath(dbName), nil)
	if errors.IsKind(err, errors.KindNotFound) {
		return false, nil
	}
	return err == nil, err
}

// CreateDB creates the named database, and returns a handle to it. It fails
// with KindDatabaseExists if the database already exists.
func (c *Client) CreateDB(ctx context.Context, dbName string, opts ...Option) (*DB, error) {
	if dbName == "" {
		return nil, missingArg("dbName")
	}
	query, err := encodeOptions(opts)
	if err != nil {
		return nil, err
	}
	if _, err := c.DoError(ctx, http.MethodPut, chttp.EncodePath(dbName), &chttp.Options{Query: query}); err != nil {
		return nil, databaseExists(err)
	}
	return c.DB(dbName), nil
}

// DestroyDB deletes the named database. It fails with KindMissingDatabase if
// the database does not exist.
func (c *Client) DestroyDB(ctx context.Context, dbName string) error {
	if dbName == "" {
		return missingArg("dbName")
	}
	_, err := c.DoError(ctx, http.MethodDelete, chttp.EncodePath(dbName), nil)
	return missingDatabase(err)
}

// DB returns a handle to the named database, without checking that it
// exists.
func (c *Client) DB(dbName string) *DB {
	return &DB{client: c, name: dbName}
}

// OpenDB returns a handle to the named database, after checking that it
// exists.
func (c *Client) OpenDB(ctx context.Context, dbName string) (*DB, error) {
	if dbName == "" {
		return nil, missingArg("dbName")
	}
	db := c.DB(dbName)
	if err := db.Check(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// DatabaseFromURL returns a checked handle to the database named by the
// single path segment of rawURL. A bare database name refers to a database
// on the server named by COUCHDB_URL, or DefaultURL.
func DatabaseFromURL(ctx context.Context, rawURL string, opts ...Option) (*DB, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &errors.Error{Kind: errors.KindBadRequest, Status: http.StatusBadRequest, Err: err}
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 1 {
		return nil, errors.New(errors.KindBadRequest, "couch: URL contains more than one path segment")
	}
	dbName := segments[0]
	if dbName == "" {
		return nil, missingArg("database name")
	}
	dsn := envURL()
	if u.Host != "" {
		u.Path, u.RawPath, u.RawQuery, u.Fragment = "/", "", "", ""
		dsn = u.String()
	}
	c, err := New(dsn, opts...)
	if err != nil {
		return nil, err
	}
	return c.OpenDB(ctx, dbName)
}

func nodePath(node, section string, path ...string) string {
	if node == "" {
		node = "_local"
	}
	return chttp.EncodePath(append([]string{"_node", node, section}, path...)...)
}

// Config returns the configuration of node, as a map of sections to their
// options. An empty node means "_local".
func (c *Client) Config(ctx context.Context, node string) (map[string]map[string]string, error) {
	var config map[string]map[string]string
	err := c.DoJSON(ctx, http.MethodGet, nodePath(node, "_config"), nil, &config)
	return config, err
}

// Stats returns the statistics of node. With a path, such as
// ("couchdb", "request_time"), only that statistic is returned.
func (c *Client) Stats(ctx context.Context, node string, path ...string) (map[string]interface{}, error) {
	var stats map[string]interface{}
	err := c.DoJSON(ctx, http.MethodGet, nodePath(node, "_stats", path...), nil, &stats)
	return stats, err
}

// Tasks returns the tasks currently active on the server.
func (c *Client) Tasks(ctx context.Context) ([]map[string]interface{}, error) {
	var tasks []map[string]interface{}
	err := c.DoJSON(ctx, http.MethodGet, "/_active_tasks", nil, &tasks)
	return tasks, err
}

// UUIDs returns count server-generated UUIDs.
func (c *Client) UUIDs(ctx context.Context, count int) ([]string, error) {
	if count < 1 {
		return nil, errors.New(errors.KindBadRequest, "couch: count must be 1 or more")
	}
	var result struct {
		UUIDs []string `json:"uuids"`
	}
	query := url.Values{"count": {strconv.Itoa(count)}}
	err := c.DoJSON(ctx, http.MethodGet, "/_uuids", &chttp.Options{Query: query}, &result)
	return result.UUIDs, err
}
