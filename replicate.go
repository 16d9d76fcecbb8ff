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
	"strings"

	"github.com/go-kivik/couch/chttp"
)

// Continuous keeps a replication running, replicating new changes as they
// happen.
func Continuous() Option { return Param("continuous", true) }

// CreateTarget creates the replication target if it does not exist.
func CreateTarget() Option { return Param("create_target", true) }

// DocIDs restricts a replication to the listed documents.
func DocIDs(ids ...string) Option { return Param("doc_ids", ids) }

// ReplicationResult is the server's response to a replication request.
type ReplicationResult struct {
	OK        bool                     `json:"ok"`
	SessionID string                   `json:"session_id"`
	LocalID   string                   `json:"_local_id"`
	History   []map[string]interface{} `json:"history"`
	NoChanges bool                     `json:"no_changes"`
}

// Replicate replicates source to target, and returns when the replication
// is complete, or, with Continuous, once it has started. source and target
// are database URLs, or names of databases on this server. Options are sent
// as members of the replication request, so any replication parameter, such
// as "filter" or "since_seq", may be passed with Param.
func (c *Client) Replicate(ctx context.Context, source, target string, opts ...Option) (*ReplicationResult, error) {
	if source == "" {
		return nil, missingArg("source")
	}
	if target == "" {
		return nil, missingArg("target")
	}
	body := allOptions(opts).params()
	body["source"] = c.dbURL(source)
	body["target"] = c.dbURL(target)
	var result ReplicationResult
	err := c.DoJSON(ctx, http.MethodPost, "/_replicate", &chttp.Options{
		GetBody: chttp.BodyEncoder(body),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// dbURL expands a bare database name to its URL on this server, keeping the
// credentials of the DSN so the replicator can authenticate. Anything that
// already looks like a URL is returned unchanged.
func (c *Client) dbURL(name string) string {
	if strings.Contains(name, "://") {
		return name
	}
	return strings.TrimSuffix(c.AuthURL().String(), "/") + "/" + chttp.EncodeSegment(name)
}
