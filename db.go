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
	"net/http"
	"net/url"
	"strings"

	"github.com/go-kivik/couch/chttp"
	"github.com/go-kivik/couch/errors"
)

// DB is a handle to a single database. It is safe for concurrent use.
type DB struct {
	client *Client
	name   string
}

// Name returns the database name.
func (db *DB) Name() string {
	return db.name
}

// Client returns the client the database handle belongs to.
func (db *DB) Client() *Client {
	return db.client
}

func (db *DB) path(segments ...string) string {
	return chttp.EncodePath(append([]string{db.name}, segments...)...)
}

func (db *DB) docPath(docID string, segments ...string) string {
	path := "/" + chttp.EncodeSegment(db.name) + "/" + chttp.EncodeDocID(docID)
	for _, segment := range segments {
		path += "/" + chttp.EncodeSegment(segment)
	}
	return path
}

// Exists reports whether the database exists.
func (db *DB) Exists(ctx context.Context) (bool, error) {
	err := db.Check(ctx)
	if errors.IsKind(err, errors.KindNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Check returns an error of kind KindMissingDatabase if the database does
// not exist.
func (db *DB) Check(ctx context.Context) error {
	_, err := db.client.DoError(ctx, http.MethodHead, db.path(), nil)
	return missingDatabase(err)
}

// Contains reports whether a document with the given ID exists.
func (db *DB) Contains(ctx context.Context, docID string) (bool, error) {
	if docID == "" {
		return false, missingArg("docID")
	}
	_, err := db.client.DoError(ctx, http.MethodHead, db.docPath(docID), nil)
	if errors.IsKind(err, errors.KindNotFound) {
		return false, nil
	}
	return err == nil, err
}

// AllDocIDs returns the IDs of all documents in the database, including
// design documents.
func (db *DB) AllDocIDs(ctx context.Context) ([]string, error) {
	result, err := db.View(ctx, "_all_docs")
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(result.Rows))
	for i, row := range result.Rows {
		ids[i] = row.ID
	}
	return ids, nil
}

// DBInfo is the database information returned by the server.
type DBInfo struct {
	Name           string `json:"db_name"`
	DocCount       int64  `json:"doc_count"`
	DeletedCount   int64  `json:"doc_del_count"`
	UpdateSeq      string `json:"update_seq"`
	CompactRunning bool   `json:"compact_running"`
	Sizes          struct {
		File     int64 `json:"file"`
		External int64 `json:"external"`
		Active   int64 `json:"active"`
	} `json:"sizes"`
	// Raw is the unaltered response body, including any fields not
	// represented above.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON satisfies the json.Unmarshaler interface. update_seq is an
// opaque string in CouchDB 2.0 and later, and an integer before.
func (i *DBInfo) UnmarshalJSON(p []byte) error {
	type alias DBInfo
	var info struct {
		alias
		UpdateSeq json.RawMessage `json:"update_seq"`
	}
	if err := json.Unmarshal(p, &info); err != nil {
		return err
	}
	*i = DBInfo(info.alias)
	i.UpdateSeq = strings.Trim(string(info.UpdateSeq), `"`)
	i.Raw = append(json.RawMessage(nil), p...)
	return nil
}

// Info returns information about the database.
func (db *DB) Info(ctx context.Context) (*DBInfo, error) {
	var info DBInfo
	if err := db.client.DoJSON(ctx, http.MethodGet, db.path(), nil, &info); err != nil {
		return nil, missingDatabase(err)
	}
	return &info, nil
}

// Len returns the number of documents in the database.
func (db *DB) Len(ctx context.Context) (int64, error) {
	info, err := db.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.DocCount, nil
}

// DesignInfo returns information about the named design document's view
// index. ddoc may be given with or without the _design/ prefix.
func (db *DB) DesignInfo(ctx context.Context, ddoc string) (map[string]interface{}, error) {
	ddoc = strings.TrimPrefix(ddoc, prefixDesign)
	if ddoc == "" {
		return nil, missingArg("ddoc")
	}
	var info map[string]interface{}
	err := db.client.DoJSON(ctx, http.MethodGet, db.path("_design", ddoc, "_info"), nil, &info)
	return info, missingDocument(err)
}

const prefixDesign = "_design/"

// Get fetches the document with the given ID. A missing document is an
// error of kind KindMissingDocument.
func (db *DB) Get(ctx context.Context, docID string, opts ...Option) (Document, error) {
	var doc Document
	if err := db.Scan(ctx, docID, &doc, opts...); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDefault fetches the document with the given ID, or returns def if the
// document does not exist. A missing database is still an error.
func (db *DB) GetDefault(ctx context.Context, docID string, def Document, opts ...Option) (Document, error) {
	doc, err := db.Get(ctx, docID, opts...)
	if errors.IsKind(err, errors.KindMissingDocument) {
		return def, nil
	}
	return doc, err
}

// Scan fetches the document with the given ID, and unmarshals it into dest.
func (db *DB) Scan(ctx context.Context, docID string, dest interface{}, opts ...Option) error {
	if docID == "" {
		return missingArg("docID")
	}
	query, err := encodeOptions(opts)
	if err != nil {
		return err
	}
	err = db.client.DoJSON(ctx, http.MethodGet, db.docPath(docID), &chttp.Options{Query: query}, dest)
	return missingDocument(err)
}

type updateResult struct {
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// Put stores doc under the given ID, and returns the new revision. doc's
// _rev, if any, must match the current revision, or the update fails with
// KindUpdateConflict. On success, doc's _id and _rev are updated if it is a
// Document, a map, or implements Identifiable.
func (db *DB) Put(ctx context.Context, docID string, doc interface{}, opts ...Option) (string, error) {
	if docID == "" {
		return "", missingArg("docID")
	}
	query, err := encodeOptions(opts)
	if err != nil {
		return "", err
	}
	var result updateResult
	err = db.client.DoJSON(ctx, http.MethodPut, db.docPath(docID), &chttp.Options{
		Query:   query,
		GetBody: chttp.BodyEncoder(doc),
	}, &result)
	if err != nil {
		return "", updateConflict(missingDatabase(err))
	}
	setIDRev(doc, result.ID, result.Rev)
	return result.Rev, nil
}

// Save creates or updates doc. A doc without an _id is POSTed to the
// database, and the server assigns the ID; such a request is not
// idempotent, and retrying it may create duplicate documents. A doc with an
// _id is PUT to its path.
//
// With the Batch option, the server acknowledges the write before it is
// committed, and no revision is returned; doc's _rev is left unchanged.
func (db *DB) Save(ctx context.Context, doc interface{}, opts ...Option) (docID, rev string, err error) {
	id, _, err := docIDRev(doc)
	if err != nil {
		return "", "", err
	}
	query, err := encodeOptions(opts)
	if err != nil {
		return "", "", err
	}
	method, path := http.MethodPost, db.path()
	if id != "" {
		method, path = http.MethodPut, db.docPath(id)
	}
	var result updateResult
	err = db.client.DoJSON(ctx, method, path, &chttp.Options{
		Query:   query,
		GetBody: chttp.BodyEncoder(doc),
	}, &result)
	if err != nil {
		return "", "", updateConflict(missingDatabase(err))
	}
	setIDRev(doc, result.ID, result.Rev)
	return result.ID, result.Rev, nil
}

// Delete deletes doc, which must carry both _id and _rev, and returns the
// revision of the deletion.
func (db *DB) Delete(ctx context.Context, doc interface{}) (string, error) {
	id, rev, err := docIDRev(doc)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", missingArg("_id")
	}
	if rev == "" {
		return "", missingArg("_rev")
	}
	return db.deleteRev(ctx, id, rev)
}

func (db *DB) deleteRev(ctx context.Context, docID, rev string) (string, error) {
	var result updateResult
	err := db.client.DoJSON(ctx, http.MethodDelete, db.docPath(docID), &chttp.Options{
		Query: url.Values{"rev": {rev}},
	}, &result)
	if err != nil {
		return "", updateConflict(missingDocument(err))
	}
	return result.Rev, nil
}

// DeleteID deletes the current revision of the document with the given ID.
// The current revision is read from a HEAD request first, so a concurrent
// update between the two requests surfaces as KindUpdateConflict.
func (db *DB) DeleteID(ctx context.Context, docID string) (string, error) {
	if docID == "" {
		return "", missingArg("docID")
	}
	rev, err := db.currentRev(ctx, docID)
	if err != nil {
		return "", err
	}
	return db.deleteRev(ctx, docID, rev)
}

func (db *DB) currentRev(ctx context.Context, docID string) (string, error) {
	resp, err := db.client.DoError(ctx, http.MethodHead, db.docPath(docID), nil)
	if err != nil {
		return "", missingDocument(err)
	}
	rev, ok := chttp.ETag(resp)
	if !ok {
		return "", errors.New(errors.KindRequestFailed, "couch: no ETag in response")
	}
	return rev, nil
}

// Copy copies the document src to dest, and returns the revision of the
// copy. src and dest may each be a document ID or a document. When dest
// carries a _rev, the existing destination document is overwritten.
func (db *DB) Copy(ctx context.Context, src, dest interface{}) (string, error) {
	srcID, _, err := docIDRev(src)
	if err != nil {
		return "", err
	}
	if srcID == "" {
		return "", missingArg("source ID")
	}
	destID, destRev, err := docIDRev(dest)
	if err != nil {
		return "", err
	}
	if destID == "" {
		return "", missingArg("destination ID")
	}
	destination := chttp.EncodeDocID(destID)
	if destRev != "" {
		destination += "?" + url.Values{"rev": {destRev}}.Encode()
	}
	var result updateResult
	err = db.client.DoJSON(ctx, "COPY", db.docPath(srcID), &chttp.Options{
		Destination: destination,
	}, &result)
	if err != nil {
		return "", updateConflict(missingDocument(err))
	}
	return result.Rev, nil
}

// Security is the security object of a database.
type Security struct {
	Admins  Members `json:"admins,omitempty"`
	Members Members `json:"members,omitempty"`
}

// Members is a list of users and roles.
type Members struct {
	Names []string `json:"names,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Security returns the database's security object.
func (db *DB) Security(ctx context.Context) (*Security, error) {
	var sec Security
	if err := db.client.DoJSON(ctx, http.MethodGet, db.path("_security"), nil, &sec); err != nil {
		return nil, missingDatabase(err)
	}
	return &sec, nil
}

// SetSecurity replaces the database's security object.
func (db *DB) SetSecurity(ctx context.Context, sec *Security) error {
	if sec == nil {
		return missingArg("security")
	}
	_, err := db.client.DoError(ctx, http.MethodPut, db.path("_security"), &chttp.Options{
		GetBody: chttp.BodyEncoder(sec),
	})
	return missingDatabase(err)
}

// Cleanup removes view index files no longer required by any design
// document.
func (db *DB) Cleanup(ctx context.Context) error {
	_, err := db.client.DoError(ctx, http.MethodPost, db.path("_view_cleanup"), nil)
	return missingDatabase(err)
}

// Compact starts compaction of the database. Compaction runs in the
// background on the server.
func (db *DB) Compact(ctx context.Context) error {
	_, err := db.client.DoError(ctx, http.MethodPost, db.path("_compact"), nil)
	return missingDatabase(err)
}

// CompactViews starts compaction of the view indexes of the named design
// document, given with or without the _design/ prefix.
func (db *DB) CompactViews(ctx context.Context, ddoc string) error {
	ddoc = strings.TrimPrefix(ddoc, prefixDesign)
	if ddoc == "" {
		return missingArg("ddoc")
	}
	_, err := db.client.DoError(ctx, http.MethodPost, db.path("_compact", ddoc), nil)
	return missingDocument(err)
}

// PurgeResult is the result of a purge request. Purged maps document IDs to
// the revisions that were purged.
type PurgeResult struct {
	PurgeSeq interface{}         `json:"purge_seq"`
	Purged   map[string][]string `json:"purged"`
}

// Purge permanently removes the current revisions of docs, which must each
// carry _id and _rev.
func (db *DB) Purge(ctx context.Context, docs []interface{}) (*PurgeResult, error) {
	revs := make(map[string][]string, len(docs))
	for _, doc := range docs {
		id, rev, err := docIDRev(doc)
		if err != nil {
			return nil, err
		}
		if id == "" || rev == "" {
			return nil, missingArg("_id and _rev")
		}
		revs[id] = append(revs[id], rev)
	}
	var result PurgeResult
	err := db.client.DoJSON(ctx, http.MethodPost, db.path("_purge"), &chttp.Options{
		GetBody: chttp.BodyEncoder(revs),
	}, &result)
	if err != nil {
		return nil, missingDatabase(err)
	}
	return &result, nil
}
