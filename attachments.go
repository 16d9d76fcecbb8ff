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
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/go-kivik/couch/chttp"
	"github.com/go-kivik/couch/errors"
)

const typeOctetStream = "application/octet-stream"

// Attachment is an attachment fetched from the server. The caller must
// close Content.
type Attachment struct {
	Filename    string
	ContentType string
	// Digest is the attachment's digest, as reported in the ETag header,
	// such as "md5-Zb3v5B7pk6BaFcqX/aT4kg==".
	Digest  string
	Size    int64
	Content io.ReadCloser
}

// attachmentType returns contentType, or the type implied by the filename's
// extension when contentType is empty.
func attachmentType(filename, contentType string) string {
	if contentType != "" {
		return contentType
	}
	if ctype := mime.TypeByExtension(filepath.Ext(filename)); ctype != "" {
		return ctype
	}
	return typeOctetStream
}

// PutAttachment uploads content as the named attachment of doc, and returns
// the document's new revision. doc may be a document ID or a document; a
// document's _rev is sent as If-Match, and the update fails with
// KindUpdateConflict unless it is the current revision. When contentType is
// empty, it is guessed from the filename. A document's _rev is updated on
// success.
func (db *DB) PutAttachment(ctx context.Context, doc interface{}, filename, contentType string, content io.Reader) (string, error) {
	docID, rev, err := docIDRev(doc)
	if err != nil {
		return "", err
	}
	if docID == "" {
		return "", missingArg("docID")
	}
	if filename == "" {
		return "", missingArg("filename")
	}
	if content == nil {
		return "", missingArg("content")
	}
	body, ok := content.(io.ReadCloser)
	if !ok {
		body = io.NopCloser(content)
	}
	var result updateResult
	err = db.client.DoJSON(ctx, http.MethodPut, db.docPath(docID, filename), &chttp.Options{
		Body:        body,
		ContentType: attachmentType(filename, contentType),
		IfMatch:     rev,
		NoGzip:      true,
	}, &result)
	if err != nil {
		return "", updateConflict(missingDocument(err))
	}
	setIDRev(doc, docID, result.Rev)
	return result.Rev, nil
}

// GetAttachment fetches the named attachment of the document docID. A
// missing document or attachment is an error of kind KindMissingDocument.
func (db *DB) GetAttachment(ctx context.Context, docID, filename string, opts ...Option) (*Attachment, error) {
	if docID == "" {
		return nil, missingArg("docID")
	}
	if filename == "" {
		return nil, missingArg("filename")
	}
	query, err := encodeOptions(opts)
	if err != nil {
		return nil, err
	}
	resp, err := db.client.DoReq(ctx, http.MethodGet, db.docPath(docID, filename), &chttp.Options{
		Accept: "*/*",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	if err := chttp.ResponseError(resp); err != nil {
		chttp.CloseBody(resp.Body)
		return nil, missingDocument(err)
	}
	digest, _ := chttp.ETag(resp)
	ctype := resp.Header.Get("Content-Type")
	if ctype == "" {
		ctype = typeOctetStream
	}
	return &Attachment{
		Filename:    filename,
		ContentType: ctype,
		Digest:      digest,
		Size:        resp.ContentLength,
		Content:     resp.Body,
	}, nil
}

// GetAttachmentDefault is like GetAttachment, but returns def when the
// document or the attachment does not exist.
func (db *DB) GetAttachmentDefault(ctx context.Context, docID, filename string, def *Attachment, opts ...Option) (*Attachment, error) {
	att, err := db.GetAttachment(ctx, docID, filename, opts...)
	if errors.IsKind(err, errors.KindMissingDocument) {
		return def, nil
	}
	return att, err
}

// DeleteAttachment deletes the named attachment of doc, which must carry
// _id and _rev, and returns the new revision. A document's _rev is updated
// on success.
func (db *DB) DeleteAttachment(ctx context.Context, doc interface{}, filename string) (string, error) {
	docID, rev, err := docIDRev(doc)
	if err != nil {
		return "", err
	}
	if docID == "" {
		return "", missingArg("_id")
	}
	if rev == "" {
		return "", missingArg("_rev")
	}
	if filename == "" {
		return "", missingArg("filename")
	}
	var result updateResult
	err = db.client.DoJSON(ctx, http.MethodDelete, db.docPath(docID, filename), &chttp.Options{
		Query: url.Values{"rev": {rev}},
	}, &result)
	if err != nil {
		return "", updateConflict(missingDocument(err))
	}
	setIDRev(doc, docID, result.Rev)
	return result.Rev, nil
}
