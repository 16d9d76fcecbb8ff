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

// Package dump reads and writes database snapshots as MIME multipart
// streams.
//
// A snapshot starts with a Content-Type header naming the outer boundary.
// Each document is one part, with its ID in the Content-ID header and its
// revision in the ETag header. A document without attachments is a single
// application/json part. A document with attachments is a nested
// multipart/mixed part: the JSON document first, then one part per
// attachment, whose Content-ID is the attachment name.
package dump

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"github.com/go-kivik/couch/cmd/couch/errors"
)

const (
	typeJSON      = "application/json"
	typeMultipart = "multipart/mixed"
)

// Writer writes a snapshot.
type Writer struct {
	mw *multipart.Writer
}

// NewWriter writes the snapshot header to w, and returns a Writer for the
// documents.
func NewWriter(w io.Writer) (*Writer, error) {
	mw := multipart.NewWriter(w)
	header := mime.FormatMediaType(typeMultipart, map[string]string{"boundary": mw.Boundary()})
	if _, err := fmt.Fprintf(w, "Content-Type: %s\r\n\r\n", header); err != nil {
		return nil, err
	}
	return &Writer{mw: mw}, nil
}

// WriteDoc writes one document. Attachments must be inline, with base64
// data, as returned by CouchDB for a document fetched with attachments=true.
func (w *Writer) WriteDoc(doc map[string]interface{}) error {
	id, _ := doc["_id"].(string)
	if id == "" {
		return errors.New("dump: document has no _id")
	}
	rev, _ := doc["_rev"].(string)
	atts, _ := doc["_attachments"].(map[string]interface{})

	body := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if k != "_attachments" {
			body[k] = v
		}
	}
	jsonDoc, err := json.Marshal(body)
	if err != nil {
		return err
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-ID", id)
	if rev != "" {
		header.Set("ETag", strconv.Quote(rev))
	}
	if len(atts) == 0 {
		header.Set("Content-Type", typeJSON)
		part, err := w.mw.CreatePart(header)
		if err != nil {
			return err
		}
		_, err = part.Write(jsonDoc)
		return err
	}

	buf := &bytes.Buffer{}
	inner := multipart.NewWriter(buf)
	if err := writePart(inner, typeJSON, "", jsonDoc); err != nil {
		return err
	}
	names := make([]string, 0, len(atts))
	for name := range atts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		att, _ := atts[name].(map[string]interface{})
		contentType, _ := att["content_type"].(string)
		encoded, ok := att["data"].(string)
		if !ok {
			return fmt.Errorf("dump: attachment %q of %q is not inline", name, id)
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("dump: attachment %q of %q: %w", name, id, err)
		}
		if err := writePart(inner, contentType, name, data); err != nil {
			return err
		}
	}
	if err := inner.Close(); err != nil {
		return err
	}
	header.Set("Content-Type", mime.FormatMediaType(typeMultipart, map[string]string{"boundary": inner.Boundary()}))
	part, err := w.mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = buf.WriteTo(part)
	return err
}

func writePart(mw *multipart.Writer, contentType, contentID string, data []byte) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType)
	if contentID != "" {
		header.Set("Content-ID", contentID)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

// Close writes the closing boundary.
func (w *Writer) Close() error {
	return w.mw.Close()
}

// Reader reads a snapshot.
type Reader struct {
	mr *multipart.Reader
}

// NewReader parses the snapshot header from r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	header, err := textproto.NewReader(br).ReadMIMEHeader()
	if err != nil {
		return nil, errors.Code(errors.ErrData, fmt.Errorf("dump: invalid header: %w", err))
	}
	boundary, err := multipartBoundary(header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	return &Reader{mr: multipart.NewReader(br, boundary)}, nil
}

func multipartBoundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", errors.Code(errors.ErrData, fmt.Errorf("dump: %w", err))
	}
	if !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return "", errors.Codef(errors.ErrData, "dump: unexpected content type %q", mediaType)
	}
	return params["boundary"], nil
}

// Next returns the next document, with its attachments inline. It returns
// io.EOF after the last document.
func (r *Reader) Next() (map[string]interface{}, error) {
	part, err := r.mr.NextPart()
	if err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, errors.Code(errors.ErrData, err)
	}
	defer part.Close() // nolint:errcheck
	doc, err := readPart(part)
	return doc, errors.Code(errors.ErrData, err)
}

func readPart(part *multipart.Part) (map[string]interface{}, error) {
	contentType := part.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, typeMultipart) {
		return decodeDoc(part)
	}
	boundary, err := multipartBoundary(contentType)
	if err != nil {
		return nil, err
	}
	inner := multipart.NewReader(part, boundary)
	first, err := inner.NextPart()
	if err != nil {
		return nil, fmt.Errorf("dump: document %q: %w", part.Header.Get("Content-ID"), err)
	}
	doc, err := decodeDoc(first)
	if err != nil {
		return nil, err
	}
	atts := map[string]interface{}{}
	for {
		attPart, err := inner.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(attPart)
		if err != nil {
			return nil, err
		}
		atts[attPart.Header.Get("Content-ID")] = map[string]interface{}{
			"content_type": attPart.Header.Get("Content-Type"),
			"data":         base64.StdEncoding.EncodeToString(data),
		}
	}
	if len(atts) > 0 {
		doc["_attachments"] = atts
	}
	return doc, nil
}

func decodeDoc(r io.Reader) (map[string]interface{}, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("dump: document is not a JSON object")
	}
	return doc, nil
}
