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
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-kivik/couch/internal/errtest"
)

func TestAttachmentType(t *testing.T) {
	tests := map[string]struct {
		filename, contentType, expected string
	}{
		"explicit":      {"foo.txt", "text/x-custom", "text/x-custom"},
		"by extension":  {"photo.png", "", "image/png"},
		"unknown":       {"blob.zzzunknown", "", "application/octet-stream"},
		"no extension":  {"README", "", "application/octet-stream"},
		"json fallback": {"data.json", "", "application/json"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := attachmentType(tt.filename, tt.contentType); got != tt.expected {
				t.Errorf("Unexpected type: %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestPutAttachment(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := newCustomDB(func(req *http.Request) (*http.Response, error) {
			if req.Method != http.MethodPut {
				t.Errorf("Unexpected method: %s", req.Method)
			}
			if req.URL.RawPath != "/testdb/doc1/my%20file.png" && req.URL.Path != "/testdb/doc1/my file.png" {
				t.Errorf("Unexpected path: %s", req.URL.Path)
			}
			if got := req.Header.Get("If-Match"); got != "1-a" {
				t.Errorf("Unexpected If-Match: %s", got)
			}
			if got := req.Header.Get("Content-Type"); got != "image/png" {
				t.Errorf("Unexpected Content-Type: %s", got)
			}
			if got := req.Header.Get("Content-Encoding"); got != "" {
				t.Errorf("Unexpected Content-Encoding: %s", got)
			}
			body, _ := io.ReadAll(req.Body)
			if string(body) != "PNGDATA" {
				t.Errorf("Unexpected body: %q", body)
			}
			return jsonResponse(http.StatusCreated, `{"ok":true,"id":"doc1","rev":"2-b"}`), nil
		})
		doc := Document{"_id": "doc1", "_rev": "1-a"}
		rev, err := db.PutAttachment(context.Background(), doc, "my file.png", "", strings.NewReader("PNGDATA"))
		if err != nil {
			t.Fatal(err)
		}
		if rev != "2-b" || doc.Rev() != "2-b" {
			t.Errorf("Unexpected rev: %s, doc: %v", rev, doc)
		}
	})
	t.Run("stale revision", func(t *testing.T) {
		db := newTestDB(jsonResponse(http.StatusConflict, `{"error":"conflict","reason":"Document update conflict."}`), nil)
		doc := Document{"_id": "doc1", "_rev": "1-old"}
		_, err := db.PutAttachment(context.Background(), doc, "a.txt", "text/plain", strings.NewReader("x"))
		if !errors.Is(err, KindUpdateConflict) {
			t.Errorf("Unexpected error: %v", err)
		}
		if doc.Rev() != "1-old" {
			t.Errorf("Doc altered: %v", doc)
		}
		errtest.StatusError(t, "Conflict: Document update conflict.", http.StatusConflict, err)
	})
	t.Run("no content", func(t *testing.T) {
		db := newTestDB(nil, errors.New("unexpected request"))
		_, err := db.PutAttachment(context.Background(), "doc1", "a.txt", "", nil)
		errtest.StatusError(t, "couch: content required", http.StatusBadRequest, err)
	})
}

func TestGetAttachment(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := newCustomDB(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/testdb/doc1/a.txt" {
				t.Errorf("Unexpected path: %s", req.URL.Path)
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Header: http.Header{
					"Content-Type": {"text/plain"},
					"Etag":         {`"md5-XNdWXQ0FO9vPx7skS0GuYA=="`},
				},
				ContentLength: 11,
				Body:          io.NopCloser(strings.NewReader("hello world")),
			}, nil
		})
		att, err := db.GetAttachment(context.Background(), "doc1", "a.txt")
		if err != nil {
			t.Fatal(err)
		}
		defer att.Content.Close() // nolint: errcheck
		content, err := io.ReadAll(att.Content)
		if err != nil {
			t.Fatal(err)
		}
		if string(content) != "hello world" {
			t.Errorf("Unexpected content: %q", content)
		}
		if att.ContentType != "text/plain" || att.Digest != "md5-XNdWXQ0FO9vPx7skS0GuYA==" || att.Size != 11 || att.Filename != "a.txt" {
			t.Errorf("Unexpected attachment: %+v", att)
		}
	})
	t.Run("missing", func(t *testing.T) {
		db := newTestDB(jsonResponse(http.StatusNotFound, `{"error":"not_found","reason":"Document is missing attachment"}`), nil)
		_, err := db.GetAttachment(context.Background(), "doc1", "a.txt")
		if !errors.Is(err, KindMissingDocument) {
			t.Errorf("Unexpected error: %v", err)
		}
		errtest.StatusError(t, "Not Found: Document is missing attachment", http.StatusNotFound, err)
	})
	t.Run("default", func(t *testing.T) {
		db := newTestDB(jsonResponse(http.StatusNotFound, `{"error":"not_found","reason":"missing"}`), nil)
		def := &Attachment{Filename: "default"}
		att, err := db.GetAttachmentDefault(context.Background(), "doc1", "a.txt", def)
		if err != nil {
			t.Fatal(err)
		}
		if att != def {
			t.Errorf("Expected default, got %+v", att)
		}
	})
}

func TestDeleteAttachment(t *testing.T) {
	db := newCustomDB(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodDelete || req.URL.Path != "/testdb/doc1/a.txt" {
			t.Errorf("Unexpected request: %s %s", req.Method, req.URL.Path)
		}
		if got := req.URL.Query().Get("rev"); got != "2-b" {
			t.Errorf("Unexpected rev: %s", got)
		}
		return jsonResponse(http.StatusOK, `{"ok":true,"id":"doc1","rev":"3-c"}`), nil
	})
	doc := map[string]interface{}{"_id": "doc1", "_rev": "2-b"}
	rev, err := db.DeleteAttachment(context.Background(), doc, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if rev != "3-c" || doc["_rev"] != "3-c" {
		t.Errorf("Unexpected result: %s %v", rev, doc)
	}
}
