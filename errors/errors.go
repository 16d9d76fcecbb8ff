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

// Package errors classifies the outcome of a CouchDB request into a single
// typed failure.
//
// Every error returned by this module's packages either is, or wraps, an
// *Error. Each *Error carries a Kind, and kinds form a small category tree:
// KindMissingDocument is also a KindMissingResource, which is also a
// KindNotFound, and so on up to KindUnknown. Use Kind.Matches, or the
// standard library's errors.Is with a Kind as the target, to test for a
// category.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Kind identifies a class of failure.
type Kind int

// Error kinds. KindUnknown is the root of the category tree, and matches
// every other kind.
const (
	KindUnknown Kind = iota
	KindRequestFailed
	KindTimeout
	KindHTTP
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindPreconditionFailed
	KindMissingResource
	KindMissingDatabase
	KindMissingDocument
	KindMissingView
	KindUpdateConflict
	KindDatabaseExists
	KindLoginFailed
	KindNotImplemented
)

var parents = map[Kind]Kind{
	KindRequestFailed:      KindUnknown,
	KindTimeout:            KindRequestFailed,
	KindHTTP:               KindRequestFailed,
	KindBadRequest:         KindHTTP,
	KindUnauthorized:       KindHTTP,
	KindForbidden:          KindHTTP,
	KindNotFound:           KindHTTP,
	KindConflict:           KindHTTP,
	KindPreconditionFailed: KindHTTP,
	KindMissingResource:    KindNotFound,
	KindMissingDatabase:    KindMissingResource,
	KindMissingDocument:    KindMissingResource,
	KindMissingView:        KindMissingResource,
	KindUpdateConflict:     KindConflict,
	KindDatabaseExists:     KindPreconditionFailed,
	KindLoginFailed:        KindForbidden,
	KindNotImplemented:     KindUnknown,
}

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindRequestFailed:      "request failed",
	KindTimeout:            "timeout",
	KindHTTP:               "http error",
	KindBadRequest:         "bad request",
	KindUnauthorized:       "unauthorized",
	KindForbidden:          "forbidden",
	KindNotFound:           "not found",
	KindConflict:           "conflict",
	KindPreconditionFailed: "precondition failed",
	KindMissingResource:    "missing resource",
	KindMissingDatabase:    "missing database",
	KindMissingDocument:    "missing document",
	KindMissingView:        "missing view",
	KindUpdateConflict:     "update conflict",
	KindDatabaseExists:     "database exists",
	KindLoginFailed:        "login failed",
	KindNotImplemented:     "not implemented",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error allows a Kind to be used as the target of errors.Is.
func (k Kind) Error() string {
	return k.String()
}

// Parent returns the category k belongs to. The parent of KindUnknown is
// KindUnknown.
func (k Kind) Parent() Kind {
	if p, ok := parents[k]; ok {
		return p
	}
	return KindUnknown
}

// Matches returns true if k is category, or descends from it.
func (k Kind) Matches(category Kind) bool {
	for kind := k; ; kind = kind.Parent() {
		if kind == category {
			return true
		}
		if kind == KindUnknown {
			return false
		}
	}
}

// Error is the error type returned for any failed request.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Status is the HTTP status returned by the server, or 0 if no response
	// was received.
	Status int

	// Message is the human-readable description. When empty, the wrapped
	// error's message is used.
	Message string

	// Reason is the server-supplied reason, if any.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.String()
}

// HTTPStatus returns the HTTP status code associated with the error. Errors
// for which no response was received report 502 (504 for timeouts), so that
// callers which only care about a status code can treat them uniformly.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch {
	case e.Kind == KindNotImplemented:
		return http.StatusNotImplemented
	case e.Kind.Matches(KindTimeout):
		return http.StatusGatewayTimeout
	case e.Kind.Matches(KindRequestFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether e belongs to the category named by target, when target
// is a Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	if !ok {
		return false
	}
	return e.Kind.Matches(k)
}

// Name returns the CouchDB error name for the status, e.g. "not_found".
func (e *Error) Name() string {
	return statusName(e.HTTPStatus())
}

// MarshalJSON renders the error as a CouchDB error body.
func (e *Error) MarshalJSON() ([]byte, error) {
	reason := e.Reason
	if reason == "" {
		reason = e.Error()
	}
	return json.Marshal(struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}{
		Error:  e.Name(),
		Reason: reason,
	})
}

var statusKinds = map[int]Kind{
	http.StatusBadRequest:         KindBadRequest,
	http.StatusUnauthorized:       KindUnauthorized,
	http.StatusForbidden:          KindForbidden,
	http.StatusNotFound:           KindNotFound,
	http.StatusConflict:           KindConflict,
	http.StatusPreconditionFailed: KindPreconditionFailed,
}

// KindForStatus returns the kind an HTTP error status maps to. Codes with
// no specific kind map to KindHTTP.
func KindForStatus(status int) Kind {
	if kind, ok := statusKinds[status]; ok {
		return kind
	}
	return KindHTTP
}

// FromStatus returns the error for an HTTP error response with the given
// status and optional server-supplied reason.
func FromStatus(status int, reason string) *Error {
	return &Error{
		Kind:    KindForStatus(status),
		Status:  status,
		Message: statusMessage(status, reason),
		Reason:  reason,
	}
}

func statusMessage(status int, reason string) string {
	text := http.StatusText(status)
	if text == "" {
		text = fmt.Sprintf("HTTP error %d", status)
	}
	if reason == "" {
		return text
	}
	return text + ": " + reason
}

// Transport classifies an error returned before any response was received.
// Deadline and network timeouts become KindTimeout, everything else
// KindRequestFailed. Errors that are already classified are returned as-is.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	kind := KindRequestFailed
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Err: err}
}

// New returns an error of the given kind. Client-side validation errors
// use KindBadRequest, and report status 400.
func New(kind Kind, msg string) error {
	e := &Error{Kind: kind, Message: msg}
	if kind == KindBadRequest {
		e.Status = http.StatusBadRequest
	}
	return e
}

// Errorf is the formatted version of New.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Refine re-interprets err as kind to when it currently belongs to the
// category from. The original error is wrapped, and its status is kept.
// Any other error is returned unaltered.
func Refine(err error, from, to Kind) error {
	var e *Error
	if !errors.As(err, &e) || !e.Kind.Matches(from) {
		return err
	}
	return &Error{
		Kind:   to,
		Status: e.Status,
		Reason: e.Reason,
		Err:    err,
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind returns true if err belongs to the category kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, kind)
}

// HTTPStatus returns the HTTP status embedded in err, 0 for a nil error, or
// 500 when no status is available.
func HTTPStatus(err error) int {
	if err == nil {
		return 0
	}
	var coder interface {
		HTTPStatus() int
	}
	if errors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// As calls the standard library's errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is calls the standard library's errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap annotates err with msg, preserving its classification.
func Wrap(err error, msg string) error {
	return pkgerrors.Wrap(err, msg)
}

// Wrapf annotates err with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

func statusName(status int) string {
	switch status {
	case http.StatusNotImplemented:
		return "not_implemented"
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return "request_failed"
	}
	if kind, ok := statusKinds[status]; ok {
		return strings.ReplaceAll(kind.String(), " ", "_")
	}
	if text := http.StatusText(status); text != "" {
		return strings.ReplaceAll(strings.ToLower(text), " ", "_")
	}
	return "unknown"
}
