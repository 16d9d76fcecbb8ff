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

// Package errors maps failures to process exit codes.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	pkgerrors "github.com/pkg/errors"

	couch "github.com/go-kivik/couch/errors"
)

// Exit codes. Server errors use 3 and 4, 4xx responses map to the status
// minus 390, and local failures follow sysexits(3).
const (
	// ErrUsage is an invalid command line or configuration.
	ErrUsage = 2
	// ErrUnknown is a server error other than 500.
	ErrUnknown = 3
	// ErrInternalServerError is a 500 response.
	ErrInternalServerError = 4

	ErrBadRequest         = 10 // 400
	ErrUnauthorized       = 11 // 401
	ErrForbidden          = 13 // 403
	ErrNotFound           = 14 // 404
	ErrConflict           = 19 // 409
	ErrPreconditionFailed = 22 // 412
	ErrExpectationFailed  = 27 // 417

	// ErrData is malformed input, such as invalid JSON or YAML.
	ErrData = 65
	// ErrNoInput is an input file that is missing or unreadable.
	ErrNoInput = 66
	// ErrUnavailable is a server that could not be reached in time.
	ErrUnavailable = 69
	// ErrCantCreate is an output file that could not be created.
	ErrCantCreate = 73
	// ErrIO is a failed read or write of a local file.
	ErrIO = 74
	// ErrProtocol is a response that could not be understood.
	ErrProtocol = 76
)

const clientErrorOffset = 390

// exitError carries the exit code for err.
type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string   { return e.err.Error() }
func (e *exitError) Unwrap() error   { return e.err }
func (e *exitError) ExitStatus() int { return e.code }

// WithCode attaches an exit code to err. A nil err stays nil.
func WithCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &exitError{err: err, code: code}
}

// Code attaches code to a single error argument. Any other arguments are
// formatted with fmt.Sprint into a new error. A lone nil yields nil.
func Code(code int, args ...interface{}) error {
	if len(args) == 1 {
		switch t := args[0].(type) {
		case nil:
			return nil
		case error:
			return WithCode(t, code)
		}
	}
	return WithCode(errors.New(fmt.Sprint(args...)), code)
}

// Codef is Code with fmt.Errorf formatting.
func Codef(code int, format string, args ...interface{}) error {
	return WithCode(fmt.Errorf(format, args...), code)
}

// HTTPStatus is Code with the exit code for an HTTP status.
func HTTPStatus(status int, args ...interface{}) error {
	return Code(statusCode(status), args...)
}

// New returns an error without an exit code.
func New(text string) error {
	return errors.New(text)
}

// Wrapf prefixes err with a formatted message. Any exit code is kept.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// As calls the standard library's errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// InspectErrorCode returns the exit code for err: an explicit code first,
// then one derived from the failure itself. It returns 0 when neither
// applies.
func InspectErrorCode(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ ExitStatus() int }
	if errors.As(err, &coded) {
		return coded.ExitStatus()
	}
	var (
		netErr    net.Error
		syntaxErr *json.SyntaxError
	)
	switch {
	case couch.IsKind(err, couch.KindHTTP):
		return statusCode(couch.HTTPStatus(err))
	case couch.IsKind(err, couch.KindRequestFailed), errors.As(err, &netErr):
		return ErrUnavailable
	case errors.As(err, &syntaxErr):
		return ErrProtocol
	}
	return 0
}

func statusCode(status int) int {
	switch {
	case status == http.StatusInternalServerError:
		return ErrInternalServerError
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return status - clientErrorOffset
	}
	return ErrUnknown
}
