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
	"github.com/go-kivik/couch/errors"
)

// Error is the error type returned by every operation.
type Error = errors.Error

// Kind classifies an Error.
type Kind = errors.Kind

// Error kinds, re-exported from the errors package for convenience.
const (
	KindUnknown            = errors.KindUnknown
	KindRequestFailed      = errors.KindRequestFailed
	KindTimeout            = errors.KindTimeout
	KindHTTP               = errors.KindHTTP
	KindBadRequest         = errors.KindBadRequest
	KindUnauthorized       = errors.KindUnauthorized
	KindForbidden          = errors.KindForbidden
	KindNotFound           = errors.KindNotFound
	KindConflict           = errors.KindConflict
	KindPreconditionFailed = errors.KindPreconditionFailed
	KindMissingResource    = errors.KindMissingResource
	KindMissingDatabase    = errors.KindMissingDatabase
	KindMissingDocument    = errors.KindMissingDocument
	KindMissingView        = errors.KindMissingView
	KindUpdateConflict     = errors.KindUpdateConflict
	KindDatabaseExists     = errors.KindDatabaseExists
	KindLoginFailed        = errors.KindLoginFailed
	KindNotImplemented     = errors.KindNotImplemented
)

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	return errors.KindOf(err)
}

// HTTPStatus returns the HTTP status code associated with err, or 0 if err
// is nil.
func HTTPStatus(err error) int {
	return errors.HTTPStatus(err)
}

// The helpers below re-interpret a generic HTTP failure according to the
// operation that produced it.

// reasonNoDatabase is the reason CouchDB gives for a 404 on any path below
// a database that does not exist.
const reasonNoDatabase = "Database does not exist."

func missingDatabase(err error) error {
	return errors.Refine(err, errors.KindNotFound, errors.KindMissingDatabase)
}

// missing refines a 404 to kind, or to KindMissingDatabase when the server
// reports that the database itself is missing.
func missing(err error, kind errors.Kind) error {
	var e *errors.Error
	if errors.As(err, &e) && e.Reason == reasonNoDatabase {
		kind = errors.KindMissingDatabase
	}
	return errors.Refine(err, errors.KindNotFound, kind)
}

func missingDocument(err error) error {
	return missing(err, errors.KindMissingDocument)
}

func missingView(err error) error {
	return missing(err, errors.KindMissingView)
}

func updateConflict(err error) error {
	return errors.Refine(err, errors.KindConflict, errors.KindUpdateConflict)
}

func databaseExists(err error) error {
	return errors.Refine(err, errors.KindPreconditionFailed, errors.KindDatabaseExists)
}

func loginFailed(err error) error {
	if errors.IsKind(err, errors.KindUnauthorized) {
		return errors.Refine(err, errors.KindUnauthorized, errors.KindLoginFailed)
	}
	return errors.Refine(err, errors.KindForbidden, errors.KindLoginFailed)
}

func missingArg(arg string) error {
	return errors.Errorf(errors.KindBadRequest, "couch: %s required", arg)
}

func notImplemented(op string) error {
	return errors.Errorf(errors.KindNotImplemented, "couch: %s is not supported", op)
}
