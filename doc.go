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

// Package couch is a client for the CouchDB HTTP/JSON API.
//
// A Client represents a server, and hands out DB handles. Documents are
// exchanged as Document values, plain maps, or any value that marshals to a
// JSON object. Writes mutate the caller's Document (or map, or Identifiable)
// in place with the server-assigned _id and _rev.
//
// Every failure is reported as an *errors.Error, whose Kind may be tested
// with errors.Is:
//
//	_, err := db.Get(ctx, "missing")
//	if errors.Is(err, couch.KindNotFound) {
//		// MissingDocument is a refinement of NotFound
//	}
//
// # Query options
//
// View and document query parameters are passed as Options. The values of
// key, keys, startkey, endkey, start_key, end_key, open_revs and doc_ids are
// always JSON encoded, as are any non-string values. Strings are otherwise
// passed through unaltered. Boolean flags are only sent when set. Requesting
// include_docs forces reduce=false.
//
// No operation is retried. In particular, DB.Save without an _id is not
// idempotent; supply client-generated IDs where that matters.
package couch
