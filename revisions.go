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
	"fmt"

	"github.com/icza/dyno"

	"github.com/go-kivik/couch/errors"
)

// RevisionIterator walks the revision history of a document, newest first.
// It is forward-only, and makes one request per call to Next.
type RevisionIterator struct {
	db    *DB
	ctx   context.Context
	docID string
	opts  []Option

	revs []string
	pos  int
	doc  Document
	done bool
	err  error
}

// Revisions returns an iterator over the stored revisions of the document
// docID, starting with the current revision. Revisions that have been
// compacted away end iteration.
func (db *DB) Revisions(ctx context.Context, docID string, opts ...Option) *RevisionIterator {
	it := &RevisionIterator{
		db:    db,
		ctx:   ctx,
		docID: docID,
		opts:  opts,
	}
	if docID == "" {
		it.err = missingArg("docID")
	}
	return it
}

// Next fetches the next revision. It returns false once no further
// revision is available, or an error occurred. A missing document or
// revision ends iteration without an error.
func (it *RevisionIterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	if it.revs == nil {
		if err := it.history(); err != nil {
			return it.stop(err)
		}
	}
	if it.pos >= len(it.revs) {
		it.done = true
		return false
	}
	rev := it.revs[it.pos]
	it.pos++
	doc, err := it.db.Get(it.ctx, it.docID, append(it.opts[:len(it.opts):len(it.opts)], Rev(rev))...)
	if err != nil {
		return it.stop(err)
	}
	it.doc = doc
	return true
}

func (it *RevisionIterator) stop(err error) bool {
	it.done = true
	if !errors.IsKind(err, errors.KindMissingDocument) {
		it.err = err
	}
	return false
}

// history reads the revision IDs of the document, in the "N-hash" form.
func (it *RevisionIterator) history() error {
	doc, err := it.db.Get(it.ctx, it.docID, Revs())
	if err != nil {
		return err
	}
	m := map[string]interface{}(doc)
	start, err := dyno.GetInteger(m, "_revisions", "start")
	if err != nil {
		return &errors.Error{Kind: errors.KindRequestFailed, Message: "couch: invalid _revisions", Err: err}
	}
	ids, err := dyno.GetSlice(m, "_revisions", "ids")
	if err != nil {
		return &errors.Error{Kind: errors.KindRequestFailed, Message: "couch: invalid _revisions", Err: err}
	}
	it.revs = make([]string, len(ids))
	for i, id := range ids {
		it.revs[i] = fmt.Sprintf("%d-%v", start-int64(i), id)
	}
	return nil
}

// Doc returns the document at the current revision.
func (it *RevisionIterator) Doc() Document {
	return it.doc
}

// Err returns the error, if any, that ended iteration.
func (it *RevisionIterator) Err() error {
	return it.err
}
