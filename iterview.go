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
	"strconv"

	"github.com/go-kivik/couch/errors"
)

// ViewIterator pages through a view in batches. Each batch is a separate
// request, made only when the previous batch has been consumed.
type ViewIterator struct {
	db     *DB
	ctx    context.Context
	name   string
	batch  int
	limit  int // -1 for no limit
	params map[string]interface{}

	rows  []Row
	pos   int
	count int
	row   Row
	// seed is the first row of the next batch, fetched as the extra row of
	// the current one.
	seed *Row
	done bool
	err  error
}

// IterView returns an iterator over all rows of the named view, fetched
// batch rows at a time. Each request asks for one extra row, whose key and
// document ID start the following request. A Limit option caps the total
// number of rows returned.
func (db *DB) IterView(ctx context.Context, name string, batch int, opts ...Option) *ViewIterator {
	it := &ViewIterator{
		db:     db,
		ctx:    ctx,
		name:   name,
		batch:  batch,
		limit:  -1,
		params: allOptions(opts).params(),
	}
	if batch < 1 {
		it.err = errors.New(errors.KindBadRequest, "couch: batch must be 1 or more")
		return it
	}
	if limit, ok := it.params["limit"]; ok {
		delete(it.params, "limit")
		n, err := strconv.Atoi(fmt.Sprint(limit))
		if err != nil || n < 1 {
			it.err = errors.Errorf(errors.KindBadRequest, "couch: invalid limit %v", limit)
			return it
		}
		it.limit = n
	}
	return it
}

// Next advances to the next row, fetching a new batch when needed. It
// returns false when the view is exhausted or an error occurs.
func (it *ViewIterator) Next() bool {
	if it.err != nil || it.limitReached() {
		return false
	}
	if it.pos >= len(it.rows) {
		if it.done {
			return false
		}
		if err := it.fetch(); err != nil {
			it.err = err
			return false
		}
		if len(it.rows) == 0 {
			return false
		}
	}
	it.row = it.rows[it.pos]
	it.pos++
	it.count++
	return true
}

func (it *ViewIterator) limitReached() bool {
	return it.limit >= 0 && it.count >= it.limit
}

func (it *ViewIterator) fetch() error {
	want := it.batch
	if it.limit >= 0 && it.limit-it.count < want {
		want = it.limit - it.count
	}
	params := make(Params, len(it.params)+4)
	for k, v := range it.params {
		params[k] = v
	}
	params["limit"] = want + 1
	if it.seed != nil {
		params["startkey"] = it.seed.Key
		params["startkey_docid"] = it.seed.ID
		params["skip"] = 0
	}
	result, err := it.db.View(it.ctx, it.name, params)
	if err != nil {
		return err
	}
	rows := result.Rows
	it.seed = nil
	if len(rows) > want {
		it.seed = &rows[want]
		rows = rows[:want]
	} else {
		it.done = true
	}
	it.rows, it.pos = rows, 0
	return nil
}

// Row returns the current row.
func (it *ViewIterator) Row() Row {
	return it.row
}

// Err returns the error, if any, that ended iteration.
func (it *ViewIterator) Err() error {
	return it.err
}
