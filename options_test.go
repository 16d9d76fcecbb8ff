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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/couch/internal/errtest"
)

func TestEncodeOptions(t *testing.T) {
	type tt struct {
		options  []Option
		expected url.Values
		status   int
		err      string
	}

	tests := testy.NewTable()
	tests.Add("no options", tt{
		expected: url.Values{},
	})
	tests.Add("key is JSON encoded", tt{
		options:  []Option{Key("foo")},
		expected: url.Values{"key": {`"foo"`}},
	})
	tests.Add("key range", tt{
		options: []Option{StartKey([]interface{}{"a", 1}), EndKey(map[string]interface{}{})},
		expected: url.Values{
			"startkey": {`["a",1]`},
			"endkey":   {`{}`},
		},
	})
	tests.Add("keys", tt{
		options:  []Option{Keys("a", "b")},
		expected: url.Values{"keys": {`["a","b"]`}},
	})
	tests.Add("raw key", tt{
		options:  []Option{Key(json.RawMessage(`["x"]`))},
		expected: url.Values{"key": {`["x"]`}},
	})
	tests.Add("snake case key aliases", tt{
		options:  []Option{Param("start_key", "a"), Param("end_key", "b")},
		expected: url.Values{"start_key": {`"a"`}, "end_key": {`"b"`}},
	})
	tests.Add("booleans", tt{
		options:  []Option{Descending(), Group(), Sorted(false)},
		expected: url.Values{"descending": {"true"}, "group": {"true"}, "sorted": {"false"}},
	})
	tests.Add("integers", tt{
		options:  []Option{Skip(10), Limit(5), GroupLevel(2)},
		expected: url.Values{"skip": {"10"}, "limit": {"5"}, "group_level": {"2"}},
	})
	tests.Add("raw strings", tt{
		options:  []Option{Rev("1-abc"), Param("stale", "ok"), StartKeyDocID("doc1")},
		expected: url.Values{"rev": {"1-abc"}, "stale": {"ok"}, "startkey_docid": {"doc1"}},
	})
	tests.Add("batch", tt{
		options:  []Option{Batch()},
		expected: url.Values{"batch": {"ok"}},
	})
	tests.Add("include_docs forces reduce=false", tt{
		options:  []Option{Reduce(true), IncludeDocs()},
		expected: url.Values{"include_docs": {"true"}, "reduce": {"false"}},
	})
	tests.Add("include_docs=false leaves reduce alone", tt{
		options:  []Option{Reduce(true), Param("include_docs", false)},
		expected: url.Values{"include_docs": {"false"}, "reduce": {"true"}},
	})
	tests.Add("nil is omitted", tt{
		options:  []Option{Param("conflicts", nil), nil},
		expected: url.Values{},
	})
	tests.Add("update lazy", tt{
		options:  []Option{Update("lazy")},
		expected: url.Values{"update": {"lazy"}},
	})
	tests.Add("update bool", tt{
		options:  []Option{Param("update", false)},
		expected: url.Values{"update": {"false"}},
	})
	tests.Add("invalid update", tt{
		options: []Option{Update("eventually")},
		status:  http.StatusBadRequest,
		err:     `couch: invalid value for update: "eventually"`,
	})
	tests.Add("unmarshalable key", tt{
		options: []Option{Key(make(chan int))},
		status:  http.StatusBadRequest,
		err:     "json: unsupported type: chan int",
	})
	tests.Add("params", tt{
		options:  []Option{Params{"conflicts": true, "att_encoding_info": false}},
		expected: url.Values{"conflicts": {"true"}, "att_encoding_info": {"false"}},
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		query, err := encodeOptions(tt.options)
		if d := cmp.Diff(tt.expected, query, cmpopts.EquateEmpty()); d != "" {
			t.Error(d)
		}
		errtest.StatusError(t, tt.err, tt.status, err)
	})
}

func TestQueryOnTheWire(t *testing.T) {
	t.Run("reduce overridden", func(t *testing.T) {
		var rawQuery string
		db := newCustomDB(func(req *http.Request) (*http.Response, error) {
			rawQuery = req.URL.RawQuery
			return jsonResponse(http.StatusOK, `{"rows":[]}`), nil
		})
		_, err := db.View(context.Background(), "ddoc/view", Reduce(true), IncludeDocs())
		if err != nil {
			t.Fatal(err)
		}
		if want := "include_docs=true&reduce=false"; rawQuery != want {
			t.Errorf("Unexpected query: %s, want %s", rawQuery, want)
		}
	})
	t.Run("quoted key", func(t *testing.T) {
		var rawQuery string
		db := newCustomDB(func(req *http.Request) (*http.Response, error) {
			rawQuery = req.URL.RawQuery
			return jsonResponse(http.StatusOK, `{"rows":[]}`), nil
		})
		_, err := db.View(context.Background(), "ddoc/view", Key("foo"))
		if err != nil {
			t.Fatal(err)
		}
		if want := "key=%22foo%22"; rawQuery != want {
			t.Errorf("Unexpected query: %s, want %s", rawQuery, want)
		}
	})
	t.Run("invalid update sends nothing", func(t *testing.T) {
		db := newCustomDB(func(*http.Request) (*http.Response, error) {
			t.Fatal("unexpected request")
			return nil, nil
		})
		_, err := db.View(context.Background(), "ddoc/view", Update("sometimes"))
		errtest.StatusError(t, `couch: invalid value for update: "sometimes"`, http.StatusBadRequest, err)
	})
}

func TestOptionHTTPClient(t *testing.T) {
	var called bool
	hc := &http.Client{Transport: customTransport(func(*http.Request) (*http.Response, error) {
		called = true
		return jsonResponse(http.StatusOK, `{"version":"3.3.3"}`), nil
	})}
	c, err := New("http://example.com/", OptionHTTPClient(hc))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Version(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("custom client was not used")
	}
}
