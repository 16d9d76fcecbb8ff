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

package input

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"gitlab.com/flimzy/testy"

	"github.com/go-kivik/couch/cmd/couch/errors"
	"github.com/go-kivik/couch/internal/errtest"
)

func TestDoc(t *testing.T) {
	type tt struct {
		args   []string
		stdin  string
		want   map[string]interface{}
		status int
		err    string
	}

	tests := testy.NewTable()
	tests.Add("no doc", tt{
		status: errors.ErrUsage,
		err:    "no document data provided",
	})
	tests.Add("stdin", tt{
		args:  []string{"--data-file", "-"},
		stdin: `{"foo":"bar"}`,
		want:  map[string]interface{}{"foo": "bar"},
	})
	tests.Add("string", tt{
		args: []string{"--data", `{"xyz":123}`},
		want: map[string]interface{}{"xyz": json.Number("123")},
	})
	tests.Add("file", tt{
		args: []string{"--data-file", "./testdata/doc.json"},
		want: map[string]interface{}{"_id": "foo", "count": json.Number("3")},
	})
	tests.Add("missing file", tt{
		args:   []string{"--data-file", "./testdata/missing.json"},
		status: errors.ErrNoInput,
		err:    "open ./testdata/missing.json: no such file or directory",
	})
	tests.Add("invalid json", tt{
		args:   []string{"--data", `{"xyz":`},
		status: errors.ErrData,
		err:    "unexpected EOF",
	})
	tests.Add("not an object", tt{
		args:   []string{"--data", `null`},
		status: errors.ErrData,
		err:    "document must be a JSON object",
	})
	tests.Add("yaml string", tt{
		args: []string{"--yaml", "--data", `foo: bar`},
		want: map[string]interface{}{"foo": "bar"},
	})
	tests.Add("yaml stdin", tt{
		args:  []string{"--yaml", "--data-file", `-`},
		stdin: "foo: 1234",
		want:  map[string]interface{}{"foo": json.Number("1234")},
	})
	tests.Add("yaml file extension", tt{
		args: []string{"--data-file", `./testdata/doc.yaml`},
		want: map[string]interface{}{
			"_id":   "foo",
			"count": json.Number("3"),
			"tags":  []interface{}{"a", "b"},
		},
	})
	tests.Add("invalid yaml", tt{
		args:   []string{"--yaml", "--data", "foo: [bar"},
		status: errors.ErrData,
		err:    "^yaml: ",
	})

	tests.Run(t, func(t *testing.T, tt tt) {
		i := New()
		flags := pflag.NewFlagSet("x", pflag.ContinueOnError)
		i.ConfigFlags(flags)
		if err := flags.Parse(tt.args); err != nil {
			t.Fatal(err)
		}
		i.SetIn(strings.NewReader(tt.stdin))

		got, err := i.Doc()
		if status := errors.InspectErrorCode(err); status != tt.status {
			t.Errorf("Unexpected error status. Want %d, got %d", tt.status, status)
		}
		errtest.ErrorRE(t, tt.err, err)
		if d := testy.DiffInterface(tt.want, got); d != nil {
			t.Error(d)
		}
	})
}

func TestDecodeDocs(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		docs, err := DecodeDocs(strings.NewReader(`[{"_id":"a"},{"x":true}]`), false)
		if err != nil {
			t.Fatal(err)
		}
		want := []map[string]interface{}{{"_id": "a"}, {"x": true}}
		if d := testy.DiffInterface(want, docs); d != nil {
			t.Error(d)
		}
	})
	t.Run("yaml", func(t *testing.T) {
		docs, err := DecodeDocs(strings.NewReader("- _id: a\n  n: 1\n- name: bob\n"), true)
		if err != nil {
			t.Fatal(err)
		}
		want := []map[string]interface{}{{"_id": "a", "n": json.Number("1")}, {"name": "bob"}}
		if d := testy.DiffInterface(want, docs); d != nil {
			t.Error(d)
		}
	})
	t.Run("object", func(t *testing.T) {
		_, err := DecodeDocs(strings.NewReader(`{"_id":"a"}`), false)
		if status := errors.InspectErrorCode(err); status != errors.ErrData {
			t.Errorf("Unexpected status %d", status)
		}
	})
}
