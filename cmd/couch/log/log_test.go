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

package log

import (
	"bytes"
	"testing"

	"gitlab.com/flimzy/testy"
)

func TestLogger(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	lg := New()
	lg.SetOut(out)
	lg.SetErr(errOut)

	lg.Debug("hidden")
	lg.SetDebug(true)
	lg.Debugf("shown %d", 1)
	lg.Infof("info %s ", "foo")
	lg.Error("oops")

	if d := testy.DiffText("info foo\n", out.String()); d != nil {
		t.Errorf("stdout: %s", d)
	}
	if d := testy.DiffText("shown 1\noops\n", errOut.String()); d != nil {
		t.Errorf("stderr: %s", d)
	}
}

func TestNil(t *testing.T) {
	lg := NewNil()
	lg.SetDebug(true)
	lg.Debug("a")
	lg.Infof("b%d", 2)
	lg.Errorf("c")
}
