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

// Package output renders command results.
package output

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"github.com/go-kivik/couch/cmd/couch/errors"
)

// DefaultFormat is used when --format is not given.
const DefaultFormat = "json"

// Format renders the JSON document read from r to w.
type Format interface {
	Output(w io.Writer, r io.Reader) error
}

// Formatter writes command results in the format, and to the destination,
// chosen on the command line.
type Formatter struct {
	mu      sync.Mutex
	formats map[string]Format
	stdout  io.Writer

	format    string
	output    string
	overwrite bool
}

// New returns a Formatter with no formats registered, which writes to
// os.Stdout until SetOut is called.
func New() *Formatter {
	return &Formatter{
		formats: make(map[string]Format),
		stdout:  os.Stdout,
	}
}

// Register adds a format under name. Registering a name twice panics.
func (f *Formatter) Register(name string, format Format) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.formats[name]; dup {
		panic("output: format " + name + " registered twice")
	}
	f.formats[name] = format
}

// ConfigFlags adds --format, --output and --overwrite to fs. All formats
// must be registered first.
func (f *Formatter) ConfigFlags(fs *pflag.FlagSet) {
	names := make([]string, 0, len(f.formats))
	for name := range f.formats {
		names = append(names, name)
	}
	if len(names) == 0 {
		panic("output: no formats registered")
	}
	sort.Strings(names)
	fs.StringVarP(&f.format, "format", "f", DefaultFormat, "Output format. One of: "+strings.Join(names, "|"))
	fs.StringVarP(&f.output, "output", "o", "", "Output file. Use - for stdout.")
	fs.BoolVarP(&f.overwrite, "overwrite", "F", false, "Overwrite output file")
}

// SetOut replaces stdout.
func (f *Formatter) SetOut(w io.Writer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stdout = w
}

// Output renders the JSON document read from r.
func (f *Formatter) Output(r io.Reader) error {
	format, ok := f.formats[f.format]
	if !ok {
		return errors.Codef(errors.ErrUsage, "unrecognized output format option: %s", f.format)
	}
	w, err := f.Writer()
	if err != nil {
		return err
	}
	err = format.Output(w, r)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	return err
}

// JSON renders i, after marshaling it to JSON.
func (f *Formatter) JSON(i interface{}) error {
	return f.Output(JSONReader(i))
}

// OK renders {"ok":true}.
func (f *Formatter) OK() error {
	return f.JSON(map[string]bool{"ok": true})
}

// UpdateResult renders the outcome of a document write.
func (f *Formatter) UpdateResult(id, rev string) error {
	type result struct {
		OK  bool   `json:"ok"`
		ID  string `json:"id"`
		Rev string `json:"rev"`
	}
	return f.JSON(result{OK: true, ID: id, Rev: rev})
}

// Writer returns the destination for raw output: the --output file, or
// stdout with a trailing newline guaranteed. The caller must close it.
func (f *Formatter) Writer() (io.WriteCloser, error) {
	if f.output != "" && f.output != "-" {
		file, err := f.CreateFile(f.output)
		return file, errors.Code(errors.ErrCantCreate, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &newlineTerminated{w: f.stdout}, nil
}

// CreateFile creates path. An existing file is an error unless --overwrite
// was given.
func (f *Formatter) CreateFile(path string) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !f.overwrite {
		flags |= os.O_EXCL
	}
	return os.OpenFile(path, flags, 0o666) // nolint: gomnd
}

// JSONReader returns i marshaled as JSON. A marshaling error is returned by
// the first Read.
func JSONReader(i interface{}) io.Reader {
	buf, err := json.Marshal(i)
	if err != nil {
		return failedReader{err}
	}
	return bytes.NewReader(buf)
}

type failedReader struct{ err error }

func (r failedReader) Read([]byte) (int, error) { return 0, r.err }

// newlineTerminated ends non-empty output with a newline on Close. The
// wrapped writer is not closed.
type newlineTerminated struct {
	w    io.Writer
	last byte
}

func (n *newlineTerminated) Write(p []byte) (int, error) {
	if len(p) > 0 {
		n.last = p[len(p)-1]
	}
	return n.w.Write(p)
}

func (n *newlineTerminated) Close() error {
	if n.last == 0 || n.last == '\n' {
		return nil
	}
	_, err := n.w.Write([]byte{'\n'})
	return err
}
