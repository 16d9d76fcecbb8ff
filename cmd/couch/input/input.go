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

// Package input reads document data from flags, files or stdin.
package input

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/icza/dyno"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/go-kivik/couch/cmd/couch/errors"
)

// Input holds the document data flags.
type Input struct {
	data  string
	file  string
	yaml  bool
	stdin io.Reader
}

// New returns a new Input, reading from os.Stdin when the data file is -.
func New() *Input {
	return &Input{stdin: os.Stdin}
}

// ConfigFlags registers the input flags.
func (i *Input) ConfigFlags(pf *pflag.FlagSet) {
	pf.StringVar(&i.data, "data", "", "JSON document data.")
	pf.StringVarP(&i.file, "data-file", "D", "", "Read document data from the named file. Use - for stdin. Assumed to be JSON, unless the file extension is .yaml or .yml, or the --yaml flag is used.")
	pf.BoolVar(&i.yaml, "yaml", false, "Treat input data as YAML")
}

// SetIn sets the reader used for the - data file.
func (i *Input) SetIn(r io.Reader) {
	i.stdin = r
}

// HasInput returns true if some input has been provided.
func (i *Input) HasInput() bool {
	return i.data != "" || i.file != ""
}

// Doc returns the input as a JSON object.
func (i *Input) Doc() (map[string]interface{}, error) {
	r, err := i.open()
	if err != nil {
		return nil, err
	}
	defer r.Close() // nolint:errcheck
	var doc map[string]interface{}
	if err := decode(r, i.isYAML(), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.Code(errors.ErrData, "document must be a JSON object")
	}
	return doc, nil
}

func (i *Input) isYAML() bool {
	return i.yaml || IsYAMLFile(i.file)
}

// IsYAMLFile returns true if filename has a YAML extension.
func IsYAMLFile(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml")
}

func (i *Input) open() (io.ReadCloser, error) {
	if i.data != "" {
		return io.NopCloser(strings.NewReader(i.data)), nil
	}
	switch i.file {
	case "":
		return nil, errors.Code(errors.ErrUsage, "no document data provided")
	case "-":
		return io.NopCloser(i.stdin), nil
	}
	f, err := os.Open(i.file)
	if err != nil {
		return nil, errors.Code(errors.ErrNoInput, err)
	}
	return f, nil
}

// DecodeDocs reads a JSON or YAML array of documents from r.
func DecodeDocs(r io.Reader, isYAML bool) ([]map[string]interface{}, error) {
	var docs []map[string]interface{}
	if err := decode(r, isYAML, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// decode reads JSON or YAML from r into target. YAML is converted to JSON
// first, so that target sees the same types either way.
func decode(r io.Reader, isYAML bool, target interface{}) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return errors.Code(errors.ErrIO, err)
	}
	if isYAML {
		var doc interface{}
		if err := yaml.Unmarshal(buf, &doc); err != nil {
			return errors.Code(errors.ErrData, err)
		}
		if buf, err = json.Marshal(dyno.ConvertMapI2MapS(doc)); err != nil {
			return errors.Code(errors.ErrData, err)
		}
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	return errors.Code(errors.ErrData, dec.Decode(target))
}
