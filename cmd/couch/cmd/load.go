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

package cmd

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-kivik/couch"
	"github.com/go-kivik/couch/cmd/couch/dump"
	"github.com/go-kivik/couch/cmd/couch/errors"
	"github.com/go-kivik/couch/cmd/couch/input"
	kerrors "github.com/go-kivik/couch/errors"
)

type load struct {
	*root
	input  string
	yaml   bool
	batch  int
	create bool
}

func loadCmd(r *root) *cobra.Command {
	c := &load{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "load DB",
		Short: "Load documents into a database",
		Long: `Load documents from a dump, or from a JSON or YAML array of documents,
into DB, in batches.

Documents that carry a _rev are stored with that revision, as replication
does, so a dump reloads with its revision history intact. Documents without
an _id are given a random UUID.`,
		Args: cobra.ExactArgs(1),
		RunE: c.RunE,
	}
	f := cmd.Flags()
	f.StringVarP(&c.input, "input", "i", "-", "File to load. Use - for stdin.")
	f.BoolVar(&c.yaml, "yaml", false, "Treat input as a YAML array of documents")
	f.IntVar(&c.batch, "batch", defaultBatch, "Number of documents stored per request")
	f.BoolVar(&c.create, "create", false, "Create the database if it does not exist")
	return cmd
}

// loadResult summarizes a load.
type loadResult struct {
	DocsRead         int `json:"docs_read"`
	DocsWritten      int `json:"docs_written"`
	DocWriteFailures int `json:"doc_write_failures"`
}

func (c *load) RunE(cmd *cobra.Command, args []string) error {
	if c.batch < 1 {
		return errors.Code(errors.ErrUsage, "batch must be 1 or more")
	}
	in, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer in.Close() // nolint:errcheck

	client, err := c.client()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	db := client.DB(args[0])
	if c.create {
		err := c.retry(func() error {
			_, err := client.CreateDB(ctx, args[0])
			return err
		})
		if err != nil && !kerrors.IsKind(err, kerrors.KindDatabaseExists) {
			return err
		}
	}

	result := &loadResult{}
	group, ctx := errgroup.WithContext(ctx)
	docs := make(chan map[string]interface{}, c.batch)
	group.Go(func() error {
		defer close(docs)
		return c.read(ctx, in, docs)
	})
	group.Go(func() error {
		return c.write(ctx, db, docs, result)
	})
	if err := group.Wait(); err != nil {
		return err
	}
	if err := c.fmt.JSON(result); err != nil {
		return err
	}
	if result.DocWriteFailures > 0 {
		return errors.Codef(errors.ErrExpectationFailed, "%d of %d documents failed to load", result.DocWriteFailures, result.DocsRead)
	}
	return nil
}

func (c *load) open(cmd *cobra.Command) (io.ReadCloser, error) {
	if c.input == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(c.input)
	if err != nil {
		return nil, errors.Code(errors.ErrNoInput, err)
	}
	return f, nil
}

// read sends each document read from r to docs. The format is detected from
// the flags, the file extension, or the first byte: a JSON array starts
// with [, and anything else is taken to be a dump.
func (c *load) read(ctx context.Context, r io.Reader, docs chan<- map[string]interface{}) error {
	br := bufio.NewReader(r)
	isYAML := c.yaml || input.IsYAMLFile(c.input)
	if !isYAML && firstByte(br) != '[' {
		return c.readDump(ctx, br, docs)
	}
	list, err := input.DecodeDocs(br, isYAML)
	if err != nil {
		return err
	}
	for _, doc := range list {
		if err := send(ctx, docs, doc); err != nil {
			return err
		}
	}
	return nil
}

func (c *load) readDump(ctx context.Context, r io.Reader, docs chan<- map[string]interface{}) error {
	dr, err := dump.NewReader(r)
	if err != nil {
		return err
	}
	for {
		doc, err := dr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := send(ctx, docs, doc); err != nil {
			return err
		}
	}
}

func send(ctx context.Context, docs chan<- map[string]interface{}, doc map[string]interface{}) error {
	select {
	case docs <- doc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// firstByte returns the first non-space byte of r, without consuming it.
func firstByte(r *bufio.Reader) byte {
	for i := 1; ; i++ {
		buf, err := r.Peek(i)
		if len(buf) < i {
			return 0
		}
		if b := buf[i-1]; !strings.ContainsRune(" \t\r\n", rune(b)) {
			return b
		}
		if err != nil {
			return 0
		}
	}
}

func (c *load) write(ctx context.Context, db *couch.DB, docs <-chan map[string]interface{}, result *loadResult) error {
	batch := make([]map[string]interface{}, 0, c.batch)
	for doc := range docs {
		result.DocsRead++
		if _, ok := doc["_id"].(string); !ok {
			doc["_id"] = uuid.New().String()
		}
		batch = append(batch, doc)
		if len(batch) == c.batch {
			if err := c.flush(ctx, db, batch, result); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.flush(ctx, db, batch, result)
}

// flush stores batch. Documents with a _rev keep it; the others get new
// revisions from the server.
func (c *load) flush(ctx context.Context, db *couch.DB, batch []map[string]interface{}, result *loadResult) error {
	var replicated, edited []interface{}
	for _, doc := range batch {
		if _, ok := doc["_rev"].(string); ok {
			replicated = append(replicated, doc)
		} else {
			edited = append(edited, doc)
		}
	}
	if err := c.update(ctx, db, replicated, result, couch.NewEdits(false)); err != nil {
		return err
	}
	return c.update(ctx, db, edited, result)
}

func (c *load) update(ctx context.Context, db *couch.DB, docs []interface{}, result *loadResult, opts ...couch.Option) error {
	if len(docs) == 0 {
		return nil
	}
	var results []couch.BulkResult
	err := c.retry(func() error {
		var err error
		results, err = db.Update(ctx, docs, opts...)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "load %s", db.Name())
	}
	// With new_edits=false, the server only reports failures.
	failures := 0
	for _, r := range results {
		if !r.OK() {
			failures++
			c.log.Errorf("[load] %s: %s", r.ID, r.Err)
		}
	}
	result.DocWriteFailures += failures
	result.DocsWritten += len(docs) - failures
	c.log.Debugf("[load] %s: stored %d of %d documents", db.Name(), len(docs)-failures, len(docs))
	return nil
}
