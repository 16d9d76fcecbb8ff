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
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-kivik/couch"
	"github.com/go-kivik/couch/cmd/couch/dump"
	"github.com/go-kivik/couch/cmd/couch/errors"
)

const defaultBatch = 1000

type dumpDB struct {
	*root
	jobs      int
	batch     int
	outputDir string
}

func dumpCmd(r *root) *cobra.Command {
	c := &dumpDB{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "dump DB...",
		Short: "Dump databases as MIME multipart streams",
		Long: `Write a snapshot of each database, with attachments inlined, as a MIME
multipart stream. A single database is written to --output, or stdout.
Several databases require --output-dir, and are written to DB.mime files
in that directory, --jobs at a time.`,
		Args: cobra.MinimumNArgs(1),
		RunE: c.RunE,
	}
	f := cmd.Flags()
	f.IntVarP(&c.jobs, "jobs", "j", 1, "Number of databases to dump concurrently")
	f.IntVar(&c.batch, "batch", defaultBatch, "Number of documents fetched per request")
	f.StringVar(&c.outputDir, "output-dir", "", "Write each database to a file in this directory")
	return cmd
}

func (c *dumpDB) RunE(cmd *cobra.Command, args []string) error {
	if c.jobs < 1 {
		return errors.Code(errors.ErrUsage, "jobs must be 1 or more")
	}
	if c.batch < 1 {
		return errors.Code(errors.ErrUsage, "batch must be 1 or more")
	}
	if len(args) > 1 && c.outputDir == "" {
		return errors.Code(errors.ErrUsage, "--output-dir is required to dump more than one database")
	}
	if c.outputDir != "" {
		if err := os.MkdirAll(c.outputDir, 0o777); err != nil { //nolint:gomnd
			return errors.Code(errors.ErrCantCreate, err)
		}
	}
	client, err := c.client()
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(cmd.Context())
	group.SetLimit(c.jobs)
	for _, name := range args {
		name := name
		group.Go(func() error {
			return c.dump(ctx, client.DB(name))
		})
	}
	return group.Wait()
}

func (c *dumpDB) writer(name string) (io.WriteCloser, error) {
	if c.outputDir == "" {
		return c.fmt.Writer()
	}
	f, err := c.fmt.CreateFile(filepath.Join(c.outputDir, url.PathEscape(name)+".mime"))
	if err != nil {
		return nil, errors.Code(errors.ErrCantCreate, err)
	}
	return f, nil
}

func (c *dumpDB) dump(ctx context.Context, db *couch.DB) error {
	if err := c.retry(func() error { return db.Check(ctx) }); err != nil {
		return errors.Wrapf(err, "dump %s", db.Name())
	}
	out, err := c.writer(db.Name())
	if err != nil {
		return err
	}
	n, err := c.writeDump(ctx, out, db)
	if closeErr := out.Close(); err == nil {
		err = errors.Code(errors.ErrIO, closeErr)
	}
	if err != nil {
		return errors.Wrapf(err, "dump %s", db.Name())
	}
	c.log.Infof("[dump] %s: %d documents", db.Name(), n)
	return nil
}

func (c *dumpDB) writeDump(ctx context.Context, out io.Writer, db *couch.DB) (int, error) {
	w, err := dump.NewWriter(out)
	if err != nil {
		return 0, errors.Code(errors.ErrIO, err)
	}
	var count int
	it := db.IterView(ctx, "_all_docs", c.batch, couch.IncludeDocs())
	for it.Next() {
		row := it.Row()
		var doc map[string]interface{}
		if err := row.ScanDoc(&doc); err != nil {
			return count, err
		}
		if doc == nil {
			// Deleted between listing and fetching.
			continue
		}
		if _, ok := doc["_attachments"]; ok {
			rev, _ := doc["_rev"].(string)
			err := c.retry(func() error {
				var err error
				doc, err = db.Get(ctx, row.ID, couch.Rev(rev), couch.Param("attachments", true))
				return err
			})
			if err != nil {
				return count, err
			}
		}
		c.log.Debugf("[dump] %s: %s", db.Name(), row.ID)
		if err := w.WriteDoc(doc); err != nil {
			return count, errors.Code(errors.ErrIO, err)
		}
		count++
	}
	if err := it.Err(); err != nil {
		return count, err
	}
	return count, errors.Code(errors.ErrIO, w.Close())
}
