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
	"io"

	"github.com/spf13/cobra"

	"github.com/go-kivik/couch"
)

type get struct {
	*root
	rev        string
	revs       bool
	attachment string
}

func getCmd(r *root) *cobra.Command {
	c := &get{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "get DB DOCID",
		Short: "Fetch a document, or one of its attachments",
		Long: `Fetch a document, and print it in the chosen format.

With --attachment, the named attachment's content is written unaltered.`,
		Args: cobra.ExactArgs(2),
		RunE: c.RunE,
	}
	f := cmd.Flags()
	f.StringVar(&c.rev, "rev", "", "Fetch this revision, rather than the current one")
	f.BoolVar(&c.revs, "revs", false, "Include the revision history")
	f.StringVarP(&c.attachment, "attachment", "a", "", "Fetch the named attachment")
	return cmd
}

func (c *get) options() []couch.Option {
	var opts []couch.Option
	if c.rev != "" {
		opts = append(opts, couch.Rev(c.rev))
	}
	if c.revs {
		opts = append(opts, couch.Revs())
	}
	return opts
}

func (c *get) RunE(cmd *cobra.Command, args []string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	db := client.DB(args[0])
	if c.attachment != "" {
		return c.getAttachment(cmd, db, args[1])
	}
	var doc couch.Document
	err = c.retry(func() error {
		var err error
		doc, err = db.Get(cmd.Context(), args[1], c.options()...)
		return err
	})
	if err != nil {
		return err
	}
	return c.fmt.JSON(doc)
}

func (c *get) getAttachment(cmd *cobra.Command, db *couch.DB, docID string) error {
	var att *couch.Attachment
	err := c.retry(func() error {
		var err error
		att, err = db.GetAttachment(cmd.Context(), docID, c.attachment, c.options()...)
		return err
	})
	if err != nil {
		return err
	}
	defer att.Content.Close() // nolint:errcheck
	c.log.Debugf("[get] %s: %s, %d bytes, %s", att.Filename, att.ContentType, att.Size, att.Digest)
	w, err := c.fmt.Writer()
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, att.Content); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
