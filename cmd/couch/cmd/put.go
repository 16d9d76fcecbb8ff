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
	"github.com/spf13/cobra"

	"github.com/go-kivik/couch/cmd/couch/input"
)

type put struct {
	*root
	*input.Input
}

func putCmd(r *root) *cobra.Command {
	c := &put{
		root:  r,
		Input: input.New(),
	}
	cmd := &cobra.Command{
		Use:   "put DB DOCID",
		Short: "Create or update a document",
		Long: `Store a document under the given ID. To update an existing document,
the data must include its current _rev.`,
		Args: cobra.ExactArgs(2),
		RunE: c.RunE,
	}
	c.Input.ConfigFlags(cmd.Flags())
	return cmd
}

func (c *put) RunE(cmd *cobra.Command, args []string) error {
	c.SetIn(cmd.InOrStdin())
	doc, err := c.Doc()
	if err != nil {
		return err
	}
	client, err := c.client()
	if err != nil {
		return err
	}
	var rev string
	err = c.retry(func() error {
		var err error
		rev, err = client.DB(args[0]).Put(cmd.Context(), args[1], doc)
		return err
	})
	if err != nil {
		return err
	}
	return c.fmt.UpdateResult(args[1], rev)
}
