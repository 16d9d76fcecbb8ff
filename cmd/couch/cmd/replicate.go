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

	"github.com/go-kivik/couch"
)

type replicate struct {
	*root
	continuous   bool
	createTarget bool
	docIDs       []string
	filter       string
}

func replicateCmd(r *root) *cobra.Command {
	c := &replicate{
		root: r,
	}

	cmd := &cobra.Command{
		Use:   "replicate SOURCE TARGET",
		Short: "Replicate a database",
		Long: `Ask the server to replicate SOURCE to TARGET. Each may be the name of a
database on the server, or the URL of a remote database.

Without --continuous, the command returns when the replication completes.`,
		Args: cobra.ExactArgs(2),
		RunE: c.RunE,
	}
	f := cmd.Flags()
	f.BoolVar(&c.continuous, "continuous", false, "Keep replicating new changes")
	f.BoolVar(&c.createTarget, "create-target", false, "Create the target database if it does not exist")
	f.StringSliceVar(&c.docIDs, "doc-id", nil, "Replicate only the listed documents. May be repeated.")
	f.StringVar(&c.filter, "filter", "", "Name of a filter function, as ddoc/filter")

	return cmd
}

func (c *replicate) options() []couch.Option {
	var opts []couch.Option
	if c.continuous {
		opts = append(opts, couch.Continuous())
	}
	if c.createTarget {
		opts = append(opts, couch.CreateTarget())
	}
	if len(c.docIDs) > 0 {
		opts = append(opts, couch.DocIDs(c.docIDs...))
	}
	if c.filter != "" {
		opts = append(opts, couch.Param("filter", c.filter))
	}
	return opts
}

func (c *replicate) RunE(cmd *cobra.Command, args []string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	c.log.Debugf("[replicate] Will replicate %s to %s", args[0], args[1])
	result, err := client.Replicate(cmd.Context(), args[0], args[1], c.options()...)
	if err != nil {
		return err
	}
	return c.fmt.JSON(result)
}
