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

	"github.com/go-kivik/couch/cmd/couch/errors"
)

type uuids struct {
	*root
	count int
}

func uuidsCmd(r *root) *cobra.Command {
	c := &uuids{
		root: r,
	}
	cmd := &cobra.Command{
		Use:   "uuids",
		Short: "Fetch UUIDs from the server",
		Args:  cobra.NoArgs,
		RunE:  c.RunE,
	}
	cmd.Flags().IntVarP(&c.count, "count", "n", 1, "Number of UUIDs to fetch")
	return cmd
}

func (c *uuids) RunE(cmd *cobra.Command, _ []string) error {
	if c.count < 1 {
		return errors.Code(errors.ErrUsage, "count must be 1 or more")
	}
	client, err := c.client()
	if err != nil {
		return err
	}
	var ids []string
	err = c.retry(func() error {
		var err error
		ids, err = client.UUIDs(cmd.Context(), c.count)
		return err
	})
	if err != nil {
		return err
	}
	return c.fmt.JSON(ids)
}
