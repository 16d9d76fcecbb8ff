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
	"bytes"

	"github.com/spf13/cobra"

	"github.com/go-kivik/couch"
)

type info struct {
	*root
}

func infoCmd(r *root) *cobra.Command {
	c := &info{
		root: r,
	}
	return &cobra.Command{
		Use:   "info DB",
		Short: "Show database information",
		Args:  cobra.ExactArgs(1),
		RunE:  c.RunE,
	}
}

func (c *info) RunE(cmd *cobra.Command, args []string) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	var dbInfo *couch.DBInfo
	err = c.retry(func() error {
		var err error
		dbInfo, err = client.DB(args[0]).Info(cmd.Context())
		return err
	})
	if err != nil {
		return err
	}
	return c.fmt.Output(bytes.NewReader(dbInfo.Raw))
}
