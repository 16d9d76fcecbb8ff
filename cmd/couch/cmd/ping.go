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

	"github.com/spf13/cobra"

	"github.com/go-kivik/couch/chttp"
	"github.com/go-kivik/couch/cmd/couch/errors"
)

func pingCmd(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that a server is up",
		Long:  "Send HEAD / to the server, and report whether it answered with a success status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.ping(cmd.Context())
		},
	}
}

// ping fails with the exit code of the response status when the server
// answers with an error.
func (r *root) ping(ctx context.Context) error {
	client, err := r.client()
	if err != nil {
		return err
	}
	r.log.Debugf("[ping] Will ping server: %q", client.URL())
	return r.retry(func() error {
		var status int
		up, err := client.Ping(chttp.WithClientTrace(ctx, r.captureStatus(&status)))
		switch {
		case err != nil:
			return err
		case !up:
			r.log.Info("[ping] Server down")
			return errors.HTTPStatus(status, "Server down")
		}
		r.log.Info("[ping] Server is up")
		return r.fmt.OK()
	})
}
