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
	"runtime"

	"github.com/spf13/cobra"

	"github.com/go-kivik/couch/chttp"
)

type version struct {
	*root
}

func versionCmd(r *root) *cobra.Command {
	c := &version{
		root: r,
	}
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"ver"},
		Short:   "Print client and server version information",
		Long:    "Print the client version, and the server version when the server can be reached",
		Args:    cobra.NoArgs,
		RunE:    c.RunE,
	}
}

func (c *version) RunE(cmd *cobra.Command, _ []string) error {
	data := struct {
		Version       string `json:"version"`
		GoVersion     string `json:"goVersion"`
		GOARCH        string `json:"GOARCH"`
		GOOS          string `json:"GOOS"`
		ServerVersion string `json:"serverVersion,omitempty"`
	}{
		Version:   chttp.Version,
		GoVersion: runtime.Version(),
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
	}

	client, err := c.client()
	if err != nil {
		return err
	}
	if data.ServerVersion, err = client.Version(cmd.Context()); err != nil {
		c.log.Debugf("[version] server version unavailable: %s", err)
	}
	return c.fmt.JSON(data)
}
