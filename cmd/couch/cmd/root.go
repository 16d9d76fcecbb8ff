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

// Package cmd implements the couch command line tool.
package cmd

import (
	"context"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-kivik/couch"
	"github.com/go-kivik/couch/chttp"
	"github.com/go-kivik/couch/cmd/couch/config"
	"github.com/go-kivik/couch/cmd/couch/errors"
	"github.com/go-kivik/couch/cmd/couch/log"
	"github.com/go-kivik/couch/cmd/couch/output"
	"github.com/go-kivik/couch/cmd/couch/output/json"
	"github.com/go-kivik/couch/cmd/couch/output/raw"
	"github.com/go-kivik/couch/cmd/couch/output/yaml"
)

// Environment variables consulted in addition to the flags.
const (
	envContext = "COUCHDB_CONTEXT"
	envConfig  = "COUCHDB_CONFIG"
)

const defaultConfigFile = "~/.couch/config.yaml"

// root holds the state shared by every subcommand.
type root struct {
	log   log.Logger
	conf  *config.Config
	cmd   *cobra.Command
	fmt   *output.Formatter
	viper *viper.Viper
	trace *chttp.ClientTrace

	debug   bool
	verbose bool

	flags  retryFlags
	policy retryPolicy

	// resolveHome expands a leading ~/ in the config file path.
	resolveHome func(string) string
	// transport, if set, replaces the default HTTP transport.
	transport http.RoundTripper
}

// Execute runs the command line given to the process, and exits.
func Execute(ctx context.Context) {
	os.Exit(rootCmd(log.New()).execute(ctx))
}

// execute runs the command, and returns the process exit code. Errors that
// carry no code of their own come from cobra, and count as usage errors.
func (r *root) execute(ctx context.Context) int {
	err := r.cmd.ExecuteContext(chttp.WithClientTrace(ctx, r.clientTrace()))
	if err == nil {
		return 0
	}
	if code := errors.InspectErrorCode(err); code != 0 {
		return code
	}
	return errors.ErrUsage
}

func rootCmd(lg log.Logger) *root {
	r := &root{
		log:         lg,
		fmt:         output.New(),
		conf:        config.New(),
		viper:       viper.New(),
		resolveHome: resolveHome,
	}
	r.fmt.Register("json", json.New())
	r.fmt.Register("raw", raw.New())
	r.fmt.Register("yaml", yaml.New())

	r.cmd = &cobra.Command{
		Use:               "couch",
		Short:             "couch talks to CouchDB servers",
		Long:              "couch inspects, dumps and loads CouchDB databases over the HTTP API.",
		PersistentPreRunE: r.init,
		SilenceUsage:      true,
	}
	r.addFlags()
	r.cmd.AddCommand(
		versionCmd(r),
		pingCmd(r),
		uuidsCmd(r),
		infoCmd(r),
		getCmd(r),
		putCmd(r),
		replicateCmd(r),
		dumpCmd(r),
		loadCmd(r),
	)
	return r
}

func (r *root) addFlags() {
	pf := r.cmd.PersistentFlags()
	r.fmt.ConfigFlags(pf)

	pf.StringP("url", "u", "", "CouchDB server URL. Defaults to $"+couch.EnvURL+", then the current context.")
	pf.String("config", defaultConfigFile, "Path to config file to use for CLI requests")
	pf.String("context", "", "Named context from the config file to use")
	pf.BoolVarP(&r.debug, "debug", "d", false, "Enable debug output")
	pf.BoolVarP(&r.verbose, "verbose", "v", false, "Output bi-directional network traffic")
	pf.IntVar(&r.flags.retries, "retry", 0, "In case of transient error, retry up to this many times. A negative value retries forever.")
	pf.StringVar(&r.flags.requestTimeout, "request-timeout", "", "The time limit for each request.")
	pf.StringVar(&r.flags.delay, "retry-delay", "", "Delay between retry attempts. Disables the default exponential backoff algorithm.")
	pf.StringVar(&r.flags.timeout, "retry-timeout", "", "When used with --retry, no more retries will be attempted after this timeout.")

	bindings := []struct{ key, env string }{
		{"url", couch.EnvURL},
		{"config", envConfig},
		{"context", envContext},
	}
	for _, b := range bindings {
		_ = r.viper.BindPFlag(b.key, pf.Lookup(b.key))
		_ = r.viper.BindEnv(b.key, b.env)
	}
}

func resolveHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	return filepath.Join(usr.HomeDir, rest)
}

// init runs before every subcommand. It directs logging and output to the
// command's writers, parses the timing flags and reads the config file.
func (r *root) init(cmd *cobra.Command, _ []string) error {
	r.log.SetOut(cmd.ErrOrStderr())
	r.log.SetErr(cmd.ErrOrStderr())
	r.log.SetDebug(r.debug)
	r.fmt.SetOut(cmd.OutOrStdout())
	r.log.Debug("Debug mode enabled")

	policy, err := r.flags.parse()
	if err != nil {
		return err
	}
	r.policy = policy

	if err := r.conf.Read(r.resolveHome(r.viper.GetString("config")), r.log); err != nil {
		return err
	}
	r.setTrace()
	return nil
}

// client returns a client for the server chosen by --url, the environment
// or the config file.
func (r *root) client() (*couch.Client, error) {
	dsn, username, password, err := r.conf.ServerURL(r.viper.GetString("url"), r.viper.GetString("context"))
	if err != nil {
		return nil, err
	}
	r.log.Debugf("Server: %s", dsn)
	opts := []couch.Option{
		couch.OptionHTTPClient(&http.Client{
			Transport: r.transport,
			Timeout:   r.policy.requestTimeout,
		}),
		chttp.OptionUserAgent("couch-cli"),
	}
	if username != "" {
		opts = append(opts, chttp.BasicAuth(username, password))
	}
	if r.verbose {
		// Keep traced request bodies readable.
		opts = append(opts, chttp.OptionNoRequestCompression())
	}
	client, err := couch.New(dsn, opts...)
	return client, errors.Code(errors.ErrUsage, err)
}
