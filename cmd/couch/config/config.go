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

// Package config reads the CLI's configuration file of named server
// contexts, and resolves the server the CLI talks to.
package config

import (
	"net/url"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/go-kivik/couch/cmd/couch/errors"
	"github.com/go-kivik/couch/cmd/couch/log"
)

// DefaultURL is used when no URL is configured anywhere.
const DefaultURL = "http://localhost:5984/"

var validate = validator.New()

// Config is the full app configuration file.
type Config struct {
	Contexts       map[string]*Context `yaml:"contexts" validate:"dive,required"`
	CurrentContext string              `yaml:"current-context"`
}

// Context describes a server.
type Context struct {
	URL      string `yaml:"url" validate:"required,url"`
	User     string `yaml:"user" validate:"required_with=Password"`
	Password string `yaml:"password"`
}

// New returns an empty configuration. Call Read to populate it.
func New() *Config {
	return &Config{
		Contexts: make(map[string]*Context),
	}
}

// Read populates c from filename. A missing file is not an error.
func (c *Config) Read(filename string, lg log.Logger) error {
	if filename == "" {
		lg.Debug("no config file specified")
		return nil
	}
	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			lg.Debugf("config file %q not found", filename)
			return nil
		}
		return errors.Code(errors.ErrNoInput, err)
	}
	defer f.Close() // nolint:errcheck
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return errors.Codef(errors.ErrUsage, "%s: %w", filename, err)
	}
	if err := c.Validate(); err != nil {
		return errors.Codef(errors.ErrUsage, "%s: %w", filename, err)
	}
	lg.Debugf("successfully read config file %q", filename)
	return nil
}

// Validate checks that every context is complete, and that the current
// context exists.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.CurrentContext != "" {
		if _, ok := c.Contexts[c.CurrentContext]; !ok {
			return errors.Codef(errors.ErrUsage, "context %q not found", c.CurrentContext)
		}
	}
	return nil
}

// Names returns the sorted context names.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cx returns the named context, or the current context when name is empty.
// With no current context, a lone context is used. It returns nil when
// nothing is configured.
func (c *Config) Cx(name string) (*Context, error) {
	if name == "" {
		name = c.CurrentContext
	}
	if name == "" {
		if len(c.Contexts) == 1 {
			for _, cx := range c.Contexts {
				return cx, nil
			}
		}
		return nil, nil
	}
	cx, ok := c.Contexts[name]
	if !ok {
		return nil, errors.Codef(errors.ErrUsage, "context %q not found", name)
	}
	return cx, nil
}

// ServerURL resolves the server URL. An explicit rawURL, from the command
// line or environment, wins over the context. Credentials in the context
// are returned separately, and are only used when rawURL is empty or names
// the same host.
func (c *Config) ServerURL(rawURL, context string) (dsn, user, password string, err error) {
	cx, err := c.Cx(context)
	if err != nil {
		return "", "", "", err
	}
	if rawURL == "" {
		if cx == nil {
			return DefaultURL, "", "", nil
		}
		return cx.URL, cx.User, cx.Password, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", errors.Code(errors.ErrUsage, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", "", errors.Codef(errors.ErrUsage, "invalid server URL %q", rawURL)
	}
	if cx != nil && u.User == nil {
		if cxURL, _ := url.Parse(cx.URL); cxURL != nil && cxURL.Host == u.Host {
			return rawURL, cx.User, cx.Password, nil
		}
	}
	return rawURL, "", "", nil
}
