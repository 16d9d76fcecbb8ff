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

package couchtest

// Option is a server option.
type Option interface {
	apply(*Server)
}

type adminOption [2]string

func (o adminOption) apply(s *Server) {
	s.admins[o[0]] = o[1]
}

// WithAdmin adds a server admin. Once any admin is configured, the server
// no longer runs as an admin party: requests must authenticate with basic
// auth or a session cookie, and administrative endpoints require an admin.
// May be specified more than once.
func WithAdmin(name, password string) Option {
	return adminOption{name, password}
}

type secretOption string

func (o secretOption) apply(s *Server) {
	s.secret = string(o)
}

// WithSecret sets the secret used to sign session cookies.
func WithSecret(secret string) Option {
	return secretOption(secret)
}
