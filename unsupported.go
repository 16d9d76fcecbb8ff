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

package couch

import "context"

// Changes is not supported. Use a dedicated changes-feed consumer.
func (db *DB) Changes(_ context.Context, _ ...Option) error {
	return notImplemented("changes feed")
}

// Show is not supported.
func (db *DB) Show(_ context.Context, _ string, _ string, _ ...Option) error {
	return notImplemented("show functions")
}

// List is not supported.
func (db *DB) List(_ context.Context, _ string, _ string, _ ...Option) error {
	return notImplemented("list functions")
}

// UpdateDoc is not supported.
func (db *DB) UpdateDoc(_ context.Context, _ string, _ string, _ ...Option) error {
	return notImplemented("update handlers")
}
