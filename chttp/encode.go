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

package chttp

import (
	"net/url"
	"strings"
)

const (
	prefixDesign = "_design/"
	prefixLocal  = "_local/"
)

// EncodeDocID encodes a document ID for use as a single path component,
// keeping the slash of a _design/ or _local/ prefix intact.
func EncodeDocID(docID string) string {
	for _, prefix := range []string{prefixDesign, prefixLocal} {
		if strings.HasPrefix(docID, prefix) {
			return prefix + EncodeSegment(strings.TrimPrefix(docID, prefix))
		}
	}
	return EncodeSegment(docID)
}

// EncodeSegment percent-encodes a single path segment. A slash within the
// segment is encoded as %2F.
func EncodeSegment(segment string) string {
	segment = url.QueryEscape(segment)
	// Space must be %20, not '+', in a path.
	return strings.ReplaceAll(segment, "+", "%20")
}

// EncodePath joins individually encoded segments into an absolute path.
func EncodePath(segments ...string) string {
	encoded := make([]string, len(segments))
	for i, s := range segments {
		encoded[i] = EncodeSegment(s)
	}
	return "/" + strings.Join(encoded, "/")
}
