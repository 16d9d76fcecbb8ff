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

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/icza/dyno"
)

// field returns the value at a dotted field path of doc.
func field(doc map[string]interface{}, name string) (interface{}, bool) {
	path := make([]interface{}, 0, strings.Count(name, ".")+1)
	for _, segment := range strings.Split(name, ".") {
		path = append(path, segment)
	}
	v, err := dyno.Get(doc, path...)
	return v, err == nil
}

// collate compares two JSON values in CouchDB collation order: null, false,
// true, numbers, strings, arrays, objects. Strings compare bytewise.
func collate(a, b interface{}) int {
	a, b = normalize(a), normalize(b)
	ra, rb := collationRank(a), collationRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ta := a.(type) {
	case bool:
		tb := b.(bool)
		switch {
		case ta == tb:
			return 0
		case !ta:
			return -1
		}
		return 1
	case float64:
		tb := b.(float64)
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		}
		return 0
	case string:
		return strings.Compare(ta, b.(string))
	case []interface{}:
		tb := b.([]interface{})
		for i := 0; i < len(ta) && i < len(tb); i++ {
			if c := collate(ta[i], tb[i]); c != 0 {
				return c
			}
		}
		return len(ta) - len(tb)
	}
	return 0
}

// normalize converts Go numbers stored by tests to the float64 values
// decoded from JSON.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	}
	return v
}

func collationRank(v interface{}) int {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 2
		}
		return 1
	case float64:
		return 3
	case string:
		return 4
	case []interface{}:
		return 5
	}
	return 6
}

// match reports whether doc satisfies a Mango selector. It supports the
// combination operators $and, $or, $nor and $not, and the condition
// operators $eq, $ne, $gt, $gte, $lt, $lte, $exists, $in, $nin and $regex.
func match(selector map[string]interface{}, doc map[string]interface{}) (bool, error) {
	for key, cond := range selector {
		ok, err := matchMember(key, cond, doc)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchMember(key string, cond interface{}, doc map[string]interface{}) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		subs, ok := cond.([]interface{})
		if !ok {
			return false, fmt.Errorf("%s requires an array", key)
		}
		for _, sub := range subs {
			subSel, ok := sub.(map[string]interface{})
			if !ok {
				return false, fmt.Errorf("%s requires an array of objects", key)
			}
			matched, err := match(subSel, doc)
			if err != nil {
				return false, err
			}
			switch {
			case key == "$and" && !matched:
				return false, nil
			case key == "$or" && matched:
				return true, nil
			case key == "$nor" && matched:
				return false, nil
			}
		}
		return key != "$or", nil
	case "$not":
		sub, ok := cond.(map[string]interface{})
		if !ok {
			return false, fmt.Errorf("$not requires an object")
		}
		matched, err := match(sub, doc)
		return !matched, err
	}
	value, exists := field(doc, key)
	ops, ok := cond.(map[string]interface{})
	if !ok {
		return exists && collate(value, cond) == 0, nil
	}
	for op, arg := range ops {
		ok, err := matchOperator(op, arg, value, exists)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOperator(op string, arg, value interface{}, exists bool) (bool, error) {
	if op == "$exists" {
		want, _ := arg.(bool)
		return exists == want, nil
	}
	if !exists {
		return false, nil
	}
	switch op {
	case "$eq":
		return collate(value, arg) == 0, nil
	case "$ne":
		return collate(value, arg) != 0, nil
	case "$gt":
		return collate(value, arg) > 0, nil
	case "$gte":
		return collate(value, arg) >= 0, nil
	case "$lt":
		return collate(value, arg) < 0, nil
	case "$lte":
		return collate(value, arg) <= 0, nil
	case "$in", "$nin":
		list, ok := arg.([]interface{})
		if !ok {
			return false, fmt.Errorf("%s requires an array", op)
		}
		found := false
		for _, item := range list {
			if collate(value, item) == 0 {
				found = true
				break
			}
		}
		return found == (op == "$in"), nil
	case "$regex":
		pattern, ok := arg.(string)
		if !ok {
			return false, fmt.Errorf("$regex requires a string")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		str, ok := value.(string)
		return ok && re.MatchString(str), nil
	}
	return false, fmt.Errorf("unsupported operator %s", op)
}

type sortField struct {
	name string
	desc bool
}

func parseSort(raw []interface{}) ([]sortField, error) {
	fields := make([]sortField, 0, len(raw))
	for _, item := range raw {
		switch t := item.(type) {
		case string:
			fields = append(fields, sortField{name: t})
		case map[string]interface{}:
			for name, dir := range t {
				fields = append(fields, sortField{name: name, desc: dir == "desc"})
			}
		default:
			return nil, fmt.Errorf("invalid sort field %v", item)
		}
	}
	return fields, nil
}

func sortDocs(docs []map[string]interface{}, fields []sortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, _ := field(docs[i], f.name)
			b, _ := field(docs[j], f.name)
			if c := collate(a, b); c != 0 {
				return (c < 0) != f.desc
			}
		}
		return false
	})
}

// project returns a copy of doc restricted to the named fields.
func project(doc map[string]interface{}, fields []string) map[string]interface{} {
	if len(fields) == 0 {
		return doc
	}
	out := map[string]interface{}{}
	for _, name := range fields {
		value, ok := field(doc, name)
		if !ok {
			continue
		}
		target := out
		path := strings.Split(name, ".")
		for _, segment := range path[:len(path)-1] {
			next, ok := target[segment].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				target[segment] = next
			}
			target = next
		}
		target[path[len(path)-1]] = value
	}
	return out
}
