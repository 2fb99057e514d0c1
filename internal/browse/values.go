// Package browse turns loosely shaped Admin API records into the fixed
// shapes the portal UI renders.
package browse

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Placeholder stands in for any display field with no value.
const Placeholder = "—"

// record is one upstream object with its keys indexed verbatim. Upstream
// keys include whole questions with dots and question marks, so lookups go
// through the map rather than gjson paths.
type record map[string]gjson.Result

func newRecord(v gjson.Result) record {
	if !v.IsObject() {
		return record{}
	}
	return record(v.Map())
}

// pick returns the first key whose value renders non-blank.
func (r record) pick(keys ...string) string {
	for _, k := range keys {
		if s := text(r[k]); s != "" {
			return s
		}
	}
	return ""
}

func (r record) pickOr(def string, keys ...string) string {
	if s := r.pick(keys...); s != "" {
		return s
	}
	return def
}

// text renders scalars and arrays of scalars; objects and null render empty.
func text(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str)
	case gjson.Number:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	case gjson.JSON:
		if !v.IsArray() {
			return ""
		}
		var parts []string
		for _, e := range v.Array() {
			if s := text(e); s != "" && !e.IsArray() {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func isHTTPURL(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

var camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// labelFor turns an upstream key like "team_size" or "teamSize" into
// "Team size".
func labelFor(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	s = camelBoundary.ReplaceAllString(s, "$1 $2")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// records unwraps the list shapes the Admin API uses: a bare array,
// {data:[...]}, {items:[...]}, {results:[...]}, {data:{items:[...]}}, or a
// single object.
func records(raw []byte) []gjson.Result {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	root := gjson.ParseBytes(raw)
	if root.IsArray() {
		return root.Array()
	}
	if !root.IsObject() {
		return nil
	}
	for _, k := range []string{"data", "items", "results", "data.items"} {
		if v := root.Get(k); v.IsArray() {
			return v.Array()
		}
	}
	return []gjson.Result{root}
}
