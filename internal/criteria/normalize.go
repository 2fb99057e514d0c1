package criteria

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mind-engage/evaluator-portal/internal/scoring"
)

const (
	defaultGroupTitle = "Criteria"
	defaultLabel      = "Criterion"
	defaultMax        = 10
)

var (
	ErrInvalidJSON = errors.New("criteria: invalid json")
	ErrEmpty       = errors.New("criteria: empty rubric")
	ErrMissingID   = errors.New("criteria: item without id")
	ErrDuplicateID = errors.New("criteria: duplicate item id")
)

// Normalize turns a remote criteria payload into canonical groups. It
// accepts a top-level array or {results:[...]}, holding either groups with
// an items array or a flat list of items.
func Normalize(raw []byte) ([]scoring.Group, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	root := gjson.ParseBytes(raw)
	var list []gjson.Result
	switch {
	case root.IsArray():
		list = root.Array()
	case root.IsObject() && root.Get("results").IsArray():
		list = root.Get("results").Array()
	default:
		return nil, ErrEmpty
	}
	if len(list) == 0 {
		return nil, ErrEmpty
	}

	var groups []scoring.Group
	if list[0].Get("items").IsArray() {
		for _, g := range list {
			title := firstString(g, "group", "title")
			if title == "" {
				title = defaultGroupTitle
			}
			items, err := normalizeItems(g.Get("items").Array())
			if err != nil {
				return nil, err
			}
			groups = append(groups, scoring.Group{Title: title, Items: items})
		}
	} else {
		items, err := normalizeItems(list)
		if err != nil {
			return nil, err
		}
		groups = []scoring.Group{{Title: defaultGroupTitle, Items: items}}
	}

	if err := validate(groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func normalizeItems(list []gjson.Result) ([]scoring.Criterion, error) {
	out := make([]scoring.Criterion, 0, len(list))
	for _, it := range list {
		if !it.IsObject() {
			return nil, ErrMissingID
		}
		id := idOf(it.Get("id"))
		if id == "" {
			return nil, ErrMissingID
		}
		label := firstString(it, "label", "name")
		if label == "" {
			label = defaultLabel
		}
		out = append(out, scoring.Criterion{
			ID:              id,
			Label:           label,
			Max:             maxOf(it),
			CommentRequired: truthy(it.Get("comment_required")) || truthy(it.Get("commentRequired")),
		})
	}
	return out, nil
}

func idOf(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str)
	case gjson.Number:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return ""
}

func firstString(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		f := v.Get(k)
		if !f.Exists() || f.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(f.String()); s != "" {
			return s
		}
	}
	return ""
}

// maxOf reads max, then weightage. Anything missing, non-numeric,
// non-finite or negative becomes the default.
func maxOf(it gjson.Result) float64 {
	for _, k := range []string{"max", "weightage"} {
		f := it.Get(k)
		if !f.Exists() || f.Type == gjson.Null {
			continue
		}
		var n float64
		switch f.Type {
		case gjson.Number:
			n = f.Num
		case gjson.String:
			p, err := strconv.ParseFloat(strings.TrimSpace(f.Str), 64)
			if err != nil {
				return defaultMax
			}
			n = p
		default:
			return defaultMax
		}
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
			return defaultMax
		}
		return n
	}
	return defaultMax
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		s := strings.ToLower(strings.TrimSpace(v.Str))
		return s != "" && s != "0" && s != "false" && s != "no"
	}
	return false
}
