package browse

import "strings"

// Option is one entry of the edition or round picker.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Editions lists editions, narrowed to the challenge slug when the upstream
// records carry challenge hints. Editions without hints always match; if
// nothing matches, every edition is returned.
func Editions(raw []byte, slug string) []Option {
	want := strings.ToLower(strings.Join(strings.Fields(slug), "-"))
	var all, matched []Option
	for _, v := range records(raw) {
		r := newRecord(v)
		id := r.pick("id", "edition_id")
		if id == "" {
			continue
		}
		o := Option{ID: id, Name: r.pickOr("Edition "+id, "name", "title", "edition_name", "label")}
		all = append(all, o)

		hintSlug := strings.ToLower(r.pick("challenge_slug"))
		hintName := strings.ToLower(r.pick("challenge_name"))
		switch {
		case want == "":
			matched = append(matched, o)
		case hintSlug == "" && hintName == "":
			matched = append(matched, o)
		case hintSlug == want:
			matched = append(matched, o)
		case hintName != "" && strings.Contains(hintName, strings.ReplaceAll(want, "-", " ")):
			matched = append(matched, o)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	if all == nil {
		return []Option{}
	}
	return all
}

// Rounds lists the rounds (stages) of an edition.
func Rounds(raw []byte) []Option {
	out := []Option{}
	for _, v := range records(raw) {
		r := newRecord(v)
		id := r.pick("id", "round_id")
		if id == "" {
			continue
		}
		out = append(out, Option{ID: id, Name: r.pickOr("Round "+id, "name", "title", "round_name", "stage")})
	}
	return out
}
