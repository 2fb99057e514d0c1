package scoring

// Criterion is a single scorable rubric item.
type Criterion struct {
	ID              string  `json:"id" yaml:"id"`
	Label           string  `json:"label" yaml:"label"`
	Max             float64 `json:"max" yaml:"max"`
	CommentRequired bool    `json:"comment_required,omitempty" yaml:"comment_required"`
}

// Group is a titled, ordered slice of criteria. Grouping is cosmetic; item
// order is the order totals and payloads are built in.
type Group struct {
	Title string      `json:"title" yaml:"title"`
	Items []Criterion `json:"items" yaml:"items"`
}

type Scores map[string]float64

type Comments map[string]string

// Flatten returns every criterion of the rubric in display order.
func Flatten(groups []Group) []Criterion {
	n := 0
	for _, g := range groups {
		n += len(g.Items)
	}
	out := make([]Criterion, 0, n)
	for _, g := range groups {
		out = append(out, g.Items...)
	}
	return out
}

func find(items []Criterion, id string) (Criterion, bool) {
	for _, c := range items {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}
