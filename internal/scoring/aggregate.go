package scoring

import (
	"math"
	"strconv"
	"strings"
)

// Totals is the running summary shown under the score sheet.
type Totals struct {
	Score    float64 `json:"total"`
	Max      float64 `json:"total_max"`
	Complete bool    `json:"complete"`
}

// UpdateScore stores the clamped value of raw for criterionID and returns the
// new mapping. The input mapping is not modified. Unknown ids leave the scores
// as they are.
func UpdateScore(items []Criterion, scores Scores, criterionID, raw string) Scores {
	out := make(Scores, len(scores)+1)
	for k, v := range scores {
		out[k] = v
	}
	c, ok := find(items, criterionID)
	if !ok {
		return out
	}
	out[criterionID] = clamp(parseLoose(raw), c.Max)
	return out
}

// UpdateComment returns a copy of comments with id set to text.
func UpdateComment(comments Comments, id, text string) Comments {
	out := make(Comments, len(comments)+1)
	for k, v := range comments {
		out[k] = v
	}
	out[id] = text
	return out
}

// Sanitize re-applies the rubric bounds to a mapping loaded from elsewhere
// (a cached draft, a request body). Entries for unknown criteria are dropped.
func Sanitize(items []Criterion, scores Scores) Scores {
	out := make(Scores, len(scores))
	for _, c := range items {
		v, ok := scores[c.ID]
		if !ok {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[c.ID] = clamp(v, c.Max)
	}
	return out
}

func TotalScore(items []Criterion, scores Scores) float64 {
	total := 0.0
	for _, c := range items {
		v := scores[c.ID]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		total += clamp(v, c.Max)
	}
	return total
}

func TotalMax(items []Criterion) float64 {
	total := 0.0
	for _, c := range items {
		if c.Max > 0 {
			total += c.Max
		}
	}
	return total
}

// IsComplete reports whether every criterion has a finite, non-negative score
// and every comment-required criterion has a non-blank comment.
func IsComplete(items []Criterion, scores Scores, comments Comments) bool {
	for _, c := range items {
		v, ok := scores[c.ID]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
		if c.CommentRequired && strings.TrimSpace(comments[c.ID]) == "" {
			return false
		}
	}
	return true
}

// Missing lists the ids that keep IsComplete false, in rubric order.
func Missing(items []Criterion, scores Scores, comments Comments) []string {
	var out []string
	for _, c := range items {
		v, ok := scores[c.ID]
		switch {
		case !ok || math.IsNaN(v) || math.IsInf(v, 0) || v < 0:
			out = append(out, c.ID)
		case c.CommentRequired && strings.TrimSpace(comments[c.ID]) == "":
			out = append(out, c.ID)
		}
	}
	return out
}

func Summarize(items []Criterion, scores Scores, comments Comments) Totals {
	return Totals{
		Score:    TotalScore(items, scores),
		Max:      TotalMax(items),
		Complete: IsComplete(items, scores, comments),
	}
}

func clamp(v, max float64) float64 {
	if max < 0 || math.IsNaN(max) {
		max = 0
	}
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// parseLoose turns form input into a number. Anything that is not a finite
// number counts as 0.
func parseLoose(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
