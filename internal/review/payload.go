package review

import "github.com/mind-engage/evaluator-portal/internal/scoring"

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
)

// Target names the review being written: which application, in which
// edition and round.
type Target struct {
	ApplicationID string
	EditionID     string
	RoundID       string
}

type Entry struct {
	CriteriaID    string  `json:"criteria_id"`
	CriteriaScore float64 `json:"criteria_score"`
	Comment       string  `json:"comment"`
	Max           float64 `json:"max"`
}

// Payload is the body of POST /evaluator/applications/{id}/scores.
type Payload struct {
	EditionID     string  `json:"edition_id,omitempty"`
	RoundID       string  `json:"round_id,omitempty"`
	ApplicationID string  `json:"application_id"`
	Scores        []Entry `json:"scores"`
	Status        Status  `json:"status"`
	Total         float64 `json:"total"`
}

// BuildPayload emits one entry per rubric item in rubric order. Missing
// scores go out as 0 and missing comments as "".
func BuildPayload(t Target, items []scoring.Criterion, scores scoring.Scores, comments scoring.Comments, status Status) Payload {
	clean := scoring.Sanitize(items, scores)
	entries := make([]Entry, 0, len(items))
	for _, c := range items {
		entries = append(entries, Entry{
			CriteriaID:    c.ID,
			CriteriaScore: clean[c.ID],
			Comment:       comments[c.ID],
			Max:           c.Max,
		})
	}
	return Payload{
		EditionID:     t.EditionID,
		RoundID:       t.RoundID,
		ApplicationID: t.ApplicationID,
		Scores:        entries,
		Status:        status,
		Total:         scoring.TotalScore(items, clean),
	}
}
