package review

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mind-engage/evaluator-portal/internal/activity"
	"github.com/mind-engage/evaluator-portal/internal/draft"
	"github.com/mind-engage/evaluator-portal/internal/logging"
	"github.com/mind-engage/evaluator-portal/internal/metrics"
	"github.com/mind-engage/evaluator-portal/internal/scoring"
)

// Writer persists a score payload upstream.
type Writer interface {
	SaveScores(ctx context.Context, applicationID string, payload any) ([]byte, error)
}

// Recorder keeps a local trail of accepted writes. Optional.
type Recorder interface {
	Append(ctx context.Context, e activity.Event) error
}

type Controller struct {
	drafts   *draft.Store
	upstream Writer
	events   Recorder
}

func NewController(drafts *draft.Store, upstream Writer, events Recorder) *Controller {
	return &Controller{drafts: drafts, upstream: upstream, events: events}
}

// DraftResult reports what SaveDraft managed to persist. A false Remote is
// not an error: the local draft is authoritative until submit.
type DraftResult struct {
	Remote      bool           `json:"remote"`
	RemoteError string         `json:"remote_error,omitempty"`
	Totals      scoring.Totals `json:"totals"`
}

// SaveDraft writes the draft locally, then makes one upstream write with
// status DRAFT. Only a local failure is returned as an error.
func (c *Controller) SaveDraft(ctx context.Context, key draft.Key, t Target, items []scoring.Criterion, scores scoring.Scores, comments scoring.Comments) (DraftResult, error) {
	clean := scoring.Sanitize(items, scores)
	res := DraftResult{Totals: scoring.Summarize(items, clean, comments)}
	if err := c.drafts.Save(ctx, key, draft.Draft{Scores: clean, Comments: comments}); err != nil {
		return res, err
	}

	if strings.TrimSpace(t.ApplicationID) == "" {
		res.RemoteError = "no application id"
		return res, nil
	}
	payload := BuildPayload(t, items, clean, comments, StatusDraft)
	if _, err := c.upstream.SaveScores(ctx, t.ApplicationID, payload); err != nil {
		logging.Log.WithFields(logFields(t)).WithError(err).Warn("review: remote draft save failed")
		metrics.Submission(string(StatusDraft), "rejected")
		res.RemoteError = err.Error()
		return res, nil
	}
	metrics.Submission(string(StatusDraft), "ok")
	res.Remote = true
	c.record(ctx, key, t, activity.TypeDraftSaved, payload, res.Totals.Max)
	return res, nil
}

// Submit validates the sheet and makes exactly one upstream write with
// status SUBMITTED. The local draft is cleared only when that write succeeds.
func (c *Controller) Submit(ctx context.Context, key draft.Key, t Target, items []scoring.Criterion, scores scoring.Scores, comments scoring.Comments) (Payload, error) {
	if !scoring.IsComplete(items, scores, comments) {
		metrics.Submission(string(StatusSubmitted), "incomplete")
		return Payload{}, &SubmitError{Kind: KindIncomplete, Missing: scoring.Missing(items, scores, comments)}
	}
	if strings.TrimSpace(t.ApplicationID) == "" {
		return Payload{}, &SubmitError{Kind: KindInvalid}
	}

	payload := BuildPayload(t, items, scores, comments, StatusSubmitted)
	if _, err := c.upstream.SaveScores(ctx, t.ApplicationID, payload); err != nil {
		logging.Log.WithFields(logFields(t)).WithError(err).Warn("review: submit rejected")
		metrics.Submission(string(StatusSubmitted), "rejected")
		return Payload{}, &SubmitError{Kind: KindUpstreamRejected, Err: err}
	}
	metrics.Submission(string(StatusSubmitted), "ok")

	if err := c.drafts.Clear(ctx, key); err != nil {
		// upstream has the scores; a stale draft is only cosmetic
		logging.Log.WithFields(logFields(t)).WithError(err).Error("review: clear draft after submit")
	}
	c.record(ctx, key, t, activity.TypeScoresSubmitted, payload, scoring.TotalMax(items))
	return payload, nil
}

func (c *Controller) record(ctx context.Context, key draft.Key, t Target, typ string, p Payload, max float64) {
	if c.events == nil {
		return
	}
	err := c.events.Append(ctx, activity.Event{
		Owner:         key.Owner,
		Type:          typ,
		ApplicationID: t.ApplicationID,
		RoundID:       t.RoundID,
		EditionID:     t.EditionID,
		Total:         p.Total,
		TotalMax:      max,
	})
	if err != nil {
		logging.Log.WithFields(logFields(t)).WithError(err).Warn("review: activity log append failed")
	}
}

func logFields(t Target) logrus.Fields {
	return logrus.Fields{
		"application_id": t.ApplicationID,
		"round_id":       t.RoundID,
		"edition_id":     t.EditionID,
	}
}
