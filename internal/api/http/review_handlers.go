package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/evaluator-portal/internal/activity"
	authmw "github.com/mind-engage/evaluator-portal/internal/auth/middleware"
	"github.com/mind-engage/evaluator-portal/internal/criteria"
	"github.com/mind-engage/evaluator-portal/internal/draft"
	"github.com/mind-engage/evaluator-portal/internal/logging"
	"github.com/mind-engage/evaluator-portal/internal/review"
	"github.com/mind-engage/evaluator-portal/internal/scoring"
)

// Sheet is everything the scoring page renders.
type Sheet struct {
	ApplicationID string           `json:"application_id"`
	RoundID       string           `json:"round_id,omitempty"`
	Groups        []scoring.Group  `json:"groups"`
	Scores        scoring.Scores   `json:"scores"`
	Comments      scoring.Comments `json:"comments"`
	Totals        scoring.Totals   `json:"totals"`
	Missing       []string         `json:"missing"`
}

// sheetRequest is the body shared by the draft and submit endpoints. Score
// values may be JSON numbers or the raw text of the input box.
type sheetRequest struct {
	EditionID string                     `json:"edition_id"`
	RoundID   string                     `json:"round_id"`
	Scores    map[string]json.RawMessage `json:"scores"`
	Comments  map[string]string          `json:"comments"`
}

func draftKey(r *http.Request, appID, roundID string) draft.Key {
	return draft.Key{
		Owner:         authmw.SubjectFromContext(r.Context()),
		ApplicationID: appID,
		RoundID:       roundID,
	}
}

func buildSheet(appID, roundID string, groups []scoring.Group, d draft.Draft) Sheet {
	items := scoring.Flatten(groups)
	scores := scoring.Sanitize(items, d.Scores)
	missing := scoring.Missing(items, scores, d.Comments)
	if missing == nil {
		missing = []string{}
	}
	return Sheet{
		ApplicationID: appID,
		RoundID:       roundID,
		Groups:        groups,
		Scores:        scores,
		Comments:      d.Comments,
		Totals:        scoring.Summarize(items, scores, d.Comments),
		Missing:       missing,
	}
}

// applyEdits runs every edit of req through the aggregator.
func applyEdits(items []scoring.Criterion, d draft.Draft, req sheetRequest) draft.Draft {
	scores, comments := d.Scores, d.Comments
	for id, raw := range req.Scores {
		scores = scoring.UpdateScore(items, scores, id, rawText(raw))
	}
	for id, text := range req.Comments {
		comments = scoring.UpdateComment(comments, id, text)
	}
	return draft.Draft{Scores: scores, Comments: comments}
}

func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	t := strings.TrimSpace(string(raw))
	if t == "null" {
		return ""
	}
	return t
}

// GET /api/applications/{id}/criteria
func CriteriaHandler(res *criteria.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups := res.Resolve(r.Context(), chi.URLParam(r, "id"))
		writeJSON(w, http.StatusOK, map[string]any{
			"groups":    groups,
			"total_max": scoring.TotalMax(scoring.Flatten(groups)),
		})
	}
}

// GET /api/applications/{id}/score-sheet?round_id=
func ScoreSheetHandler(res *criteria.Resolver, drafts *draft.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID := chi.URLParam(r, "id")
		roundID := strings.TrimSpace(r.URL.Query().Get("round_id"))
		groups := res.Resolve(r.Context(), appID)
		d := drafts.Load(r.Context(), draftKey(r, appID, roundID))
		writeJSON(w, http.StatusOK, buildSheet(appID, roundID, groups, d))
	}
}

// PATCH /api/applications/{id}/draft
// { "round_id": "...", "scores": {"alignment": "7"}, "comments": {"ux": "..."} }
func PatchDraftHandler(res *criteria.Resolver, drafts *draft.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID := chi.URLParam(r, "id")
		var req sheetRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_json", err.Error())
			return
		}
		groups := res.Resolve(r.Context(), appID)
		key := draftKey(r, appID, req.RoundID)
		items := scoring.Flatten(groups)
		d, err := drafts.Update(r.Context(), key, func(cur draft.Draft) draft.Draft {
			return applyEdits(items, cur, req)
		})
		if err != nil {
			logging.Log.WithError(err).WithField("key", key.String()).Error("draft: save failed")
			writeError(w, http.StatusInternalServerError, "draft_save_failed", "Could not save your draft locally.")
			return
		}
		writeJSON(w, http.StatusOK, buildSheet(appID, req.RoundID, groups, d))
	}
}

// loadForAction resolves the rubric and the sheet an action works on: the
// stored draft with any edits from the request applied.
func loadForAction(w http.ResponseWriter, r *http.Request, res *criteria.Resolver, drafts *draft.Store) (review.Target, draft.Key, []scoring.Criterion, draft.Draft, bool) {
	appID := chi.URLParam(r, "id")
	var req sheetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return review.Target{}, draft.Key{}, nil, draft.Draft{}, false
	}
	items := scoring.Flatten(res.Resolve(r.Context(), appID))
	key := draftKey(r, appID, req.RoundID)
	d := drafts.Load(r.Context(), key)
	if len(req.Scores) > 0 || len(req.Comments) > 0 {
		var err error
		d, err = drafts.Update(r.Context(), key, func(cur draft.Draft) draft.Draft {
			return applyEdits(items, cur, req)
		})
		if err != nil {
			logging.Log.WithError(err).WithField("key", key.String()).Error("draft: save failed")
			writeError(w, http.StatusInternalServerError, "draft_save_failed", "Could not save your draft locally.")
			return review.Target{}, draft.Key{}, nil, draft.Draft{}, false
		}
	}
	t := review.Target{ApplicationID: appID, EditionID: req.EditionID, RoundID: req.RoundID}
	return t, key, items, d, true
}

// POST /api/applications/{id}/scores/draft
func SaveDraftHandler(res *criteria.Resolver, drafts *draft.Store, ctrl *review.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, key, items, d, ok := loadForAction(w, r, res, drafts)
		if !ok {
			return
		}
		result, err := ctrl.SaveDraft(r.Context(), key, t, items, d.Scores, d.Comments)
		if err != nil {
			logging.Log.WithError(err).WithField("key", key.String()).Error("draft: save failed")
			writeError(w, http.StatusInternalServerError, "draft_save_failed", "Could not save your draft locally.")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// POST /api/applications/{id}/scores/submit
func SubmitHandler(res *criteria.Resolver, drafts *draft.Store, ctrl *review.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, key, items, d, ok := loadForAction(w, r, res, drafts)
		if !ok {
			return
		}
		payload, err := ctrl.Submit(r.Context(), key, t, items, d.Scores, d.Comments)
		if err != nil {
			var se *review.SubmitError
			if !errors.As(err, &se) {
				writeError(w, http.StatusInternalServerError, "internal", err.Error())
				return
			}
			switch se.Kind {
			case review.KindIncomplete:
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"error":   se.Kind.String(),
					"message": "Please score every criterion and fill the required comments before submitting.",
					"missing": se.Missing,
				})
			case review.KindUpstreamRejected:
				writeError(w, http.StatusBadGateway, se.Kind.String(), "Could not submit scores. Your draft is kept; please try again.")
			default:
				writeError(w, http.StatusBadRequest, se.Kind.String(), "Missing application id.")
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "total": payload.Total, "status": payload.Status})
	}
}

// GET /api/reviews/history?limit=
func HistoryHandler(log *activity.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if log == nil {
			writeJSON(w, http.StatusOK, listResponse[activity.Event]{Items: []activity.Event{}})
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := log.List(r.Context(), authmw.SubjectFromContext(r.Context()), limit)
		if err != nil {
			logging.Log.WithError(err).Error("history: list failed")
			writeError(w, http.StatusInternalServerError, "history_unavailable", "Could not load your review history.")
			return
		}
		writeJSON(w, http.StatusOK, listResponse[activity.Event]{Items: events})
	}
}
