package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/evaluator-portal/internal/browse"
	"github.com/mind-engage/evaluator-portal/internal/logging"
)

// Upstream is the read side of the Admin API.
type Upstream interface {
	Editions(ctx context.Context) ([]byte, error)
	Rounds(ctx context.Context, editionID string) ([]byte, error)
	Applications(ctx context.Context, roundID string) ([]byte, error)
	Application(ctx context.Context, id string) ([]byte, error)
}

type listResponse[T any] struct {
	Items         []T    `json:"items"`
	UpstreamError string `json:"upstream_error,omitempty"`
}

// GET /api/editions?challenge=
func ListEditionsHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := up.Editions(r.Context())
		if err != nil {
			logging.Log.WithError(err).Warn("editions: upstream failed")
			writeJSON(w, http.StatusOK, listResponse[browse.Option]{Items: []browse.Option{}, UpstreamError: "editions unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, listResponse[browse.Option]{Items: browse.Editions(raw, r.URL.Query().Get("challenge"))})
	}
}

// GET /api/rounds?edition_id=
func ListRoundsHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		editionID := strings.TrimSpace(r.URL.Query().Get("edition_id"))
		if editionID == "" {
			writeJSON(w, http.StatusOK, listResponse[browse.Option]{Items: []browse.Option{}})
			return
		}
		raw, err := up.Rounds(r.Context(), editionID)
		if err != nil {
			logging.Log.WithError(err).WithField("edition_id", editionID).Warn("rounds: upstream failed")
			writeJSON(w, http.StatusOK, listResponse[browse.Option]{Items: []browse.Option{}, UpstreamError: "rounds unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, listResponse[browse.Option]{Items: browse.Rounds(raw)})
	}
}

// GET /api/applications?round_id=
func ListApplicationsHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roundID := strings.TrimSpace(r.URL.Query().Get("round_id"))
		raw, err := up.Applications(r.Context(), roundID)
		if err != nil {
			logging.Log.WithError(err).WithField("round_id", roundID).Warn("applications: upstream failed")
			writeJSON(w, http.StatusOK, listResponse[browse.Row]{Items: []browse.Row{}, UpstreamError: "applications unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, listResponse[browse.Row]{Items: browse.Rows(raw)})
	}
}

// GET /api/applications/{id}
func GetApplicationHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		raw, err := up.Application(r.Context(), id)
		if err != nil {
			logging.Log.WithError(err).WithField("application_id", id).Warn("application: upstream failed")
			writeJSON(w, http.StatusOK, browse.EmptyDetail(id))
			return
		}
		d := browse.ParseDetail(raw)
		if d.ID == "" {
			d.ID = id
		}
		writeJSON(w, http.StatusOK, d)
	}
}
