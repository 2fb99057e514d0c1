package criteria

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/evaluator-portal/internal/logging"
	"github.com/mind-engage/evaluator-portal/internal/metrics"
	"github.com/mind-engage/evaluator-portal/internal/scoring"
)

// Source fetches the raw criteria payload for one application.
type Source interface {
	ApplicationCriteria(ctx context.Context, applicationID string) ([]byte, error)
}

type Options struct {
	UseRemote bool
	// CacheTTL of zero disables caching.
	CacheTTL  time.Duration
	CacheSize int
	// Fallback replaces the embedded rubric when non-empty.
	Fallback []scoring.Group
}

// Resolver yields the rubric for an application. It never fails: any
// problem with the remote rubric produces the fallback rubric instead.
type Resolver struct {
	src      Source
	remote   bool
	cache    *expirable.LRU[string, []scoring.Group]
	fallback []scoring.Group
}

func NewResolver(src Source, opts Options) *Resolver {
	r := &Resolver{
		src:      src,
		remote:   opts.UseRemote && src != nil,
		fallback: opts.Fallback,
	}
	if len(r.fallback) == 0 {
		r.fallback = DefaultRubric()
	}
	if opts.CacheTTL > 0 {
		size := opts.CacheSize
		if size <= 0 {
			size = 512
		}
		r.cache = expirable.NewLRU[string, []scoring.Group](size, nil, opts.CacheTTL)
	}
	return r
}

// Fallback returns a copy of the rubric used when the remote one is unusable.
func (r *Resolver) Fallback() []scoring.Group {
	return cloneGroups(r.fallback)
}

func (r *Resolver) Resolve(ctx context.Context, applicationID string) []scoring.Group {
	if !r.remote {
		return r.Fallback()
	}
	if r.cache != nil {
		if g, ok := r.cache.Get(applicationID); ok {
			return cloneGroups(g)
		}
	}

	raw, err := r.src.ApplicationCriteria(ctx, applicationID)
	if err != nil {
		return r.useFallback(applicationID, "fetch", err)
	}
	groups, err := Normalize(raw)
	if err != nil {
		return r.useFallback(applicationID, reason(err), err)
	}
	if r.cache != nil {
		r.cache.Add(applicationID, cloneGroups(groups))
	}
	return groups
}

// Invalidate drops a cached rubric.
func (r *Resolver) Invalidate(applicationID string) {
	if r.cache != nil {
		r.cache.Remove(applicationID)
	}
}

func (r *Resolver) useFallback(applicationID, why string, err error) []scoring.Group {
	logging.Log.WithFields(logrus.Fields{
		"application_id": applicationID,
		"reason":         why,
	}).WithError(err).Warn("criteria: using fallback rubric")
	metrics.CriteriaFallback(why)
	return r.Fallback()
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidJSON):
		return "invalid_json"
	case errors.Is(err, ErrEmpty):
		return "empty"
	case errors.Is(err, ErrMissingID):
		return "missing_id"
	case errors.Is(err, ErrDuplicateID):
		return "duplicate_id"
	}
	return "malformed"
}
