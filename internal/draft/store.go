package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"sync"

	"github.com/mind-engage/evaluator-portal/internal/logging"
	"github.com/mind-engage/evaluator-portal/internal/scoring"
)

// Key identifies one draft. Owner scopes drafts to an evaluator session and
// may be empty.
type Key struct {
	Owner         string
	ApplicationID string
	RoundID       string
}

func (k Key) String() string {
	app := url.QueryEscape(k.ApplicationID)
	if app == "" {
		app = "unknown"
	}
	round := url.QueryEscape(k.RoundID)
	if round == "" {
		round = "all"
	}
	if k.Owner == "" {
		return fmt.Sprintf("review-draft:%s:%s", app, round)
	}
	return fmt.Sprintf("review-draft:%s:%s:%s", url.QueryEscape(k.Owner), app, round)
}

// Draft is the in-progress state of one score sheet.
type Draft struct {
	Scores   scoring.Scores   `json:"scores"`
	Comments scoring.Comments `json:"comments"`
}

func Empty() Draft {
	return Draft{Scores: scoring.Scores{}, Comments: scoring.Comments{}}
}

const lockStripes = 64

// Store persists drafts through a KV. Updates to the same key are
// serialized within the process.
type Store struct {
	kv    KV
	locks [lockStripes]sync.Mutex
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Load returns the saved draft for key. Missing, unreadable or corrupt
// values all yield an empty draft.
func (s *Store) Load(ctx context.Context, key Key) Draft {
	raw, err := s.kv.Get(ctx, key.String())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.Log.WithError(err).WithField("key", key.String()).Warn("draft: load failed")
		}
		return Empty()
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		logging.Log.WithError(err).WithField("key", key.String()).Warn("draft: corrupt value ignored")
		return Empty()
	}
	if d.Scores == nil {
		d.Scores = scoring.Scores{}
	}
	if d.Comments == nil {
		d.Comments = scoring.Comments{}
	}
	return d
}

func (s *Store) Save(ctx context.Context, key Key, d Draft) error {
	if d.Scores == nil {
		d.Scores = scoring.Scores{}
	}
	if d.Comments == nil {
		d.Comments = scoring.Comments{}
	}
	buf, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.kv.Set(ctx, key.String(), string(buf)); err != nil {
		return fmt.Errorf("save draft %s: %w", key, err)
	}
	return nil
}

// Update applies fn to the stored draft for key and saves the result while
// holding the key's lock, so concurrent edits to different criteria of one
// sheet are all kept.
func (s *Store) Update(ctx context.Context, key Key, fn func(Draft) Draft) (Draft, error) {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	d := fn(s.Load(ctx, key))
	if err := s.Save(ctx, key, d); err != nil {
		return d, err
	}
	return d, nil
}

func (s *Store) lockFor(key Key) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *Store) Clear(ctx context.Context, key Key) error {
	if err := s.kv.Remove(ctx, key.String()); err != nil {
		return fmt.Errorf("clear draft %s: %w", key, err)
	}
	return nil
}
