package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/evaluator-portal/internal/activity"
	"github.com/mind-engage/evaluator-portal/internal/adminapi"
	authmw "github.com/mind-engage/evaluator-portal/internal/auth/middleware"
	"github.com/mind-engage/evaluator-portal/internal/criteria"
	"github.com/mind-engage/evaluator-portal/internal/db"
	"github.com/mind-engage/evaluator-portal/internal/draft"
	"github.com/mind-engage/evaluator-portal/internal/logging"
	"github.com/mind-engage/evaluator-portal/internal/review"
)

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

// fakeAdmin is a stand-in for the upstream Admin API.
type fakeAdmin struct {
	mu          sync.Mutex
	failScores  bool
	criteria    string // empty → 500
	scorePosts  []map[string]any
	authHeaders []string
}

func (f *fakeAdmin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/admin/login":
		_, _ = io.WriteString(w, `{"data":{"token":"`+evaluatorToken+`"}}`)
	case r.URL.Path == "/api/evaluator/editions":
		_, _ = io.WriteString(w, `[{"id":"ed1","name":"2025"}]`)
	case r.URL.Path == "/api/evaluator/rounds":
		_, _ = io.WriteString(w, `{"results":[{"id":"r1","name":"Screening"}]}`)
	case r.URL.Path == "/api/evaluator/applications":
		_, _ = io.WriteString(w, `{"results":[{"application_id":"a1","companyname":"Acme","cityc":"Pune"}]}`)
	case r.URL.Path == "/api/applications/a1":
		_, _ = io.WriteString(w, `{"result":{"id":"a1","companyname":"Acme"}}`)
	case r.URL.Path == "/api/evaluator/applications/a1/criteria":
		if f.criteria == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, f.criteria)
	case r.Method == http.MethodPost && r.URL.Path == "/api/evaluator/applications/a1/scores":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.scorePosts = append(f.scorePosts, body)
		if f.failScores {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAdmin) posts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scorePosts)
}

// evaluatorToken is what the Admin API hands out at login.
var evaluatorToken = mustToken(jwt.MapClaims{"sub": "u1", "role": "evaluator"}, "upstream-key")

const sessionSecret = "portal-secret"

var sessions = authmw.NewIssuer(sessionSecret, time.Hour)

func mustToken(c jwt.MapClaims, key string) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(key))
	if err != nil {
		panic(err)
	}
	return tok
}

// sessionFor returns a portal session cookie value for owner.
func sessionFor(owner, role string) string {
	tok, err := sessions.Issue(authmw.Session{Token: evaluatorToken, Owner: owner, Role: role}, time.Now())
	if err != nil {
		panic(err)
	}
	return tok
}

type portal struct {
	t     *testing.T
	srv   *httptest.Server
	admin *fakeAdmin
}

func newPortal(t *testing.T, admin *fakeAdmin) *portal {
	return newPortalWith(t, admin, func(*Deps) {})
}

func newPortalWith(t *testing.T, admin *fakeAdmin, tweak func(*Deps)) *portal {
	t.Helper()
	upstream := httptest.NewServer(admin)
	t.Cleanup(upstream.Close)

	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })

	client := adminapi.New(upstream.URL+"/api", 5*time.Second)
	drafts := draft.NewStore(draft.NewSQLKV(dbh, 0))
	events := activity.NewLog(dbh)

	deps := Deps{
		Upstream:    client,
		Auth:        client,
		Sessions:    sessions,
		Criteria:    criteria.NewResolver(client, criteria.Options{UseRemote: true}),
		Drafts:      drafts,
		Reviews:     review.NewController(drafts, client, events),
		Activity:    events,
		CORSOrigins: []string{"http://localhost:3000"},
		Ready:       dbh.PingContext,
	}
	tweak(&deps)
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return &portal{t: t, srv: srv, admin: admin}
}

func (p *portal) do(method, path, token, body string) (int, map[string]any) {
	p.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, p.srv.URL+path, rdr)
	require.NoError(p.t, err)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: authmw.CookieName, Value: token})
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(p.t, err)
	defer resp.Body.Close()
	var out map[string]any
	b, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(b, &out)
	return resp.StatusCode, out
}

func TestProbes(t *testing.T) {
	p := newPortal(t, &fakeAdmin{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(p.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAPI_RequiresSession(t *testing.T) {
	p := newPortal(t, &fakeAdmin{})
	code, body := p.do(http.MethodGet, "/api/applications?round_id=r1", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestAPI_LoginAndBrowse(t *testing.T) {
	admin := &fakeAdmin{}
	p := newPortal(t, admin)

	resp, err := http.Post(p.srv.URL+"/api/auth/login", "application/json", strings.NewReader(`{"email":"e@x.in","password":"pw"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var token string
	for _, c := range resp.Cookies() {
		if c.Name == authmw.CookieName {
			token = c.Value
		}
	}
	require.NotEmpty(t, token)
	assert.NotEqual(t, evaluatorToken, token)

	code, body := p.do(http.MethodGet, "/api/applications?round_id=r1", token, "")
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	row := items[0].(map[string]any)
	assert.Equal(t, "a1", row["id"])
	assert.Equal(t, "Acme", row["name"])
	assert.Equal(t, "Pune", row["location"])
	assert.Equal(t, "—", row["stage"])

	admin.mu.Lock()
	last := admin.authHeaders[len(admin.authHeaders)-1]
	admin.mu.Unlock()
	assert.Equal(t, "Bearer "+evaluatorToken, last)

	code, body = p.do(http.MethodGet, "/api/editions", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)

	code, body = p.do(http.MethodGet, "/api/rounds?edition_id=ed1", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)

	code, body = p.do(http.MethodGet, "/api/applications/a1", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Acme", body["name"])
	assert.Equal(t, true, body["found"])

	code, body = p.do(http.MethodGet, "/api/applications/zzz", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "—", body["name"])
	assert.Equal(t, false, body["found"])
}

func TestAPI_CriteriaFallback(t *testing.T) {
	p := newPortal(t, &fakeAdmin{})
	code, body := p.do(http.MethodGet, "/api/applications/a1/criteria", sessionFor("u1", "evaluator"), "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["groups"], 4)
	assert.Equal(t, 95.0, body["total_max"])
}

func TestAPI_ScoringFlow(t *testing.T) {
	admin := &fakeAdmin{criteria: `[
		{"id":"a","label":"A","max":10},
		{"id":"b","label":"B","max":5,"comment_required":true}
	]`}
	p := newPortal(t, admin)
	tok := sessionFor("u1", "evaluator")

	code, body := p.do(http.MethodPatch, "/api/applications/a1/draft", tok, `{"round_id":"r1","scores":{"a":"12"}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"a": 10.0}, body["scores"])
	totals := body["totals"].(map[string]any)
	assert.Equal(t, 10.0, totals["total"])
	assert.Equal(t, 15.0, totals["total_max"])
	assert.Equal(t, false, totals["complete"])

	// incomplete: no upstream write
	code, body = p.do(http.MethodPost, "/api/applications/a1/scores/submit", tok, `{"round_id":"r1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, []any{"b"}, body["missing"])
	assert.Equal(t, 0, admin.posts())

	code, _ = p.do(http.MethodPatch, "/api/applications/a1/draft", tok, `{"round_id":"r1","scores":{"a":7,"b":"5"},"comments":{"b":"ok"}}`)
	require.Equal(t, http.StatusOK, code)

	code, body = p.do(http.MethodPost, "/api/applications/a1/scores/draft", tok, `{"round_id":"r1","edition_id":"ed1"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["remote"])
	assert.Equal(t, 1, admin.posts())

	admin.mu.Lock()
	admin.failScores = true
	admin.mu.Unlock()
	code, body = p.do(http.MethodPost, "/api/applications/a1/scores/submit", tok, `{"round_id":"r1","edition_id":"ed1"}`)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "upstream_rejected", body["error"])
	assert.Equal(t, 2, admin.posts())

	// draft survives the failed submit
	code, body = p.do(http.MethodGet, "/api/applications/a1/score-sheet?round_id=r1", tok, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"a": 7.0, "b": 5.0}, body["scores"])

	admin.mu.Lock()
	admin.failScores = false
	admin.mu.Unlock()
	code, body = p.do(http.MethodPost, "/api/applications/a1/scores/submit", tok, `{"round_id":"r1","edition_id":"ed1"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 12.0, body["total"])
	require.Equal(t, 3, admin.posts())

	admin.mu.Lock()
	sent := admin.scorePosts[2]
	admin.mu.Unlock()
	assert.Equal(t, "SUBMITTED", sent["status"])
	assert.Equal(t, "a1", sent["application_id"])
	assert.Equal(t, "ed1", sent["edition_id"])
	assert.Len(t, sent["scores"], 2)

	code, body = p.do(http.MethodGet, "/api/applications/a1/score-sheet?round_id=r1", tok, "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["scores"])

	code, body = p.do(http.MethodGet, "/api/reviews/history", tok, "")
	require.Equal(t, http.StatusOK, code)
	events := body["items"].([]any)
	require.Len(t, events, 2)
	types := []any{events[0].(map[string]any)["type"], events[1].(map[string]any)["type"]}
	assert.ElementsMatch(t, []any{"DraftSaved", "ScoresSubmitted"}, types)
}

func TestAPI_ManagerCannotScore(t *testing.T) {
	admin := &fakeAdmin{}
	p := newPortal(t, admin)
	mgr := sessionFor("m1", "manager")

	code, _ := p.do(http.MethodGet, "/api/applications?round_id=r1", mgr, "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = p.do(http.MethodPatch, "/api/applications/a1/draft", mgr, `{"scores":{"alignment":3}}`)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = p.do(http.MethodPost, "/api/applications/a1/scores/submit", mgr, `{}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, 0, admin.posts())
}

func TestAPI_DraftsAreScopedPerEvaluator(t *testing.T) {
	p := newPortal(t, &fakeAdmin{})
	mine := sessionFor("u1", "evaluator")
	other := sessionFor("u2", "evaluator")

	code, _ := p.do(http.MethodPatch, "/api/applications/a1/draft", mine, `{"scores":{"alignment":4}}`)
	require.Equal(t, http.StatusOK, code)

	_, body := p.do(http.MethodGet, "/api/applications/a1/score-sheet", other, "")
	assert.Empty(t, body["scores"])
	_, body = p.do(http.MethodGet, "/api/applications/a1/score-sheet", mine, "")
	assert.Equal(t, map[string]any{"alignment": 4.0}, body["scores"])
}

func TestAPI_BadJSON(t *testing.T) {
	p := newPortal(t, &fakeAdmin{})
	code, body := p.do(http.MethodPatch, "/api/applications/a1/draft", sessionFor("u1", "evaluator"), `{"scores":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_json", body["error"])
}

func TestAPI_ForgedSessionCannotReachAnotherEvaluatorsDrafts(t *testing.T) {
	p := newPortal(t, &fakeAdmin{})
	mine := sessionFor("u1", "evaluator")
	code, _ := p.do(http.MethodPatch, "/api/applications/a1/draft", mine, `{"scores":{"alignment":7},"comments":{"alignment":"private note"}}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = p.do(http.MethodPost, "/api/applications/a1/scores/draft", mine, `{}`)
	require.Equal(t, http.StatusOK, code)

	forged := mustToken(jwt.MapClaims{
		"iss": "evaluator-portal", "sub": "u1", "role": "admin", "upt": "x",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, "attacker")
	for _, tok := range []string{forged, evaluatorToken} {
		code, body := p.do(http.MethodGet, "/api/applications/a1/score-sheet", tok, "")
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Nil(t, body["scores"])
		code, _ = p.do(http.MethodGet, "/api/reviews/history", tok, "")
		assert.Equal(t, http.StatusUnauthorized, code)
		code, _ = p.do(http.MethodPatch, "/api/applications/a1/draft", tok, `{"scores":{"alignment":1}}`)
		assert.Equal(t, http.StatusUnauthorized, code)
	}

	_, body := p.do(http.MethodGet, "/api/applications/a1/score-sheet", mine, "")
	assert.Equal(t, map[string]any{"alignment": 7.0}, body["scores"])
}

func TestAPI_LoginLimitIgnoresForgedClientIP(t *testing.T) {
	admin := &fakeAdmin{}
	p := newPortalWith(t, admin, func(d *Deps) { d.LoginLimit = authmw.NewRateLimiter(2) })

	var codes []int
	for i := 0; i < 6; i++ {
		req, err := http.NewRequest(http.MethodPost, p.srv.URL+"/api/auth/login", strings.NewReader(`{"email":"e@x.in","password":"pw"}`))
		require.NoError(t, err)
		req.Header.Set("X-Real-IP", fmt.Sprintf("1.2.3.%d", i))
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("1.2.3.%d", i))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429, 429, 429, 429}, codes)
}

func TestAPI_ConcurrentDraftEditsAreAllKept(t *testing.T) {
	p := newPortal(t, &fakeAdmin{})
	tok := sessionFor("u1", "evaluator")
	ids := []string{"alignment", "clarity", "planning", "completeness", "innovation"}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			code, _ := p.do(http.MethodPatch, "/api/applications/a1/draft", tok, `{"scores":{"`+id+`":2}}`)
			assert.Equal(t, http.StatusOK, code)
		}(id)
	}
	wg.Wait()

	_, body := p.do(http.MethodGet, "/api/applications/a1/score-sheet", tok, "")
	assert.Len(t, body["scores"], len(ids))
}
