package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/evaluator-portal/internal/adminapi"
	"github.com/mind-engage/evaluator-portal/internal/logging"
	"github.com/mind-engage/evaluator-portal/internal/rbac"
)

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("upstream-secret"))
	require.NoError(t, err)
	return tok
}

const testSecret = "portal-test-secret"

func testIssuer() *Issuer { return NewIssuer(testSecret, time.Hour) }

func TestUpstreamSession_JWT(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok := signed(t, jwt.MapClaims{"sub": "u-42", "role": "Manager", "exp": now.Add(time.Hour).Unix()})

	s, err := UpstreamSession(tok, RoleEvaluator, now)
	require.NoError(t, err)
	assert.Equal(t, "u-42", s.Owner)
	assert.Equal(t, RoleManager, s.Role)
	assert.Equal(t, now.Add(time.Hour).Unix(), s.ExpiresAt)
	assert.Equal(t, tok, s.Token)
}

func TestUpstreamSession_Expired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tok := signed(t, jwt.MapClaims{"sub": "u-42", "exp": now.Add(-time.Minute).Unix()})
	_, err := UpstreamSession(tok, RoleEvaluator, now)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestUpstreamSession_Opaque(t *testing.T) {
	s, err := UpstreamSession("opaque-token-123", RoleEvaluator, time.Now())
	require.NoError(t, err)
	assert.Equal(t, RoleEvaluator, s.Role)
	assert.True(t, strings.HasPrefix(s.Owner, "t-"))

	again, _ := UpstreamSession("opaque-token-123", RoleEvaluator, time.Now())
	other, _ := UpstreamSession("opaque-token-456", RoleEvaluator, time.Now())
	assert.Equal(t, s.Owner, again.Owner)
	assert.NotEqual(t, s.Owner, other.Owner)

	_, err = UpstreamSession("   ", RoleEvaluator, time.Now())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestUpstreamSession_UnknownRoleUsesDefault(t *testing.T) {
	tok := signed(t, jwt.MapClaims{"sub": "u1", "role": "startup"})
	s, err := UpstreamSession(tok, RoleEvaluator, time.Now())
	require.NoError(t, err)
	assert.Equal(t, RoleEvaluator, s.Role)
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := testIssuer()
	now := time.Unix(1_700_000_000, 0)
	tok, err := iss.Issue(Session{Token: "up-tok", Owner: "u1", Role: RoleManager}, now)
	require.NoError(t, err)

	s, err := iss.Verify(tok, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, Session{Token: "up-tok", Owner: "u1", Role: RoleManager, ExpiresAt: now.Add(time.Hour).Unix()}, s)

	_, err = iss.Verify(tok, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestIssuer_UpstreamExpiryShortensSession(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	upExp := now.Add(10 * time.Minute).Unix()
	tok, err := testIssuer().Issue(Session{Token: "up", Owner: "u1", Role: RoleEvaluator, ExpiresAt: upExp}, now)
	require.NoError(t, err)
	s, err := testIssuer().Verify(tok, now)
	require.NoError(t, err)
	assert.Equal(t, upExp, s.ExpiresAt)
}

func TestIssuer_RejectsForgedTokens(t *testing.T) {
	iss := testIssuer()
	now := time.Now()
	claims := jwt.MapClaims{"iss": sessionIssuer, "sub": "u1", "role": "admin", "upt": "x", "exp": now.Add(time.Hour).Unix()}

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("attacker"))
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	noExp := jwt.MapClaims{"iss": sessionIssuer, "sub": "u1", "upt": "x"}
	unbounded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, noExp).SignedString([]byte(testSecret))
	require.NoError(t, err)
	otherIss := jwt.MapClaims{"iss": "admin-api", "sub": "u1", "upt": "x", "exp": now.Add(time.Hour).Unix()}
	foreignIss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, otherIss).SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"foreign key":    foreign,
		"alg none":       none,
		"no expiry":      unbounded,
		"foreign issuer": foreignIss,
		"garbage":        "opaque",
	} {
		_, err := iss.Verify(tok, now)
		assert.ErrorIs(t, err, ErrInvalid, name)
	}
}

func TestSessionMiddleware(t *testing.T) {
	iss := testIssuer()
	var seen struct{ owner, role, token, sub string }
	h := SessionMiddleware(iss)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := SessionFromContext(r.Context())
		seen.owner = s.Owner
		seen.role = rbac.RoleFromContext(r.Context())
		seen.token = adminapi.TokenFromContext(r.Context())
		seen.sub = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/applications", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := iss.Issue(Session{Token: "up-7", Owner: "u-7", Role: RoleAdmin}, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/applications", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: tok})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u-7", seen.owner)
	assert.Equal(t, "u-7", seen.sub)
	assert.Equal(t, RoleAdmin, seen.role)
	assert.Equal(t, "up-7", seen.token)

	req = httptest.NewRequest(http.MethodGet, "/api/applications", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSessionMiddleware_RejectsUnsignedSessions(t *testing.T) {
	h := SessionMiddleware(testIssuer())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	foreign, err := NewIssuer("attacker", time.Hour).Issue(Session{Token: "x", Owner: "u1", Role: RoleAdmin}, time.Now())
	require.NoError(t, err)
	upstreamJWT := signed(t, jwt.MapClaims{"sub": "u1", "role": "admin"})

	for _, tok := range []string{foreign, upstreamJWT, "opaque"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: tok})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid session")
	}
}

func TestSessionMiddleware_ExpiredCookie(t *testing.T) {
	iss := testIssuer()
	h := SessionMiddleware(iss)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	tok, err := iss.Issue(Session{Token: "x", Owner: "u1", Role: RoleEvaluator}, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: tok})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "session expired")
}

type fakeAuth struct {
	token string
	err   error
}

func (f fakeAuth) Login(context.Context, string, string) (string, error) { return f.token, f.err }

func postLogin(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body)))
	return rec
}

func TestLoginHandler_SetsSignedCookie(t *testing.T) {
	iss := testIssuer()
	up := signed(t, jwt.MapClaims{"sub": "u1"})
	h := LoginHandler(fakeAuth{token: up}, iss, CookieOptions{Secure: true}, RoleEvaluator)

	rec := postLogin(h, `{"email":"e@x.in","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"role":"evaluator"}`, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.NotEqual(t, up, c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 60*60, c.MaxAge)

	s, err := iss.Verify(c.Value, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "u1", s.Owner)
	assert.Equal(t, up, s.Token)
}

func TestLoginHandler_BodyTooLarge(t *testing.T) {
	h := LoginHandler(fakeAuth{token: "x"}, testIssuer(), CookieOptions{}, RoleEvaluator)
	body := `{"email":"a","password":"` + strings.Repeat("p", maxLoginBody) + `"}`
	rec := postLogin(h, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginHandler_Failures(t *testing.T) {
	cases := []struct {
		name   string
		auth   fakeAuth
		body   string
		status int
		msg    string
	}{
		{"bad json", fakeAuth{}, `{`, http.StatusBadRequest, "bad json"},
		{"missing fields", fakeAuth{}, `{"email":""}`, http.StatusBadRequest, "email and password required"},
		{"upstream 401", fakeAuth{err: &adminapi.StatusError{StatusCode: 401, Body: []byte(`{"message":"Wrong password"}`)}}, `{"email":"a","password":"b"}`, http.StatusUnauthorized, "Wrong password"},
		{"no token", fakeAuth{err: adminapi.ErrNoToken}, `{"email":"a","password":"b"}`, http.StatusUnauthorized, "Invalid credentials"},
		{"upstream down", fakeAuth{err: errors.New("dial tcp: refused")}, `{"email":"a","password":"b"}`, http.StatusBadGateway, "login service unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postLogin(LoginHandler(tc.auth, testIssuer(), CookieOptions{}, RoleEvaluator), tc.body)
			assert.Equal(t, tc.status, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tc.msg, body["error"])
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestLogoutHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LogoutHandler(CookieOptions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestSessionHandler(t *testing.T) {
	iss := testIssuer()
	h := SessionMiddleware(iss)(SessionHandler())
	tok, err := iss.Issue(Session{Token: "upstream-secret", Owner: "u9", Role: RoleManager}, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u9", body["owner"])
	assert.Equal(t, "manager", body["role"])
	assert.Equal(t, []any{rbac.PermApplicationView, rbac.PermHistoryView}, body["permissions"])
	assert.NotContains(t, rec.Body.String(), "upstream-secret")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1:3333"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.2:1111"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := NewRateLimiter(0).Handler(next)
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_IgnoresForwardingHeaders(t *testing.T) {
	h := NewRateLimiter(2).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	var codes []int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("X-Real-IP", fmt.Sprintf("1.2.3.%d", i))
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("5.6.7.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429, 429, 429, 429}, codes)
}
