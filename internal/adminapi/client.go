// Package adminapi is the portal's client for the upstream Admin API.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/mind-engage/evaluator-portal/internal/metrics"
)

const maxBody = 8 << 20

type ctxKey struct{}

// WithToken stores the caller's bearer token for outgoing calls.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKey{}, token)
}

func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

type Client struct {
	base         string
	defaultToken string
	timeout      time.Duration
	transport    http.RoundTripper
}

type Option func(*Client)

// WithTransport replaces the base round tripper (tests, proxies).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// WithDefaultToken sets the token used when the context carries none.
func WithDefaultToken(tok string) Option {
	return func(c *Client) { c.defaultToken = tok }
}

func New(base string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		base:      strings.TrimRight(base, "/"),
		timeout:   timeout,
		transport: http.DefaultTransport,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GET /evaluator/editions
func (c *Client) Editions(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "editions", "/evaluator/editions", nil)
}

// GET /evaluator/rounds?edition_id=
func (c *Client) Rounds(ctx context.Context, editionID string) ([]byte, error) {
	q := url.Values{}
	if editionID != "" {
		q.Set("edition_id", editionID)
	}
	return c.get(ctx, "rounds", "/evaluator/rounds", q)
}

// GET /evaluator/applications?round_id=
func (c *Client) Applications(ctx context.Context, roundID string) ([]byte, error) {
	q := url.Values{}
	if roundID != "" {
		q.Set("round_id", roundID)
	}
	return c.get(ctx, "applications", "/evaluator/applications", q)
}

// Application fetches one record from /applications/{id}, then from the
// evaluator-scoped path if the first is refused or unreachable.
func (c *Client) Application(ctx context.Context, id string) ([]byte, error) {
	b, err := c.get(ctx, "application", "/applications/"+url.PathEscape(id), nil)
	if err == nil {
		return b, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	b, err2 := c.get(ctx, "evaluator_application", "/evaluator/applications/"+url.PathEscape(id), nil)
	if err2 != nil {
		return nil, fmt.Errorf("application %s: %w (primary: %v)", id, err2, err)
	}
	return b, nil
}

// GET /evaluator/applications/{id}/criteria
func (c *Client) ApplicationCriteria(ctx context.Context, id string) ([]byte, error) {
	return c.get(ctx, "criteria", "/evaluator/applications/"+url.PathEscape(id)+"/criteria", nil)
}

// POST /evaluator/applications/{id}/scores
func (c *Client) SaveScores(ctx context.Context, id string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode scores: %w", err)
	}
	return c.do(ctx, "scores", http.MethodPost, c.base+"/evaluator/applications/"+url.PathEscape(id)+"/scores", body, true)
}

// Login exchanges credentials for an upstream token. The request is sent
// without any bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, "login", http.MethodPost, c.base+"/admin/login", body, false)
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(resp) {
		return "", ErrNoToken
	}
	r := gjson.ParseBytes(resp)
	for _, k := range []string{"token", "accessToken", "data.token", "data.accessToken"} {
		if v := r.Get(k); v.Type == gjson.String && v.Str != "" {
			return v.Str, nil
		}
	}
	return "", ErrNoToken
}

func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values) ([]byte, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return c.do(ctx, endpoint, http.MethodGet, u, nil, true)
}

func (c *Client) do(ctx context.Context, endpoint, method, u string, body []byte, authed bool) ([]byte, error) {
	start := time.Now()
	out, err := c.roundTrip(ctx, method, u, body, authed)
	metrics.ObserveUpstream(endpoint, outcome(err), time.Since(start))
	return out, err
}

func (c *Client) roundTrip(ctx context.Context, method, u string, body []byte, authed bool) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("admin api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient(ctx, authed).Do(req)
	if err != nil {
		return nil, fmt.Errorf("admin api: %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("admin api: read %s: %w", u, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Method: method, URL: u, Body: b}
	}
	return b, nil
}

func (c *Client) httpClient(ctx context.Context, authed bool) *http.Client {
	rt := c.transport
	if authed {
		tok := TokenFromContext(ctx)
		if tok == "" {
			tok = c.defaultToken
		}
		if tok != "" {
			rt = &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok}),
				Base:   c.transport,
			}
		}
	}
	return &http.Client{Transport: rt, Timeout: c.timeout}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if se, ok := err.(*StatusError); ok {
		return "http_" + strconv.Itoa(se.StatusCode/100) + "xx"
	}
	return "error"
}
