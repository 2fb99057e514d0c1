package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleEvaluator = "evaluator"
	RoleManager   = "manager"
	RoleAdmin     = "admin"
)

const sessionIssuer = "evaluator-portal"

var (
	ErrNoToken = errors.New("auth: no session token")
	ErrExpired = errors.New("auth: session expired")
	ErrInvalid = errors.New("auth: invalid session token")
)

// Session is the caller behind a request. Token is the upstream Admin API
// token forwarded on every proxied call.
type Session struct {
	Token string `json:"-"`
	Owner string `json:"owner"`
	Role  string `json:"role"`
	// ExpiresAt is unix seconds; zero when there is no expiry.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// UpstreamSession derives owner, role and expiry from a token the Admin API
// has just issued at login. Only call it on tokens obtained directly from the
// upstream; requests carry portal-signed sessions instead (see Issuer).
// Opaque tokens get defaultRole and an owner derived from the token itself.
func UpstreamSession(token, defaultRole string, now time.Time) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrNoToken
	}
	s := Session{Token: token, Role: defaultRole}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			s.Owner = sub
		}
		if role, ok := claims["role"].(string); ok {
			s.Role = normalizeRole(role, defaultRole)
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			s.ExpiresAt = exp.Unix()
			if !now.Before(exp.Time) {
				return Session{}, ErrExpired
			}
		}
	}
	if s.Owner == "" {
		s.Owner = tokenOwner(token)
	}
	return s, nil
}

type sessionClaims struct {
	Role     string `json:"role"`
	Upstream string `json:"upt"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies portal session tokens (HS256).
type Issuer struct {
	key []byte
	ttl time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Issuer{key: []byte(secret), ttl: ttl}
}

// TTL is the longest a session lives; upstream expiry can shorten it.
func (i *Issuer) TTL() time.Duration { return i.ttl }

func (i *Issuer) Issue(s Session, now time.Time) (string, error) {
	exp := now.Add(i.ttl)
	if s.ExpiresAt > 0 && time.Unix(s.ExpiresAt, 0).Before(exp) {
		exp = time.Unix(s.ExpiresAt, 0)
	}
	claims := sessionClaims{
		Role:     s.Role,
		Upstream: s.Token,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   s.Owner,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Verify checks the signature, issuer and expiry of a portal session token.
func (i *Issuer) Verify(token string, now time.Time) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrNoToken
	}
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Session{}, ErrExpired
	case err != nil || !parsed.Valid:
		return Session{}, ErrInvalid
	case claims.Subject == "" || claims.Upstream == "":
		return Session{}, ErrInvalid
	}
	return Session{
		Token:     claims.Upstream,
		Owner:     claims.Subject,
		Role:      normalizeRole(claims.Role, ""),
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}

func normalizeRole(role, def string) string {
	switch r := strings.ToLower(strings.TrimSpace(role)); r {
	case RoleEvaluator, RoleManager, RoleAdmin:
		return r
	case "super_admin", "superadmin":
		return RoleAdmin
	case "program_manager", "pm":
		return RoleManager
	}
	return def
}

func tokenOwner(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "t-" + hex.EncodeToString(sum[:8])
}
