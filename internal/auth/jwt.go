package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"
)

// Principal represents the authenticated caller from JWT.
type Principal struct {
	UserID int64
	Name   string
	Kind   string // "dispatcher" | "inspector" | "client" | "admin"
}

type principalKey struct{}

type claims struct {
	UID  int64  `json:"uid"`
	Name string `json:"name"`
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from context (if any).
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// ParseFromMD extracts and validates a Bearer JWT from gRPC metadata and returns a Principal.
func ParseFromMD(ctx context.Context, secret string) (*Principal, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, errors.New("missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return nil, errors.New("missing authorization")
	}
	tokenStr, err := bearer(vals[0])
	if err != nil {
		return nil, err
	}
	return ParseToken(tokenStr, secret)
}

// FromRequest authenticates an HTTP request. Browsers cannot set headers on a
// websocket handshake, so a `token` query parameter is accepted as well.
func FromRequest(r *http.Request, secret string) (*Principal, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		tokenStr, err := bearer(h)
		if err != nil {
			return nil, err
		}
		return ParseToken(tokenStr, secret)
	}
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" {
		return ParseToken(q, secret)
	}
	return nil, errors.New("missing authorization")
}

func bearer(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// ParseToken validates an HS256 token and extracts its claims.
func ParseToken(tokenStr string, secret string) (*Principal, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return nil, err
	}
	c, _ := tok.Claims.(*claims)
	if c == nil || c.UID <= 0 || c.Kind == "" {
		return nil, errors.New("invalid claims")
	}
	return &Principal{UserID: c.UID, Name: c.Name, Kind: strings.ToLower(c.Kind)}, nil
}

// IssueToken signs a token for development and tests. ttl <= 0 means no expiry.
func IssueToken(secret string, uid int64, name, kind string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	c := claims{UID: uid, Name: name, Kind: strings.ToLower(kind)}
	now := time.Now()
	c.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
