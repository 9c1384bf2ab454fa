package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingBearer   = errors.New("missing bearer token")
	ErrInvalidToken    = errors.New("invalid token")
	ErrMissingIdentity = errors.New("missing identity")
)

// DefaultTrustedHeader carries the subject set by an upstream proxy that has
// already verified the caller.
const DefaultTrustedHeader = "x-afu9-sub"

type Claims struct {
	Subject string
	Issuer  string
	Token   string
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// HeaderAuthenticator trusts the subject an upstream proxy forwards in a
// header. Only deploy it behind a proxy that strips the header from clients.
type HeaderAuthenticator struct {
	Header string
}

func (a HeaderAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	name := a.Header
	if name == "" {
		name = DefaultTrustedHeader
	}
	sub := strings.TrimSpace(r.Header.Get(name))
	if sub == "" {
		return Claims{}, ErrMissingIdentity
	}
	return Claims{Subject: sub, Issuer: "header"}, nil
}

// JWTAuthenticator verifies HS256 bearer tokens. The subject comes from the
// sub claim.
type JWTAuthenticator struct {
	Secret []byte
	Issuer string

	// Now overrides the clock used for exp/nbf checks.
	Now func() time.Time
}

func NewJWTAuthenticator(secret, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{Secret: []byte(secret), Issuer: issuer}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}
	return a.AuthenticateBearer(bearer)
}

func (a *JWTAuthenticator) AuthenticateBearer(bearer string) (Claims, error) {
	if len(a.Secret) == 0 {
		return Claims{}, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	if a.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(a.Now))
	}

	var rc jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(bearer, &rc, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(rc.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: sub claim is empty", ErrInvalidToken)
	}
	return Claims{Subject: rc.Subject, Issuer: rc.Issuer, Token: bearer}, nil
}

// MultiAuthenticator accepts the dev token when one is configured, then tries
// each authenticator in order. The first success wins.
type MultiAuthenticator struct {
	DevToken       string
	Authenticators []Authenticator
}

func (a *MultiAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	if a.DevToken != "" {
		if bearer, err := extractBearer(r); err == nil && bearer == a.DevToken {
			return Claims{Subject: "dev", Issuer: "lawgate-dev", Token: bearer}, nil
		}
	}

	var firstErr error
	for _, au := range a.Authenticators {
		claims, err := au.Authenticate(r)
		if err == nil {
			return claims, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = ErrMissingIdentity
	}
	return Claims{}, firstErr
}

// Options selects authenticators by mode: "header", "jwt" or "header,jwt".
type Options struct {
	Mode          string
	JWTSecret     string
	JWTIssuer     string
	TrustedHeader string
	DevToken      string
}

func New(opts Options) (*MultiAuthenticator, error) {
	m := &MultiAuthenticator{DevToken: opts.DevToken}
	for _, mode := range strings.Split(opts.Mode, ",") {
		switch strings.TrimSpace(mode) {
		case "":
		case "header":
			m.Authenticators = append(m.Authenticators, HeaderAuthenticator{Header: opts.TrustedHeader})
		case "jwt":
			if opts.JWTSecret == "" {
				return nil, errors.New("auth: jwt mode requires a secret")
			}
			m.Authenticators = append(m.Authenticators, NewJWTAuthenticator(opts.JWTSecret, opts.JWTIssuer))
		default:
			return nil, fmt.Errorf("auth: unknown mode %q", mode)
		}
	}
	if len(m.Authenticators) == 0 && m.DevToken == "" {
		return nil, errors.New("auth: no authenticator configured")
	}
	return m, nil
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
