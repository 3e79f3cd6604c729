package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// GatewayHeadersAuthenticator trusts identity headers stamped by the
// gateway, verified with an HMAC over the request's canonical fields.
type GatewayHeadersAuthenticator struct {
	Secret  string
	MaxSkew time.Duration
}

func NewGatewayHeadersAuthenticator(secret string) (*GatewayHeadersAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("PROVOST_INTERNAL_AUTH_SECRET is required")
	}
	return &GatewayHeadersAuthenticator{
		Secret:  secret,
		MaxSkew: 5 * time.Minute,
	}, nil
}

func (a *GatewayHeadersAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	subject := strings.TrimSpace(r.Header.Get(HeaderSubject))
	if subject == "" {
		return Identity{}, ErrUnauthenticated
	}

	role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole)))
	faculty := strings.TrimSpace(r.Header.Get(HeaderFaculty))

	ts := strings.TrimSpace(r.Header.Get(HeaderInternalAuthTimestamp))
	sig := strings.TrimSpace(r.Header.Get(HeaderInternalAuthSignature))
	if ts == "" || sig == "" {
		return Identity{}, ErrUnauthenticated
	}

	if err := VerifyInternalAuthTimestamp(ts, time.Now().UTC(), a.MaxSkew); err != nil {
		return Identity{}, err
	}
	if err := VerifyInternalAuthSignature(
		a.Secret,
		ts,
		r.Method,
		r.URL.Path,
		r.Header.Get("X-Request-Id"),
		subject,
		role,
		faculty,
		sig,
	); err != nil {
		return Identity{}, err
	}

	return Identity{
		Subject:   subject,
		Role:      role,
		FacultyID: faculty,
	}, nil
}
