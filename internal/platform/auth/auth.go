// Package auth authenticates workflow callers. The service sits behind
// a gateway that terminates end-user authentication and forwards the
// caller identity in signed headers; dev mode substitutes a static
// identity for local runs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/provost-labs/provost-go/internal/platform/env"
)

type Mode string

const (
	ModeHeaders  Mode = "headers"
	ModeDev      Mode = "dev"
	ModeDisabled Mode = "disabled"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

type Config struct {
	Mode Mode

	InternalAuthSecret string

	DevSubject string
	DevRole    string
	DevFaculty string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("AUTH_MODE", string(ModeHeaders))))
	var mode Mode
	switch modeRaw {
	case string(ModeHeaders):
		mode = ModeHeaders
	case string(ModeDev):
		mode = ModeDev
	case string(ModeDisabled):
		mode = ModeDisabled
	default:
		return Config{}, fmt.Errorf("AUTH_MODE must be one of: headers, dev, disabled (got %q)", modeRaw)
	}

	cfg := Config{
		Mode:               mode,
		InternalAuthSecret: env.String("PROVOST_INTERNAL_AUTH_SECRET", ""),
		DevSubject:         env.String("DEV_AUTH_SUBJECT", "dev-user"),
		DevRole:            env.String("DEV_AUTH_ROLE", "owner"),
		DevFaculty:         env.String("DEV_AUTH_FACULTY", "fac-dev"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeHeaders:
		if strings.TrimSpace(c.InternalAuthSecret) == "" {
			return errors.New("PROVOST_INTERNAL_AUTH_SECRET is required when AUTH_MODE=headers")
		}
	case ModeDev:
		if strings.TrimSpace(c.DevSubject) == "" {
			return errors.New("DEV_AUTH_SUBJECT is required when AUTH_MODE=dev")
		}
		if strings.TrimSpace(c.DevRole) == "" {
			return errors.New("DEV_AUTH_ROLE is required when AUTH_MODE=dev")
		}
	case ModeDisabled:
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}
	return nil
}

// NewAuthenticator builds the authenticator for the configured mode.
// Disabled mode returns nil: the middleware is not installed at all.
func NewAuthenticator(cfg Config) (Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeHeaders:
		return NewGatewayHeadersAuthenticator(cfg.InternalAuthSecret)
	case ModeDev:
		return StaticAuthenticator{Identity: Identity{
			Subject:   cfg.DevSubject,
			Role:      strings.ToLower(strings.TrimSpace(cfg.DevRole)),
			FacultyID: cfg.DevFaculty,
		}}, nil
	case ModeDisabled:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported auth mode: %q", cfg.Mode)
}
