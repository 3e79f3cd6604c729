package auth

import (
	"context"
	"net/http"
	"strings"
)

// StaticAuthenticator returns a fixed identity. Local development only.
// Requests may override the role and faculty through the identity
// headers so one process can exercise every workflow role.
type StaticAuthenticator struct {
	Identity Identity
}

func (a StaticAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	identity := a.Identity
	if subject := strings.TrimSpace(r.Header.Get(HeaderSubject)); subject != "" {
		identity.Subject = subject
	}
	if role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole))); role != "" {
		identity.Role = role
	}
	if faculty := strings.TrimSpace(r.Header.Get(HeaderFaculty)); faculty != "" {
		identity.FacultyID = faculty
	}
	return identity, nil
}
