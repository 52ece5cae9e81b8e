// Package auth is the identity provider consumed by the core: it turns
// credentials into an Identity and gates operations on role capability.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"trackfit/internal/domain"
	"trackfit/internal/repo"
)

// ErrInvalidCredentials covers both unknown accounts and bad passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ForbiddenError indicates the acting role lacks a capability.
type ForbiddenError struct {
	Action string
	Role   domain.Role
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s may not %s", e.Role, e.Action)
}

// Service authenticates workers against the users table.
type Service struct {
	DB *sql.DB
}

// Authenticate resolves credentials to an Identity. The core trusts the
// returned role.
func (s Service) Authenticate(ctx context.Context, username, password string) (domain.Identity, error) {
	r := repo.Repo{DB: s.DB}
	u, ok, err := r.VerifyPassword(ctx, username, password)
	if err != nil {
		return domain.Identity{}, err
	}
	if !ok {
		return domain.Identity{}, ErrInvalidCredentials
	}
	return domain.Identity{EmployerID: u.EmployerID, Username: u.Username, Role: u.Role}, nil
}

// Resolve looks an account up by username without a credential check;
// used for API-key principals whose key already proved possession.
func (s Service) Resolve(ctx context.Context, username string) (domain.Identity, error) {
	r := repo.Repo{DB: s.DB}
	u, err := r.GetUser(ctx, username)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{EmployerID: u.EmployerID, Username: u.Username, Role: u.Role}, nil
}

// RequireIssue gates bulk identifier generation.
func RequireIssue(id domain.Identity) error {
	if !id.Role.CanIssue() {
		return ForbiddenError{Action: "generate units", Role: id.Role}
	}
	return nil
}

// RequireAssign gates task assignment.
func RequireAssign(id domain.Identity) error {
	if !id.Role.CanAssign() {
		return ForbiddenError{Action: "assign tasks", Role: id.Role}
	}
	return nil
}

// RequireComplete gates field work recording.
func RequireComplete(id domain.Identity) error {
	if !id.Role.CanComplete() {
		return ForbiddenError{Action: "complete tasks", Role: id.Role}
	}
	return nil
}
