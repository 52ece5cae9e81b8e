package auth_test

import (
	"context"
	"errors"
	"testing"

	"trackfit/internal/app"
	"trackfit/internal/db"
	"trackfit/internal/domain"
	"trackfit/internal/engine/auth"
	"trackfit/internal/migrate"
)

func newService(t *testing.T) auth.Service {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := app.SeedUsers(context.Background(), conn); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	return auth.Service{DB: conn}
}

func TestAuthenticate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	id, err := svc.Authenticate(ctx, "je01", "JEpass01")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.Username != "je01" || id.Role != domain.RoleJE || id.EmployerID != "1002" {
		t.Fatalf("identity %+v", id)
	}
	if _, err := svc.Authenticate(ctx, "je01", "wrong"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("bad password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "ghost", "JEpass01"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestResolve(t *testing.T) {
	svc := newService(t)
	id, err := svc.Resolve(context.Background(), "sre01")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.Role != domain.RoleSRE {
		t.Fatalf("identity %+v", id)
	}
}

func TestCapabilityGates(t *testing.T) {
	adminID := domain.Identity{Username: "admin1", Role: domain.RoleAdmin}
	jeID := domain.Identity{Username: "je01", Role: domain.RoleJE}
	sreID := domain.Identity{Username: "sre01", Role: domain.RoleSRE}

	if err := auth.RequireIssue(adminID); err != nil {
		t.Fatalf("admin issue: %v", err)
	}
	if err := auth.RequireIssue(jeID); err == nil {
		t.Fatal("je issue should be forbidden")
	}
	if err := auth.RequireAssign(sreID); err == nil {
		t.Fatal("sre assign should be forbidden")
	}
	if err := auth.RequireComplete(jeID); err != nil {
		t.Fatalf("je complete: %v", err)
	}
	var fe auth.ForbiddenError
	if err := auth.RequireComplete(sreID); !errors.As(err, &fe) || fe.Role != domain.RoleSRE {
		t.Fatalf("sre complete: %v", err)
	}
}
