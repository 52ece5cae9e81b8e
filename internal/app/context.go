// Package app wires the workspace together: database, migrations,
// configuration and the seed accounts every fresh deployment starts with.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"trackfit/internal/config"
	"trackfit/internal/db"
	"trackfit/internal/domain"
	"trackfit/internal/engine"
	"trackfit/internal/migrate"
	"trackfit/internal/repo"
)

// seedUsers are the accounts provisioned on first run. Passwords are
// the published bootstrap credentials; operators rotate them after setup.
var seedUsers = []struct {
	EmployerID string
	Username   string
	Password   string
	Role       domain.Role
}{
	{"1001", "admin1", "Admin@123", domain.RoleAdmin},
	{"1002", "je01", "JEpass01", domain.RoleJE},
	{"1003", "tech01", "TECHpass01", domain.RoleTechnical},
	{"1004", "pwi01", "PWIpass01", domain.RolePWI},
	{"1005", "sre01", "SREpass01", domain.RoleSRE},
	{"1006", "dre01", "DREpass01", domain.RoleDRE},
	{"1007", "zonal01", "ZONpass01", domain.RoleZonal},
}

// Context is everything a command or server needs to operate on a
// workspace.
type Context struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open prepares the workspace: creates the data directory, opens the
// database, applies migrations, loads config and seeds the bootstrap
// accounts if they are missing.
func Open(ctx context.Context, workspace string) (*Context, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := SeedUsers(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed users: %w", err)
	}
	return &Context{
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg),
	}, nil
}

// SeedUsers inserts the bootstrap accounts; existing rows are untouched.
func SeedUsers(ctx context.Context, conn *sql.DB) error {
	r := repo.Repo{DB: conn}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, su := range seedUsers {
		err := r.EnsureUser(ctx, tx, domain.User{
			EmployerID:   su.EmployerID,
			Username:     su.Username,
			PasswordHash: repo.HashPassword(su.Password),
			Role:         su.Role,
		})
		if err != nil {
			return fmt.Errorf("seed %s: %w", su.Username, err)
		}
	}
	return tx.Commit()
}

// Close releases the workspace resources.
func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
