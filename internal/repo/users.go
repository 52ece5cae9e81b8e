package repo

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"trackfit/internal/domain"
)

// HashPassword returns a stable SHA-256 hex digest for the credential.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	if u.Username == "" {
		return errors.New("username required")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("unknown role %q", u.Role)
	}
	if u.CreatedAt == "" {
		u.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO users(employer_id,username,password_hash,role,created_at) VALUES (?,?,?,?,?)`,
		u.EmployerID, u.Username, u.PasswordHash, u.Role, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Username, ErrDuplicateID)
	}
	return err
}

// EnsureUser inserts the account if absent; existing rows are untouched.
func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	if u.CreatedAt == "" {
		u.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users(employer_id,username,password_hash,role,created_at) VALUES (?,?,?,?,?)`,
		u.EmployerID, u.Username, u.PasswordHash, u.Role, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT employer_id,username,password_hash,role,created_at FROM users WHERE username=?`, username).
		Scan(&u.EmployerID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// VerifyPassword checks a credential against the stored hash in constant
// time. It never reveals whether the account or the password was wrong.
func (r Repo) VerifyPassword(ctx context.Context, username, password string) (domain.User, bool, error) {
	u, err := r.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	given := HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(given), []byte(u.PasswordHash)) != 1 {
		return domain.User{}, false, nil
	}
	return u, true, nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT employer_id,username,password_hash,role,created_at FROM users ORDER BY employer_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.EmployerID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) DeleteUser(ctx context.Context, username string) error {
	if strings.TrimSpace(username) == "" {
		return errors.New("username required")
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE username=?`, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
