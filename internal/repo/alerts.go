package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"trackfit/internal/domain"
)

const alertColumns = `id,unit_id,type,created_at,assigned_to_role,COALESCE(assigned_to,'') AS assigned_to,COALESCE(escalated_to,'') AS escalated_to,status,COALESCE(notes,'') AS notes`

func scanAlert(row interface{ Scan(...any) error }) (domain.Alert, error) {
	var a domain.Alert
	err := row.Scan(&a.ID, &a.UnitID, &a.Type, &a.CreatedAt, &a.AssignedToRole, &a.AssignedTo, &a.EscalatedTo, &a.Status, &a.Notes)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// InsertAlert writes a new alert. The partial unique index on
// (unit_id, type) for Active rows backs the dedup invariant; a violation
// surfaces as ErrDuplicateID so callers can treat it as suppression.
func (r Repo) InsertAlert(ctx context.Context, tx *sql.Tx, a domain.Alert) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO alerts(unit_id,type,created_at,assigned_to_role,assigned_to,escalated_to,status,notes)
VALUES (?,?,?,?,?,?,?,?)`,
		a.UnitID, a.Type, a.CreatedAt, a.AssignedToRole, nullable(a.AssignedTo), nullable(a.EscalatedTo), a.Status, nullable(a.Notes))
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("active %s alert for unit %s: %w", a.Type, a.UnitID, ErrDuplicateID)
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetAlert(ctx context.Context, id int64) (domain.Alert, error) {
	return scanAlert(r.DB.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id=?`, id))
}

// HasActiveAlert reports whether an Active alert of the given type exists
// for the unit. Must run inside the same transaction as the insert it
// guards.
func (r Repo) HasActiveAlert(ctx context.Context, tx *sql.Tx, unitID string, typ domain.AlertType) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM alerts WHERE unit_id=? AND type=? AND status=? LIMIT 1`,
		unitID, typ, domain.AlertActive).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// MarkAlertRead transitions Active -> Read. Returns false when the alert
// is absent or already Read.
func (r Repo) MarkAlertRead(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE alerts SET status=? WHERE id=? AND status=?`,
		domain.AlertRead, id, domain.AlertActive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type AlertFilters struct {
	UnitID string
	Type   domain.AlertType
	Status domain.AlertStatus
	Limit  int
}

func (r Repo) ListAlerts(ctx context.Context, f AlertFilters) ([]domain.Alert, error) {
	var clauses []string
	var args []any
	if f.UnitID != "" {
		clauses = append(clauses, "unit_id=?")
		args = append(args, f.UnitID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + alertColumns + ` FROM alerts ` + where + ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// InboxFor returns every alert addressed to the identity's role or to the
// identity directly, in creation order.
func (r Repo) InboxFor(ctx context.Context, id domain.Identity) ([]domain.Alert, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts
WHERE assigned_to_role=? OR assigned_to=? ORDER BY id ASC`, id.Role, id.Username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
