package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"trackfit/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate identifier")
)

// isUniqueViolation matches the sqlite unique-constraint error text;
// database/sql exposes no typed error for it with this driver.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const unitColumns = `id,material_type,COALESCE(vendor_lot,'') AS vendor_lot,mfg_date,expiry_date,warranty_days,COALESCE(fitted_date,'') AS fitted_date,COALESCE(inspection_date,'') AS inspection_date,status,COALESCE(tag_ref,'') AS tag_ref,created_at`

func scanUnit(row interface{ Scan(...any) error }) (domain.Unit, error) {
	var u domain.Unit
	err := row.Scan(&u.ID, &u.MaterialType, &u.VendorLot, &u.MfgDate, &u.ExpiryDate, &u.WarrantyDays,
		&u.FittedDate, &u.InspectionDate, &u.Status, &u.TagRef, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// InsertUnit registers a freshly issued unit; a colliding id surfaces as
// ErrDuplicateID.
func (r Repo) InsertUnit(ctx context.Context, tx *sql.Tx, u domain.Unit) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO units(id,material_type,vendor_lot,mfg_date,expiry_date,warranty_days,fitted_date,inspection_date,status,tag_ref,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.MaterialType, u.VendorLot, u.MfgDate, u.ExpiryDate, u.WarrantyDays,
		nullable(u.FittedDate), nullable(u.InspectionDate), u.Status, nullable(u.TagRef), u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("unit %s: %w", u.ID, ErrDuplicateID)
	}
	return err
}

func (r Repo) GetUnit(ctx context.Context, id string) (domain.Unit, error) {
	return scanUnit(r.DB.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id=?`, id))
}

func (r Repo) GetUnitTx(ctx context.Context, tx *sql.Tx, id string) (domain.Unit, error) {
	return scanUnit(tx.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id=?`, id))
}

// UnitExists reports whether an id is already registered.
func (r Repo) UnitExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM units WHERE id=? LIMIT 1`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// UnitUpdate carries the mutable fields of a unit; nil leaves a field
// untouched, it is never cleared.
type UnitUpdate struct {
	FittedDate     *string
	InspectionDate *string
	Status         *domain.UnitStatus
}

func (r Repo) UpdateUnit(ctx context.Context, tx *sql.Tx, id string, upd UnitUpdate) error {
	var (
		fields []string
		args   []any
	)
	if upd.FittedDate != nil && *upd.FittedDate != "" {
		fields = append(fields, "fitted_date=?")
		args = append(args, *upd.FittedDate)
	}
	if upd.InspectionDate != nil && *upd.InspectionDate != "" {
		fields = append(fields, "inspection_date=?")
		args = append(args, *upd.InspectionDate)
	}
	if upd.Status != nil && *upd.Status != "" {
		fields = append(fields, "status=?")
		args = append(args, *upd.Status)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE units SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type UnitFilters struct {
	MaterialType domain.MaterialType
	Status       domain.UnitStatus
	Limit        int
}

// ListUnits returns units in insertion order.
func (r Repo) ListUnits(ctx context.Context, f UnitFilters) ([]domain.Unit, error) {
	var clauses []string
	var args []any
	if f.MaterialType != "" {
		clauses = append(clauses, "material_type=?")
		args = append(args, f.MaterialType)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + unitColumns + ` FROM units ` + where + ` ORDER BY rowid ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) CountUnitsByStatus(ctx context.Context) (map[domain.UnitStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM units GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.UnitStatus]int{}
	for rows.Next() {
		var status domain.UnitStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
