package repo

import (
	"context"
	"database/sql"
	"strings"

	"trackfit/internal/domain"
)

const taskColumns = `id,unit_id,assigned_by,assigned_to,assigned_at,status,last_update,COALESCE(remarks,'') AS remarks`

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.UnitID, &t.AssignedBy, &t.AssignedTo, &t.AssignedAt, &t.Status, &t.LastUpdate, &t.Remarks)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// InsertTask writes a new task; the id comes from the table's sequence.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(unit_id,assigned_by,assigned_to,assigned_at,status,last_update,remarks)
VALUES (?,?,?,?,?,?,?)`,
		t.UnitID, t.AssignedBy, t.AssignedTo, t.AssignedAt, t.Status, t.LastUpdate, nullable(t.Remarks))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// CompletePendingTasks flips every Pending task for the unit whose
// assignee matches the acting username or role. Returns the number of
// rows updated; zero is not an error.
func (r Repo) CompletePendingTasks(ctx context.Context, tx *sql.Tx, unitID, username string, role domain.Role, now string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, last_update=?
WHERE unit_id=? AND status=? AND (assigned_to=? OR assigned_to=?)`,
		domain.TaskCompleted, now, unitID, domain.TaskPending, username, string(role))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type TaskFilters struct {
	UnitID     string
	Status     domain.TaskStatus
	AssignedTo string
	Limit      int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.UnitID != "" {
		clauses = append(clauses, "unit_id=?")
		args = append(args, f.UnitID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListCompletedTasks feeds the expiry sweep.
func (r Repo) ListCompletedTasks(ctx context.Context) ([]domain.Task, error) {
	return r.ListTasks(ctx, TaskFilters{Status: domain.TaskCompleted})
}
