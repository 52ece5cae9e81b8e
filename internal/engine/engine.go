// Package engine holds the core workflows of the unit lifecycle: tasking,
// completion, expiry alerting and the inbox view. Identifier issuance
// lives alongside in issue.go.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"trackfit/internal/config"
	"trackfit/internal/domain"
	"trackfit/internal/engine/auth"
	"trackfit/internal/events"
	"trackfit/internal/repo"
	"trackfit/internal/tag"
)

const dateFormat = "2006-01-02"

// ErrUnitNotFound is returned when an operation names an unregistered unit.
var ErrUnitNotFound = errors.New("unit not found")

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config

	// Renderer produces a tag artifact per issued unit; nil skips artifacts.
	Renderer tag.Renderer

	// Now and Serial are injectable for tests.
	Now    func() time.Time
	Serial func() (string, error)
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Renderer: tag.FileRenderer{Dir: cfg.Tags.OutputDir},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) serial() (string, error) {
	if e.Serial != nil {
		return e.Serial()
	}
	return randomSerial()
}

func (e Engine) renderer() tag.Renderer {
	if e.Renderer != nil {
		return e.Renderer
	}
	return tag.NopRenderer{}
}

func (e Engine) retryBudget() int {
	if e.Config != nil && e.Config.Issuance.RetryBudget > 0 {
		return e.Config.Issuance.RetryBudget
	}
	return 8
}

func (e Engine) expiryThreshold() int {
	if e.Config != nil && e.Config.Alerts.ExpiryThresholdDays > 0 {
		return e.Config.Alerts.ExpiryThresholdDays
	}
	return 30
}

// UnitUpdate carries caller-visible field changes; empty fields are left
// untouched, never cleared.
type UnitUpdate struct {
	FittedDate     string
	InspectionDate string
	Status         domain.UnitStatus
}

func (u UnitUpdate) repoUpdate() repo.UnitUpdate {
	var upd repo.UnitUpdate
	if u.FittedDate != "" {
		upd.FittedDate = &u.FittedDate
	}
	if u.InspectionDate != "" {
		upd.InspectionDate = &u.InspectionDate
	}
	if u.Status != "" {
		upd.Status = &u.Status
	}
	return upd
}

// UpdateUnit applies a partial update to a unit's lifecycle fields.
func (e Engine) UpdateUnit(ctx context.Context, actor domain.Identity, unitID string, upd UnitUpdate) (domain.Unit, error) {
	if upd.Status != "" && !upd.Status.Valid() {
		return domain.Unit{}, fmt.Errorf("unknown unit status %q", upd.Status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unit{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUnit(ctx, tx, unitID, upd.repoUpdate()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Unit{}, fmt.Errorf("unit %s: %w", unitID, ErrUnitNotFound)
		}
		return domain.Unit{}, err
	}
	unit, err := e.Repo.GetUnitTx(ctx, tx, unitID)
	if err != nil {
		return domain.Unit{}, err
	}
	if err := e.Events.Append(ctx, tx, "unit.updated", "unit", unitID, actor.Username, events.EventPayload{
		"status": unit.Status,
	}); err != nil {
		return domain.Unit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Unit{}, err
	}
	return unit, nil
}

// AssignTask opens a task on a unit and notifies the assignee's
// supervising role. The notification runs after the task commit; a
// failure there is reported in the result, not by rolling the task back.
type AssignResult struct {
	Task domain.Task
	// AlertID is zero when the notification was suppressed or failed.
	AlertID  int64
	AlertErr error
}

func (e Engine) AssignTask(ctx context.Context, actor domain.Identity, unitID, assignee string, assigneeRole domain.Role, remarks string) (AssignResult, error) {
	if err := auth.RequireAssign(actor); err != nil {
		return AssignResult{}, err
	}
	if assignee == "" {
		return AssignResult{}, errors.New("assignee required")
	}
	if !assigneeRole.Valid() {
		return AssignResult{}, fmt.Errorf("unknown role %q", assigneeRole)
	}
	now := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AssignResult{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetUnitTx(ctx, tx, unitID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return AssignResult{}, fmt.Errorf("unit %s: %w", unitID, ErrUnitNotFound)
		}
		return AssignResult{}, err
	}
	task := domain.Task{
		UnitID:     unitID,
		AssignedBy: actor.Username,
		AssignedTo: assignee,
		AssignedAt: now,
		Status:     domain.TaskPending,
		LastUpdate: now,
		Remarks:    remarks,
	}
	task.ID, err = e.Repo.InsertTask(ctx, tx, task)
	if err != nil {
		return AssignResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.assigned", "task", fmt.Sprint(task.ID), actor.Username, events.EventPayload{
		"unit_id":     unitID,
		"assigned_to": assignee,
	}); err != nil {
		return AssignResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return AssignResult{}, err
	}

	res := AssignResult{Task: task}
	res.AlertID, res.AlertErr = e.notifyTaskAssigned(ctx, task, assigneeRole)
	return res, nil
}

// notifyTaskAssigned raises the alert for a freshly assigned task,
// addressed to the assignee by name and to their supervising role. An
// existing Active alert of the same type on the unit suppresses the new
// one.
func (e Engine) notifyTaskAssigned(ctx context.Context, task domain.Task, assigneeRole domain.Role) (int64, error) {
	target := assigneeRole.EscalationTarget()
	alert := domain.Alert{
		UnitID:         task.UnitID,
		Type:           domain.AlertTaskAssigned,
		CreatedAt:      task.AssignedAt,
		AssignedToRole: target,
		AssignedTo:     task.AssignedTo,
		Status:         domain.AlertActive,
		Notes:          fmt.Sprintf("Task %d assigned to %s", task.ID, task.AssignedTo),
	}
	id, err := e.raiseAlert(ctx, alert, task.AssignedBy)
	if errors.Is(err, repo.ErrDuplicateID) {
		return 0, nil
	}
	return id, err
}

// raiseAlert inserts an alert inside its own transaction, with the dedup
// check and the unique-index backstop both inside it.
func (e Engine) raiseAlert(ctx context.Context, a domain.Alert, actorID string) (int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	dup, err := e.Repo.HasActiveAlert(ctx, tx, a.UnitID, a.Type)
	if err != nil {
		return 0, err
	}
	if dup {
		return 0, fmt.Errorf("active %s alert for unit %s: %w", a.Type, a.UnitID, repo.ErrDuplicateID)
	}
	id, err := e.Repo.InsertAlert(ctx, tx, a)
	if err != nil {
		return 0, err
	}
	if err := e.Events.Append(ctx, tx, "alert.raised", "alert", fmt.Sprint(id), actorID, events.EventPayload{
		"unit_id": a.UnitID,
		"type":    a.Type,
		"to_role": a.AssignedToRole,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// WorkResult reports one completion flow: whether any task flipped, and
// the outcome of the expiry sweep chained after the commit. SweepErr is
// informational; the committed task state stands regardless.
type WorkResult struct {
	Completed bool
	Sweep     SweepResult
	SweepErr  error
}

// RecordWork is the field-side completion flow: apply the unit update and
// mark every Pending task on the unit assigned to the actor (by name or
// role) Completed, in one transaction. Every completion re-runs the
// expiry sweep afterwards.
func (e Engine) RecordWork(ctx context.Context, actor domain.Identity, unitID string, upd UnitUpdate) (WorkResult, error) {
	var res WorkResult
	if err := auth.RequireComplete(actor); err != nil {
		return res, err
	}
	if upd.Status != "" && !upd.Status.Valid() {
		return res, fmt.Errorf("unknown unit status %q", upd.Status)
	}
	now := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetUnitTx(ctx, tx, unitID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return res, fmt.Errorf("unit %s: %w", unitID, ErrUnitNotFound)
		}
		return res, err
	}
	if repoUpd := upd.repoUpdate(); repoUpd != (repo.UnitUpdate{}) {
		if err := e.Repo.UpdateUnit(ctx, tx, unitID, repoUpd); err != nil {
			return res, err
		}
	}
	n, err := e.Repo.CompletePendingTasks(ctx, tx, unitID, actor.Username, actor.Role, now)
	if err != nil {
		return res, err
	}
	if n > 0 {
		if err := e.Events.Append(ctx, tx, "task.completed", "unit", unitID, actor.Username, events.EventPayload{
			"tasks": n,
		}); err != nil {
			return res, err
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	res.Completed = n > 0
	if res.Completed {
		res.Sweep, res.SweepErr = e.SweepExpiry(ctx, actor)
	}
	return res, nil
}

// CompleteTask marks the actor's pending tasks on a unit Completed
// without touching unit fields.
func (e Engine) CompleteTask(ctx context.Context, actor domain.Identity, unitID string) (WorkResult, error) {
	return e.RecordWork(ctx, actor, unitID, UnitUpdate{})
}

// SweepResult summarises one expiry sweep.
type SweepResult struct {
	Scanned    int
	Raised     []int64
	Suppressed int
}

// SweepExpiry walks the completed-task ledger and raises a Near Expiry
// alert to the SRE role for every referenced unit within the warning
// window. Duplicate Active alerts are suppressed, not errors.
func (e Engine) SweepExpiry(ctx context.Context, actor domain.Identity) (SweepResult, error) {
	var res SweepResult
	tasks, err := e.Repo.ListCompletedTasks(ctx)
	if err != nil {
		return res, err
	}
	now := e.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	threshold := e.expiryThreshold()

	seen := map[string]bool{}
	for _, t := range tasks {
		if seen[t.UnitID] {
			continue
		}
		seen[t.UnitID] = true
		res.Scanned++

		unit, err := e.Repo.GetUnit(ctx, t.UnitID)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return res, err
		}
		expiry, err := time.ParseInLocation(dateFormat, unit.ExpiryDate, time.UTC)
		if err != nil {
			continue
		}
		days := int(expiry.Sub(today).Hours() / 24)
		if days > threshold {
			continue
		}
		alert := domain.Alert{
			UnitID:         unit.ID,
			Type:           domain.AlertNearExpiry,
			CreatedAt:      now.Format(time.RFC3339),
			AssignedToRole: domain.RoleSRE,
			Status:         domain.AlertActive,
			Notes:          fmt.Sprintf("%d days to expiry", days),
		}
		id, err := e.raiseAlert(ctx, alert, actor.Username)
		if errors.Is(err, repo.ErrDuplicateID) {
			res.Suppressed++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Raised = append(res.Raised, id)
	}
	return res, nil
}

// Inbox returns every alert addressed to the identity's role or directly
// to the identity, oldest first.
func (e Engine) Inbox(ctx context.Context, actor domain.Identity) ([]domain.Alert, error) {
	return e.Repo.InboxFor(ctx, actor)
}

// Acknowledge transitions an alert Active -> Read on behalf of the
// actor. Returns false, without error, when the alert is absent, already
// Read, or not addressed to the actor.
func (e Engine) Acknowledge(ctx context.Context, actor domain.Identity, alertID int64) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	alert, err := e.Repo.GetAlert(ctx, alertID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if alert.AssignedToRole != actor.Role && alert.AssignedTo != actor.Username {
		return false, nil
	}
	ok, err := e.Repo.MarkAlertRead(ctx, tx, alertID)
	if err != nil || !ok {
		return false, err
	}
	if err := e.Events.Append(ctx, tx, "alert.read", "alert", fmt.Sprint(alertID), actor.Username, nil); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ResolveScan decodes a captured frame and resolves the embedded UID to
// its registered unit.
func (e Engine) ResolveScan(ctx context.Context, dec tag.Decoder, frame io.Reader) (domain.Unit, error) {
	text, err := dec.Decode(frame)
	if err != nil {
		return domain.Unit{}, err
	}
	return e.ResolvePayload(ctx, text)
}

// ResolvePayload resolves already-decoded payload text to its unit.
func (e Engine) ResolvePayload(ctx context.Context, text string) (domain.Unit, error) {
	uid, err := tag.ExtractUID(text)
	if err != nil {
		return domain.Unit{}, err
	}
	unit, err := e.Repo.GetUnit(ctx, uid)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Unit{}, fmt.Errorf("unit %s: %w", uid, ErrUnitNotFound)
	}
	return unit, err
}
