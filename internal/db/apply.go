package db

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tphummel/hwportal/internal/models"
)

var (
	// ErrRejected marks a request that breaks an inventory rule.
	ErrRejected = errors.New("rejected")
	// ErrForbidden marks a user who is not a member of the project.
	ErrForbidden = errors.New("forbidden")
)

// RuleError carries the message shown to the caller when Apply refuses a
// request. Kind is ErrRejected, ErrForbidden or sql.ErrNoRows.
type RuleError struct {
	Kind    error
	Message string
}

func (e *RuleError) Error() string { return e.Message }

func (e *RuleError) Unwrap() error { return e.Kind }

func rejected(format string, args ...any) error {
	return &RuleError{Kind: ErrRejected, Message: fmt.Sprintf(format, args...)}
}

// Apply checks hardware in or out for a project. Lines with a zero quantity
// are skipped. The batch is applied in one transaction: if any line is
// refused nothing is changed. On success every applied line is written to
// the ledger and the project's new status is returned.
func (d *DB) Apply(req models.CheckRequest) (*models.ProjectStatus, []*models.Transaction, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	project, err := getProject(tx, req.ProjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, &RuleError{Kind: sql.ErrNoRows, Message: "Project not found"}
	}
	if err != nil {
		return nil, nil, err
	}
	if len(project.AuthorizedUsers) > 0 && !slices.Contains(project.AuthorizedUsers, req.UserID) {
		return nil, nil, &RuleError{
			Kind:    ErrForbidden,
			Message: "You are not a member of this project. Please add your User ID on the Add User page.",
		}
	}

	now := time.Now().UTC()
	var applied []*models.Transaction
	for _, item := range req.Inventory {
		if item.HardwareID == "" || item.Quantity == 0 {
			continue
		}
		if item.Quantity < 0 {
			return nil, nil, rejected("Quantity for %s must not be negative", item.HardwareID)
		}

		hw, err := getHardware(tx, item.HardwareID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, rejected("Unsupported hardwareid: %s", item.HardwareID)
		}
		if err != nil {
			return nil, nil, err
		}

		var held int
		err = tx.QueryRow(`
			SELECT checked_out FROM project_hardware WHERE project_id = ? AND hardware_id = ?`,
			req.ProjectID, item.HardwareID,
		).Scan(&held)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, err
		}

		delta := item.Quantity
		switch req.Action {
		case models.ActionCheckout:
			if item.Quantity > hw.Available {
				return nil, nil, rejected("Only %d units of %s are available", hw.Available, item.HardwareID)
			}
		case models.ActionCheckin:
			if item.Quantity > held {
				return nil, nil, rejected("Project has only %d units of %s to check in", held, item.HardwareID)
			}
			delta = -item.Quantity
		default:
			return nil, nil, rejected("action must be 'checkin' or 'checkout'")
		}

		if _, err := tx.Exec(`
			UPDATE hardware_sets SET available = available - ?, updated_at = ? WHERE id = ?`,
			delta, now.Format(time.RFC3339), item.HardwareID,
		); err != nil {
			return nil, nil, err
		}
		// the row is created at zero so the CHECK never sees a negative insert
		if _, err := tx.Exec(`
			INSERT INTO project_hardware (project_id, hardware_id, checked_out) VALUES (?, ?, 0)
			ON CONFLICT (project_id, hardware_id) DO NOTHING`,
			req.ProjectID, item.HardwareID,
		); err != nil {
			return nil, nil, err
		}
		if _, err := tx.Exec(`
			UPDATE project_hardware SET checked_out = checked_out + ?
			WHERE project_id = ? AND hardware_id = ?`,
			delta, req.ProjectID, item.HardwareID,
		); err != nil {
			return nil, nil, err
		}

		t := &models.Transaction{
			ID:         uuid.New().String(),
			ProjectID:  req.ProjectID,
			HardwareID: item.HardwareID,
			Action:     req.Action,
			Quantity:   item.Quantity,
			UserID:     req.UserID,
			CreatedAt:  now,
		}
		if _, err := tx.Exec(`
			INSERT INTO transactions (id, project_id, hardware_id, action, quantity, user_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.ProjectID, t.HardwareID, string(t.Action), t.Quantity, t.UserID,
			t.CreatedAt.Format(time.RFC3339),
		); err != nil {
			return nil, nil, err
		}
		applied = append(applied, t)
	}

	if len(applied) == 0 {
		return nil, nil, rejected("No valid hardware items to process.")
	}

	st, err := projectStatus(tx, req.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return st, applied, nil
}
