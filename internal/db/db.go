package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tphummel/hwportal/internal/models"
	_ "modernc.org/sqlite"
)

var (
	// ErrDuplicate is returned when a record with the same id already exists.
	ErrDuplicate = errors.New("already exists")
	// ErrInUse is returned when deleting a hardware set that has units
	// checked out, or shrinking it below its checked-out quantity.
	ErrInUse = errors.New("hardware in use")
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// New opens the SQLite database at path, enables WAL mode, and runs migrations.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one connection: writes are serialized and ":memory:" stays a single database
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS hardware_sets (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			capacity   INTEGER NOT NULL CHECK (capacity >= 0),
			available  INTEGER NOT NULL CHECK (available >= 0 AND available <= capacity),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS projects (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS project_users (
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL,
			PRIMARY KEY (project_id, user_id)
		);
		CREATE TABLE IF NOT EXISTS project_hardware (
			project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			hardware_id TEXT NOT NULL REFERENCES hardware_sets(id),
			checked_out INTEGER NOT NULL DEFAULT 0 CHECK (checked_out >= 0),
			PRIMARY KEY (project_id, hardware_id)
		);
		CREATE TABLE IF NOT EXISTS transactions (
			id          TEXT PRIMARY KEY,
			project_id  TEXT NOT NULL,
			hardware_id TEXT NOT NULL,
			action      TEXT NOT NULL,
			quantity    INTEGER NOT NULL,
			user_id     TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_project ON transactions(project_id, created_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping verifies the database connection is alive.
func (d *DB) Ping() error {
	return d.conn.Ping()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateHardware inserts a new hardware set. Available is taken from h.
func (d *DB) CreateHardware(h *models.HardwareSet) error {
	_, err := d.conn.Exec(`
		INSERT INTO hardware_sets (id, name, capacity, available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.Name, h.Capacity, h.Available,
		h.CreatedAt.UTC().Format(time.RFC3339),
		h.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("hardware %s: %w", h.ID, ErrDuplicate)
	}
	return err
}

// GetHardware returns the hardware set with the given ID, or sql.ErrNoRows if
// not found.
func (d *DB) GetHardware(id string) (*models.HardwareSet, error) {
	return getHardware(d.conn, id)
}

func getHardware(q querier, id string) (*models.HardwareSet, error) {
	row := q.QueryRow(`
		SELECT id, name, capacity, available, created_at, updated_at
		FROM hardware_sets WHERE id = ?`, id)
	return scanHardware(row)
}

// ListHardware returns all hardware sets ordered by id.
func (d *DB) ListHardware() ([]*models.HardwareSet, error) {
	return listHardware(d.conn)
}

func listHardware(q querier) ([]*models.HardwareSet, error) {
	rows, err := q.Query(`
		SELECT id, name, capacity, available, created_at, updated_at
		FROM hardware_sets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []*models.HardwareSet
	for rows.Next() {
		h, err := scanHardware(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, h)
	}
	return sets, rows.Err()
}

// UpdateHardware replaces the name and capacity of the hardware set with h.ID.
// Availability moves by the same amount as capacity; ErrInUse is returned
// when the new capacity is below what projects have checked out. On success
// h.Available and h.CreatedAt reflect the stored row.
// Returns sql.ErrNoRows if no such hardware set exists.
func (d *DB) UpdateHardware(h *models.HardwareSet) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := getHardware(tx, h.ID)
	if err != nil {
		return err
	}
	available := existing.Available + (h.Capacity - existing.Capacity)
	if available < 0 {
		return fmt.Errorf("hardware %s has %d units checked out: %w",
			h.ID, existing.Capacity-existing.Available, ErrInUse)
	}

	if _, err := tx.Exec(`
		UPDATE hardware_sets SET name=?, capacity=?, available=?, updated_at=?
		WHERE id=?`,
		h.Name, h.Capacity, available,
		h.UpdatedAt.UTC().Format(time.RFC3339),
		h.ID,
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	h.Available = available
	h.CreatedAt = existing.CreatedAt
	return nil
}

// DeleteHardware removes the hardware set with the given ID. ErrInUse is
// returned while any project holds units of it.
// Returns sql.ErrNoRows if no such hardware set exists.
func (d *DB) DeleteHardware(id string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var held int
	if err := tx.QueryRow(`
		SELECT COALESCE(SUM(checked_out), 0) FROM project_hardware WHERE hardware_id = ?`, id,
	).Scan(&held); err != nil {
		return err
	}
	if held > 0 {
		return fmt.Errorf("hardware %s has %d units checked out: %w", id, held, ErrInUse)
	}

	if _, err := tx.Exec(`DELETE FROM project_hardware WHERE hardware_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM hardware_sets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// CreateProject inserts a project together with its authorized users.
func (d *DB) CreateProject(p *models.Project) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO projects (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("project %s: %w", p.ID, ErrDuplicate)
	}
	if err != nil {
		return err
	}
	for _, u := range p.AuthorizedUsers {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO project_users (project_id, user_id) VALUES (?, ?)`, p.ID, u,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetProject returns the project with the given ID and its authorized users,
// or sql.ErrNoRows if not found.
func (d *DB) GetProject(id string) (*models.Project, error) {
	return getProject(d.conn, id)
}

func getProject(q querier, id string) (*models.Project, error) {
	var p models.Project
	var createdAt string
	if err := q.QueryRow(`
		SELECT id, name, description, created_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &createdAt); err != nil {
		return nil, err
	}
	var err error
	p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}

	rows, err := q.Query(`
		SELECT user_id FROM project_users WHERE project_id = ? ORDER BY user_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	p.AuthorizedUsers = []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		p.AuthorizedUsers = append(p.AuthorizedUsers, u)
	}
	return &p, rows.Err()
}

// AddProjectUser links a user to a project. Adding an existing member is a
// no-op. Returns sql.ErrNoRows if no such project exists.
func (d *DB) AddProjectUser(projectID, userID string) error {
	var exists int
	if err := d.conn.QueryRow(`SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&exists); err != nil {
		return err
	}
	_, err := d.conn.Exec(`
		INSERT OR IGNORE INTO project_users (project_id, user_id) VALUES (?, ?)`, projectID, userID)
	return err
}

// ProjectStatus returns the checked-out quantity of every hardware set for
// the project, aligned with the hardware list in id order. Returns
// sql.ErrNoRows if no such project exists.
func (d *DB) ProjectStatus(projectID string) (*models.ProjectStatus, error) {
	return projectStatus(d.conn, projectID)
}

func projectStatus(q querier, projectID string) (*models.ProjectStatus, error) {
	var exists int
	if err := q.QueryRow(`SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&exists); err != nil {
		return nil, err
	}

	rows, err := q.Query(`
		SELECT h.id, h.capacity, h.available, COALESCE(ph.checked_out, 0)
		FROM hardware_sets h
		LEFT JOIN project_hardware ph ON ph.hardware_id = h.id AND ph.project_id = ?
		ORDER BY h.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	st := &models.ProjectStatus{
		ProjectID:  projectID,
		CheckedOut: []int{},
		Inventory:  []models.InventoryEntry{},
	}
	for rows.Next() {
		var e models.InventoryEntry
		var out int
		if err := rows.Scan(&e.HardwareID, &e.Capacity, &e.Available, &out); err != nil {
			return nil, err
		}
		st.Inventory = append(st.Inventory, e)
		st.CheckedOut = append(st.CheckedOut, out)
	}
	return st, rows.Err()
}

// ListTransactions returns the ledger of a project, oldest first.
func (d *DB) ListTransactions(projectID string) ([]*models.Transaction, error) {
	rows, err := d.conn.Query(`
		SELECT id, project_id, hardware_id, action, quantity, user_id, created_at
		FROM transactions WHERE project_id = ? ORDER BY created_at, rowid`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		var action, createdAt string
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.HardwareID, &action, &t.Quantity, &t.UserID, &createdAt); err != nil {
			return nil, err
		}
		t.Action = models.Action(action)
		t.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHardware(s scanner) (*models.HardwareSet, error) {
	var h models.HardwareSet
	var createdAt, updatedAt string
	if err := s.Scan(&h.ID, &h.Name, &h.Capacity, &h.Available, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	h.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	h.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	return &h, nil
}
