package db_test

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/tphummel/hwportal/internal/db"
	"github.com/tphummel/hwportal/internal/models"
)

// newTestDB opens a fresh in-memory SQLite database for each test.
func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// sampleHardware returns a fully-populated HardwareSet for use in tests.
func sampleHardware(id string, capacity int) *models.HardwareSet {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.HardwareSet{
		ID:        id,
		Name:      "Hardware " + id,
		Capacity:  capacity,
		Available: capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func sampleProject(id string, users ...string) *models.Project {
	return &models.Project{
		ID:              id,
		Name:            "Project " + id,
		Description:     "test project",
		AuthorizedUsers: users,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
}

// seeded returns a DB with hw1 (capacity 10), hw2 (capacity 5) and project p1.
func seeded(t *testing.T, users ...string) *db.DB {
	t.Helper()
	d := newTestDB(t)
	for _, h := range []*models.HardwareSet{sampleHardware("hw1", 10), sampleHardware("hw2", 5)} {
		if err := d.CreateHardware(h); err != nil {
			t.Fatalf("CreateHardware: %v", err)
		}
	}
	if err := d.CreateProject(sampleProject("p1", users...)); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return d
}

func checkReq(action models.Action, user string, qty ...int) models.CheckRequest {
	ids := []string{"hw1", "hw2"}
	req := models.CheckRequest{ProjectID: "p1", UserID: user, Action: action}
	for i, q := range qty {
		req.Inventory = append(req.Inventory, models.RequestItem{HardwareID: ids[i], Quantity: q})
	}
	return req
}

func TestNew(t *testing.T) {
	// Verifies schema is created and the DB is usable.
	d := newTestDB(t)
	if d == nil {
		t.Fatal("expected non-nil DB")
	}
	if err := d.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestCreateHardware_GetHardware(t *testing.T) {
	d := newTestDB(t)
	h := sampleHardware("hw1", 10)

	if err := d.CreateHardware(h); err != nil {
		t.Fatalf("CreateHardware: %v", err)
	}

	got, err := d.GetHardware("hw1")
	if err != nil {
		t.Fatalf("GetHardware: %v", err)
	}
	if got.ID != h.ID {
		t.Errorf("ID: got %q, want %q", got.ID, h.ID)
	}
	if got.Name != h.Name {
		t.Errorf("Name: got %q, want %q", got.Name, h.Name)
	}
	if got.Capacity != 10 || got.Available != 10 {
		t.Errorf("capacity/available: got %d/%d, want 10/10", got.Capacity, got.Available)
	}
	if !got.CreatedAt.Equal(h.CreatedAt) {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, h.CreatedAt)
	}
	if !got.UpdatedAt.Equal(h.UpdatedAt) {
		t.Errorf("UpdatedAt: got %v, want %v", got.UpdatedAt, h.UpdatedAt)
	}
}

func TestCreateHardware_Duplicate(t *testing.T) {
	d := newTestDB(t)
	if err := d.CreateHardware(sampleHardware("hw1", 1)); err != nil {
		t.Fatalf("first CreateHardware: %v", err)
	}
	err := d.CreateHardware(sampleHardware("hw1", 2))
	if !errors.Is(err, db.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateHardware_RejectsAvailableAboveCapacity(t *testing.T) {
	d := newTestDB(t)
	h := sampleHardware("hw1", 2)
	h.Available = 3
	if err := d.CreateHardware(h); err == nil {
		t.Error("expected constraint error, got nil")
	}
}

func TestGetHardware_NotFound(t *testing.T) {
	d := newTestDB(t)
	_, err := d.GetHardware("nonexistent")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestListHardware_Ordered(t *testing.T) {
	d := newTestDB(t)
	for _, id := range []string{"hw2", "hw3", "hw1"} {
		if err := d.CreateHardware(sampleHardware(id, 1)); err != nil {
			t.Fatalf("CreateHardware %s: %v", id, err)
		}
	}

	sets, err := d.ListHardware()
	if err != nil {
		t.Fatalf("ListHardware: %v", err)
	}
	if len(sets) != 3 {
		t.Fatalf("got %d sets, want 3", len(sets))
	}
	for i, want := range []string{"hw1", "hw2", "hw3"} {
		if sets[i].ID != want {
			t.Errorf("sets[%d]: got %q, want %q", i, sets[i].ID, want)
		}
	}
}

func TestListHardware_Empty(t *testing.T) {
	d := newTestDB(t)
	sets, err := d.ListHardware()
	if err != nil {
		t.Fatalf("ListHardware: %v", err)
	}
	if len(sets) != 0 {
		t.Errorf("expected empty list, got %d", len(sets))
	}
}

func TestUpdateHardware_ShiftsAvailability(t *testing.T) {
	d := seeded(t)
	if _, _, err := d.Apply(checkReq(models.ActionCheckout, "u", 4)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	h := &models.HardwareSet{ID: "hw1", Name: "renamed", Capacity: 12, UpdatedAt: time.Now().UTC()}
	if err := d.UpdateHardware(h); err != nil {
		t.Fatalf("UpdateHardware: %v", err)
	}
	if h.Available != 8 {
		t.Errorf("returned Available: got %d, want 8", h.Available)
	}

	got, _ := d.GetHardware("hw1")
	if got.Name != "renamed" || got.Capacity != 12 || got.Available != 8 {
		t.Errorf("stored: got %+v", got)
	}
}

func TestUpdateHardware_BelowCheckedOut(t *testing.T) {
	d := seeded(t)
	if _, _, err := d.Apply(checkReq(models.ActionCheckout, "u", 4)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	err := d.UpdateHardware(&models.HardwareSet{ID: "hw1", Capacity: 3, UpdatedAt: time.Now()})
	if !errors.Is(err, db.ErrInUse) {
		t.Errorf("expected ErrInUse, got %v", err)
	}
}

func TestUpdateHardware_NotFound(t *testing.T) {
	d := newTestDB(t)
	err := d.UpdateHardware(&models.HardwareSet{ID: "ghost", Capacity: 1, UpdatedAt: time.Now()})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestDeleteHardware(t *testing.T) {
	d := seeded(t)
	if err := d.DeleteHardware("hw2"); err != nil {
		t.Fatalf("DeleteHardware: %v", err)
	}
	if _, err := d.GetHardware("hw2"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows after delete, got %v", err)
	}
	if err := d.DeleteHardware("hw2"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second delete: expected sql.ErrNoRows, got %v", err)
	}
}

func TestDeleteHardware_InUse(t *testing.T) {
	d := seeded(t)
	if _, _, err := d.Apply(checkReq(models.ActionCheckout, "u", 0, 1)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := d.DeleteHardware("hw2"); !errors.Is(err, db.ErrInUse) {
		t.Errorf("expected ErrInUse, got %v", err)
	}

	// once everything is returned the set can go
	if _, _, err := d.Apply(checkReq(models.ActionCheckin, "u", 0, 1)); err != nil {
		t.Fatalf("Apply checkin: %v", err)
	}
	if err := d.DeleteHardware("hw2"); err != nil {
		t.Errorf("DeleteHardware after return: %v", err)
	}
}

func TestCreateProject_GetProject(t *testing.T) {
	d := newTestDB(t)
	p := sampleProject("p1", "bob", "alice", "bob")
	if err := d.CreateProject(p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	got, err := d.GetProject("p1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Name != p.Name || got.Description != p.Description {
		t.Errorf("got %+v", got)
	}
	if len(got.AuthorizedUsers) != 2 || got.AuthorizedUsers[0] != "alice" || got.AuthorizedUsers[1] != "bob" {
		t.Errorf("AuthorizedUsers: got %v, want [alice bob]", got.AuthorizedUsers)
	}
	if !got.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, p.CreatedAt)
	}

	if err := d.CreateProject(sampleProject("p1")); !errors.Is(err, db.ErrDuplicate) {
		t.Errorf("duplicate project: expected ErrDuplicate, got %v", err)
	}
}

func TestAddProjectUser(t *testing.T) {
	d := seeded(t)
	for i := 0; i < 2; i++ {
		if err := d.AddProjectUser("p1", "carol"); err != nil {
			t.Fatalf("AddProjectUser: %v", err)
		}
	}
	got, _ := d.GetProject("p1")
	if len(got.AuthorizedUsers) != 1 || got.AuthorizedUsers[0] != "carol" {
		t.Errorf("AuthorizedUsers: got %v, want [carol]", got.AuthorizedUsers)
	}

	if err := d.AddProjectUser("ghost", "carol"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("unknown project: expected sql.ErrNoRows, got %v", err)
	}
}

func TestProjectStatus_FreshProject(t *testing.T) {
	d := seeded(t)
	st, err := d.ProjectStatus("p1")
	if err != nil {
		t.Fatalf("ProjectStatus: %v", err)
	}
	if len(st.Inventory) != 2 || len(st.CheckedOut) != 2 {
		t.Fatalf("got %d inventory / %d checkedOut, want 2/2", len(st.Inventory), len(st.CheckedOut))
	}
	if st.Inventory[0].HardwareID != "hw1" || st.Inventory[1].HardwareID != "hw2" {
		t.Errorf("order: got %v", st.Inventory)
	}
	if st.CheckedOut[0] != 0 || st.CheckedOut[1] != 0 {
		t.Errorf("checkedOut: got %v, want [0 0]", st.CheckedOut)
	}
}

func TestProjectStatus_NotFound(t *testing.T) {
	d := seeded(t)
	if _, err := d.ProjectStatus("ghost"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestApply_CheckoutThenCheckin(t *testing.T) {
	d := seeded(t)

	st, txs, err := d.Apply(checkReq(models.ActionCheckout, "alice", 3, 0))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("ledger rows: got %d, want 1 (zero lines skipped)", len(txs))
	}
	if st.CheckedOut[0] != 3 || st.Inventory[0].Available != 7 {
		t.Errorf("after checkout: checkedOut %v, inventory %v", st.CheckedOut, st.Inventory)
	}

	st, _, err = d.Apply(checkReq(models.ActionCheckin, "alice", 2, 0))
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if st.CheckedOut[0] != 1 || st.Inventory[0].Available != 9 {
		t.Errorf("after checkin: checkedOut %v, inventory %v", st.CheckedOut, st.Inventory)
	}

	ledger, err := d.ListTransactions("p1")
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(ledger) != 2 {
		t.Fatalf("ledger: got %d rows, want 2", len(ledger))
	}
	if ledger[0].Action != models.ActionCheckout || ledger[1].Action != models.ActionCheckin {
		t.Errorf("ledger order: got %s then %s", ledger[0].Action, ledger[1].Action)
	}
	if ledger[0].UserID != "alice" || ledger[0].Quantity != 3 || ledger[0].ID == "" {
		t.Errorf("ledger[0]: got %+v", ledger[0])
	}
}

func TestApply_Rules(t *testing.T) {
	tests := []struct {
		name     string
		users    []string
		req      models.CheckRequest
		wantKind error
		wantMsg  string
	}{
		{
			name:     "unknown project",
			req:      models.CheckRequest{ProjectID: "ghost", Action: models.ActionCheckout, Inventory: []models.RequestItem{{HardwareID: "hw1", Quantity: 1}}},
			wantKind: sql.ErrNoRows,
			wantMsg:  "Project not found",
		},
		{
			name:     "not a member",
			users:    []string{"alice"},
			req:      checkReq(models.ActionCheckout, "mallory", 1),
			wantKind: db.ErrForbidden,
			wantMsg:  "You are not a member of this project. Please add your User ID on the Add User page.",
		},
		{
			name:     "more than available",
			req:      checkReq(models.ActionCheckout, "u", 11),
			wantKind: db.ErrRejected,
			wantMsg:  "Only 10 units of hw1 are available",
		},
		{
			name:     "return more than held",
			req:      checkReq(models.ActionCheckin, "u", 1),
			wantKind: db.ErrRejected,
			wantMsg:  "Project has only 0 units of hw1 to check in",
		},
		{
			name:     "unsupported hardware",
			req:      models.CheckRequest{ProjectID: "p1", Action: models.ActionCheckout, Inventory: []models.RequestItem{{HardwareID: "hw9", Quantity: 1}}},
			wantKind: db.ErrRejected,
			wantMsg:  "Unsupported hardwareid: hw9",
		},
		{
			name:     "negative quantity",
			req:      checkReq(models.ActionCheckout, "u", -1),
			wantKind: db.ErrRejected,
			wantMsg:  "Quantity for hw1 must not be negative",
		},
		{
			name:     "nothing to do",
			req:      checkReq(models.ActionCheckout, "u", 0, 0),
			wantKind: db.ErrRejected,
			wantMsg:  "No valid hardware items to process.",
		},
		{
			name:     "bad action",
			req:      checkReq("borrow", "u", 1),
			wantKind: db.ErrRejected,
			wantMsg:  "action must be 'checkin' or 'checkout'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := seeded(t, tt.users...)
			_, _, err := d.Apply(tt.req)

			var re *db.RuleError
			if !errors.As(err, &re) {
				t.Fatalf("expected *RuleError, got %T: %v", err, err)
			}
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("kind: got %v, want %v", re.Kind, tt.wantKind)
			}
			if re.Message != tt.wantMsg {
				t.Errorf("message: got %q, want %q", re.Message, tt.wantMsg)
			}
		})
	}
}

func TestApply_MemberAllowed(t *testing.T) {
	d := seeded(t, "alice")
	if _, _, err := d.Apply(checkReq(models.ActionCheckout, "alice", 1)); err != nil {
		t.Errorf("member checkout: %v", err)
	}
}

func TestApply_AllOrNothing(t *testing.T) {
	d := seeded(t)

	// hw1 line is valid, hw2 line exceeds availability: neither may apply
	_, _, err := d.Apply(checkReq(models.ActionCheckout, "u", 2, 6))
	if !errors.Is(err, db.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}

	st, err := d.ProjectStatus("p1")
	if err != nil {
		t.Fatalf("ProjectStatus: %v", err)
	}
	if st.CheckedOut[0] != 0 || st.Inventory[0].Available != 10 {
		t.Errorf("partial apply leaked: checkedOut %v, inventory %v", st.CheckedOut, st.Inventory)
	}
	ledger, _ := d.ListTransactions("p1")
	if len(ledger) != 0 {
		t.Errorf("ledger: got %d rows, want 0", len(ledger))
	}
}

func TestApply_SharedPoolAcrossProjects(t *testing.T) {
	d := seeded(t)
	if err := d.CreateProject(sampleProject("p2")); err != nil {
		t.Fatalf("CreateProject p2: %v", err)
	}

	if _, _, err := d.Apply(checkReq(models.ActionCheckout, "u", 8)); err != nil {
		t.Fatalf("p1 checkout: %v", err)
	}
	req := checkReq(models.ActionCheckout, "u", 3)
	req.ProjectID = "p2"
	_, _, err := d.Apply(req)
	var re *db.RuleError
	if !errors.As(err, &re) || re.Message != "Only 2 units of hw1 are available" {
		t.Errorf("p2 checkout: got %v", err)
	}

	st, _ := d.ProjectStatus("p2")
	if st.CheckedOut[0] != 0 || st.Inventory[0].Available != 2 {
		t.Errorf("p2 status: checkedOut %v, inventory %v", st.CheckedOut, st.Inventory)
	}
}

func TestApply_CheckinDrainsHolding(t *testing.T) {
	d := seeded(t)

	steps := []struct {
		action        models.Action
		qty           int
		wantOut       int
		wantAvailable int
	}{
		{models.ActionCheckout, 6, 6, 4},
		{models.ActionCheckin, 3, 3, 7},
		{models.ActionCheckout, 1, 4, 6},
		{models.ActionCheckin, 4, 0, 10},
	}
	for i, s := range steps {
		st, _, err := d.Apply(checkReq(s.action, "u", s.qty))
		if err != nil {
			t.Fatalf("step %d %s %d: %v", i, s.action, s.qty, err)
		}
		if st.CheckedOut[0] != s.wantOut || st.Inventory[0].Available != s.wantAvailable {
			t.Errorf("step %d %s %d: checkedOut %d available %d, want %d/%d",
				i, s.action, s.qty, st.CheckedOut[0], st.Inventory[0].Available, s.wantOut, s.wantAvailable)
		}
	}

	// nothing left to return
	_, _, err := d.Apply(checkReq(models.ActionCheckin, "u", 1))
	var re *db.RuleError
	if !errors.As(err, &re) || re.Message != "Project has only 0 units of hw1 to check in" {
		t.Errorf("checkin with nothing held: got %v", err)
	}
}
