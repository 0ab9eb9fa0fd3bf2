// Package checkout validates and applies hardware check-in/check-out requests
// against a project snapshot. Every function is pure: snapshots go in, new
// snapshots come out, and the caller's copy is never modified.
package checkout

import (
	"errors"
	"fmt"

	"github.com/tphummel/hwportal/internal/models"
)

var (
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInsufficientAvailability = errors.New("insufficient availability")
	ErrExcessiveReturn          = errors.New("excessive return")
	ErrEmptyRequest             = errors.New("empty request")
	ErrInvalidAction            = errors.New("invalid action")
	ErrUnknownHardware          = errors.New("unknown hardware")
	ErrMalformedStatus          = errors.New("malformed project status")
)

// QuantityError reports the first unit that failed validation. Kind is one of
// ErrInvalidQuantity, ErrInsufficientAvailability or ErrExcessiveReturn.
type QuantityError struct {
	Kind       error
	HardwareID string
	Requested  int
	// Limit is the available quantity for a checkout and the checked-out
	// quantity for a checkin. Unused for ErrInvalidQuantity.
	Limit int
}

func (e *QuantityError) Error() string {
	switch e.Kind {
	case ErrInsufficientAvailability:
		return fmt.Sprintf("cannot check out %d, only %d available for %s", e.Requested, e.Limit, e.HardwareID)
	case ErrExcessiveReturn:
		return fmt.Sprintf("cannot check in %d, only %d checked out for %s", e.Requested, e.Limit, e.HardwareID)
	default:
		return fmt.Sprintf("negative quantity %d for %s", e.Requested, e.HardwareID)
	}
}

func (e *QuantityError) Unwrap() error { return e.Kind }

// Validate checks the requested quantities in s against action. Units are
// checked in order and the first failing unit is reported; a request with no
// positive quantity fails with ErrEmptyRequest.
func Validate(s models.Snapshot, action models.Action) error {
	if !models.ValidActions[action] {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	anyPositive := false
	for _, u := range s.Units {
		if u.Requested < 0 {
			return &QuantityError{Kind: ErrInvalidQuantity, HardwareID: u.HardwareID, Requested: u.Requested}
		}
		if action == models.ActionCheckout && u.Requested > u.Available {
			return &QuantityError{Kind: ErrInsufficientAvailability, HardwareID: u.HardwareID, Requested: u.Requested, Limit: u.Available}
		}
		if action == models.ActionCheckin && u.Requested > u.CheckedOut {
			return &QuantityError{Kind: ErrExcessiveReturn, HardwareID: u.HardwareID, Requested: u.Requested, Limit: u.CheckedOut}
		}
		if u.Requested > 0 {
			anyPositive = true
		}
	}

	if !anyPositive {
		return fmt.Errorf("nothing to %s: %w", action, ErrEmptyRequest)
	}
	return nil
}

// Reconcile returns s with the requested quantities applied as action and
// every request cleared. Call it only after the inventory service accepted
// the same request.
func Reconcile(s models.Snapshot, action models.Action) models.Snapshot {
	out := s.Clone()
	for i := range out.Units {
		u := &out.Units[i]
		if action == models.ActionCheckout {
			u.Available -= u.Requested
			u.CheckedOut += u.Requested
		} else {
			u.Available += u.Requested
			u.CheckedOut -= u.Requested
		}
		u.Requested = 0
	}
	return out
}

// SetRequested returns s with the requested quantity of each named unit
// replaced. Units not named in req keep their current request.
func SetRequested(s models.Snapshot, req map[string]int) (models.Snapshot, error) {
	out := s.Clone()
	for id, qty := range req {
		i := out.Index(id)
		if i < 0 {
			return s, fmt.Errorf("%w: %s", ErrUnknownHardware, id)
		}
		out.Units[i].Requested = qty
	}
	return out, nil
}

// ClearRequested returns s with every request reset to zero.
func ClearRequested(s models.Snapshot) models.Snapshot {
	out := s.Clone()
	for i := range out.Units {
		out.Units[i].Requested = 0
	}
	return out
}

// Payload builds the checkincheckout request body. It carries every unit,
// including those with a zero request.
func Payload(s models.Snapshot, userID string, action models.Action) models.CheckRequest {
	items := make([]models.RequestItem, len(s.Units))
	for i, u := range s.Units {
		items[i] = models.RequestItem{HardwareID: u.HardwareID, Quantity: u.Requested}
	}
	return models.CheckRequest{
		ProjectID: s.ProjectID,
		UserID:    userID,
		Inventory: items,
		Action:    action,
	}
}

// FromStatus builds a snapshot from a projectstatus payload. checkedOut and
// inventory are positionally aligned on the wire; a length mismatch or a
// duplicate hardware id is rejected.
func FromStatus(st models.ProjectStatus) (models.Snapshot, error) {
	if len(st.CheckedOut) != len(st.Inventory) {
		return models.Snapshot{}, fmt.Errorf("%w: %d checked-out entries for %d hardware sets",
			ErrMalformedStatus, len(st.CheckedOut), len(st.Inventory))
	}

	seen := make(map[string]bool, len(st.Inventory))
	units := make([]models.Unit, len(st.Inventory))
	for i, inv := range st.Inventory {
		if inv.HardwareID == "" {
			return models.Snapshot{}, fmt.Errorf("%w: entry %d has no hardwareid", ErrMalformedStatus, i)
		}
		if seen[inv.HardwareID] {
			return models.Snapshot{}, fmt.Errorf("%w: duplicate hardwareid %s", ErrMalformedStatus, inv.HardwareID)
		}
		seen[inv.HardwareID] = true
		units[i] = models.Unit{
			HardwareID: inv.HardwareID,
			Capacity:   inv.Capacity,
			Available:  inv.Available,
			CheckedOut: st.CheckedOut[i],
		}
	}
	return models.Snapshot{ProjectID: st.ProjectID, Units: units}, nil
}

// Drift lists the hardware ids whose availability or checked-out quantity
// differs between a and b, including ids present in only one of them.
func Drift(a, b models.Snapshot) []string {
	var ids []string
	for _, ua := range a.Units {
		i := b.Index(ua.HardwareID)
		if i < 0 {
			ids = append(ids, ua.HardwareID)
			continue
		}
		ub := b.Units[i]
		if ua.Available != ub.Available || ua.CheckedOut != ub.CheckedOut || ua.Capacity != ub.Capacity {
			ids = append(ids, ua.HardwareID)
		}
	}
	for _, ub := range b.Units {
		if a.Index(ub.HardwareID) < 0 {
			ids = append(ids, ub.HardwareID)
		}
	}
	return ids
}
