// Package session holds one user's project lookup and the check-in/check-out
// submissions made against it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tphummel/hwportal/internal/checkout"
	"github.com/tphummel/hwportal/internal/inventory"
	"github.com/tphummel/hwportal/internal/models"
)

var (
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("a submission is already in progress")
	// ErrNoSnapshot is returned when no project has been loaded.
	ErrNoSnapshot = errors.New("no project loaded")
	// ErrStale is returned when a newer lookup superseded the request. The
	// response was discarded.
	ErrStale = errors.New("response superseded by a newer lookup")
	// ErrProjectRequired is returned by Lookup for an empty project id.
	ErrProjectRequired = errors.New("project id is required")
)

// State is the lifecycle position of a session.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateLoaded
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateSubmitting:
		return "submitting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Inventory is the subset of inventory.Client a session needs.
type Inventory interface {
	ProjectStatus(ctx context.Context, projectID string) (models.Snapshot, string, error)
	CheckInCheckOut(ctx context.Context, req models.CheckRequest) (*models.Envelope, error)
}

// Notifier surfaces human-readable outcomes to the user.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Session is safe for concurrent use. Each Lookup starts a new generation;
// responses that arrive for an older generation are dropped.
type Session struct {
	inv    Inventory
	notify Notifier
	userID string
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	snap       models.Snapshot
	gen        uint64
	submitting bool
}

// New returns an empty session acting as userID.
func New(inv Inventory, notify Notifier, userID string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{inv: inv, notify: notify, userID: userID, logger: logger}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the loaded snapshot. ok is false when nothing is
// loaded.
func (s *Session) Snapshot() (snap models.Snapshot, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoaded && s.state != StateSubmitting {
		return models.Snapshot{}, false
	}
	return s.snap.Clone(), true
}

// Lookup replaces the session's snapshot with the project's current state.
// On failure the session returns to empty.
func (s *Session) Lookup(ctx context.Context, projectID string) error {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		s.notify.Error(ErrProjectRequired.Error())
		return ErrProjectRequired
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = StateLoading
	s.snap = models.Snapshot{}
	s.mu.Unlock()

	reqID := uuid.NewString()
	log := s.logger.With("request_id", reqID, "project", projectID)
	log.Debug("project lookup")

	snap, msg, err := s.inv.ProjectStatus(ctx, projectID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		log.Info("discarding stale lookup response")
		return ErrStale
	}
	if err != nil {
		s.state = StateEmpty
		log.Warn("project lookup failed", "error", err)
		s.notify.Error(inventory.UserMessage(err))
		return err
	}
	s.snap = snap
	s.state = StateLoaded
	s.notify.Success(msg)
	return nil
}

// SetRequested records the user's requested quantities for the named units.
func (s *Session) SetRequested(req map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrBusy
	}
	if s.state != StateLoaded {
		return ErrNoSnapshot
	}
	next, err := checkout.SetRequested(s.snap, req)
	if err != nil {
		return err
	}
	s.snap = next
	return nil
}

// Submit validates the pending request, sends it to the inventory service and
// applies it to the snapshot once the service accepts it. Any failure leaves
// the snapshot as it was.
func (s *Session) Submit(ctx context.Context, action models.Action) error {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.state != StateLoaded {
		s.mu.Unlock()
		return ErrNoSnapshot
	}
	snap := s.snap.Clone()
	if err := checkout.Validate(snap, action); err != nil {
		s.mu.Unlock()
		s.notify.Error(err.Error())
		return err
	}
	gen := s.gen
	s.submitting = true
	s.state = StateSubmitting
	s.mu.Unlock()

	reqID := uuid.NewString()
	log := s.logger.With("request_id", reqID, "project", snap.ProjectID, "action", string(action))
	log.Debug("submitting")

	env, err := s.inv.CheckInCheckOut(ctx, checkout.Payload(snap, s.userID, action))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if gen != s.gen {
		log.Info("discarding stale submit response", "error", err)
		return ErrStale
	}
	s.state = StateLoaded
	if err != nil {
		log.Warn("submit failed", "error", err)
		s.notify.Error(inventory.UserMessage(err))
		return err
	}

	s.snap = s.confirmed(log, snap, action, env)
	s.notify.Success(env.Message)
	return nil
}

// confirmed returns the post-submit snapshot. The service's own view of the
// project wins when the response carries one; otherwise the request is
// applied locally.
func (s *Session) confirmed(log *slog.Logger, sent models.Snapshot, action models.Action, env *models.Envelope) models.Snapshot {
	local := checkout.Reconcile(sent, action)
	if env.Response == nil {
		return local
	}

	st := *env.Response
	if st.ProjectID == "" {
		st.ProjectID = sent.ProjectID
	}

	if len(st.Inventory) == 0 {
		// checkedOut alone, aligned with the units that were sent
		if len(st.CheckedOut) != len(local.Units) {
			log.Warn("ignoring post-submit state", "reason", "checkedOut length mismatch")
			return local
		}
		merged := local.Clone()
		for i := range merged.Units {
			merged.Units[i].CheckedOut = st.CheckedOut[i]
		}
		if drift := checkout.Drift(local, merged); len(drift) > 0 {
			log.Warn("snapshot drift", "hardware", drift)
		}
		return merged
	}

	authoritative, err := checkout.FromStatus(st)
	if err != nil {
		log.Warn("ignoring post-submit state", "error", err)
		return local
	}
	if drift := checkout.Drift(local, authoritative); len(drift) > 0 {
		log.Warn("snapshot drift", "hardware", drift)
	}
	return authoritative
}
