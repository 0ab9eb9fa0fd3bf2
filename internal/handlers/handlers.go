package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tphummel/hwportal/internal/db"
	"github.com/tphummel/hwportal/internal/metrics"
	"github.com/tphummel/hwportal/internal/models"
)

const maxBodyBytes = 64 * 1024

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	DB      *db.DB
	Version string
	Commit  string

	specOnce sync.Once
	spec     []byte
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeMessage writes the {message, response} envelope used by the
// /shecodes/inventory routes.
func writeMessage(w http.ResponseWriter, status int, msg string, resp *models.ProjectStatus) {
	writeJSON(w, status, models.Envelope{Message: msg, Response: resp})
}

// decodeBody reads a size-limited JSON body into v. On failure it writes the
// error response through fail and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, fail func(http.ResponseWriter, int, string)) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			fail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		fail(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func messageFail(w http.ResponseWriter, status int, msg string) {
	writeMessage(w, status, msg, nil)
}

// Health handles GET /healthz. No auth required.
// Returns 503 if the database is unreachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
		"commit":  h.Commit,
	})
}

// ProjectStatus handles GET /shecodes/inventory/projectstatus?projectid=.
func (h *Handler) ProjectStatus(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectid")
	if projectID == "" {
		writeMessage(w, http.StatusBadRequest, "projectid is required", nil)
		return
	}

	st, err := h.DB.ProjectStatus(projectID)
	if errors.Is(err, sql.ErrNoRows) {
		writeMessage(w, http.StatusNotFound, "Project not found", nil)
		return
	}
	if err != nil {
		slog.Error("project status", "project", projectID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to fetch project status", nil)
		return
	}
	writeMessage(w, http.StatusOK, "Project data fetched successfully.", st)
}

// CheckInCheckOut handles POST /shecodes/inventory/checkincheckout.
func (h *Handler) CheckInCheckOut(w http.ResponseWriter, r *http.Request) {
	var req models.CheckRequest
	if !decodeBody(w, r, &req, messageFail) {
		return
	}

	if req.ProjectID == "" || req.Action == "" || len(req.Inventory) == 0 {
		writeMessage(w, http.StatusBadRequest, "projectid, action and inventory are required", nil)
		return
	}
	if req.UserID == "" {
		writeMessage(w, http.StatusBadRequest, "userid is required", nil)
		return
	}
	if !models.ValidActions[req.Action] {
		writeMessage(w, http.StatusBadRequest, "action must be 'checkin' or 'checkout'", nil)
		return
	}

	st, applied, err := h.DB.Apply(req)
	if err != nil {
		var re *db.RuleError
		if !errors.As(err, &re) {
			metrics.ObserveCheck(req.Action, "error")
			slog.Error("checkincheckout", "project", req.ProjectID, "error", err)
			writeMessage(w, http.StatusInternalServerError, "failed to process request", nil)
			return
		}
		status, result := http.StatusBadRequest, "rejected"
		switch {
		case errors.Is(re, sql.ErrNoRows):
			status, result = http.StatusNotFound, "not_found"
		case errors.Is(re, db.ErrForbidden):
			status, result = http.StatusForbidden, "forbidden"
		}
		metrics.ObserveCheck(req.Action, result)
		writeMessage(w, status, re.Message, nil)
		return
	}

	metrics.ObserveCheck(req.Action, "ok")
	for _, t := range applied {
		metrics.ObserveMoved(t.Action, t.HardwareID, t.Quantity)
	}
	slog.Info("inventory updated",
		"project", req.ProjectID, "user", req.UserID, "action", string(req.Action), "lines", len(applied))

	name := string(req.Action)
	writeMessage(w, http.StatusOK, strings.ToUpper(name[:1])+name[1:]+" successful", st)
}

type hardwareRequest struct {
	ID       string `json:"hardwareid"`
	Name     string `json:"name"`
	Capacity *int   `json:"capacity"`
}

// CreateHardware handles POST /api/v1/hardware.
func (h *Handler) CreateHardware(w http.ResponseWriter, r *http.Request) {
	var req hardwareRequest
	if !decodeBody(w, r, &req, writeError) {
		return
	}
	if req.ID == "" || req.Capacity == nil {
		writeError(w, http.StatusBadRequest, "hardwareid and capacity are required")
		return
	}
	if *req.Capacity < 0 {
		writeError(w, http.StatusBadRequest, "capacity must not be negative")
		return
	}

	now := time.Now().UTC()
	hw := &models.HardwareSet{
		ID:        req.ID,
		Name:      req.Name,
		Capacity:  *req.Capacity,
		Available: *req.Capacity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := h.DB.CreateHardware(hw)
	if errors.Is(err, db.ErrDuplicate) {
		writeError(w, http.StatusConflict, "hardware set already exists")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create hardware set")
		return
	}
	writeJSON(w, http.StatusCreated, hw)
}

// ListHardware handles GET /api/v1/hardware.
func (h *Handler) ListHardware(w http.ResponseWriter, r *http.Request) {
	sets, err := h.DB.ListHardware()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list hardware sets")
		return
	}
	if sets == nil {
		sets = []*models.HardwareSet{}
	}
	writeJSON(w, http.StatusOK, sets)
}

// GetHardware handles GET /api/v1/hardware/{id}.
func (h *Handler) GetHardware(w http.ResponseWriter, r *http.Request) {
	hw, err := h.DB.GetHardware(r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "hardware set not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get hardware set")
		return
	}
	writeJSON(w, http.StatusOK, hw)
}

// UpdateHardware handles PUT /api/v1/hardware/{id}. Changing capacity moves
// availability by the same amount.
func (h *Handler) UpdateHardware(w http.ResponseWriter, r *http.Request) {
	var req hardwareRequest
	if !decodeBody(w, r, &req, writeError) {
		return
	}
	if req.Capacity == nil {
		writeError(w, http.StatusBadRequest, "capacity is required")
		return
	}
	if *req.Capacity < 0 {
		writeError(w, http.StatusBadRequest, "capacity must not be negative")
		return
	}

	hw := &models.HardwareSet{
		ID:        r.PathValue("id"),
		Name:      req.Name,
		Capacity:  *req.Capacity,
		UpdatedAt: time.Now().UTC(),
	}
	err := h.DB.UpdateHardware(hw)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "hardware set not found")
		return
	}
	if errors.Is(err, db.ErrInUse) {
		writeError(w, http.StatusConflict, "capacity is below the quantity checked out")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update hardware set")
		return
	}
	writeJSON(w, http.StatusOK, hw)
}

// DeleteHardware handles DELETE /api/v1/hardware/{id}.
func (h *Handler) DeleteHardware(w http.ResponseWriter, r *http.Request) {
	err := h.DB.DeleteHardware(r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "hardware set not found")
		return
	}
	if errors.Is(err, db.ErrInUse) {
		writeError(w, http.StatusConflict, "hardware set has units checked out")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete hardware set")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateProject handles POST /api/v1/projects.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.Project
	if !decodeBody(w, r, &req, writeError) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "projectid is required")
		return
	}
	for _, u := range req.AuthorizedUsers {
		if strings.TrimSpace(u) == "" {
			writeError(w, http.StatusBadRequest, "authorized_users must not contain empty ids")
			return
		}
	}

	req.CreatedAt = time.Now().UTC()
	err := h.DB.CreateProject(&req)
	if errors.Is(err, db.ErrDuplicate) {
		writeError(w, http.StatusConflict, "project already exists")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	p, err := h.DB.GetProject(req.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get project")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProject handles GET /api/v1/projects/{id}.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.DB.GetProject(r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get project")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AddProjectUser handles POST /api/v1/projects/{id}/users.
func (h *Handler) AddProjectUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userid"`
	}
	if !decodeBody(w, r, &req, writeError) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userid is required")
		return
	}

	id := r.PathValue("id")
	err := h.DB.AddProjectUser(id, req.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add user")
		return
	}

	p, err := h.DB.GetProject(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get project")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListTransactions handles GET /api/v1/projects/{id}/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.DB.GetProject(id); errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get project")
		return
	}

	txs, err := h.DB.ListTransactions(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}
