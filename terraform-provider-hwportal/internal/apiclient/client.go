// Package apiclient talks to the hwportal admin API (/api/v1).
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is an HTTP client for the hwportal admin API.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// HardwareSet mirrors the hardware set JSON of the admin API.
type HardwareSet struct {
	ID        string `json:"hardwareid"`
	Name      string `json:"name"`
	Capacity  int64  `json:"capacity"`
	Available int64  `json:"available,omitempty"`
}

// Project mirrors the project JSON of the admin API.
type Project struct {
	ID              string   `json:"projectid"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	AuthorizedUsers []string `json:"authorized_users"`
}

// APIError is returned for any response with an unexpected status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("hwportal API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("hwportal API returned status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// NewClient creates a Client targeting endpoint with Bearer token auth.
func NewClient(endpoint, token string) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint cannot be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("endpoint %q must be an http or https URL", endpoint)
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, want int, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(payload, &e)
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func hardwarePath(id string) string { return "/api/v1/hardware/" + url.PathEscape(id) }

func projectPath(id string) string { return "/api/v1/projects/" + url.PathEscape(id) }

// CreateHardware creates a hardware set with all units available.
func (c *Client) CreateHardware(ctx context.Context, h HardwareSet) (*HardwareSet, error) {
	var out HardwareSet
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/hardware", h, http.StatusCreated, &out); err != nil {
		return nil, fmt.Errorf("create hardware set %q: %w", h.ID, err)
	}
	return &out, nil
}

// GetHardware fetches one hardware set. A missing set is reported as an
// APIError for which IsNotFound is true.
func (c *Client) GetHardware(ctx context.Context, id string) (*HardwareSet, error) {
	var out HardwareSet
	if err := c.doJSON(ctx, http.MethodGet, hardwarePath(id), nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("get hardware set %q: %w", id, err)
	}
	return &out, nil
}

// ListHardware returns every hardware set ordered by id.
func (c *Client) ListHardware(ctx context.Context) ([]HardwareSet, error) {
	var out []HardwareSet
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/hardware", nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("list hardware sets: %w", err)
	}
	return out, nil
}

// UpdateHardware renames or resizes the hardware set h.ID.
func (c *Client) UpdateHardware(ctx context.Context, h HardwareSet) (*HardwareSet, error) {
	body := struct {
		Name     string `json:"name"`
		Capacity int64  `json:"capacity"`
	}{h.Name, h.Capacity}
	var out HardwareSet
	if err := c.doJSON(ctx, http.MethodPut, hardwarePath(h.ID), body, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("update hardware set %q: %w", h.ID, err)
	}
	return &out, nil
}

// DeleteHardware removes a hardware set. Deleting a set that is already gone
// is not an error.
func (c *Client) DeleteHardware(ctx context.Context, id string) error {
	err := c.doJSON(ctx, http.MethodDelete, hardwarePath(id), nil, http.StatusNoContent, nil)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("delete hardware set %q: %w", id, err)
	}
	return nil
}

// CreateProject creates a project with its initial members.
func (c *Client) CreateProject(ctx context.Context, p Project) (*Project, error) {
	var out Project
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/projects", p, http.StatusCreated, &out); err != nil {
		return nil, fmt.Errorf("create project %q: %w", p.ID, err)
	}
	return &out, nil
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var out Project
	if err := c.doJSON(ctx, http.MethodGet, projectPath(id), nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("get project %q: %w", id, err)
	}
	return &out, nil
}

// AddProjectUser links userID to the project and returns the updated project.
func (c *Client) AddProjectUser(ctx context.Context, projectID, userID string) (*Project, error) {
	body := struct {
		UserID string `json:"userid"`
	}{userID}
	var out Project
	if err := c.doJSON(ctx, http.MethodPost, projectPath(projectID)+"/users", body, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("add user %q to project %q: %w", userID, projectID, err)
	}
	return &out, nil
}
