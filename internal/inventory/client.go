// Package inventory is a client for the inventory service's projectstatus and
// checkincheckout endpoints.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/tphummel/hwportal/internal/checkout"
	"github.com/tphummel/hwportal/internal/models"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// TransportMessage is shown to users in place of transport error details.
const TransportMessage = "could not reach the inventory service"

// ServiceError is a non-2xx response from the inventory service. Message is
// the server-supplied message, or a generic one when the body had none.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string { return e.Message }

// TransportError means the request did not complete or the response could
// not be understood.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// Client talks to one inventory service base URL, for example
// http://localhost:8003/shecodes/inventory.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client
	Logger  *slog.Logger
}

// NewClient parses baseURL and returns a client whose requests time out after
// timeout. A zero timeout leaves requests bounded only by their context.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid inventory base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid inventory base url %q: scheme must be http or https", baseURL)
	}
	return &Client{
		BaseURL: u,
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  slog.Default(),
	}, nil
}

// ProjectStatus fetches the inventory snapshot of a project. The returned
// message is the server's success message.
func (c *Client) ProjectStatus(ctx context.Context, projectID string) (models.Snapshot, string, error) {
	q := url.Values{"projectid": {projectID}}
	env, err := c.do(ctx, http.MethodGet, "projectstatus", q, nil)
	if err != nil {
		return models.Snapshot{}, "", err
	}
	if env.Response == nil {
		return models.Snapshot{}, "", &TransportError{Op: "projectstatus", Err: fmt.Errorf("%w: missing response", checkout.ErrMalformedStatus)}
	}
	if env.Response.ProjectID == "" {
		env.Response.ProjectID = projectID
	}
	snap, err := checkout.FromStatus(*env.Response)
	if err != nil {
		return models.Snapshot{}, "", &TransportError{Op: "projectstatus", Err: err}
	}
	return snap, env.Message, nil
}

// CheckInCheckOut submits req. The returned envelope carries the server's
// message and, when the server provides it, the post-mutation project state.
func (c *Client) CheckInCheckOut(ctx context.Context, req models.CheckRequest) (*models.Envelope, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, "checkincheckout", nil, body)
}

func (c *Client) do(ctx context.Context, method, endpoint string, q url.Values, body []byte) (*models.Envelope, error) {
	u := c.BaseURL.JoinPath(endpoint)
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, &TransportError{Op: endpoint, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.logger().Warn("inventory request failed",
			"endpoint", endpoint, "error", err, "kind", classify(err))
		return nil, &TransportError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	c.logger().Debug("inventory request",
		"method", method, "endpoint", endpoint, "status", resp.StatusCode, "duration", time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Op: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}

	var env models.Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("unexpected response from inventory service: %s", resp.Status)
		}
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &TransportError{Op: endpoint, Err: fmt.Errorf("decode body: %w", decodeErr)}
	}
	return &env, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// classify names the broad cause of a failed round trip for logging.
func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "network timeout"
		}
		return "network"
	}
	return "other"
}

// UserMessage returns the text to show a user for err: the server message for
// a ServiceError, a fixed message for a TransportError, err.Error() otherwise.
func UserMessage(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	var te *TransportError
	if errors.As(err, &te) {
		return TransportMessage
	}
	return err.Error()
}
