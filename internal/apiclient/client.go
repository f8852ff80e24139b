// Package apiclient is an HTTP client for the rackops REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tphummel/rackops/internal/models"
	"github.com/tphummel/rackops/internal/scheduler"
)

// Client is an HTTP client for the rackops REST API.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client targeting endpoint with Bearer token auth.
func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-success response from the server.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
}

// Clock is the response of SetClock.
type Clock struct {
	Time   time.Time `json:"time"`
	Paused bool      `json:"paused"`
	Speed  float64   `json:"speed"`
}

// Purchase is the response of Purchase.
type Purchase struct {
	Cash      float64        `json:"cash"`
	Inventory map[string]int `json:"inventory"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

// call performs a request and decodes a JSON response into out when the
// status matches want. out may be nil for bodiless responses.
func (c *Client) call(ctx context.Context, op, method, path string, body any, want int, out any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		apiErr := &APIError{Op: op, Status: resp.StatusCode}
		var msg struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&msg) == nil {
			apiErr.Message = msg.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// State fetches the full game state.
func (c *Client) State(ctx context.Context) (*models.State, error) {
	var out models.State
	if err := c.call(ctx, "get state", http.MethodGet, "/api/v1/state", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks returns queued tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status models.TaskStatus) ([]models.Task, error) {
	path := "/api/v1/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var out []models.Task
	if err := c.call(ctx, "list tasks", http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTask queues a task and returns the server-assigned record.
func (c *Client) CreateTask(ctx context.Context, req scheduler.Request) (*models.Task, error) {
	var out models.Task
	if err := c.call(ctx, "create task", http.MethodPost, "/api/v1/tasks", req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AbortTask removes a task from the queue.
func (c *Client) AbortTask(ctx context.Context, id string) error {
	return c.call(ctx, "abort task "+id, http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

// Purchase buys qty boxes of hardware.
func (c *Client) Purchase(ctx context.Context, hardwareID string, qty int) (*Purchase, error) {
	body := map[string]any{"hardware_id": hardwareID, "quantity": qty}
	var out Purchase
	if err := c.call(ctx, "purchase", http.MethodPost, "/api/v1/purchases", body, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Hire adds an employee.
func (c *Client) Hire(ctx context.Context, name, skill string) (*models.Employee, error) {
	body := map[string]string{"name": name, "skill": skill}
	var out models.Employee
	if err := c.call(ctx, "hire", http.MethodPost, "/api/v1/employees", body, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetClock pauses, resumes or changes the speed of the game. Nil fields are
// left unchanged.
func (c *Client) SetClock(ctx context.Context, paused *bool, speed *float64) (*Clock, error) {
	body := map[string]any{}
	if paused != nil {
		body["paused"] = *paused
	}
	if speed != nil {
		body["speed"] = *speed
	}
	var out Clock
	if err := c.call(ctx, "set clock", http.MethodPut, "/api/v1/clock", body, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Save asks the server to persist the running game and returns the session id.
func (c *Client) Save(ctx context.Context) (string, error) {
	var out struct {
		Session string `json:"session"`
	}
	if err := c.call(ctx, "save", http.MethodPost, "/api/v1/save", nil, http.StatusOK, &out); err != nil {
		return "", err
	}
	return out.Session, nil
}
