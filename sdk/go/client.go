package trackfitsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Trackfit HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Unit represents the API unit model.
type Unit struct {
	ID             string `json:"id"`
	MaterialType   string `json:"material_type"`
	VendorLot      string `json:"vendor_lot"`
	MfgDate        string `json:"mfg_date"`
	ExpiryDate     string `json:"expiry_date"`
	WarrantyDays   int    `json:"warranty_days"`
	FittedDate     string `json:"fitted_date,omitempty"`
	InspectionDate string `json:"inspection_date,omitempty"`
	Status         string `json:"status"`
	TagRef         string `json:"tag_ref,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// Task represents a work assignment on a unit.
type Task struct {
	ID         int64  `json:"id"`
	UnitID     string `json:"unit_id"`
	AssignedBy string `json:"assigned_by"`
	AssignedTo string `json:"assigned_to"`
	Status     string `json:"status"`
	Remarks    string `json:"remarks,omitempty"`
}

// Alert represents an escalation notice.
type Alert struct {
	ID             int64  `json:"id"`
	UnitID         string `json:"unit_id"`
	Type           string `json:"type"`
	AssignedToRole string `json:"assigned_to_role"`
	Status         string `json:"status"`
	Notes          string `json:"notes,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and stores it on the
// client for subsequent calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "v1/auth/login", map[string]any{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// GenerateUnits bulk-issues identifiers for the given materials.
func (c *Client) GenerateUnits(ctx context.Context, materials []string, vendorLot string, batchNo, qty int) ([]Unit, error) {
	var resp struct {
		Units []Unit `json:"units"`
	}
	err := c.do(ctx, http.MethodPost, "v1/units/generate", map[string]any{
		"materials":  materials,
		"vendor_lot": vendorLot,
		"batch_no":   batchNo,
		"quantity":   qty,
	}, &resp)
	return resp.Units, err
}

// GetUnit fetches one unit by id.
func (c *Client) GetUnit(ctx context.Context, id string) (Unit, error) {
	var resp Unit
	err := c.do(ctx, http.MethodGet, "v1/units/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Scan resolves tag payload text to its registered unit.
func (c *Client) Scan(ctx context.Context, payload string) (Unit, error) {
	var resp Unit
	err := c.do(ctx, http.MethodPost, "v1/scan", map[string]any{"payload": payload}, &resp)
	return resp, err
}

// AssignTask opens a task on a unit.
func (c *Client) AssignTask(ctx context.Context, unitID, assignedTo, assigneeRole, remarks string) (Task, error) {
	var resp struct {
		Task Task `json:"task"`
	}
	body := map[string]any{
		"assigned_to":   assignedTo,
		"assignee_role": assigneeRole,
	}
	if remarks != "" {
		body["remarks"] = remarks
	}
	endpoint := fmt.Sprintf("v1/units/%s/tasks", url.PathEscape(unitID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp.Task, err
}

// RecordWork applies unit field updates and completes the caller's
// pending tasks on the unit.
func (c *Client) RecordWork(ctx context.Context, unitID string, fields map[string]any) (Unit, bool, error) {
	var resp struct {
		Unit      Unit `json:"unit"`
		Completed bool `json:"completed"`
	}
	endpoint := fmt.Sprintf("v1/units/%s/work", url.PathEscape(unitID))
	err := c.do(ctx, http.MethodPost, endpoint, fields, &resp)
	return resp.Unit, resp.Completed, err
}

// Inbox returns alerts addressed to the authenticated caller.
func (c *Client) Inbox(ctx context.Context) ([]Alert, error) {
	var resp []Alert
	err := c.do(ctx, http.MethodGet, "v1/inbox", nil, &resp)
	return resp, err
}

// Acknowledge marks an alert as read.
func (c *Client) Acknowledge(ctx context.Context, alertID int64) (bool, error) {
	var resp struct {
		Acknowledged bool `json:"acknowledged"`
	}
	endpoint := fmt.Sprintf("v1/alerts/%d/ack", alertID)
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Acknowledged, err
}

// SweepExpiry runs the warranty expiry sweep.
func (c *Client) SweepExpiry(ctx context.Context) ([]int64, error) {
	var resp struct {
		Raised []int64 `json:"raised"`
	}
	err := c.do(ctx, http.MethodPost, "v1/alerts/sweep", nil, &resp)
	return resp.Raised, err
}

// Events returns recent event log entries.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
