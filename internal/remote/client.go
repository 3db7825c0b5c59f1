// Package remote is the HTTP client for the ironsync backend: the persistence
// API used by the mutation gateway and the initial-fetch reads.
package remote

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

	"github.com/existflow/ironsync/internal/model"
)

const apiPrefix = "/api/v1"

// Error is a failed persistence call. Status is 0 when the request never got
// a response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Status == 0:
		return e.Message
	case e.Code != "":
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.Status)
	default:
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
}

// Client talks to one backend with one session token
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client. A nil httpClient gets a 30 second timeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Create inserts a row and returns the stored record
func (c *Client) Create(ctx context.Context, table string, fields map[string]interface{}) (json.RawMessage, error) {
	var rec json.RawMessage
	err := c.do(ctx, http.MethodPost, "/rows/"+url.PathEscape(table), fields, &rec)
	return rec, err
}

// Update changes the given fields of row id and returns the stored record
func (c *Client) Update(ctx context.Context, table, id string, fields map[string]interface{}) (json.RawMessage, error) {
	var rec json.RawMessage
	err := c.do(ctx, http.MethodPatch, "/rows/"+url.PathEscape(table)+"/"+url.PathEscape(id), fields, &rec)
	return rec, err
}

// Delete removes row id
func (c *Client) Delete(ctx context.Context, table, id string) error {
	return c.do(ctx, http.MethodDelete, "/rows/"+url.PathEscape(table)+"/"+url.PathEscape(id), nil, nil)
}

// Me returns the identity behind the session token
func (c *Client) Me(ctx context.Context) (model.Identity, error) {
	var id model.Identity
	if err := c.do(ctx, http.MethodGet, "/me", nil, &id); err != nil {
		return model.Identity{}, err
	}
	return id, nil
}

// ListProjects returns the raw project records of a team
func (c *Client) ListProjects(ctx context.Context, teamID string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := c.do(ctx, http.MethodGet, "/projects?team_id="+url.QueryEscape(teamID), nil, &out)
	return out, err
}

// ListTasks returns the raw task records of a project
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/tasks", nil, &out)
	return out, err
}

// ListNotifications returns the raw notification records of the current user
func (c *Client) ListNotifications(ctx context.Context) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := c.do(ctx, http.MethodGet, "/notifications", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: fmt.Sprintf("failed to connect: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	e := &Error{Status: resp.StatusCode}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		e.Message = body.Error
		e.Code = body.Code
	} else if msg := strings.TrimSpace(string(data)); msg != "" {
		e.Message = msg
	} else {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
