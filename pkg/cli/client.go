package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"scrumdeck/internal/domain"
)

// APIError carries a structured error response from the server.
type APIError struct {
	HTTPStatus int    `json:"http_status"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Reason, e.HTTPStatus)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.HTTPStatus)
}

// Client is a thin HTTP client for the delegation API.
type Client struct {
	BaseURL string
	APIKey  string
	Token   string

	httpClient *http.Client
}

// NewClient creates a client against the given base URL.
func NewClient(baseURL, apiKey, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CheckDecision is the response envelope of the check endpoint.
type CheckDecision struct {
	Decision   string             `json:"decision"`
	Delegation *domain.Delegation `json:"delegation,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Message    string             `json:"message,omitempty"`
}

// DelegationList is the response envelope of the list endpoint.
type DelegationList struct {
	Delegations []domain.Delegation      `json:"delegations"`
	Summary     domain.DelegationSummary `json:"summary"`
	Total       int64                    `json:"total"`
}

func (c *Client) CreateDelegation(ctx context.Context, req domain.CreateDelegationRequest) (*domain.Delegation, error) {
	var d domain.Delegation
	if err := c.do(ctx, http.MethodPost, "/v1/delegations", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) ListDelegations(ctx context.Context, status, agentType string) (*DelegationList, error) {
	path := "/v1/delegations"
	sep := "?"
	if status != "" {
		path += sep + "status=" + status
		sep = "&"
	}
	if agentType != "" {
		path += sep + "agent_type=" + agentType
	}
	var out DelegationList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetDelegation(ctx context.Context, id string) (*domain.Delegation, error) {
	var d domain.Delegation
	if err := c.do(ctx, http.MethodGet, "/v1/delegations/"+id, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) SuspendDelegation(ctx context.Context, id string) (*domain.Delegation, error) {
	var d domain.Delegation
	if err := c.do(ctx, http.MethodPut, "/v1/delegations/"+id+"/suspend", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) ReactivateDelegation(ctx context.Context, id string) (*domain.Delegation, error) {
	var d domain.Delegation
	if err := c.do(ctx, http.MethodPut, "/v1/delegations/"+id+"/reactivate", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) RevokeDelegation(ctx context.Context, id string) (*domain.Delegation, error) {
	var d domain.Delegation
	if err := c.do(ctx, http.MethodDelete, "/v1/delegations/"+id, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) PurgeDelegation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/delegations/"+id+"/purge", nil, nil)
}

// Check calls the check endpoint. A policy denial is returned as a
// CheckDecision with Decision "deny", not as an error: the CLI renders the
// reason either way.
func (c *Client) Check(ctx context.Context, id, permission string, scope domain.Scope, cost string) (*CheckDecision, error) {
	body := map[string]any{"permission": permission, "scope": scope, "cost": cost}
	var out CheckDecision
	err := c.do(ctx, http.MethodPost, "/v1/delegations/"+id+"/check", body, &out)
	if err != nil {
		if denied, ok := decisionFromError(err); ok {
			return denied, nil
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) Release(ctx context.Context, id string) (*domain.Delegation, error) {
	var d domain.Delegation
	if err := c.do(ctx, http.MethodPost, "/v1/delegations/"+id+"/release", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) ListPermissions(ctx context.Context) ([]domain.CatalogEntry, error) {
	var out struct {
		Permissions []domain.CatalogEntry `json:"permissions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/permissions", nil, &out); err != nil {
		return nil, err
	}
	return out.Permissions, nil
}

func (c *Client) RegisterSprint(ctx context.Context, id, productID, name string) (*domain.Sprint, error) {
	body := map[string]any{"id": id, "productId": productID, "name": name}
	var s domain.Sprint
	if err := c.do(ctx, http.MethodPost, "/v1/sprints", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// decisionFromError converts a deny-status APIError back into a decision
// envelope. The server encodes denials with the same JSON shape and a
// non-200 status; other failures stay errors.
func decisionFromError(err error) (*CheckDecision, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	switch apiErr.HTTPStatus {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return &CheckDecision{Decision: "deny", Reason: apiErr.Reason, Message: apiErr.Message}, true
	}
	return nil, false
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	} else if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
			apiErr.Reason = payload.Reason
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
