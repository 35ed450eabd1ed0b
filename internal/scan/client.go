package scan

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

	"github.com/google/uuid"

	"github.com/yungbote/trackflow-backend/internal/platform/httpx"
)

const (
	headerCardID = "X-NFC-Card-Id"
	headerUserID = "X-User-Id"
)

// Credentials identify the operator holding the handheld.
type Credentials struct {
	CardID string
	UserID uuid.UUID
}

func (c Credentials) complete() bool {
	return strings.TrimSpace(c.CardID) != "" && c.UserID != uuid.Nil
}

type Card struct {
	Valid    bool      `json:"valid"`
	CardID   string    `json:"card_id"`
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
	Role     string    `json:"role"`
}

type Assembly struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	ProjectID uuid.UUID  `json:"project_id"`
	ParentID  *uuid.UUID `json:"parent_id"`
	Barcode   string     `json:"barcode"`
}

type Batch struct {
	ID          uuid.UUID `json:"id"`
	BatchNumber string    `json:"batch_number"`
	Status      string    `json:"status"`
	ProjectID   uuid.UUID `json:"project_id"`
	TotalWeight string    `json:"total_weight"`
	Barcode     string    `json:"barcode"`
}

type Pending struct {
	Step     string `json:"step"`
	TargetID string `json:"target_id"`
}

// AddResult is the ledger answer to a scan onto a batch.
type AddResult struct {
	Added        bool      `json:"added"`
	AlreadyAdded bool      `json:"already_added"`
	Partial      bool      `json:"partial"`
	Pending      []Pending `json:"pending"`
	TotalWeight  string    `json:"total_weight"`
	Assembly     *Assembly `json:"assembly"`
}

type RemoveResult struct {
	Removed     bool      `json:"removed"`
	Partial     bool      `json:"partial"`
	Pending     []Pending `json:"pending"`
	TotalWeight string    `json:"total_weight"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
}

func (e *APIError) HTTPStatusCode() int { return e.Status }

// API is the slice of the mobile REST surface the scan screens drive.
type API interface {
	ValidateCard(ctx context.Context, cardID string) (*Card, error)
	AssemblyByBarcode(ctx context.Context, creds Credentials, code string) (*Assembly, error)
	ValidateBatch(ctx context.Context, creds Credentials, code string) (*Batch, error)
	AddToBatch(ctx context.Context, creds Credentials, batchID uuid.UUID, code string) (*AddResult, error)
	RemoveFromBatch(ctx context.Context, creds Credentials, batchID, assemblyID uuid.UUID) (*RemoveResult, error)
	ChangeStatus(ctx context.Context, creds Credentials, assemblyID uuid.UUID, status string) (*Assembly, error)
}

type ClientOptions struct {
	HTTPClient *http.Client
	Retry      httpx.RetryPolicy
	Timeout    time.Duration
}

type Client struct {
	base  string
	http  *http.Client
	retry httpx.RetryPolicy
}

func NewClient(baseURL string, opts ClientOptions) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: strings.TrimRight(u.String(), "/"), http: hc, retry: opts.Retry}, nil
}

func (c *Client) ValidateCard(ctx context.Context, cardID string) (*Card, error) {
	var out Card
	if err := c.do(ctx, http.MethodPost, "/api/mobile/nfc/validate", nil, map[string]string{"card_id": cardID}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AssemblyByBarcode(ctx context.Context, creds Credentials, code string) (*Assembly, error) {
	var out struct {
		Assembly *Assembly `json:"assembly"`
	}
	path := "/api/mobile/assemblies/by-barcode/" + url.PathEscape(strings.TrimSpace(code))
	if err := c.do(ctx, http.MethodGet, path, &creds, nil, &out, true); err != nil {
		return nil, err
	}
	return out.Assembly, nil
}

func (c *Client) ValidateBatch(ctx context.Context, creds Credentials, code string) (*Batch, error) {
	var out struct {
		Batch *Batch `json:"batch"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/mobile/batches/validate", &creds, map[string]string{"barcode": code}, &out, true); err != nil {
		return nil, err
	}
	return out.Batch, nil
}

// AddToBatch is retried: the ledger answers already_added for a repeat of a write that landed.
func (c *Client) AddToBatch(ctx context.Context, creds Credentials, batchID uuid.UUID, code string) (*AddResult, error) {
	var out AddResult
	path := "/api/mobile/batches/" + batchID.String() + "/assemblies"
	if err := c.do(ctx, http.MethodPost, path, &creds, map[string]string{"barcode": code}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveFromBatch(ctx context.Context, creds Credentials, batchID, assemblyID uuid.UUID) (*RemoveResult, error) {
	var out RemoveResult
	path := "/api/mobile/batches/" + batchID.String() + "/assemblies/" + assemblyID.String()
	if err := c.do(ctx, http.MethodDelete, path, &creds, nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ChangeStatus(ctx context.Context, creds Credentials, assemblyID uuid.UUID, status string) (*Assembly, error) {
	var out struct {
		Assembly *Assembly `json:"assembly"`
	}
	path := "/api/mobile/assemblies/" + assemblyID.String() + "/status"
	if err := c.do(ctx, http.MethodPatch, path, &creds, map[string]string{"status": status}, &out, true); err != nil {
		return nil, err
	}
	return out.Assembly, nil
}

func (c *Client) do(ctx context.Context, method, path string, creds *Credentials, body, out any, retry bool) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = b
	}
	policy := c.retry
	if !retry {
		policy.Attempts = 1
	}
	return httpx.Do(ctx, policy, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if creds != nil {
			req.Header.Set(headerCardID, creds.CardID)
			req.Header.Set(headerUserID, creds.UserID.String())
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return resp, err
		}
		if resp.StatusCode >= 300 {
			return resp, decodeAPIError(resp.StatusCode, raw)
		}
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return resp, fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
		return resp, nil
	})
}

func decodeAPIError(status int, raw []byte) error {
	var env struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw, &env)
	return &APIError{Status: status, Code: env.Error.Code, Message: env.Error.Message}
}
