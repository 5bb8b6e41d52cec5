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

	"github.com/mlukins/cellar/internal/client/models"
)

// idempotencyHeader carries the client-generated operation id so the server
// can de-duplicate replayed mutations.
const idempotencyHeader = "Idempotency-Key"

// HTTPClient talks JSON over REST to the backend. Records travel as flat
// objects: id, created_at and updated_at alongside the domain fields.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPClient builds a client against baseURL. timeout bounds every call,
// including the remote-attempt-before-fallback on the direct-write path.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Create(ctx context.Context, entityType models.EntityType, fields map[string]any, opID string) (*models.Record, error) {
	return c.writeRecord(ctx, http.MethodPost, c.entityURL(entityType, ""), fields, opID)
}

func (c *HTTPClient) Update(ctx context.Context, entityType models.EntityType, id string, fields map[string]any, opID string) (*models.Record, error) {
	return c.writeRecord(ctx, http.MethodPatch, c.entityURL(entityType, id), fields, opID)
}

func (c *HTTPClient) Delete(ctx context.Context, entityType models.EntityType, id string, opID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.entityURL(entityType, id), nil, opID)
	if err != nil {
		return err
	}
	defer drain(resp)
	return c.checkStatus(resp)
}

func (c *HTTPClient) List(ctx context.Context, entityType models.EntityType) ([]models.Record, error) {
	resp, err := c.do(ctx, http.MethodGet, c.entityURL(entityType, ""), nil, "")
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}
	records := make([]models.Record, 0, len(raw))
	for _, m := range raw {
		records = append(records, decodeRecord(m))
	}
	return records, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/health", nil, "")
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return ErrUnreachable
	}
	return nil
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) writeRecord(ctx context.Context, method, target string, fields map[string]any, opID string) (*models.Record, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}

	resp, err := c.do(ctx, method, target, bytes.NewReader(body), opID)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode record response: %w", err)
	}
	rec := decodeRecord(raw)
	return &rec, nil
}

func (c *HTTPClient) do(ctx context.Context, method, target string, body io.Reader, opID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if opID != "" {
		req.Header.Set(idempotencyHeader, opID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport-level failures (refused, DNS, timeout) are the
		// unreachable class; everything past this point reached a server.
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return resp, nil
}

// checkStatus maps HTTP status codes onto the error taxonomy.
func (c *HTTPClient) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusConflict:
		return ErrConflict
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
}

func (c *HTTPClient) entityURL(entityType models.EntityType, id string) string {
	u := c.baseURL + "/api/" + string(entityType)
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

// decodeRecord splits a flat wire object into id, timestamps and fields.
func decodeRecord(raw map[string]any) models.Record {
	var rec models.Record
	rec.Fields = make(map[string]any, len(raw))
	for k, v := range raw {
		switch k {
		case "id":
			rec.ID, _ = v.(string)
		case "created_at":
			rec.CreatedAt = parseWireTime(v)
		case "updated_at":
			rec.UpdatedAt = parseWireTime(v)
		default:
			rec.Fields[k] = v
		}
	}
	return rec
}

func parseWireTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
