package catalog

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

	"github.com/manpreetbhatti/showroom/internal/coords"
)

// Error is any non-success outcome of a catalog call. Detail is for
// diagnostics only.
type Error struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("catalog %s: status %d: %s", e.Op, e.Status, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("catalog %s: %s", e.Op, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a catalog 404.
func IsNotFound(err error) bool {
	var cerr *Error
	return errors.As(err, &cerr) && cerr.Status == http.StatusNotFound
}

// HTTP client for the store catalog service
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) FetchStores(ctx context.Context) ([]Store, error) {
	var stores []Store
	if err := c.do(ctx, "fetch stores", http.MethodGet, "/api/stores", nil, &stores); err != nil {
		return nil, err
	}
	return stores, nil
}

func (c *Client) FetchStore(ctx context.Context, id string) (*Store, error) {
	var store Store
	path := "/api/stores/" + url.PathEscape(id)
	if err := c.do(ctx, "fetch store", http.MethodGet, path, nil, &store); err != nil {
		return nil, err
	}
	return &store, nil
}

type updatePositionRequest struct {
	Position coords.Position `json:"position"`
}

func (c *Client) UpdateModelPosition(ctx context.Context, storeID, modelID string, pos coords.Position) (*Model, error) {
	var model Model
	path := fmt.Sprintf("/api/stores/%s/models/%s", url.PathEscape(storeID), url.PathEscape(modelID))
	body := updatePositionRequest{Position: coords.Clamp(pos)}
	if err := c.do(ctx, "update position", http.MethodPatch, path, body, &model); err != nil {
		return nil, err
	}
	return &model, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, Status: resp.StatusCode, Detail: errorDetail(resp)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func errorDetail(resp *http.Response) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(data, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	return http.StatusText(resp.StatusCode)
}
